// Package reports persists the proctoring report pieces this pipeline owns:
// the segment registry, merge statuses, recording URLs and monitoring events.
// The result row itself belongs to the main assessment service.
package reports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hitesh-bhardwaj/online-assessment-platform-sub000/internal/models"
)

// MergeRef identifies one (result, stream type) merge unit.
type MergeRef struct {
	ResultID uuid.UUID
	Type     models.StreamType
}

// Repository handles proctoring report persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a reports repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// AppendSegment inserts one captured media segment. The ingestion endpoint
// calls this once per chunk; segments are never updated afterwards.
func (r *Repository) AppendSegment(ctx context.Context, seg *models.MediaSegment) error {
	if err := seg.Validate(); err != nil {
		return err
	}
	if seg.SegmentID == uuid.Nil {
		seg.SegmentID = uuid.New()
	}
	const q = `INSERT INTO media_segments (id, result_id, stream_type, storage_backend, locator, public_url, mime_type, recorded_at, duration_ms, size_bytes, sequence)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := r.pool.Exec(ctx, q,
		seg.SegmentID, seg.ResultID, seg.Type, seg.Backend, seg.Locator, seg.PublicURL,
		seg.MimeType, seg.RecordedAt, seg.DurationMs, seg.Size, seg.Sequence)
	return err
}

// AppendEvent inserts one monitoring event.
func (r *Repository) AppendEvent(ctx context.Context, ev *models.ProctoringEvent) error {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now()
	}
	const q = `INSERT INTO proctoring_events (id, result_id, event_type, severity, time_offset_ms, detail, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.pool.Exec(ctx, q, ev.ID, ev.ResultID, ev.Type, ev.Severity, ev.TimeOffsetMs, ev.Detail, ev.OccurredAt)
	return err
}

// LoadSegments returns all media segments for a result, oldest insert first.
// The merge pipeline re-sorts by sequence; insertion order carries no meaning.
func (r *Repository) LoadSegments(ctx context.Context, resultID uuid.UUID) ([]models.MediaSegment, error) {
	const q = `SELECT id, result_id, stream_type, storage_backend, locator, COALESCE(public_url,''), COALESCE(mime_type,''), recorded_at, duration_ms, size_bytes, sequence
		FROM media_segments WHERE result_id = $1 ORDER BY created_at`
	rows, err := r.pool.Query(ctx, q, resultID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.MediaSegment
	for rows.Next() {
		var seg models.MediaSegment
		if err := rows.Scan(&seg.SegmentID, &seg.ResultID, &seg.Type, &seg.Backend, &seg.Locator, &seg.PublicURL, &seg.MimeType, &seg.RecordedAt, &seg.DurationMs, &seg.Size, &seg.Sequence); err != nil {
			return nil, err
		}
		list = append(list, seg)
	}
	return list, rows.Err()
}

// SaveMergeStatus upserts the merge status for one (result, stream type).
// Repeated writes of the same status are safe (at-least-once callers).
func (r *Repository) SaveMergeStatus(ctx context.Context, resultID uuid.UUID, streamType models.StreamType, status models.MergeStatus) error {
	const q = `INSERT INTO merge_status (result_id, stream_type, state, last_attempt, error)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''))
		ON CONFLICT (result_id, stream_type)
		DO UPDATE SET state = EXCLUDED.state, last_attempt = EXCLUDED.last_attempt, error = EXCLUDED.error, updated_at = NOW()`
	_, err := r.pool.Exec(ctx, q, resultID, streamType, status.State, status.LastAttempt, status.Error)
	return err
}

// SaveRecordingURL upserts the playable URL for a merged stream type.
func (r *Repository) SaveRecordingURL(ctx context.Context, resultID uuid.UUID, streamType models.StreamType, url string, backend models.StorageBackend) error {
	const q = `INSERT INTO recording_urls (result_id, stream_type, url, storage_backend)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (result_id, stream_type)
		DO UPDATE SET url = EXCLUDED.url, storage_backend = EXCLUDED.storage_backend, updated_at = NOW()`
	_, err := r.pool.Exec(ctx, q, resultID, streamType, url, backend)
	return err
}

// GetMergeStatus returns the merge status for one (result, stream type), or
// nil when no merge has been attempted yet.
func (r *Repository) GetMergeStatus(ctx context.Context, resultID uuid.UUID, streamType models.StreamType) (*models.MergeStatus, error) {
	const q = `SELECT state, last_attempt, COALESCE(error,'') FROM merge_status WHERE result_id = $1 AND stream_type = $2`
	var st models.MergeStatus
	err := r.pool.QueryRow(ctx, q, resultID, streamType).Scan(&st.State, &st.LastAttempt, &st.Error)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &st, nil
}

// GetReport assembles the full proctoring report for a result.
func (r *Repository) GetReport(ctx context.Context, resultID uuid.UUID) (*models.ProctoringReport, error) {
	segments, err := r.LoadSegments(ctx, resultID)
	if err != nil {
		return nil, err
	}

	report := &models.ProctoringReport{
		ResultID:      resultID,
		MediaSegments: segments,
		RecordingURLs: make(map[models.StreamType]models.RecordingURL),
		MergeStatuses: make(map[models.StreamType]models.MergeStatus),
	}

	rows, err := r.pool.Query(ctx, `SELECT stream_type, state, last_attempt, COALESCE(error,'') FROM merge_status WHERE result_id = $1`, resultID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var t models.StreamType
		var st models.MergeStatus
		if err := rows.Scan(&t, &st.State, &st.LastAttempt, &st.Error); err != nil {
			return nil, err
		}
		report.MergeStatuses[t] = st
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	urlRows, err := r.pool.Query(ctx, `SELECT stream_type, url, storage_backend FROM recording_urls WHERE result_id = $1`, resultID)
	if err != nil {
		return nil, err
	}
	defer urlRows.Close()
	for urlRows.Next() {
		var t models.StreamType
		var u models.RecordingURL
		if err := urlRows.Scan(&t, &u.URL, &u.Backend); err != nil {
			return nil, err
		}
		report.RecordingURLs[t] = u
	}
	if err := urlRows.Err(); err != nil {
		return nil, err
	}

	evRows, err := r.pool.Query(ctx, `SELECT id, result_id, event_type, severity, time_offset_ms, COALESCE(detail,''), occurred_at
		FROM proctoring_events WHERE result_id = $1 ORDER BY occurred_at`, resultID)
	if err != nil {
		return nil, err
	}
	defer evRows.Close()
	for evRows.Next() {
		var ev models.ProctoringEvent
		if err := evRows.Scan(&ev.ID, &ev.ResultID, &ev.Type, &ev.Severity, &ev.TimeOffsetMs, &ev.Detail, &ev.OccurredAt); err != nil {
			return nil, err
		}
		report.Events = append(report.Events, ev)
	}
	return report, evRows.Err()
}

// ListUnmergedResults returns the most recent results (by latest segment) that
// still have a stream type without a completed merge.
func (r *Repository) ListUnmergedResults(ctx context.Context, limit int) ([]uuid.UUID, error) {
	if limit <= 0 {
		limit = 10
	}
	const q = `SELECT result_id FROM (
			SELECT s.result_id, MAX(s.created_at) AS latest
			FROM media_segments s
			LEFT JOIN merge_status m ON m.result_id = s.result_id AND m.stream_type = s.stream_type
			WHERE m.state IS NULL OR m.state <> 'completed'
			GROUP BY s.result_id
		) t ORDER BY latest DESC LIMIT $1`
	rows, err := r.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListStaleProcessing returns merges stuck in processing whose last attempt is
// older than cutoff. A crashed merge leaves processing behind; the worker
// requeues these on startup.
func (r *Repository) ListStaleProcessing(ctx context.Context, cutoff time.Time) ([]MergeRef, error) {
	const q = `SELECT result_id, stream_type FROM merge_status WHERE state = 'processing' AND last_attempt < $1`
	rows, err := r.pool.Query(ctx, q, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var refs []MergeRef
	for rows.Next() {
		var ref MergeRef
		if err := rows.Scan(&ref.ResultID, &ref.Type); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// DeleteSegments removes segment rows after their chunks were merged and the
// delete-chunks option is enabled.
func (r *Repository) DeleteSegments(ctx context.Context, resultID uuid.UUID, streamType models.StreamType, segmentIDs []uuid.UUID) error {
	if len(segmentIDs) == 0 {
		return nil
	}
	const q = `DELETE FROM media_segments WHERE result_id = $1 AND stream_type = $2 AND id = ANY($3)`
	_, err := r.pool.Exec(ctx, q, resultID, streamType, segmentIDs)
	return err
}
