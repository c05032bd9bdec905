// Package merge reassembles a result's time-sliced media segments into one
// playable recording per stream type, without re-encoding.
package merge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hitesh-bhardwaj/online-assessment-platform-sub000/internal/models"
	"github.com/hitesh-bhardwaj/online-assessment-platform-sub000/pkg/storage"
)

// TmpDirName is the subdirectory of the media root used for per-run scratch
// files (downloaded remote segments). It is dot-prefixed so the retention
// sweeper skips it.
const TmpDirName = ".merge-tmp"

// durationTolerance is the allowed drift between the probed output duration
// and the sum of segment durations before a warning is logged.
const durationTolerance = 2 * time.Second

// ReportStore is the narrow persistence surface the pipeline needs. The full
// report document is owned elsewhere; the pipeline only reads segments and
// writes merge outcomes.
type ReportStore interface {
	LoadSegments(ctx context.Context, resultID uuid.UUID) ([]models.MediaSegment, error)
	SaveMergeStatus(ctx context.Context, resultID uuid.UUID, streamType models.StreamType, status models.MergeStatus) error
	SaveRecordingURL(ctx context.Context, resultID uuid.UUID, streamType models.StreamType, url string, backend models.StorageBackend) error
	GetMergeStatus(ctx context.Context, resultID uuid.UUID, streamType models.StreamType) (*models.MergeStatus, error)
	DeleteSegments(ctx context.Context, resultID uuid.UUID, streamType models.StreamType, segmentIDs []uuid.UUID) error
}

// Options controls optional pipeline behavior.
type Options struct {
	// DeleteChunksAfterMerge removes the original local chunk files and their
	// registry rows after a successful merge. Remote-backed segments are never
	// deleted this way; only their downloaded temp copies are.
	DeleteChunksAfterMerge bool
}

// Pipeline merges recorded segments. Stream types are independent units of
// work: one type failing does not stop the others.
type Pipeline struct {
	store  ReportStore
	local  *storage.Local
	remote storage.Backend // nil when no durable backend is configured
	concat Concatenator
	probe  Prober // optional
	opts   Options
	logger *zap.Logger
	now    func() time.Time
}

// NewPipeline creates a merge pipeline. remote and probe may be nil.
func NewPipeline(store ReportStore, local *storage.Local, remote storage.Backend, concat Concatenator, probe Prober, opts Options, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		store:  store,
		local:  local,
		remote: remote,
		concat: concat,
		probe:  probe,
		opts:   opts,
		logger: logger,
		now:    time.Now,
	}
}

// MergeResult merges every stream type of the result that has segments. It is
// not idempotent: completed types are re-merged. Callers wanting idempotence
// use MergeResultIfNeeded. Returns the joined errors of all failed types.
func (p *Pipeline) MergeResult(ctx context.Context, resultID uuid.UUID) error {
	return p.merge(ctx, resultID, true)
}

// MergeResultIfNeeded merges only stream types that are not already completed.
// Safe under at-least-once job delivery.
func (p *Pipeline) MergeResultIfNeeded(ctx context.Context, resultID uuid.UUID) error {
	return p.merge(ctx, resultID, false)
}

func (p *Pipeline) merge(ctx context.Context, resultID uuid.UUID, force bool) error {
	segments, err := p.store.LoadSegments(ctx, resultID)
	if err != nil {
		return fmt.Errorf("load segments for %s: %w", resultID, err)
	}

	byType := make(map[models.StreamType][]models.MediaSegment)
	for _, seg := range segments {
		if !seg.Type.Valid() {
			continue
		}
		byType[seg.Type] = append(byType[seg.Type], seg)
	}

	var errs []error
	for _, t := range []models.StreamType{models.StreamScreen, models.StreamWebcam, models.StreamMicrophone} {
		segs, ok := byType[t]
		if !ok {
			continue
		}
		if !force {
			st, err := p.store.GetMergeStatus(ctx, resultID, t)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: read merge status: %w", t, err))
				continue
			}
			if st != nil && st.State == models.MergeCompleted {
				p.logger.Info("merge already completed, skipping",
					zap.String("result_id", resultID.String()), zap.String("stream_type", string(t)))
				continue
			}
		}
		if err := p.mergeType(ctx, resultID, t, segs); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", t, err))
		}
	}
	return errors.Join(errs...)
}

// mergeType runs the full download, concat, validate, publish sequence for one
// stream type. On failure the merge status records the error and it is
// returned to the caller for external retry.
func (p *Pipeline) mergeType(ctx context.Context, resultID uuid.UUID, t models.StreamType, segs []models.MediaSegment) (err error) {
	ordered := make([]models.MediaSegment, 0, len(segs))
	for _, seg := range segs {
		if seg.Playable() {
			ordered = append(ordered, seg)
		} else {
			p.logger.Warn("skipping unplayable segment",
				zap.String("result_id", resultID.String()),
				zap.String("segment_id", seg.SegmentID.String()),
				zap.Int("sequence", seg.Sequence))
		}
	}
	if len(ordered) == 0 {
		// Nothing usable: not an error, and no status entry is created.
		return nil
	}
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Sequence < ordered[j].Sequence })

	log := p.logger.With(zap.String("result_id", resultID.String()), zap.String("stream_type", string(t)))

	if err := p.store.SaveMergeStatus(ctx, resultID, t, models.MergeStatus{
		State:       models.MergeProcessing,
		LastAttempt: p.now(),
	}); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}

	var tempFiles []string
	defer func() {
		for _, f := range tempFiles {
			if rmErr := os.Remove(f); rmErr != nil && !os.IsNotExist(rmErr) {
				log.Warn("temp file not removed", zap.String("path", f), zap.Error(rmErr))
			}
		}
	}()

	fail := func(cause error) error {
		if stErr := p.store.SaveMergeStatus(ctx, resultID, t, models.MergeStatus{
			State:       models.MergeFailed,
			LastAttempt: p.now(),
			Error:       cause.Error(),
		}); stErr != nil {
			log.Error("could not record failed merge status", zap.Error(stErr))
		}
		log.Error("merge failed", zap.Error(cause))
		return cause
	}

	// Bring every remote segment local. The registry itself is not touched;
	// only this run's input list points at the temp copies.
	inputs := make([]string, 0, len(ordered))
	ext := segmentExt(ordered[0])
	for _, seg := range ordered {
		if seg.Backend == models.BackendRemote {
			tmp, err := p.downloadSegment(ctx, seg)
			if err != nil {
				return fail(fmt.Errorf("fetch remote segment %s: %w", seg.SegmentID, err))
			}
			tempFiles = append(tempFiles, tmp)
			inputs = append(inputs, tmp)
		} else {
			inputs = append(inputs, seg.Locator)
		}
	}

	outDir := filepath.Join(p.local.Root(), resultID.String())
	if err := os.MkdirAll(outDir, 0750); err != nil {
		return fail(fmt.Errorf("create output dir: %w", err))
	}
	output := filepath.Join(outDir, fmt.Sprintf("%s-merged%s", t, ext))

	if err := p.concat.Concat(ctx, inputs, output); err != nil {
		os.Remove(output)
		return fail(err)
	}

	info, err := os.Stat(output)
	if err != nil {
		return fail(fmt.Errorf("merged output missing: %w", err))
	}
	if info.Size() == 0 {
		os.Remove(output)
		return fail(fmt.Errorf("merged output %s is empty", output))
	}
	p.checkDuration(ctx, log, output, ordered)

	url, backend, err := p.publish(ctx, resultID, t, output, ordered[0].MimeType, info.Size())
	if err != nil {
		os.Remove(output)
		return fail(err)
	}

	if err := p.store.SaveRecordingURL(ctx, resultID, t, url, backend); err != nil {
		return fail(fmt.Errorf("save recording url: %w", err))
	}
	if err := p.store.SaveMergeStatus(ctx, resultID, t, models.MergeStatus{
		State:       models.MergeCompleted,
		LastAttempt: p.now(),
	}); err != nil {
		return fail(fmt.Errorf("mark completed: %w", err))
	}

	if p.opts.DeleteChunksAfterMerge {
		p.deleteLocalChunks(ctx, resultID, t, ordered, log)
	}

	log.Info("merge completed",
		zap.Int("segments", len(ordered)),
		zap.Int64("output_bytes", info.Size()),
		zap.String("url", url))
	return nil
}

// downloadSegment fetches one remote segment into a uniquely named file under
// the scratch directory.
func (p *Pipeline) downloadSegment(ctx context.Context, seg models.MediaSegment) (string, error) {
	if p.remote == nil {
		return "", fmt.Errorf("segment %s is remote but no remote backend is configured", seg.SegmentID)
	}
	body, err := p.remote.Fetch(ctx, seg.Locator)
	if err != nil {
		return "", err
	}
	defer body.Close()

	tmpDir := filepath.Join(p.local.Root(), TmpDirName)
	if err := os.MkdirAll(tmpDir, 0750); err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	tmp := filepath.Join(tmpDir, uuid.New().String()+segmentExt(seg))
	f, err := os.Create(tmp)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("close temp file: %w", err)
	}
	return tmp, nil
}

// publish uploads the merged file to the remote backend when one is
// configured, then removes the local copy. Without a remote backend the local
// path is the playable locator.
func (p *Pipeline) publish(ctx context.Context, resultID uuid.UUID, t models.StreamType, output, mimeType string, size int64) (string, models.StorageBackend, error) {
	if p.remote == nil {
		return output, models.BackendLocal, nil
	}
	f, err := os.Open(output)
	if err != nil {
		return "", "", fmt.Errorf("open merged output: %w", err)
	}
	defer f.Close()

	key := storage.MediaKey(resultID.String(), filepath.Base(output))
	res, err := p.remote.Put(ctx, key, f, size, mimeType)
	if err != nil {
		return "", "", fmt.Errorf("upload merged output: %w", err)
	}
	// Uploaded durably; drop the local copy to avoid double-storing.
	if err := os.Remove(output); err != nil {
		p.logger.Warn("local merged file not removed after upload", zap.String("path", output), zap.Error(err))
	}
	url := res.PublicURL
	if url == "" {
		url = res.Locator
	}
	return url, models.BackendRemote, nil
}

// checkDuration probes the output and compares it against the summed segment
// durations. Best-effort only; a drift is logged, never fatal.
func (p *Pipeline) checkDuration(ctx context.Context, log *zap.Logger, output string, segs []models.MediaSegment) {
	if p.probe == nil {
		return
	}
	got, err := p.probe.Duration(ctx, output)
	if err != nil {
		log.Warn("duration probe failed", zap.Error(err))
		return
	}
	var wantMs int64
	for _, seg := range segs {
		wantMs += seg.DurationMs
	}
	want := time.Duration(wantMs) * time.Millisecond
	drift := got - want
	if drift < 0 {
		drift = -drift
	}
	if drift > durationTolerance {
		log.Warn("merged duration drifts from segment sum",
			zap.Duration("probed", got), zap.Duration("expected", want))
	}
}

// deleteLocalChunks removes merged-away local chunk files and their registry
// rows. Failures are logged; the merge already succeeded.
func (p *Pipeline) deleteLocalChunks(ctx context.Context, resultID uuid.UUID, t models.StreamType, segs []models.MediaSegment, log *zap.Logger) {
	var deleted []uuid.UUID
	for _, seg := range segs {
		if seg.Backend != models.BackendLocal {
			continue
		}
		if err := p.local.Delete(ctx, seg.Locator); err != nil {
			log.Warn("chunk file not removed", zap.String("path", seg.Locator), zap.Error(err))
			continue
		}
		deleted = append(deleted, seg.SegmentID)
	}
	if err := p.store.DeleteSegments(ctx, resultID, t, deleted); err != nil {
		log.Warn("chunk registry rows not removed", zap.Error(err))
	}
}

// segmentExt picks the container extension for a segment, preferring the
// locator's extension and falling back to its MIME type.
func segmentExt(seg models.MediaSegment) string {
	if ext := filepath.Ext(seg.Locator); ext != "" {
		return ext
	}
	if exts, err := mime.ExtensionsByType(seg.MimeType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".webm"
}
