package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// StreamType identifies the recording channel a segment belongs to.
type StreamType string

const (
	StreamScreen     StreamType = "screen"
	StreamWebcam     StreamType = "webcam"
	StreamMicrophone StreamType = "microphone"
)

// Valid reports whether t is a known stream type.
func (t StreamType) Valid() bool {
	switch t {
	case StreamScreen, StreamWebcam, StreamMicrophone:
		return true
	}
	return false
}

// StorageBackend identifies where a segment's bytes live.
type StorageBackend string

const (
	BackendLocal  StorageBackend = "local"
	BackendRemote StorageBackend = "remote"
)

// Valid reports whether b is a known backend.
func (b StorageBackend) Valid() bool {
	return b == BackendLocal || b == BackendRemote
}

// MergeState is the lifecycle state of one (result, stream type) merge.
type MergeState string

const (
	MergePending    MergeState = "pending"
	MergeProcessing MergeState = "processing"
	MergeCompleted  MergeState = "completed"
	MergeFailed     MergeState = "failed"
)

// MediaSegment is one time-sliced chunk of recorded media. Segments are written
// once by the capture ingestion endpoint and never mutated afterwards.
type MediaSegment struct {
	SegmentID  uuid.UUID      `json:"segment_id"`
	ResultID   uuid.UUID      `json:"result_id"`
	Type       StreamType     `json:"type"`
	Backend    StorageBackend `json:"storage_backend"`
	Locator    string         `json:"locator"` // absolute path (local) or object key (remote)
	PublicURL  string         `json:"public_url,omitempty"`
	MimeType   string         `json:"mime_type,omitempty"`
	RecordedAt time.Time      `json:"recorded_at"`
	DurationMs int64          `json:"duration_ms"`
	Size       int64          `json:"size"`
	Sequence   int            `json:"sequence"` // playback order within (result, type)
}

// Validate checks the segment invariants: known type and backend, a locator
// matching the declared backend, and a non-negative sequence.
func (s *MediaSegment) Validate() error {
	if s.ResultID == uuid.Nil {
		return fmt.Errorf("segment %s: missing result id", s.SegmentID)
	}
	if !s.Type.Valid() {
		return fmt.Errorf("segment %s: unknown stream type %q", s.SegmentID, s.Type)
	}
	if !s.Backend.Valid() {
		return fmt.Errorf("segment %s: unknown storage backend %q", s.SegmentID, s.Backend)
	}
	if s.Locator == "" {
		return fmt.Errorf("segment %s: %s segment has empty locator", s.SegmentID, s.Backend)
	}
	if s.Sequence < 0 {
		return fmt.Errorf("segment %s: negative sequence %d", s.SegmentID, s.Sequence)
	}
	return nil
}

// Playable reports whether the merge pipeline can use this segment: it needs a
// locator to read from and a sequence to order by. Segments failing this are
// skipped rather than failing the whole merge.
func (s *MediaSegment) Playable() bool {
	return s.Locator != "" && s.Sequence >= 0
}

// MergeStatus records the outcome of the most recent merge attempt for one
// (result, stream type) pair. Error is set only when State is MergeFailed.
type MergeStatus struct {
	State       MergeState `json:"state"`
	LastAttempt time.Time  `json:"last_attempt"`
	Error       string     `json:"error,omitempty"`
}

// RecordingURL is the playable location of a merged recording.
type RecordingURL struct {
	URL     string         `json:"url"`
	Backend StorageBackend `json:"backend"`
}

// ProctoringReport aggregates everything recorded for one assessment attempt.
type ProctoringReport struct {
	ResultID      uuid.UUID                   `json:"result_id"`
	Events        []ProctoringEvent           `json:"events,omitempty"`
	MediaSegments []MediaSegment              `json:"media_segments,omitempty"`
	RecordingURLs map[StreamType]RecordingURL `json:"recording_urls,omitempty"`
	MergeStatuses map[StreamType]MergeStatus  `json:"merge_statuses,omitempty"`
}
