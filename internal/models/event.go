package models

import (
	"time"

	"github.com/google/uuid"
)

// ProctoringEventType classifies a monitoring event captured during a session.
type ProctoringEventType string

const (
	EventTabSwitch      ProctoringEventType = "tab_switch"
	EventWindowBlur     ProctoringEventType = "window_blur"
	EventFullscreenExit ProctoringEventType = "fullscreen_exit"
	EventCopy           ProctoringEventType = "copy"
	EventPaste          ProctoringEventType = "paste"
	EventRightClick     ProctoringEventType = "right_click"
	EventDevToolsOpen   ProctoringEventType = "devtools_open"
	EventFaceMissing    ProctoringEventType = "face_missing"
	EventMultipleFaces  ProctoringEventType = "multiple_faces"
)

// ProctoringEvent is one monitoring event on a report. Events are recorded by
// the ingestion side; the media pipeline stores them but never interprets them.
type ProctoringEvent struct {
	ID           uuid.UUID           `json:"id"`
	ResultID     uuid.UUID           `json:"result_id"`
	Type         ProctoringEventType `json:"type"`
	Severity     int                 `json:"severity"` // 1 (info) to 5 (critical)
	TimeOffsetMs int64               `json:"time_offset_ms"`
	Detail       string              `json:"detail,omitempty"`
	OccurredAt   time.Time           `json:"occurred_at"`
}
