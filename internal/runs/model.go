package runs

import "time"

// Run lifecycle statuses. Completed, failed and cancelled are terminal.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// IsTerminal reports whether a run status can no longer change.
func IsTerminal(status string) bool {
	switch status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// IsActive reports whether a run still holds the per-document slot.
func IsActive(status string) bool {
	return status == StatusPending || status == StatusRunning
}

// Run represents one analysis pipeline execution over a document.
type Run struct {
	ID                string         `json:"id"`
	DocumentID        string         `json:"document_id"`
	TriggeredBy       string         `json:"triggered_by,omitempty"`
	Status            string         `json:"status"`
	TotalSegments     *int           `json:"total_segments"`
	CompletedSegments int            `json:"completed_segments"`
	FailedSegments    int            `json:"failed_segments"`
	ErrorMessage      *string        `json:"error_message,omitempty"`
	ErrorDetails      map[string]any `json:"error_details,omitempty"`
	LearningMode      bool           `json:"learning_mode"`
	RunMetadata       map[string]any `json:"run_metadata,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	StartedAt         *time.Time     `json:"started_at,omitempty"`
	CompletedAt       *time.Time     `json:"completed_at,omitempty"`
}

// RunStatus is the API view of a run, including the live segment histogram.
type RunStatus struct {
	RunID              string         `json:"run_id"`
	DocumentID         string         `json:"document_id"`
	Status             string         `json:"status"`
	CreatedAt          time.Time      `json:"created_at"`
	StartedAt          *time.Time     `json:"started_at,omitempty"`
	CompletedAt        *time.Time     `json:"completed_at,omitempty"`
	DurationSeconds    *float64       `json:"duration_seconds,omitempty"`
	ProgressPercentage float64        `json:"progress_percentage"`
	TotalSegments      *int           `json:"total_segments"`
	CompletedSegments  int            `json:"completed_segments"`
	FailedSegments     int            `json:"failed_segments"`
	SegmentStatuses    map[string]int `json:"segment_statuses"`
	ErrorMessage       *string        `json:"error_message,omitempty"`
	LearningMode       bool           `json:"learning_mode"`
}
