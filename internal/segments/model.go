package segments

import (
	"encoding/json"
	"time"
)

// Segment lifecycle statuses.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusSkipped    = "skipped"
)

// Result statuses.
const (
	ResultStatusSuccess = "success"
	ResultStatusFailed  = "failed"
	ResultStatusSkipped = "skipped"
)

// AllStatuses lists every segment status, in lifecycle order.
func AllStatuses() []string {
	return []string{StatusPending, StatusProcessing, StatusCompleted, StatusFailed, StatusSkipped}
}

// Segment is one typed region of a document's raw text. Offsets are
// half-open byte indexes into the stored text.
type Segment struct {
	ID             string    `json:"id"`
	DocumentID     string    `json:"document_id"`
	AnalysisRunID  string    `json:"analysis_run_id,omitempty"`
	SegmentType    string    `json:"segment_type"`
	StartCharIndex int       `json:"start_char_index"`
	EndCharIndex   int       `json:"end_char_index"`
	ContentPreview string    `json:"content_preview,omitempty"`
	Confidence     float64   `json:"confidence"`
	Status         string    `json:"status"`
	RetryCount     int       `json:"retry_count"`
	LastError      string    `json:"last_error,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Result is the structured extraction outcome for one segment. At most one
// result exists per segment; reprocessing replaces it.
type Result struct {
	ID               string          `json:"id"`
	SegmentID        string          `json:"segment_id"`
	DocumentID       string          `json:"document_id"`
	Status           string          `json:"status"`
	StructuredData   json.RawMessage `json:"structured_data,omitempty"`
	ErrorMessage     string          `json:"error_message,omitempty"`
	ProcessingTimeMs int64           `json:"processing_time_ms"`
	CreatedAt        time.Time       `json:"created_at"`
}
