package segments

import "context"

// Repo defines persistence operations for document segments.
type Repo interface {
	CreateBatch(ctx context.Context, segs []Segment) error
	GetByID(ctx context.Context, segmentID string) (Segment, error)
	ListByDocument(ctx context.Context, documentID string) ([]Segment, error)
	ListByRun(ctx context.Context, runID string) ([]Segment, error)
	ListByRunAndStatus(ctx context.Context, runID, status string) ([]Segment, error)
	// UpdateStatus moves a segment to status, replacing last_error (nil clears it).
	UpdateStatus(ctx context.Context, segmentID, status string, lastError *string) error
	// ResetForRetry moves a failed segment back to pending, incrementing
	// retry_count and clearing last_error. Segments that are not failed or
	// have exhausted maxRetries report ErrRetryExhausted.
	ResetForRetry(ctx context.Context, segmentID string, maxRetries int) error
	StatusCountsByRun(ctx context.Context, runID string) (map[string]int, error)
	DeleteByDocument(ctx context.Context, documentID string) error
}

// ResultsRepo defines persistence operations for extraction results.
type ResultsRepo interface {
	Create(ctx context.Context, result Result) error
	ListByDocument(ctx context.Context, documentID string) ([]Result, error)
	ListSuccessfulByDocument(ctx context.Context, documentID string) ([]Result, error)
	HasSuccessfulForDocument(ctx context.Context, documentID string) (bool, error)
	DeleteBySegment(ctx context.Context, segmentID string) error
	DeleteByDocument(ctx context.Context, documentID string) error
}
