package runs

import (
	"context"
	"time"
)

// Repo defines persistence operations for analysis runs.
//
// Create must enforce the single-active-run guard: at most one run per
// document in an active status, racing inserts included. The Postgres
// implementation leans on a partial unique index; the in-memory one
// serializes under its mutex. There is no separate pre-check API.
type Repo interface {
	Create(ctx context.Context, run Run) error
	GetByID(ctx context.Context, runID string) (Run, error)
	ActiveForDocument(ctx context.Context, documentID string) (*Run, error)
	ListRecentByDocument(ctx context.Context, documentID string, limit int) ([]Run, error)
	// MarkRunning transitions pending -> running and stamps started_at.
	MarkRunning(ctx context.Context, runID string, startedAt time.Time) error
	// Finish transitions into a terminal status and stamps completed_at.
	// Returns ErrRunTerminal when the run already reached one; terminal
	// states are never overwritten.
	Finish(ctx context.Context, runID, status string, errorMessage *string, errorDetails map[string]any, completedAt time.Time) error
	SetTotalSegments(ctx context.Context, runID string, total int) error
	// UpdateCounters overwrites the segment counters; nil total keeps the stored value.
	UpdateCounters(ctx context.Context, runID string, total *int, completed, failed int) error
	// DeleteTerminalOlderThan removes terminal runs created before cutoff.
	DeleteTerminalOlderThan(ctx context.Context, cutoff time.Time) (int, error)
	DeleteByDocument(ctx context.Context, documentID string) error
}
