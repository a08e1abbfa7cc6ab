package runs

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo stores runs in memory and is safe for concurrent use. The
// active-run guard is enforced under the same lock as the insert, so racing
// Creates behave like the database's unique index.
type MemoryRepo struct {
	mu   sync.RWMutex
	byID map[string]Run
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{byID: make(map[string]Run)}
}

// Create stores a run, refusing when the document already has an active one.
func (r *MemoryRepo) Create(ctx context.Context, run Run) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.byID {
		if existing.DocumentID == run.DocumentID && IsActive(existing.Status) {
			return ErrRunActive
		}
	}
	r.byID[run.ID] = run
	return nil
}

// GetByID returns a run by ID.
func (r *MemoryRepo) GetByID(ctx context.Context, runID string) (Run, error) {
	if err := ctx.Err(); err != nil {
		return Run{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	run, ok := r.byID[runID]
	if !ok {
		return Run{}, ErrNotFound
	}
	return run, nil
}

// ActiveForDocument returns the document's pending or running run, or nil.
func (r *MemoryRepo) ActiveForDocument(ctx context.Context, documentID string) (*Run, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, run := range r.byID {
		if run.DocumentID == documentID && IsActive(run.Status) {
			found := run
			return &found, nil
		}
	}
	return nil, nil
}

// ListRecentByDocument lists a document's runs, newest first.
func (r *MemoryRepo) ListRecentByDocument(ctx context.Context, documentID string, limit int) ([]Run, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}
	r.mu.RLock()
	var out []Run
	for _, run := range r.byID {
		if run.DocumentID == documentID {
			out = append(out, run)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MarkRunning transitions pending -> running.
func (r *MemoryRepo) MarkRunning(ctx context.Context, runID string, startedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.byID[runID]
	if !ok || run.Status != StatusPending {
		return ErrNotFound
	}
	run.Status = StatusRunning
	if run.StartedAt == nil {
		run.StartedAt = &startedAt
	}
	r.byID[runID] = run
	return nil
}

// Finish transitions into a terminal status. A run that is already terminal
// is left untouched, matching the database's status-filtered update.
func (r *MemoryRepo) Finish(ctx context.Context, runID, status string, errorMessage *string, errorDetails map[string]any, completedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.byID[runID]
	if !ok {
		return ErrNotFound
	}
	if IsTerminal(run.Status) {
		return ErrRunTerminal
	}
	run.Status = status
	if errorMessage != nil {
		run.ErrorMessage = errorMessage
	}
	if errorDetails != nil {
		run.ErrorDetails = errorDetails
	}
	if run.CompletedAt == nil {
		run.CompletedAt = &completedAt
	}
	r.byID[runID] = run
	return nil
}

// SetTotalSegments records the segment count discovered by segmentation.
func (r *MemoryRepo) SetTotalSegments(ctx context.Context, runID string, total int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.byID[runID]
	if !ok {
		return ErrNotFound
	}
	run.TotalSegments = &total
	r.byID[runID] = run
	return nil
}

// UpdateCounters overwrites the segment counters.
func (r *MemoryRepo) UpdateCounters(ctx context.Context, runID string, total *int, completed, failed int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.byID[runID]
	if !ok {
		return ErrNotFound
	}
	if total != nil {
		run.TotalSegments = total
	}
	run.CompletedSegments = completed
	run.FailedSegments = failed
	r.byID[runID] = run
	return nil
}

// DeleteTerminalOlderThan removes terminal runs created before cutoff.
func (r *MemoryRepo) DeleteTerminalOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	deleted := 0
	for id, run := range r.byID {
		if IsTerminal(run.Status) && run.CreatedAt.Before(cutoff) {
			delete(r.byID, id)
			deleted++
		}
	}
	return deleted, nil
}

// DeleteByDocument removes every run for the document.
func (r *MemoryRepo) DeleteByDocument(ctx context.Context, documentID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, run := range r.byID {
		if run.DocumentID == documentID {
			delete(r.byID, id)
		}
	}
	return nil
}

var _ Repo = (*MemoryRepo)(nil)
