package segments

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo stores segments in memory and is safe for concurrent use.
type MemoryRepo struct {
	mu   sync.RWMutex
	byID map[string]Segment
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{byID: make(map[string]Segment)}
}

// CreateBatch stores the segments.
func (r *MemoryRepo) CreateBatch(ctx context.Context, segs []Segment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, seg := range segs {
		r.byID[seg.ID] = seg
	}
	return nil
}

// GetByID returns a segment by its ID.
func (r *MemoryRepo) GetByID(ctx context.Context, segmentID string) (Segment, error) {
	if err := ctx.Err(); err != nil {
		return Segment{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	seg, ok := r.byID[segmentID]
	if !ok {
		return Segment{}, ErrNotFound
	}
	return seg, nil
}

// ListByDocument returns a document's segments in reading order.
func (r *MemoryRepo) ListByDocument(ctx context.Context, documentID string) ([]Segment, error) {
	return r.filter(ctx, func(seg Segment) bool {
		return seg.DocumentID == documentID
	})
}

// ListByRun returns a run's segments in reading order.
func (r *MemoryRepo) ListByRun(ctx context.Context, runID string) ([]Segment, error) {
	return r.filter(ctx, func(seg Segment) bool {
		return seg.AnalysisRunID == runID
	})
}

// ListByRunAndStatus returns a run's segments filtered by status.
func (r *MemoryRepo) ListByRunAndStatus(ctx context.Context, runID, status string) ([]Segment, error) {
	return r.filter(ctx, func(seg Segment) bool {
		return seg.AnalysisRunID == runID && seg.Status == status
	})
}

// UpdateStatus transitions a segment and replaces last_error.
func (r *MemoryRepo) UpdateStatus(ctx context.Context, segmentID, status string, lastError *string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	seg, ok := r.byID[segmentID]
	if !ok {
		return ErrNotFound
	}
	seg.Status = status
	if lastError != nil {
		seg.LastError = *lastError
	} else {
		seg.LastError = ""
	}
	seg.UpdatedAt = time.Now().UTC()
	r.byID[segmentID] = seg
	return nil
}

// ResetForRetry moves a failed segment back to pending when retries remain.
func (r *MemoryRepo) ResetForRetry(ctx context.Context, segmentID string, maxRetries int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	seg, ok := r.byID[segmentID]
	if !ok {
		return ErrNotFound
	}
	if seg.Status != StatusFailed || seg.RetryCount >= maxRetries {
		return ErrRetryExhausted
	}
	seg.Status = StatusPending
	seg.RetryCount++
	seg.LastError = ""
	seg.UpdatedAt = time.Now().UTC()
	r.byID[segmentID] = seg
	return nil
}

// StatusCountsByRun returns how many of the run's segments sit in each status.
func (r *MemoryRepo) StatusCountsByRun(ctx context.Context, runID string) (map[string]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	counts := make(map[string]int)
	for _, seg := range r.byID {
		if seg.AnalysisRunID == runID {
			counts[seg.Status]++
		}
	}
	return counts, nil
}

// DeleteByDocument removes every segment of a document.
func (r *MemoryRepo) DeleteByDocument(ctx context.Context, documentID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, seg := range r.byID {
		if seg.DocumentID == documentID {
			delete(r.byID, id)
		}
	}
	return nil
}

func (r *MemoryRepo) filter(ctx context.Context, keep func(Segment) bool) ([]Segment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Segment
	for _, seg := range r.byID {
		if keep(seg) {
			out = append(out, seg)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartCharIndex < out[j].StartCharIndex
	})
	return out, nil
}

var _ Repo = (*MemoryRepo)(nil)
