package segments

import (
	"context"
	"sort"
	"sync"
)

// ResultsMemoryRepo stores extraction results in memory.
type ResultsMemoryRepo struct {
	mu   sync.RWMutex
	byID map[string]Result
}

// NewResultsMemoryRepo constructs a ResultsMemoryRepo.
func NewResultsMemoryRepo() *ResultsMemoryRepo {
	return &ResultsMemoryRepo{byID: make(map[string]Result)}
}

// Create stores the result.
func (r *ResultsMemoryRepo) Create(ctx context.Context, result Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[result.ID] = result
	return nil
}

// ListByDocument returns all results for a document, oldest first.
func (r *ResultsMemoryRepo) ListByDocument(ctx context.Context, documentID string) ([]Result, error) {
	return r.filter(ctx, func(res Result) bool {
		return res.DocumentID == documentID
	})
}

// ListSuccessfulByDocument returns only successful extractions.
func (r *ResultsMemoryRepo) ListSuccessfulByDocument(ctx context.Context, documentID string) ([]Result, error) {
	return r.filter(ctx, func(res Result) bool {
		return res.DocumentID == documentID && res.Status == ResultStatusSuccess
	})
}

// HasSuccessfulForDocument reports whether any successful extraction exists.
func (r *ResultsMemoryRepo) HasSuccessfulForDocument(ctx context.Context, documentID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, res := range r.byID {
		if res.DocumentID == documentID && res.Status == ResultStatusSuccess {
			return true, nil
		}
	}
	return false, nil
}

// DeleteBySegment removes a segment's result, if any.
func (r *ResultsMemoryRepo) DeleteBySegment(ctx context.Context, segmentID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, res := range r.byID {
		if res.SegmentID == segmentID {
			delete(r.byID, id)
		}
	}
	return nil
}

// DeleteByDocument removes every result for a document.
func (r *ResultsMemoryRepo) DeleteByDocument(ctx context.Context, documentID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, res := range r.byID {
		if res.DocumentID == documentID {
			delete(r.byID, id)
		}
	}
	return nil
}

func (r *ResultsMemoryRepo) filter(ctx context.Context, keep func(Result) bool) ([]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Result
	for _, res := range r.byID {
		if keep(res) {
			out = append(out, res)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

var _ ResultsRepo = (*ResultsMemoryRepo)(nil)
