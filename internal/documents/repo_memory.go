package documents

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory implementation of Repo.
type MemoryRepo struct {
	mu   sync.RWMutex
	byID map[string]Document
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{byID: make(map[string]Document)}
}

// Create stores a document.
func (r *MemoryRepo) Create(ctx context.Context, doc Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if doc.Version == "" {
		doc.Version = "1.0"
	}
	if doc.Status == "" {
		doc.Status = StatusUploaded
	}
	r.byID[doc.ID] = doc
	return nil
}

// GetByID returns a document regardless of owner.
func (r *MemoryRepo) GetByID(ctx context.Context, documentID string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.byID[documentID]
	if !ok {
		return Document{}, ErrNotFound
	}
	return doc, nil
}

// GetForOwner returns a document scoped to its owner.
func (r *MemoryRepo) GetForOwner(ctx context.Context, ownerID, documentID string) (Document, error) {
	doc, err := r.GetByID(ctx, documentID)
	if err != nil {
		return Document{}, err
	}
	if doc.OwnerID != ownerID {
		return Document{}, ErrNotFound
	}
	return doc, nil
}

// ListByOwner lists documents newest-first, honoring limit/offset.
func (r *MemoryRepo) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	r.mu.RLock()
	var docs []Document
	for _, doc := range r.byID {
		if doc.OwnerID == ownerID {
			docs = append(docs, doc)
		}
	}
	r.mu.RUnlock()

	sort.Slice(docs, func(i, j int) bool {
		return docs[i].CreatedAt.After(docs[j].CreatedAt)
	})

	if offset >= len(docs) {
		return []Document{}, nil
	}
	end := len(docs)
	if offset+limit < end {
		end = offset + limit
	}
	return docs[offset:end], nil
}

// Delete removes a document owned by ownerID.
func (r *MemoryRepo) Delete(ctx context.Context, ownerID, documentID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.byID[documentID]
	if !ok || doc.OwnerID != ownerID {
		return ErrNotFound
	}
	delete(r.byID, documentID)
	return nil
}

// UpdateComposition stores Pass-1 output.
func (r *MemoryRepo) UpdateComposition(ctx context.Context, documentID string, composition map[string]int, confidence string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.byID[documentID]
	if !ok {
		return ErrNotFound
	}
	copied := make(map[string]int, len(composition))
	for k, v := range composition {
		copied[k] = v
	}
	doc.Composition = copied
	doc.CompositionConfidence = confidence
	doc.UpdatedAt = time.Now().UTC()
	r.byID[documentID] = doc
	return nil
}

// UpdateAnalysisState patches status and/or progress.
func (r *MemoryRepo) UpdateAnalysisState(ctx context.Context, documentID string, status *string, progress *int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.byID[documentID]
	if !ok {
		return ErrNotFound
	}
	if status != nil {
		doc.Status = *status
	}
	if progress != nil {
		doc.Progress = *progress
	}
	doc.UpdatedAt = time.Now().UTC()
	r.byID[documentID] = doc
	return nil
}

var _ Repo = (*MemoryRepo)(nil)
