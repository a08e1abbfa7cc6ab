package validation

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Repo for tests and database-less development.
type MemoryRepo struct {
	mu   sync.Mutex
	rows map[string]Mismatch
}

// NewMemoryRepo constructs an empty MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{rows: map[string]Mismatch{}}
}

// CreateBatch stores findings.
func (r *MemoryRepo) CreateBatch(ctx context.Context, mismatches []Mismatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range mismatches {
		r.rows[m.ID] = m
	}
	return nil
}

// GetByID fetches one mismatch.
func (r *MemoryRepo) GetByID(ctx context.Context, mismatchID string) (Mismatch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.rows[mismatchID]
	if !ok {
		return Mismatch{}, ErrNotFound
	}
	return m, nil
}

// ListByDocument lists a document's mismatches, newest first.
func (r *MemoryRepo) ListByDocument(ctx context.Context, documentID string, limit, offset int) ([]Mismatch, error) {
	return r.listWhere(func(m Mismatch) bool { return m.DocumentID == documentID }, limit, offset), nil
}

// ListByOwner lists every mismatch owned by a user, newest first.
func (r *MemoryRepo) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]Mismatch, error) {
	return r.listWhere(func(m Mismatch) bool { return m.OwnerID == ownerID }, limit, offset), nil
}

// DeleteByPair clears the findings for one document/artifact pairing.
func (r *MemoryRepo) DeleteByPair(ctx context.Context, documentID, artifactID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, m := range r.rows {
		if m.DocumentID == documentID && m.ArtifactID == artifactID {
			delete(r.rows, id)
		}
	}
	return nil
}

// UpdateFeedback patches status and user_notes; nil leaves a field as is.
func (r *MemoryRepo) UpdateFeedback(ctx context.Context, mismatchID string, status, userNotes *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.rows[mismatchID]
	if !ok {
		return ErrNotFound
	}
	if status != nil {
		m.Status = *status
	}
	if userNotes != nil {
		m.UserNotes = *userNotes
	}
	m.UpdatedAt = time.Now().UTC()
	r.rows[mismatchID] = m
	return nil
}

// DeleteByDocument drops every mismatch for a document.
func (r *MemoryRepo) DeleteByDocument(ctx context.Context, documentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, m := range r.rows {
		if m.DocumentID == documentID {
			delete(r.rows, id)
		}
	}
	return nil
}

// DeleteByArtifact drops every mismatch for an artifact.
func (r *MemoryRepo) DeleteByArtifact(ctx context.Context, artifactID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, m := range r.rows {
		if m.ArtifactID == artifactID {
			delete(r.rows, id)
		}
	}
	return nil
}

func (r *MemoryRepo) listWhere(match func(Mismatch) bool, limit, offset int) []Mismatch {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Mismatch
	for _, m := range r.rows {
		if match(m) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DetectedAt.Equal(out[j].DetectedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].DetectedAt.After(out[j].DetectedAt)
	})

	limit = clampLimit(limit)
	offset = clampOffset(offset)
	if offset >= len(out) {
		return nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

var _ Repo = (*MemoryRepo)(nil)
