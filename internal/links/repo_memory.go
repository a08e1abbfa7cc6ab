package links

import (
	"context"
	"sort"
	"sync"
)

type pairKey struct {
	documentID string
	artifactID string
}

// MemoryRepo is an in-memory Repo for tests and database-less development.
// Pair uniqueness is enforced under the same lock as the insert, matching
// the database's unique index.
type MemoryRepo struct {
	mu     sync.Mutex
	byID   map[string]Link
	byPair map[pairKey]string
}

// NewMemoryRepo constructs an empty MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		byID:   map[string]Link{},
		byPair: map[pairKey]string{},
	}
}

// Create stores a link, rejecting duplicate pairs.
func (r *MemoryRepo) Create(ctx context.Context, link Link) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := pairKey{documentID: link.DocumentID, artifactID: link.ArtifactID}
	if _, exists := r.byPair[key]; exists {
		return ErrAlreadyLinked
	}
	r.byID[link.ID] = link
	r.byPair[key] = link.ID
	return nil
}

// DeleteByPair removes the link for one document/artifact pair.
func (r *MemoryRepo) DeleteByPair(ctx context.Context, documentID, artifactID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := pairKey{documentID: documentID, artifactID: artifactID}
	id, exists := r.byPair[key]
	if !exists {
		return ErrNotFound
	}
	delete(r.byPair, key)
	delete(r.byID, id)
	return nil
}

// ListArtifactIDsByDocument returns artifact ids linked to a document,
// oldest link first.
func (r *MemoryRepo) ListArtifactIDsByDocument(ctx context.Context, documentID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var matched []Link
	for _, link := range r.byID {
		if link.DocumentID == documentID {
			matched = append(matched, link)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})

	out := make([]string, 0, len(matched))
	for _, link := range matched {
		out = append(out, link.ArtifactID)
	}
	return out, nil
}

// DeleteByDocument drops every link for a document.
func (r *MemoryRepo) DeleteByDocument(ctx context.Context, documentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, link := range r.byID {
		if link.DocumentID == documentID {
			delete(r.byID, id)
			delete(r.byPair, pairKey{documentID: link.DocumentID, artifactID: link.ArtifactID})
		}
	}
	return nil
}

// DeleteByArtifact drops every link for an artifact.
func (r *MemoryRepo) DeleteByArtifact(ctx context.Context, artifactID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, link := range r.byID {
		if link.ArtifactID == artifactID {
			delete(r.byID, id)
			delete(r.byPair, pairKey{documentID: link.DocumentID, artifactID: link.ArtifactID})
		}
	}
	return nil
}

var _ Repo = (*MemoryRepo)(nil)
