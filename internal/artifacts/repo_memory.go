package artifacts

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo stores artifacts in memory.
type MemoryRepo struct {
	mu   sync.RWMutex
	byID map[string]Artifact
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{byID: make(map[string]Artifact)}
}

// Create stores an artifact.
func (r *MemoryRepo) Create(ctx context.Context, artifact Artifact) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if artifact.AnalysisStatus == "" {
		artifact.AnalysisStatus = AnalysisPending
	}
	r.byID[artifact.ID] = artifact
	return nil
}

// GetByID returns an artifact regardless of owner.
func (r *MemoryRepo) GetByID(ctx context.Context, artifactID string) (Artifact, error) {
	if err := ctx.Err(); err != nil {
		return Artifact{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	artifact, ok := r.byID[artifactID]
	if !ok {
		return Artifact{}, ErrNotFound
	}
	return artifact, nil
}

// GetForOwner returns an artifact scoped to its owner.
func (r *MemoryRepo) GetForOwner(ctx context.Context, ownerID, artifactID string) (Artifact, error) {
	artifact, err := r.GetByID(ctx, artifactID)
	if err != nil {
		return Artifact{}, err
	}
	if artifact.OwnerID != ownerID {
		return Artifact{}, ErrNotFound
	}
	return artifact, nil
}

// ListByOwner lists artifacts newest-first, honoring limit/offset.
func (r *MemoryRepo) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]Artifact, error) {
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
	var out []Artifact
	for _, artifact := range r.byID {
		if artifact.OwnerID == ownerID {
			out = append(out, artifact)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if offset >= len(out) {
		return []Artifact{}, nil
	}
	end := len(out)
	if offset+limit < end {
		end = offset + limit
	}
	return out[offset:end], nil
}

// Delete removes an artifact owned by ownerID.
func (r *MemoryRepo) Delete(ctx context.Context, ownerID, artifactID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	artifact, ok := r.byID[artifactID]
	if !ok || artifact.OwnerID != ownerID {
		return ErrNotFound
	}
	delete(r.byID, artifactID)
	return nil
}

// UpdateStatus moves the analysis status.
func (r *MemoryRepo) UpdateStatus(ctx context.Context, artifactID, status string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	artifact, ok := r.byID[artifactID]
	if !ok {
		return ErrNotFound
	}
	artifact.AnalysisStatus = status
	artifact.UpdatedAt = time.Now().UTC()
	r.byID[artifactID] = artifact
	return nil
}

// UpdateAnalysis stores the analysis output with its final status.
func (r *MemoryRepo) UpdateAnalysis(ctx context.Context, artifactID, summary string, structured map[string]any, status string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	artifact, ok := r.byID[artifactID]
	if !ok {
		return ErrNotFound
	}
	artifact.Summary = summary
	if structured != nil {
		copied := make(map[string]any, len(structured))
		for k, v := range structured {
			copied[k] = v
		}
		artifact.StructuredAnalysis = copied
	} else {
		artifact.StructuredAnalysis = nil
	}
	artifact.AnalysisStatus = status
	artifact.UpdatedAt = time.Now().UTC()
	r.byID[artifactID] = artifact
	return nil
}

var _ Repo = (*MemoryRepo)(nil)
