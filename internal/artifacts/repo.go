package artifacts

import (
	"context"
	"errors"
)

var (
	ErrNotFound     = errors.New("artifact not found")
	ErrInvalidInput = errors.New("invalid artifact input")
)

// Repo persists code artifacts.
type Repo interface {
	Create(ctx context.Context, artifact Artifact) error
	GetByID(ctx context.Context, artifactID string) (Artifact, error)
	GetForOwner(ctx context.Context, ownerID, artifactID string) (Artifact, error)
	ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]Artifact, error)
	Delete(ctx context.Context, ownerID, artifactID string) error
	UpdateStatus(ctx context.Context, artifactID, status string) error
	UpdateAnalysis(ctx context.Context, artifactID, summary string, structured map[string]any, status string) error
}
