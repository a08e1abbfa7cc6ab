package links

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when no link exists for the requested pair.
	ErrNotFound = errors.New("link not found")
	// ErrAlreadyLinked is returned when the pair already has a link row.
	ErrAlreadyLinked = errors.New("document and artifact are already linked")
	// ErrInvalidInput flags missing identifiers.
	ErrInvalidInput = errors.New("invalid input")
)

// Repo persists document/artifact links. The by-document and by-artifact
// deletes back the cascade hooks used when no foreign keys are around.
type Repo interface {
	Create(ctx context.Context, link Link) error
	DeleteByPair(ctx context.Context, documentID, artifactID string) error
	ListArtifactIDsByDocument(ctx context.Context, documentID string) ([]string, error)
	DeleteByDocument(ctx context.Context, documentID string) error
	DeleteByArtifact(ctx context.Context, artifactID string) error
}
