package validation

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a mismatch does not exist.
	ErrNotFound = errors.New("mismatch not found")
	// ErrInvalidInput flags missing identifiers or unknown statuses.
	ErrInvalidInput = errors.New("invalid input")
)

// Repo persists mismatches. DeleteByPair backs the replace-on-rescan
// contract; the by-document and by-artifact deletes back cascade hooks.
type Repo interface {
	CreateBatch(ctx context.Context, mismatches []Mismatch) error
	GetByID(ctx context.Context, mismatchID string) (Mismatch, error)
	ListByDocument(ctx context.Context, documentID string, limit, offset int) ([]Mismatch, error)
	ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]Mismatch, error)
	DeleteByPair(ctx context.Context, documentID, artifactID string) error
	// UpdateFeedback patches status and user_notes; nil leaves a field as is.
	UpdateFeedback(ctx context.Context, mismatchID string, status, userNotes *string) error
	DeleteByDocument(ctx context.Context, documentID string) error
	DeleteByArtifact(ctx context.Context, artifactID string) error
}
