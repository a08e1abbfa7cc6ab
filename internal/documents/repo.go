package documents

import "context"

// Repo defines persistence operations for documents. GetByID is
// owner-agnostic for pipeline use; handlers go through GetForOwner so a
// caller can never see another user's document.
type Repo interface {
	Create(ctx context.Context, doc Document) error
	GetByID(ctx context.Context, documentID string) (Document, error)
	GetForOwner(ctx context.Context, ownerID, documentID string) (Document, error)
	ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]Document, error)
	Delete(ctx context.Context, ownerID, documentID string) error

	// UpdateComposition stores Pass-1 output on the document.
	UpdateComposition(ctx context.Context, documentID string, composition map[string]int, confidence string) error
	// UpdateAnalysisState patches status and/or progress; nil leaves the
	// column untouched.
	UpdateAnalysisState(ctx context.Context, documentID string, status *string, progress *int) error
}
