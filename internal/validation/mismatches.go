package validation

import (
	"context"
	"errors"
	"fmt"

	"docalign-backend/internal/documents"
)

// ListMismatches returns the user's findings, optionally narrowed to one
// document. A foreign document reads as not found.
func (e *Engine) ListMismatches(ctx context.Context, userID, documentID string, limit, offset int) ([]Mismatch, error) {
	if documentID == "" {
		return e.Mismatches.ListByOwner(ctx, userID, limit, offset)
	}
	if _, err := e.Documents.GetForOwner(ctx, userID, documentID); err != nil {
		if errors.Is(err, documents.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return e.Mismatches.ListByDocument(ctx, documentID, limit, offset)
}

// UpdateMismatch patches a finding's status and notes. Nil fields stay as
// they are; at least one must be set.
func (e *Engine) UpdateMismatch(ctx context.Context, userID, mismatchID string, status, userNotes *string) (Mismatch, error) {
	if status == nil && userNotes == nil {
		return Mismatch{}, fmt.Errorf("%w: nothing to update", ErrInvalidInput)
	}
	if status != nil && !statusAllowed(*status) {
		return Mismatch{}, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, *status)
	}

	current, err := e.Mismatches.GetByID(ctx, mismatchID)
	if err != nil {
		return Mismatch{}, err
	}
	if current.OwnerID != userID {
		return Mismatch{}, ErrNotFound
	}

	if err := e.Mismatches.UpdateFeedback(ctx, mismatchID, status, userNotes); err != nil {
		return Mismatch{}, err
	}
	return e.Mismatches.GetByID(ctx, mismatchID)
}

func statusAllowed(status string) bool {
	for _, allowed := range AllowedStatuses {
		if status == allowed {
			return true
		}
	}
	return false
}
