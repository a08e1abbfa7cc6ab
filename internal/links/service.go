package links

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"docalign-backend/internal/artifacts"
	"docalign-backend/internal/documents"
	"docalign-backend/internal/shared/telemetry"
)

// Service manages links between documents and code artifacts. Both sides of
// a pair must belong to the calling user before a link is written.
type Service struct {
	Repo      Repo
	Documents documents.Repo
	Artifacts artifacts.Repo
}

// Create links a document to an artifact the user owns.
func (s *Service) Create(ctx context.Context, userID, documentID, artifactID string) (Link, error) {
	documentID = strings.TrimSpace(documentID)
	artifactID = strings.TrimSpace(artifactID)
	if documentID == "" || artifactID == "" {
		return Link{}, fmt.Errorf("%w: document_id and artifact_id are required", ErrInvalidInput)
	}

	if err := s.verifyPair(ctx, userID, documentID, artifactID); err != nil {
		return Link{}, err
	}

	link := Link{
		ID:         uuid.NewString(),
		DocumentID: documentID,
		ArtifactID: artifactID,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.Repo.Create(ctx, link); err != nil {
		return Link{}, err
	}

	telemetry.Info("link.created", map[string]any{
		"link_id":     link.ID,
		"document_id": documentID,
		"artifact_id": artifactID,
	})
	return link, nil
}

// Delete removes the link for one pair.
func (s *Service) Delete(ctx context.Context, userID, documentID, artifactID string) error {
	if err := s.verifyPair(ctx, userID, documentID, artifactID); err != nil {
		return err
	}
	return s.Repo.DeleteByPair(ctx, documentID, artifactID)
}

// ArtifactsForDocument lists the artifacts linked to one of the user's
// documents. Links whose artifact row has since vanished are skipped.
func (s *Service) ArtifactsForDocument(ctx context.Context, userID, documentID string) ([]artifacts.Artifact, error) {
	if _, err := s.Documents.GetForOwner(ctx, userID, documentID); err != nil {
		if errors.Is(err, documents.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	ids, err := s.Repo.ListArtifactIDsByDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}

	out := make([]artifacts.Artifact, 0, len(ids))
	for _, id := range ids {
		artifact, err := s.Artifacts.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, artifacts.ErrNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, artifact)
	}
	return out, nil
}

func (s *Service) verifyPair(ctx context.Context, userID, documentID, artifactID string) error {
	if _, err := s.Documents.GetForOwner(ctx, userID, documentID); err != nil {
		if errors.Is(err, documents.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	if _, err := s.Artifacts.GetForOwner(ctx, userID, artifactID); err != nil {
		if errors.Is(err, artifacts.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	return nil
}
