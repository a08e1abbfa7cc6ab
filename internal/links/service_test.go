package links

import (
	"context"
	"errors"
	"testing"
	"time"

	"docalign-backend/internal/artifacts"
	"docalign-backend/internal/documents"
)

func newLinkService() (*Service, *documents.MemoryRepo, *artifacts.MemoryRepo, *MemoryRepo) {
	docRepo := documents.NewMemoryRepo()
	artifactRepo := artifacts.NewMemoryRepo()
	linkRepo := NewMemoryRepo()
	svc := &Service{Repo: linkRepo, Documents: docRepo, Artifacts: artifactRepo}
	return svc, docRepo, artifactRepo, linkRepo
}

func seedDocument(t *testing.T, repo *documents.MemoryRepo, documentID, ownerID string) {
	t.Helper()
	doc := documents.Document{
		ID:        documentID,
		OwnerID:   ownerID,
		Filename:  "requirements.md",
		Status:    documents.StatusUploaded,
		CreatedAt: time.Now().UTC(),
	}
	if err := repo.Create(context.Background(), doc); err != nil {
		t.Fatalf("seed document: %v", err)
	}
}

func seedArtifact(t *testing.T, repo *artifacts.MemoryRepo, artifactID, ownerID string) {
	t.Helper()
	artifact := artifacts.Artifact{
		ID:             artifactID,
		OwnerID:        ownerID,
		Name:           artifactID,
		ArtifactType:   "File",
		Location:       "https://example.com/" + artifactID,
		AnalysisStatus: artifacts.AnalysisPending,
		CreatedAt:      time.Now().UTC(),
	}
	if err := repo.Create(context.Background(), artifact); err != nil {
		t.Fatalf("seed artifact: %v", err)
	}
}

func TestCreateLinkPairsOwnedRows(t *testing.T) {
	svc, docRepo, artifactRepo, linkRepo := newLinkService()
	seedDocument(t, docRepo, "doc-1", "user-1")
	seedArtifact(t, artifactRepo, "artifact-1", "user-1")

	link, err := svc.Create(context.Background(), "user-1", "doc-1", "artifact-1")
	if err != nil {
		t.Fatalf("create link: %v", err)
	}
	if link.ID == "" {
		t.Fatalf("expected link id")
	}

	ids, err := linkRepo.ListArtifactIDsByDocument(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("list ids: %v", err)
	}
	if len(ids) != 1 || ids[0] != "artifact-1" {
		t.Fatalf("expected [artifact-1], got %v", ids)
	}
}

func TestCreateLinkHidesForeignSides(t *testing.T) {
	svc, docRepo, artifactRepo, _ := newLinkService()
	seedDocument(t, docRepo, "doc-1", "user-2")
	seedArtifact(t, artifactRepo, "artifact-1", "user-1")

	if _, err := svc.Create(context.Background(), "user-1", "doc-1", "artifact-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign document, got %v", err)
	}

	seedDocument(t, docRepo, "doc-2", "user-1")
	seedArtifact(t, artifactRepo, "artifact-2", "user-2")
	if _, err := svc.Create(context.Background(), "user-1", "doc-2", "artifact-2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign artifact, got %v", err)
	}
}

func TestCreateLinkRejectsDuplicatePair(t *testing.T) {
	svc, docRepo, artifactRepo, _ := newLinkService()
	seedDocument(t, docRepo, "doc-1", "user-1")
	seedArtifact(t, artifactRepo, "artifact-1", "user-1")

	if _, err := svc.Create(context.Background(), "user-1", "doc-1", "artifact-1"); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := svc.Create(context.Background(), "user-1", "doc-1", "artifact-1"); !errors.Is(err, ErrAlreadyLinked) {
		t.Fatalf("expected ErrAlreadyLinked, got %v", err)
	}
}

func TestDeleteLinkRemovesPair(t *testing.T) {
	svc, docRepo, artifactRepo, _ := newLinkService()
	seedDocument(t, docRepo, "doc-1", "user-1")
	seedArtifact(t, artifactRepo, "artifact-1", "user-1")

	if _, err := svc.Create(context.Background(), "user-1", "doc-1", "artifact-1"); err != nil {
		t.Fatalf("create link: %v", err)
	}
	if err := svc.Delete(context.Background(), "user-1", "doc-1", "artifact-1"); err != nil {
		t.Fatalf("delete link: %v", err)
	}
	if err := svc.Delete(context.Background(), "user-1", "doc-1", "artifact-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestArtifactsForDocumentSkipsVanishedArtifacts(t *testing.T) {
	svc, docRepo, artifactRepo, _ := newLinkService()
	seedDocument(t, docRepo, "doc-1", "user-1")
	seedArtifact(t, artifactRepo, "artifact-1", "user-1")
	seedArtifact(t, artifactRepo, "artifact-2", "user-1")

	for _, id := range []string{"artifact-1", "artifact-2"} {
		if _, err := svc.Create(context.Background(), "user-1", "doc-1", id); err != nil {
			t.Fatalf("create link %s: %v", id, err)
		}
	}
	if err := artifactRepo.Delete(context.Background(), "user-1", "artifact-1"); err != nil {
		t.Fatalf("delete artifact: %v", err)
	}

	linked, err := svc.ArtifactsForDocument(context.Background(), "user-1", "doc-1")
	if err != nil {
		t.Fatalf("list linked: %v", err)
	}
	if len(linked) != 1 || linked[0].ID != "artifact-2" {
		t.Fatalf("expected only artifact-2, got %v", linked)
	}
}
