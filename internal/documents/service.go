package documents

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"docalign-backend/internal/extract"
	"docalign-backend/internal/shared/storage/object"
	"docalign-backend/internal/shared/telemetry"
)

// DefaultMaxRawTextBytes caps the extracted text stored on the row.
const DefaultMaxRawTextBytes = 1 << 20 // 1 MiB

// Cascader removes rows tied to a document in stores without foreign keys.
// Wired for the in-memory repositories; Postgres cascades through FKs.
type Cascader interface {
	DeleteByDocument(ctx context.Context, documentID string) error
}

// Service contains business logic for documents.
type Service struct {
	Store           object.ObjectStore
	Repo            Repo
	MaxRawTextBytes int
	Cascades        []Cascader
}

// Upload stores the raw file, extracts its text, and records the document.
// The stored object is discarded again when extraction or persistence fails.
func (s *Service) Upload(ctx context.Context, ownerID, filename, documentType, version string, r io.Reader) (Document, error) {
	if ownerID == "" {
		return Document{}, errors.New("ownerID is required")
	}
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return Document{}, fmt.Errorf("%w: filename is required", ErrInvalidInput)
	}
	documentType = strings.TrimSpace(documentType)
	if documentType == "" {
		return Document{}, fmt.Errorf("%w: document_type is required", ErrInvalidInput)
	}
	if version = strings.TrimSpace(version); version == "" {
		version = "1.0"
	}

	storageKey, size, mimeType, err := s.Store.Save(ctx, ownerID, filename, r)
	if err != nil {
		return Document{}, err
	}

	rawText, err := extract.ExtractText(ctx, s.Store, storageKey, mimeType, filename)
	if err != nil {
		s.discardObject(ctx, storageKey)
		if errors.Is(err, extract.ErrUnsupportedType) {
			return Document{}, fmt.Errorf("%w: %s", ErrInvalidInput, err)
		}
		return Document{}, err
	}
	if max := s.maxRawTextBytes(); len(rawText) > max {
		s.discardObject(ctx, storageKey)
		return Document{}, fmt.Errorf("%w: %d bytes (max %d)", ErrTooLarge, len(rawText), max)
	}

	now := time.Now().UTC()
	doc := Document{
		ID:           uuid.NewString(),
		OwnerID:      ownerID,
		Filename:     filename,
		DocumentType: documentType,
		Version:      version,
		StorageKey:   storageKey,
		ContentType:  mimeType,
		SizeBytes:    size,
		RawText:      rawText,
		Status:       StatusUploaded,
		Progress:     0,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.Repo.Create(ctx, doc); err != nil {
		s.discardObject(ctx, storageKey)
		return Document{}, err
	}

	telemetry.Info("document.uploaded", map[string]any{
		"document_id":   doc.ID,
		"owner_id":      ownerID,
		"document_type": documentType,
		"content_type":  mimeType,
		"size_bytes":    size,
		"text_bytes":    len(rawText),
	})
	return doc, nil
}

// Get returns a document scoped to its owner.
func (s *Service) Get(ctx context.Context, ownerID, documentID string) (Document, error) {
	if ownerID == "" || documentID == "" {
		return Document{}, errors.New("ownerID and documentID are required")
	}
	return s.Repo.GetForOwner(ctx, ownerID, documentID)
}

// List returns the owner's documents, newest first.
func (s *Service) List(ctx context.Context, ownerID string, limit, offset int) ([]Document, error) {
	if ownerID == "" {
		return nil, errors.New("ownerID is required")
	}
	return s.Repo.ListByOwner(ctx, ownerID, limit, offset)
}

// Delete removes the document row, dependent rows, and the stored object.
// Object removal is best-effort: the row delete has already happened.
func (s *Service) Delete(ctx context.Context, ownerID, documentID string) error {
	doc, err := s.Repo.GetForOwner(ctx, ownerID, documentID)
	if err != nil {
		return err
	}
	if err := s.Repo.Delete(ctx, ownerID, documentID); err != nil {
		return err
	}
	for _, cascade := range s.Cascades {
		if err := cascade.DeleteByDocument(ctx, documentID); err != nil {
			telemetry.Warn("document.cascade_failed", map[string]any{
				"document_id": documentID,
				"error":       err.Error(),
			})
		}
	}
	s.discardObject(ctx, doc.StorageKey)
	return nil
}

// AnalysisState reports {status, progress} for polling clients.
func (s *Service) AnalysisState(ctx context.Context, ownerID, documentID string) (string, int, error) {
	doc, err := s.Get(ctx, ownerID, documentID)
	if err != nil {
		return "", 0, err
	}
	return doc.Status, doc.Progress, nil
}

func (s *Service) maxRawTextBytes() int {
	if s.MaxRawTextBytes > 0 {
		return s.MaxRawTextBytes
	}
	return DefaultMaxRawTextBytes
}

func (s *Service) discardObject(ctx context.Context, storageKey string) {
	if storageKey == "" || s.Store == nil {
		return
	}
	if err := s.Store.Delete(ctx, storageKey); err != nil {
		telemetry.Warn("document.object_delete_failed", map[string]any{
			"storage_key": storageKey,
			"error":       err.Error(),
		})
	}
}
