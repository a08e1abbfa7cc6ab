package documents

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func newMockDocumentRepo(t *testing.T) (*PGRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return &PGRepo{DB: db}, mock
}

func TestPGRepoCreateInsertsRowWithDefaults(t *testing.T) {
	repo, mock := newMockDocumentRepo(t)
	createdAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec("INSERT INTO documents").
		WithArgs(
			"doc-1",
			"user-1",
			"requirements.md",
			"BRD",
			"1.0", // version default
			"uploads/abc/requirements.md",
			"text/markdown",
			int64(42),
			"The system shall.",
			"uploaded", // status default
			0,
			createdAt,
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	doc := Document{
		ID:           "doc-1",
		OwnerID:      "user-1",
		Filename:     "requirements.md",
		DocumentType: "BRD",
		StorageKey:   "uploads/abc/requirements.md",
		ContentType:  "text/markdown",
		SizeBytes:    42,
		RawText:      "The system shall.",
		CreatedAt:    createdAt,
	}
	if err := repo.Create(context.Background(), doc); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPGRepoGetForOwnerScansComposition(t *testing.T) {
	repo, mock := newMockDocumentRepo(t)
	createdAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	columns := []string{
		"id", "owner_id", "filename", "document_type", "version", "storage_key", "content_type",
		"size_bytes", "raw_text", "composition", "composition_confidence", "status", "progress",
		"created_at", "updated_at",
	}
	rows := sqlmock.NewRows(columns).AddRow(
		"doc-1", "user-1", "requirements.md", "BRD", "1.0", "uploads/abc", "text/markdown",
		int64(42), "The system shall.", []byte(`{"BRD":60,"SRS":40}`), "HIGH", "analyzed", 100,
		createdAt, createdAt,
	)
	mock.ExpectQuery("SELECT (.+) FROM documents").
		WithArgs("user-1", "doc-1").
		WillReturnRows(rows)

	doc, err := repo.GetForOwner(context.Background(), "user-1", "doc-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if doc.Composition["BRD"] != 60 || doc.Composition["SRS"] != 40 {
		t.Fatalf("expected composition decoded, got %v", doc.Composition)
	}
	if doc.CompositionConfidence != "HIGH" {
		t.Fatalf("expected confidence HIGH, got %q", doc.CompositionConfidence)
	}
	if doc.Status != StatusAnalyzed || doc.Progress != 100 {
		t.Fatalf("expected analyzed/100, got %s/%d", doc.Status, doc.Progress)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPGRepoGetByIDScansNullableColumns(t *testing.T) {
	repo, mock := newMockDocumentRepo(t)
	createdAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	columns := []string{
		"id", "owner_id", "filename", "document_type", "version", "storage_key", "content_type",
		"size_bytes", "raw_text", "composition", "composition_confidence", "status", "progress",
		"created_at", "updated_at",
	}
	rows := sqlmock.NewRows(columns).AddRow(
		"doc-1", "user-1", "requirements.md", "BRD", "1.0", nil, nil,
		int64(42), nil, nil, nil, "uploaded", 0,
		createdAt, createdAt,
	)
	mock.ExpectQuery("SELECT (.+) FROM documents").
		WithArgs("doc-1").
		WillReturnRows(rows)

	doc, err := repo.GetByID(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if doc.StorageKey != "" || doc.ContentType != "" || doc.RawText != "" {
		t.Fatalf("expected empty nullable fields, got %+v", doc)
	}
	if doc.Composition != nil {
		t.Fatalf("expected nil composition, got %v", doc.Composition)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPGRepoGetForOwnerNotFound(t *testing.T) {
	repo, mock := newMockDocumentRepo(t)

	mock.ExpectQuery("SELECT (.+) FROM documents").
		WithArgs("user-1", "doc-unknown").
		WillReturnError(sql.ErrNoRows)

	if _, err := repo.GetForOwner(context.Background(), "user-1", "doc-unknown"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPGRepoDeleteMissingRowIsNotFound(t *testing.T) {
	repo, mock := newMockDocumentRepo(t)

	mock.ExpectExec("DELETE FROM documents").
		WithArgs("user-1", "doc-unknown").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.Delete(context.Background(), "user-1", "doc-unknown"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPGRepoUpdateCompositionMarshalsJSON(t *testing.T) {
	repo, mock := newMockDocumentRepo(t)

	mock.ExpectExec("UPDATE documents").
		WithArgs(
			[]byte(`{"BRD":100}`),
			"HIGH",
			sqlmock.AnyArg(), // updated_at
			"doc-1",
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateComposition(context.Background(), "doc-1", map[string]int{"BRD": 100}, "HIGH")
	if err != nil {
		t.Fatalf("update composition: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPGRepoUpdateAnalysisStatePatchesOnlyProgress(t *testing.T) {
	repo, mock := newMockDocumentRepo(t)

	mock.ExpectExec("UPDATE documents").
		WithArgs(
			nil, // status untouched
			75,
			sqlmock.AnyArg(), // updated_at
			"doc-1",
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	progress := 75
	if err := repo.UpdateAnalysisState(context.Background(), "doc-1", nil, &progress); err != nil {
		t.Fatalf("update state: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
