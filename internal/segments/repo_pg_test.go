package segments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestPGRepoCreateBatchInsertsAllRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	repo := &PGRepo{DB: db}
	now := time.Now().UTC()
	segs := []Segment{
		{ID: "seg-1", DocumentID: "doc-1", AnalysisRunID: "run-1", SegmentType: "BRD", StartCharIndex: 0, EndCharIndex: 100, ContentPreview: "intro", Confidence: 0.9, Status: StatusPending, CreatedAt: now},
		{ID: "seg-2", DocumentID: "doc-1", AnalysisRunID: "run-1", SegmentType: "SRS", StartCharIndex: 100, EndCharIndex: 220, Confidence: 0.8, Status: StatusPending, CreatedAt: now},
	}

	mock.ExpectBegin()
	for _, seg := range segs {
		mock.ExpectExec("INSERT INTO document_segments").
			WithArgs(
				seg.ID,
				seg.DocumentID,
				sqlmock.AnyArg(),
				seg.SegmentType,
				seg.StartCharIndex,
				seg.EndCharIndex,
				sqlmock.AnyArg(),
				seg.Confidence,
				seg.Status,
				seg.RetryCount,
				sqlmock.AnyArg(),
			).
			WillReturnResult(sqlmock.NewResult(1, 1))
	}
	mock.ExpectCommit()

	if err := repo.CreateBatch(context.Background(), segs); err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoUpdateStatusNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	repo := &PGRepo{DB: db}
	mock.ExpectExec("UPDATE document_segments").
		WithArgs(StatusProcessing, nil, "missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.UpdateStatus(context.Background(), "missing", StatusProcessing, nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoResetForRetryGuardsInSQL(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	repo := &PGRepo{DB: db}

	mock.ExpectExec("UPDATE document_segments").
		WithArgs("seg-1", 3).
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := repo.ResetForRetry(context.Background(), "seg-1", 3); err != nil {
		t.Fatalf("ResetForRetry: %v", err)
	}

	mock.ExpectExec("UPDATE document_segments").
		WithArgs("seg-spent", 3).
		WillReturnResult(sqlmock.NewResult(0, 0))
	if err := repo.ResetForRetry(context.Background(), "seg-spent", 3); !errors.Is(err, ErrRetryExhausted) {
		t.Fatalf("expected ErrRetryExhausted, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoStatusCountsByRun(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	repo := &PGRepo{DB: db}
	rows := sqlmock.NewRows([]string{"status", "count"}).
		AddRow(StatusCompleted, 4).
		AddRow(StatusFailed, 1)
	mock.ExpectQuery("SELECT status, COUNT").
		WithArgs("run-1").
		WillReturnRows(rows)

	counts, err := repo.StatusCountsByRun(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("StatusCountsByRun: %v", err)
	}
	if counts[StatusCompleted] != 4 || counts[StatusFailed] != 1 {
		t.Fatalf("unexpected counts: %v", counts)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}
