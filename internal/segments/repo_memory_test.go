package segments

import (
	"context"
	"errors"
	"testing"
	"time"
)

func seedSegments(t *testing.T, repo *MemoryRepo, segs ...Segment) {
	t.Helper()
	if err := repo.CreateBatch(context.Background(), segs); err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}
}

func TestMemoryRepoListByDocumentOrdersByOffset(t *testing.T) {
	repo := NewMemoryRepo()
	now := time.Now().UTC()
	seedSegments(t, repo,
		Segment{ID: "seg-2", DocumentID: "doc-1", AnalysisRunID: "run-1", SegmentType: "SRS", StartCharIndex: 500, EndCharIndex: 900, Status: StatusPending, CreatedAt: now},
		Segment{ID: "seg-1", DocumentID: "doc-1", AnalysisRunID: "run-1", SegmentType: "BRD", StartCharIndex: 0, EndCharIndex: 500, Status: StatusPending, CreatedAt: now},
		Segment{ID: "other", DocumentID: "doc-2", AnalysisRunID: "run-9", SegmentType: "BRD", StartCharIndex: 0, EndCharIndex: 10, Status: StatusPending, CreatedAt: now},
	)

	got, err := repo.ListByDocument(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("ListByDocument: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(got))
	}
	if got[0].ID != "seg-1" || got[1].ID != "seg-2" {
		t.Fatalf("expected reading order, got %s then %s", got[0].ID, got[1].ID)
	}
}

func TestMemoryRepoUpdateStatusReplacesLastError(t *testing.T) {
	repo := NewMemoryRepo()
	seedSegments(t, repo, Segment{ID: "seg-1", DocumentID: "doc-1", Status: StatusPending})

	msg := "oracle call failed"
	if err := repo.UpdateStatus(context.Background(), "seg-1", StatusFailed, &msg); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	seg, err := repo.GetByID(context.Background(), "seg-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if seg.Status != StatusFailed || seg.LastError != msg {
		t.Fatalf("unexpected segment after fail: %+v", seg)
	}

	if err := repo.UpdateStatus(context.Background(), "seg-1", StatusPending, nil); err != nil {
		t.Fatalf("UpdateStatus clear: %v", err)
	}
	seg, _ = repo.GetByID(context.Background(), "seg-1")
	if seg.LastError != "" {
		t.Fatalf("expected last error cleared, got %q", seg.LastError)
	}

	if err := repo.UpdateStatus(context.Background(), "missing", StatusFailed, nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryRepoResetForRetry(t *testing.T) {
	repo := NewMemoryRepo()
	seedSegments(t, repo,
		Segment{ID: "failed-fresh", DocumentID: "doc-1", Status: StatusFailed, RetryCount: 0, LastError: "boom"},
		Segment{ID: "failed-spent", DocumentID: "doc-1", Status: StatusFailed, RetryCount: 3, LastError: "boom"},
		Segment{ID: "done", DocumentID: "doc-1", Status: StatusCompleted},
	)

	if err := repo.ResetForRetry(context.Background(), "failed-fresh", 3); err != nil {
		t.Fatalf("ResetForRetry: %v", err)
	}
	seg, _ := repo.GetByID(context.Background(), "failed-fresh")
	if seg.Status != StatusPending || seg.RetryCount != 1 || seg.LastError != "" {
		t.Fatalf("unexpected segment after reset: %+v", seg)
	}

	if err := repo.ResetForRetry(context.Background(), "failed-spent", 3); !errors.Is(err, ErrRetryExhausted) {
		t.Fatalf("expected ErrRetryExhausted for spent segment, got %v", err)
	}
	if err := repo.ResetForRetry(context.Background(), "done", 3); !errors.Is(err, ErrRetryExhausted) {
		t.Fatalf("expected ErrRetryExhausted for completed segment, got %v", err)
	}
	if err := repo.ResetForRetry(context.Background(), "missing", 3); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryRepoStatusCountsByRun(t *testing.T) {
	repo := NewMemoryRepo()
	seedSegments(t, repo,
		Segment{ID: "a", DocumentID: "doc-1", AnalysisRunID: "run-1", Status: StatusCompleted},
		Segment{ID: "b", DocumentID: "doc-1", AnalysisRunID: "run-1", Status: StatusCompleted},
		Segment{ID: "c", DocumentID: "doc-1", AnalysisRunID: "run-1", Status: StatusFailed},
		Segment{ID: "d", DocumentID: "doc-1", AnalysisRunID: "run-1", Status: StatusSkipped},
		Segment{ID: "e", DocumentID: "doc-9", AnalysisRunID: "run-2", Status: StatusCompleted},
	)

	counts, err := repo.StatusCountsByRun(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("StatusCountsByRun: %v", err)
	}
	if counts[StatusCompleted] != 2 || counts[StatusFailed] != 1 || counts[StatusSkipped] != 1 {
		t.Fatalf("unexpected counts: %v", counts)
	}
}

func TestMemoryRepoDeleteByDocument(t *testing.T) {
	repo := NewMemoryRepo()
	seedSegments(t, repo,
		Segment{ID: "a", DocumentID: "doc-1", Status: StatusPending},
		Segment{ID: "b", DocumentID: "doc-2", Status: StatusPending},
	)

	if err := repo.DeleteByDocument(context.Background(), "doc-1"); err != nil {
		t.Fatalf("DeleteByDocument: %v", err)
	}
	if _, err := repo.GetByID(context.Background(), "a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected doc-1 segment deleted, got %v", err)
	}
	if _, err := repo.GetByID(context.Background(), "b"); err != nil {
		t.Fatalf("expected doc-2 segment kept, got %v", err)
	}
}

func TestResultsMemoryRepoLifecycle(t *testing.T) {
	repo := NewResultsMemoryRepo()
	now := time.Now().UTC()

	results := []Result{
		{ID: "r1", SegmentID: "seg-1", DocumentID: "doc-1", Status: ResultStatusSuccess, StructuredData: []byte(`{"requirements":[]}`), CreatedAt: now},
		{ID: "r2", SegmentID: "seg-2", DocumentID: "doc-1", Status: ResultStatusFailed, ErrorMessage: "parse failed", CreatedAt: now.Add(time.Second)},
		{ID: "r3", SegmentID: "seg-3", DocumentID: "doc-1", Status: ResultStatusSkipped, CreatedAt: now.Add(2 * time.Second)},
	}
	for _, res := range results {
		if err := repo.Create(context.Background(), res); err != nil {
			t.Fatalf("Create %s: %v", res.ID, err)
		}
	}

	all, err := repo.ListByDocument(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("ListByDocument: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 results, got %d", len(all))
	}

	ok, err := repo.HasSuccessfulForDocument(context.Background(), "doc-1")
	if err != nil || !ok {
		t.Fatalf("expected successful result present, ok=%v err=%v", ok, err)
	}

	successful, err := repo.ListSuccessfulByDocument(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("ListSuccessfulByDocument: %v", err)
	}
	if len(successful) != 1 || successful[0].ID != "r1" {
		t.Fatalf("unexpected successful results: %+v", successful)
	}

	if err := repo.DeleteBySegment(context.Background(), "seg-1"); err != nil {
		t.Fatalf("DeleteBySegment: %v", err)
	}
	ok, _ = repo.HasSuccessfulForDocument(context.Background(), "doc-1")
	if ok {
		t.Fatal("expected no successful result after delete")
	}

	if err := repo.DeleteByDocument(context.Background(), "doc-1"); err != nil {
		t.Fatalf("DeleteByDocument: %v", err)
	}
	rest, _ := repo.ListByDocument(context.Background(), "doc-1")
	if len(rest) != 0 {
		t.Fatalf("expected all results deleted, got %d", len(rest))
	}
}
