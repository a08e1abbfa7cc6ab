package runs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestMemoryRepoConcurrentCreateAdmitsExactlyOne(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()
	const racers = 16

	var wg sync.WaitGroup
	errs := make([]error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = repo.Create(ctx, Run{
				ID:         fmt.Sprintf("run-%d", i),
				DocumentID: "doc-1",
				Status:     StatusPending,
				CreatedAt:  time.Now().UTC(),
			})
		}(i)
	}
	wg.Wait()

	var created, refused int
	for _, err := range errs {
		switch {
		case err == nil:
			created++
		case errors.Is(err, ErrRunActive):
			refused++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if created != 1 {
		t.Fatalf("expected exactly one winner, got %d", created)
	}
	if refused != racers-1 {
		t.Fatalf("expected %d refusals, got %d", racers-1, refused)
	}
}

func TestMemoryRepoCreateAllowsNewRunAfterTerminal(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()

	first := Run{ID: "run-1", DocumentID: "doc-1", Status: StatusPending, CreatedAt: time.Now().UTC()}
	if err := repo.Create(ctx, first); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.MarkRunning(ctx, first.ID, time.Now().UTC()); err != nil {
		t.Fatalf("mark running: %v", err)
	}
	if err := repo.Finish(ctx, first.ID, StatusFailed, nil, nil, time.Now().UTC()); err != nil {
		t.Fatalf("finish: %v", err)
	}

	second := Run{ID: "run-2", DocumentID: "doc-1", Status: StatusPending, CreatedAt: time.Now().UTC()}
	if err := repo.Create(ctx, second); err != nil {
		t.Fatalf("expected new run after terminal, got %v", err)
	}
}

func TestMemoryRepoMarkRunningOnlyFromPending(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()

	run := Run{ID: "run-1", DocumentID: "doc-1", Status: StatusPending, CreatedAt: time.Now().UTC()}
	if err := repo.Create(ctx, run); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.MarkRunning(ctx, run.ID, time.Now().UTC()); err != nil {
		t.Fatalf("mark running: %v", err)
	}
	if err := repo.MarkRunning(ctx, run.ID, time.Now().UTC()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second transition, got %v", err)
	}
}

func TestMemoryRepoFinishRefusesSecondTerminalState(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()

	run := Run{ID: "run-1", DocumentID: "doc-1", Status: StatusPending, CreatedAt: time.Now().UTC()}
	if err := repo.Create(ctx, run); err != nil {
		t.Fatalf("create: %v", err)
	}
	first := time.Now().UTC().Add(-time.Minute)
	msg := "boom"
	if err := repo.Finish(ctx, run.ID, StatusFailed, &msg, map[string]any{"pass": 1}, first); err != nil {
		t.Fatalf("finish: %v", err)
	}

	err := repo.Finish(ctx, run.ID, StatusCompleted, nil, nil, time.Now().UTC())
	if !errors.Is(err, ErrRunTerminal) {
		t.Fatalf("expected ErrRunTerminal on second finish, got %v", err)
	}

	got, err := repo.GetByID(ctx, run.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusFailed {
		t.Fatalf("expected status to stay %s, got %s", StatusFailed, got.Status)
	}
	if got.CompletedAt == nil || !got.CompletedAt.Equal(first) {
		t.Fatalf("expected first completion time preserved, got %v", got.CompletedAt)
	}
	if got.ErrorMessage == nil || *got.ErrorMessage != "boom" {
		t.Fatalf("expected error message kept, got %v", got.ErrorMessage)
	}
	if got.ErrorDetails["pass"] != 1 {
		t.Fatalf("expected error details kept, got %v", got.ErrorDetails)
	}
}

func TestMemoryRepoActiveForDocument(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()

	run := Run{ID: "run-1", DocumentID: "doc-1", Status: StatusPending, CreatedAt: time.Now().UTC()}
	if err := repo.Create(ctx, run); err != nil {
		t.Fatalf("create: %v", err)
	}

	active, err := repo.ActiveForDocument(ctx, "doc-1")
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if active == nil || active.ID != run.ID {
		t.Fatalf("expected active run, got %v", active)
	}

	if err := repo.MarkRunning(ctx, run.ID, time.Now().UTC()); err != nil {
		t.Fatalf("mark running: %v", err)
	}
	if err := repo.Finish(ctx, run.ID, StatusCompleted, nil, nil, time.Now().UTC()); err != nil {
		t.Fatalf("finish: %v", err)
	}

	active, err = repo.ActiveForDocument(ctx, "doc-1")
	if err != nil {
		t.Fatalf("active after finish: %v", err)
	}
	if active != nil {
		t.Fatalf("expected nil after terminal, got %v", active)
	}
}
