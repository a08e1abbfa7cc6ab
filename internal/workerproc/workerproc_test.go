package workerproc

import (
	"context"
	"errors"
	"strings"
	"testing"

	"docalign-backend/internal/bootstrap"
	"docalign-backend/internal/queue"
)

type fakeRunProcessor struct {
	err  error
	runs []string
}

func (f *fakeRunProcessor) ProcessRun(ctx context.Context, runID string) error {
	f.runs = append(f.runs, runID)
	return f.err
}

type fakeArtifactProcessor struct {
	err       error
	artifacts []string
}

func (f *fakeArtifactProcessor) ProcessArtifact(ctx context.Context, artifactID string) error {
	f.artifacts = append(f.artifacts, artifactID)
	return f.err
}

func encode(t *testing.T, msg queue.Message) string {
	t.Helper()
	payload, err := queue.EncodeMessage(msg)
	if err != nil {
		t.Fatalf("encode message: %v", err)
	}
	return string(payload)
}

func TestParseMessageEmptyBody(t *testing.T) {
	_, meta, err := ParseMessage("   ")
	var emptyErr ErrEmptyBody
	if !errors.As(err, &emptyErr) {
		t.Fatalf("expected ErrEmptyBody, got %v", err)
	}
	if meta.BodyLen != 3 {
		t.Fatalf("expected body length 3, got %d", meta.BodyLen)
	}
}

func TestParseMessageDecodeFailure(t *testing.T) {
	_, meta, err := ParseMessage("{not-json")
	var decodeErr ErrDecode
	if !errors.As(err, &decodeErr) {
		t.Fatalf("expected ErrDecode, got %v", err)
	}
	if meta.BodySHA == "" {
		t.Fatal("expected body hash for diagnostics")
	}
}

func TestParseMessageUnknownJobType(t *testing.T) {
	_, _, err := ParseMessage(`{"job_type":"mystery","run_id":"run-1","request_id":"req-1"}`)
	var invalidErr ErrInvalidJob
	if !errors.As(err, &invalidErr) {
		t.Fatalf("expected ErrInvalidJob, got %v", err)
	}
	if invalidErr.RequestID != "req-1" {
		t.Fatalf("expected request id preserved, got %q", invalidErr.RequestID)
	}
}

func TestParseMessageMissingJobID(t *testing.T) {
	_, _, err := ParseMessage(`{"job_type":"analysis_run"}`)
	var invalidErr ErrInvalidJob
	if !errors.As(err, &invalidErr) {
		t.Fatalf("expected ErrInvalidJob, got %v", err)
	}
}

func TestParseMessageValid(t *testing.T) {
	body := encode(t, queue.NewAnalysisRunMessage("run-1", "req-1"))
	msg, meta, err := ParseMessage(body)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if msg.RunID != "run-1" || msg.RequestID != "req-1" {
		t.Fatalf("unexpected message %+v", msg)
	}
	if meta.BodyLen != len(body) || len(meta.BodySHA) != 64 {
		t.Fatalf("unexpected meta %+v", meta)
	}
}

func TestHandleMessageRoutesRunJobs(t *testing.T) {
	proc := &fakeRunProcessor{}
	app := &bootstrap.App{RunProcessor: proc}

	body := encode(t, queue.NewAnalysisRunMessage("run-1", "req-1"))
	if err := HandleMessage(context.Background(), app, body); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(proc.runs) != 1 || proc.runs[0] != "run-1" {
		t.Fatalf("expected run-1 processed, got %v", proc.runs)
	}
}

func TestHandleMessageRoutesArtifactJobs(t *testing.T) {
	runProc := &fakeRunProcessor{}
	artProc := &fakeArtifactProcessor{}
	app := &bootstrap.App{RunProcessor: runProc, ArtifactProcessor: artProc}

	body := encode(t, queue.NewArtifactAnalysisMessage("artifact-1", "req-2"))
	if err := HandleMessage(context.Background(), app, body); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(artProc.artifacts) != 1 || artProc.artifacts[0] != "artifact-1" {
		t.Fatalf("expected artifact-1 processed, got %v", artProc.artifacts)
	}
	if len(runProc.runs) != 0 {
		t.Fatalf("run processor should not see artifact jobs, got %v", runProc.runs)
	}
}

func TestHandleMessageWrapsProcessingFailure(t *testing.T) {
	proc := &fakeRunProcessor{err: errors.New("boom")}
	app := &bootstrap.App{RunProcessor: proc}

	body := encode(t, queue.NewAnalysisRunMessage("run-9", "req-9"))
	err := HandleMessage(context.Background(), app, body)

	var procErr ErrProcess
	if !errors.As(err, &procErr) {
		t.Fatalf("expected ErrProcess, got %v", err)
	}
	if procErr.JobType != queue.JobAnalysisRun || procErr.JobID != "run-9" || procErr.RequestID != "req-9" {
		t.Fatalf("unexpected error fields %+v", procErr)
	}
	if !strings.Contains(procErr.Error(), "boom") {
		t.Fatalf("expected cause in message, got %q", procErr.Error())
	}
}

func TestHandleMessageReusesParsedMessage(t *testing.T) {
	proc := &fakeRunProcessor{}
	app := &bootstrap.App{RunProcessor: proc}

	parsed := queue.NewAnalysisRunMessage("run-parsed", "req-1")
	ctx := WithParsedMessage(context.Background(), parsed)

	// The body names a different run; the pre-parsed message wins.
	body := encode(t, queue.NewAnalysisRunMessage("run-body", "req-1"))
	if err := HandleMessage(ctx, app, body); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(proc.runs) != 1 || proc.runs[0] != "run-parsed" {
		t.Fatalf("expected run-parsed processed, got %v", proc.runs)
	}
}

func TestHandleMessageRevalidatesParsedMessage(t *testing.T) {
	app := &bootstrap.App{RunProcessor: &fakeRunProcessor{}}

	ctx := WithParsedMessage(context.Background(), queue.Message{JobType: "mystery"})
	err := HandleMessage(ctx, app, "ignored")

	var invalidErr ErrInvalidJob
	if !errors.As(err, &invalidErr) {
		t.Fatalf("expected ErrInvalidJob, got %v", err)
	}
}

func TestHandleMessageWithoutProcessor(t *testing.T) {
	app := &bootstrap.App{}

	body := encode(t, queue.NewAnalysisRunMessage("run-1", ""))
	err := HandleMessage(context.Background(), app, body)
	if err == nil || !strings.Contains(err.Error(), "not configured") {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestHandleMessageNilApp(t *testing.T) {
	body := encode(t, queue.NewAnalysisRunMessage("run-1", ""))
	if err := HandleMessage(context.Background(), nil, body); err == nil {
		t.Fatal("expected error for nil dependencies")
	}
}
