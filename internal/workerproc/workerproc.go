package workerproc

import (
	"context"
	"errors"
	"strings"

	"docalign-backend/internal/artifacts"
	"docalign-backend/internal/bootstrap"
	"docalign-backend/internal/queue"
	"docalign-backend/internal/runs"
	"docalign-backend/internal/shared/util"
)

// MessageMeta captures details useful for logging and diagnostics.
type MessageMeta struct {
	BodyLen int
	BodySHA string
}

// ComputeMeta returns the body length and SHA-256 hash.
func ComputeMeta(body string) MessageMeta {
	if body == "" {
		return MessageMeta{BodyLen: 0, BodySHA: ""}
	}
	return MessageMeta{BodyLen: len(body), BodySHA: util.SHA256Hex(body)}
}

// ErrEmptyBody indicates an empty queue payload.
type ErrEmptyBody struct {
	Meta MessageMeta
}

func (e ErrEmptyBody) Error() string { return "empty message body" }

// ErrDecode indicates a JSON decode failure.
type ErrDecode struct {
	Meta MessageMeta
	Err  error
}

func (e ErrDecode) Error() string {
	if e.Err == nil {
		return "decode message"
	}
	return "decode message: " + e.Err.Error()
}

// ErrInvalidJob indicates a decoded message that names no runnable job:
// an unknown job type or a missing job id.
type ErrInvalidJob struct {
	Meta      MessageMeta
	RequestID string
	Err       error
}

func (e ErrInvalidJob) Error() string {
	if e.Err == nil {
		return "invalid job message"
	}
	return "invalid job message: " + e.Err.Error()
}

// ErrProcess indicates processing failed after successful parsing.
type ErrProcess struct {
	JobType   string
	JobID     string
	RequestID string
	Err       error
}

func (e ErrProcess) Error() string {
	if e.Err == nil {
		return "process " + e.JobType + " job"
	}
	return "process " + e.JobType + " job: " + e.Err.Error()
}

// ParseMessage validates and decodes the queue payload.
func ParseMessage(body string) (queue.Message, MessageMeta, error) {
	meta := ComputeMeta(body)
	if strings.TrimSpace(body) == "" {
		return queue.Message{}, meta, ErrEmptyBody{Meta: meta}
	}

	msg, err := queue.DecodeMessage([]byte(body))
	if err != nil {
		return queue.Message{}, meta, ErrDecode{Meta: meta, Err: err}
	}
	if err := msg.Validate(); err != nil {
		return msg, meta, ErrInvalidJob{Meta: meta, RequestID: msg.RequestID, Err: err}
	}
	return msg, meta, nil
}

type parsedMessageKey struct{}

// WithParsedMessage stores a decoded message in the context for reuse.
func WithParsedMessage(ctx context.Context, msg queue.Message) context.Context {
	return context.WithValue(ctx, parsedMessageKey{}, msg)
}

func parsedMessageFromContext(ctx context.Context) (queue.Message, bool) {
	if ctx == nil {
		return queue.Message{}, false
	}
	msg, ok := ctx.Value(parsedMessageKey{}).(queue.Message)
	return msg, ok
}

// HandleMessage parses, validates, and processes a message payload,
// dispatching to the processor for the message's job type.
func HandleMessage(ctx context.Context, app *bootstrap.App, body string) error {
	if app == nil {
		return errors.New("worker dependencies not configured")
	}

	msg, ok := parsedMessageFromContext(ctx)
	if !ok {
		var err error
		msg, _, err = ParseMessage(body)
		if err != nil {
			return err
		}
	}
	if err := msg.Validate(); err != nil {
		return ErrInvalidJob{Meta: ComputeMeta(body), RequestID: msg.RequestID, Err: err}
	}

	switch msg.JobType {
	case queue.JobAnalysisRun:
		processor := app.RunProcessor
		if processor == nil && app.RunsService != nil {
			processor = app.RunsService
		}
		if processor == nil {
			return errors.New("run processor not configured")
		}
		runCtx := runs.WithRequestID(ctx, msg.RequestID)
		if err := processor.ProcessRun(runCtx, msg.RunID); err != nil {
			return ErrProcess{JobType: msg.JobType, JobID: msg.RunID, RequestID: msg.RequestID, Err: err}
		}
	case queue.JobArtifactAnalysis:
		processor := app.ArtifactProcessor
		if processor == nil && app.ArtifactsService != nil {
			processor = app.ArtifactsService
		}
		if processor == nil {
			return errors.New("artifact processor not configured")
		}
		artifactCtx := artifacts.WithRequestID(ctx, msg.RequestID)
		if err := processor.ProcessArtifact(artifactCtx, msg.ArtifactID); err != nil {
			return ErrProcess{JobType: msg.JobType, JobID: msg.ArtifactID, RequestID: msg.RequestID, Err: err}
		}
	}
	return nil
}
