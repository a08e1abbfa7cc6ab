package artifacts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"docalign-backend/internal/oracle"
	"docalign-backend/internal/shared/telemetry"
)

const (
	defaultFetchTimeout = 30 * time.Second
	maxFetchBytes       = 2 << 20 // 2 MiB of source text per artifact
	requestIDCtxKey     = ctxKey("artifactRequestId")
)

type ctxKey string

// Dispatcher hands artifact analysis jobs to the worker queue.
type Dispatcher interface {
	EnqueueArtifactAnalysis(ctx context.Context, artifactID, requestID string) error
}

// Cascader removes rows tied to an artifact in stores without foreign keys.
type Cascader interface {
	DeleteByArtifact(ctx context.Context, artifactID string) error
}

// Service contains business logic for code artifacts.
type Service struct {
	Repo         Repo
	Oracle       oracle.Client
	Queue        Dispatcher
	Cascades     []Cascader
	FetchToken   string
	FetchTimeout time.Duration
	HTTPClient   *http.Client
}

// WithRequestID threads an inbound request ID to the async analysis path.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDCtxKey, requestID)
}

func requestIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDCtxKey).(string); ok {
		return v
	}
	return ""
}

// Register stores a new artifact reference in pending state.
func (s *Service) Register(ctx context.Context, ownerID, name, artifactType, location, version string) (Artifact, error) {
	if ownerID == "" {
		return Artifact{}, errors.New("ownerID is required")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Artifact{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	canonical, ok := CanonicalType(strings.TrimSpace(artifactType))
	if !ok {
		return Artifact{}, fmt.Errorf("%w: artifact_type must be one of %s", ErrInvalidInput, strings.Join(ArtifactTypes, ", "))
	}
	location = strings.TrimSpace(location)
	parsed, err := url.Parse(location)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return Artifact{}, fmt.Errorf("%w: location must be an http(s) URL", ErrInvalidInput)
	}

	now := time.Now().UTC()
	artifact := Artifact{
		ID:             uuid.NewString(),
		OwnerID:        ownerID,
		Name:           name,
		ArtifactType:   canonical,
		Location:       location,
		Version:        strings.TrimSpace(version),
		AnalysisStatus: AnalysisPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.Repo.Create(ctx, artifact); err != nil {
		return Artifact{}, err
	}

	telemetry.Info("artifact.registered", map[string]any{
		"artifact_id":   artifact.ID,
		"owner_id":      ownerID,
		"artifact_type": canonical,
	})
	return artifact, nil
}

// Get returns an artifact scoped to its owner.
func (s *Service) Get(ctx context.Context, ownerID, artifactID string) (Artifact, error) {
	return s.Repo.GetForOwner(ctx, ownerID, artifactID)
}

// List returns the owner's artifacts, newest first.
func (s *Service) List(ctx context.Context, ownerID string, limit, offset int) ([]Artifact, error) {
	return s.Repo.ListByOwner(ctx, ownerID, limit, offset)
}

// Delete removes an artifact and its dependent link rows.
func (s *Service) Delete(ctx context.Context, ownerID, artifactID string) error {
	if err := s.Repo.Delete(ctx, ownerID, artifactID); err != nil {
		return err
	}
	for _, cascade := range s.Cascades {
		if err := cascade.DeleteByArtifact(ctx, artifactID); err != nil {
			telemetry.Warn("artifact.cascade_failed", map[string]any{
				"artifact_id": artifactID,
				"error":       err.Error(),
			})
		}
	}
	return nil
}

// StartAnalysis schedules asynchronous analysis for an owned artifact. The
// job goes to the queue when one is configured, otherwise it runs in-process.
func (s *Service) StartAnalysis(ctx context.Context, ownerID, artifactID string) (Artifact, error) {
	artifact, err := s.Repo.GetForOwner(ctx, ownerID, artifactID)
	if err != nil {
		return Artifact{}, err
	}

	if s.Queue != nil {
		err := s.Queue.EnqueueArtifactAnalysis(ctx, artifact.ID, requestIDFromContext(ctx))
		if err == nil {
			return artifact, nil
		}
		telemetry.Error("artifact.enqueue_failed", map[string]any{
			"artifact_id": artifact.ID,
			"error":       err.Error(),
		})
	}

	background := WithRequestID(context.Background(), requestIDFromContext(ctx))
	go func(id string) {
		if err := s.ProcessArtifact(background, id); err != nil {
			telemetry.Error("artifact.analysis_failed", map[string]any{
				"artifact_id": id,
				"error":       err.Error(),
			})
		}
	}(artifact.ID)
	return artifact, nil
}

// ProcessArtifact runs the analysis to a terminal status: fetch the source
// text, ask the oracle for a review, persist the result. Fetch, oracle, and
// parse failures all land in analysis_status=failed with the error recorded
// under structured_analysis.error.
func (s *Service) ProcessArtifact(ctx context.Context, artifactID string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("analysis panic: %v", r)
			s.markFailed(artifactID, err)
		}
	}()

	artifact, err := s.Repo.GetByID(ctx, artifactID)
	if err != nil {
		return fmt.Errorf("load artifact: %w", err)
	}
	if s.Oracle == nil {
		err := errors.New("oracle not configured")
		s.markFailed(artifactID, err)
		return err
	}

	if err := s.Repo.UpdateStatus(ctx, artifactID, AnalysisProcessing); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}
	telemetry.Info("artifact.analysis_started", map[string]any{
		"artifact_id":   artifactID,
		"artifact_type": artifact.ArtifactType,
		"request_id":    requestIDFromContext(ctx),
	})

	code, err := s.fetchSource(ctx, artifact.Location)
	if err != nil {
		s.markFailed(artifactID, err)
		return err
	}

	started := time.Now()
	raw, err := s.Oracle.Generate(ctx, buildCodeAnalysisPrompt(code))
	if err != nil {
		s.markFailed(artifactID, fmt.Errorf("analysis call: %w", err))
		return err
	}

	outcome := oracle.DecodeJSON(raw)
	if outcome.Kind != oracle.OutcomeSuccess {
		err := errors.New("analysis response is not valid JSON")
		s.markFailed(artifactID, err)
		return err
	}
	var resp codeAnalysisResponse
	if err := json.Unmarshal(outcome.Data, &resp); err != nil {
		wrapped := fmt.Errorf("analysis response shape: %w", err)
		s.markFailed(artifactID, wrapped)
		return wrapped
	}

	if err := s.Repo.UpdateAnalysis(ctx, artifactID, resp.Summary, resp.StructuredAnalysis, AnalysisCompleted); err != nil {
		return fmt.Errorf("store analysis: %w", err)
	}

	telemetry.Info("artifact.analysis_finished", map[string]any{
		"artifact_id": artifactID,
		"duration_ms": time.Since(started).Milliseconds(),
		"code_bytes":  len(code),
	})
	return nil
}

// fetchSource pulls the artifact's source text from its location.
func (s *Service) fetchSource(ctx context.Context, location string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return "", fmt.Errorf("fetch source: %w", err)
	}

	resp, err := s.httpClient().Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch source: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("fetch source: status %d from %s", resp.StatusCode, location)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes+1))
	if err != nil {
		return "", fmt.Errorf("fetch source: read: %w", err)
	}
	if len(body) > maxFetchBytes {
		return "", fmt.Errorf("fetch source: body exceeds %d bytes", maxFetchBytes)
	}
	return string(body), nil
}

// httpClient returns the configured client or builds a default one. A fetch
// token wraps the transport with oauth2 bearer credentials.
func (s *Service) httpClient() *http.Client {
	if s.HTTPClient != nil {
		return s.HTTPClient
	}
	timeout := s.FetchTimeout
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	if s.FetchToken != "" {
		src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: s.FetchToken})
		client := oauth2.NewClient(context.Background(), src)
		client.Timeout = timeout
		return client
	}
	return &http.Client{Timeout: timeout}
}

// markFailed stores the terminal failure. A fresh context keeps the write
// alive when the caller's context is already cancelled.
func (s *Service) markFailed(artifactID string, cause error) {
	structured := map[string]any{"error": sanitizeError(cause)}
	if err := s.Repo.UpdateAnalysis(context.Background(), artifactID, "", structured, AnalysisFailed); err != nil {
		telemetry.Error("artifact.failure_write_failed", map[string]any{
			"artifact_id": artifactID,
			"error":       err.Error(),
		})
	}
}

func sanitizeError(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.ReplaceAll(err.Error(), "\n", " ")
	msg = strings.ReplaceAll(msg, "\r", " ")
	msg = strings.TrimSpace(msg)
	if len(msg) > 500 {
		msg = msg[:500]
	}
	return msg
}
