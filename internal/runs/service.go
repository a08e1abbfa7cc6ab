package runs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"docalign-backend/internal/segments"
	"docalign-backend/internal/shared/metrics"
	"docalign-backend/internal/shared/telemetry"
)

const (
	defaultRecentLimit       = 10
	defaultRetentionDays     = 30
	defaultMaxSegmentRetries = 3
)

// Executor runs the analysis passes for a run. Implemented by the pipeline
// engine; narrowed to an interface so the service can be tested with a fake.
type Executor interface {
	Execute(ctx context.Context, runID string) error
	ExtractPending(ctx context.Context, runID string) error
}

// Dispatcher hands run jobs to a queue-backed worker. When nil the service
// processes runs in-process.
type Dispatcher interface {
	EnqueueAnalysisRun(ctx context.Context, runID, requestID string) error
}

// Service contains business logic for analysis runs.
type Service struct {
	Repo     Repo
	Segments segments.Repo
	Pipeline Executor
	Queue    Dispatcher

	MaxSegmentRetries int
	RetentionDays     int
}

// Create inserts a pending run for the document. ErrRunActive is returned
// when the document already has a pending or running run; the repository
// enforces that atomically, there is no pre-check here.
func (s *Service) Create(ctx context.Context, documentID, userID string, learningMode bool) (Run, error) {
	if documentID == "" {
		return Run{}, errors.New("documentID is required")
	}

	run := Run{
		ID:           uuid.NewString(),
		DocumentID:   documentID,
		TriggeredBy:  userID,
		Status:       StatusPending,
		LearningMode: learningMode,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.Repo.Create(ctx, run); err != nil {
		return Run{}, err
	}
	return run, nil
}

// StartAnalysis creates a run and dispatches its processing job. With a queue
// configured the job goes to the worker; otherwise it runs in a goroutine.
func (s *Service) StartAnalysis(ctx context.Context, documentID, userID string, learningMode bool) (Run, error) {
	run, err := s.Create(ctx, documentID, userID, learningMode)
	if err != nil {
		return Run{}, err
	}

	if s.Queue != nil {
		err := s.Queue.EnqueueAnalysisRun(ctx, run.ID, requestIDFromContext(ctx))
		if err == nil {
			return run, nil
		}
		// Fall through to in-process: the run would otherwise sit
		// pending forever.
		telemetry.Error("run.enqueue_failed", map[string]any{
			"request_id": requestIDFromContext(ctx),
			"run_id":     run.ID,
			"error":      sanitizeError(err),
		})
	}

	go s.processAsync(backgroundWithRequestID(ctx), run.ID)
	return run, nil
}

// ProcessRun executes a run to its terminal state: start, run the pipeline,
// then complete or fail. Used by both the in-process path and the worker.
func (s *Service) ProcessRun(ctx context.Context, runID string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			s.Fail(ctx, runID, err, nil)
		}
	}()

	if s.Pipeline == nil {
		err := errors.New("pipeline not configured")
		s.Fail(ctx, runID, err, nil)
		return err
	}
	run, err := s.Repo.GetByID(ctx, runID)
	if err != nil {
		return fmt.Errorf("load run: %w", err)
	}
	if IsTerminal(run.Status) {
		// At-least-once delivery can replay a finished run's job; its
		// terminal state is final.
		telemetry.Info("run.already_finished", map[string]any{
			"request_id": requestIDFromContext(ctx),
			"run_id":     runID,
			"status":     run.Status,
		})
		return nil
	}
	if err := s.Start(ctx, runID); err != nil {
		wrapped := fmt.Errorf("start run: %w", err)
		s.Fail(ctx, runID, wrapped, nil)
		return wrapped
	}
	if err := s.Pipeline.Execute(ctx, runID); err != nil {
		s.Fail(ctx, runID, err, nil)
		return err
	}
	return s.Complete(ctx, runID, true)
}

func (s *Service) processAsync(ctx context.Context, runID string) {
	if err := s.ProcessRun(ctx, runID); err != nil {
		telemetry.Error("run.process_failed", map[string]any{
			"request_id": requestIDFromContext(ctx),
			"run_id":     runID,
			"error":      sanitizeError(err),
		})
	}
}

// Start transitions the run from pending to running.
func (s *Service) Start(ctx context.Context, runID string) error {
	if err := s.Repo.MarkRunning(ctx, runID, time.Now().UTC()); err != nil {
		return err
	}
	metrics.IncRunStarted()
	telemetry.Info("run.status", map[string]any{
		"request_id":        requestIDFromContext(ctx),
		"run_id":            runID,
		"status":            StatusRunning,
		"status_transition": "pending->running",
	})
	return nil
}

// Complete finishes a run. Counters are recomputed from a segment scan rather
// than trusting increments accumulated during the run.
func (s *Service) Complete(ctx context.Context, runID string, success bool) error {
	run, err := s.Repo.GetByID(ctx, runID)
	if err != nil {
		return err
	}
	counts, err := s.Segments.StatusCountsByRun(ctx, runID)
	if err != nil {
		return err
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	if err := s.Repo.UpdateCounters(ctx, runID, &total, counts[segments.StatusCompleted], counts[segments.StatusFailed]); err != nil {
		return err
	}

	status := StatusCompleted
	if !success {
		status = StatusFailed
	}
	completedAt := time.Now().UTC()
	if err := s.Repo.Finish(ctx, runID, status, nil, nil, completedAt); err != nil {
		if errors.Is(err, ErrRunTerminal) {
			telemetry.Info("run.complete_skipped", map[string]any{
				"request_id": requestIDFromContext(ctx),
				"run_id":     runID,
			})
			return nil
		}
		return err
	}

	if success {
		metrics.IncRunCompleted()
	} else {
		metrics.IncRunFailed()
	}
	if run.StartedAt != nil {
		metrics.ObserveRunDurationMs(durationMs(run.StartedAt, &completedAt))
	}
	telemetry.Info("run.status", map[string]any{
		"request_id":         requestIDFromContext(ctx),
		"document_id":        run.DocumentID,
		"run_id":             runID,
		"status":             status,
		"status_transition":  "running->" + status,
		"total_segments":     total,
		"completed_segments": counts[segments.StatusCompleted],
		"failed_segments":    counts[segments.StatusFailed],
		"duration_ms":        durationMs(run.StartedAt, &completedAt),
	})
	return nil
}

// Fail marks the run failed with a sanitized message. The terminal update
// uses a fresh context so a cancelled job context cannot strand the run.
func (s *Service) Fail(ctx context.Context, runID string, cause error, details map[string]any) error {
	updateCtx := context.Background()
	msg := sanitizeError(cause)
	completedAt := time.Now().UTC()

	run, getErr := s.Repo.GetByID(updateCtx, runID)

	if s.Segments != nil {
		if counts, err := s.Segments.StatusCountsByRun(updateCtx, runID); err == nil {
			total := 0
			for _, n := range counts {
				total += n
			}
			if total > 0 {
				if err := s.Repo.UpdateCounters(updateCtx, runID, &total, counts[segments.StatusCompleted], counts[segments.StatusFailed]); err != nil {
					telemetry.Error("run.counters_update_failed", map[string]any{
						"run_id": runID,
						"error":  err.Error(),
					})
				}
			}
		}
	}

	if err := s.Repo.Finish(updateCtx, runID, StatusFailed, &msg, details, completedAt); err != nil {
		if errors.Is(err, ErrRunTerminal) {
			telemetry.Info("run.fail_skipped", map[string]any{
				"request_id": requestIDFromContext(ctx),
				"run_id":     runID,
				"cause":      msg,
			})
			return nil
		}
		telemetry.Error("run.fail_update_failed", map[string]any{
			"run_id": runID,
			"error":  err.Error(),
			"cause":  msg,
		})
		return err
	}

	transition := "failed"
	if getErr == nil {
		transition = run.Status + "->failed"
	}
	metrics.IncRunFailed()
	fields := map[string]any{
		"request_id":        requestIDFromContext(ctx),
		"run_id":            runID,
		"status":            StatusFailed,
		"status_transition": transition,
		"error":             msg,
	}
	if getErr == nil {
		fields["document_id"] = run.DocumentID
		if run.StartedAt != nil {
			metrics.ObserveRunDurationMs(durationMs(run.StartedAt, &completedAt))
			fields["duration_ms"] = durationMs(run.StartedAt, &completedAt)
		}
	}
	telemetry.Info("run.status", fields)
	return nil
}

// Get returns a run by ID.
func (s *Service) Get(ctx context.Context, runID string) (Run, error) {
	if runID == "" {
		return Run{}, errors.New("runID is required")
	}
	return s.Repo.GetByID(ctx, runID)
}

// ActiveForDocument returns the document's active run, or nil.
func (s *Service) ActiveForDocument(ctx context.Context, documentID string) (*Run, error) {
	if documentID == "" {
		return nil, errors.New("documentID is required")
	}
	return s.Repo.ActiveForDocument(ctx, documentID)
}

// Status assembles the polling DTO for a run.
func (s *Service) Status(ctx context.Context, runID string) (RunStatus, error) {
	run, err := s.Get(ctx, runID)
	if err != nil {
		return RunStatus{}, err
	}
	counts, err := s.Segments.StatusCountsByRun(ctx, runID)
	if err != nil {
		return RunStatus{}, err
	}
	return buildStatus(run, counts, time.Now().UTC()), nil
}

// Recent returns the newest runs for a document as status DTOs.
func (s *Service) Recent(ctx context.Context, documentID string, limit int) ([]RunStatus, error) {
	if documentID == "" {
		return nil, errors.New("documentID is required")
	}
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	listed, err := s.Repo.ListRecentByDocument(ctx, documentID, limit)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	out := make([]RunStatus, 0, len(listed))
	for _, run := range listed {
		counts, err := s.Segments.StatusCountsByRun(ctx, run.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, buildStatus(run, counts, now))
	}
	return out, nil
}

// RetryFailedSegments resets the run's retryable failed segments to pending
// and kicks off extraction for them. The run must already be terminal and
// stays terminal; only its counters are refreshed once extraction finishes.
func (s *Service) RetryFailedSegments(ctx context.Context, runID string) ([]string, error) {
	run, err := s.Get(ctx, runID)
	if err != nil {
		return nil, err
	}
	if IsActive(run.Status) {
		return nil, ErrRunNotTerminal
	}

	failed, err := s.Segments.ListByRunAndStatus(ctx, runID, segments.StatusFailed)
	if err != nil {
		return nil, err
	}

	maxRetries := s.maxRetries()
	reset := make([]string, 0, len(failed))
	for _, seg := range failed {
		err := s.Segments.ResetForRetry(ctx, seg.ID, maxRetries)
		if errors.Is(err, segments.ErrRetryExhausted) {
			continue
		}
		if err != nil {
			return nil, err
		}
		reset = append(reset, seg.ID)
	}

	if len(reset) > 0 {
		go s.extractPendingAsync(backgroundWithRequestID(ctx), runID)
	}

	telemetry.Info("run.retry_segments", map[string]any{
		"request_id":  requestIDFromContext(ctx),
		"document_id": run.DocumentID,
		"run_id":      runID,
		"failed":      len(failed),
		"reset":       len(reset),
	})
	return reset, nil
}

func (s *Service) extractPendingAsync(ctx context.Context, runID string) {
	defer func() {
		if r := recover(); r != nil {
			telemetry.Error("run.retry_failed", map[string]any{
				"request_id": requestIDFromContext(ctx),
				"run_id":     runID,
				"error":      fmt.Sprintf("panic: %v", r),
			})
		}
	}()
	if s.Pipeline == nil {
		telemetry.Error("run.retry_failed", map[string]any{
			"request_id": requestIDFromContext(ctx),
			"run_id":     runID,
			"error":      "pipeline not configured",
		})
		return
	}
	if err := s.Pipeline.ExtractPending(ctx, runID); err != nil {
		telemetry.Error("run.retry_failed", map[string]any{
			"request_id": requestIDFromContext(ctx),
			"run_id":     runID,
			"error":      sanitizeError(err),
		})
	}
}

// CleanupOld deletes terminal runs created before the retention cutoff and
// returns how many were removed.
func (s *Service) CleanupOld(ctx context.Context, olderThanDays int) (int, error) {
	if olderThanDays <= 0 {
		olderThanDays = s.retentionDays()
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -olderThanDays)
	deleted, err := s.Repo.DeleteTerminalOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	telemetry.Info("run.cleanup", map[string]any{
		"request_id":      requestIDFromContext(ctx),
		"older_than_days": olderThanDays,
		"deleted":         deleted,
	})
	return deleted, nil
}

func (s *Service) maxRetries() int {
	if s.MaxSegmentRetries > 0 {
		return s.MaxSegmentRetries
	}
	return defaultMaxSegmentRetries
}

func (s *Service) retentionDays() int {
	if s.RetentionDays > 0 {
		return s.RetentionDays
	}
	return defaultRetentionDays
}

func buildStatus(run Run, counts map[string]int, now time.Time) RunStatus {
	histogram := make(map[string]int, len(segments.AllStatuses()))
	for _, status := range segments.AllStatuses() {
		histogram[status] = counts[status]
	}

	completed := counts[segments.StatusCompleted]
	failed := counts[segments.StatusFailed]
	if IsTerminal(run.Status) {
		// Terminal counters were recomputed at completion and survive
		// later re-segmentations that reassign the document's segments.
		completed = run.CompletedSegments
		failed = run.FailedSegments
	}

	progress := 0.0
	if run.TotalSegments != nil && *run.TotalSegments > 0 {
		progress = float64(completed) / float64(*run.TotalSegments) * 100.0
	}

	var duration *float64
	if run.StartedAt != nil {
		end := now
		if run.CompletedAt != nil {
			end = *run.CompletedAt
		}
		seconds := end.Sub(*run.StartedAt).Seconds()
		duration = &seconds
	}

	return RunStatus{
		RunID:              run.ID,
		DocumentID:         run.DocumentID,
		Status:             run.Status,
		CreatedAt:          run.CreatedAt,
		StartedAt:          run.StartedAt,
		CompletedAt:        run.CompletedAt,
		DurationSeconds:    duration,
		ProgressPercentage: progress,
		TotalSegments:      run.TotalSegments,
		CompletedSegments:  completed,
		FailedSegments:     failed,
		SegmentStatuses:    histogram,
		ErrorMessage:       run.ErrorMessage,
		LearningMode:       run.LearningMode,
	}
}

func durationMs(startedAt, completedAt *time.Time) float64 {
	if startedAt == nil || completedAt == nil {
		return 0
	}
	return float64(completedAt.Sub(*startedAt).Microseconds()) / 1000.0
}

func sanitizeError(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.ReplaceAll(err.Error(), "\n", " ")
	msg = strings.ReplaceAll(msg, "\r", " ")
	msg = strings.TrimSpace(msg)
	const maxLen = 500
	if len(msg) > maxLen {
		msg = msg[:maxLen]
	}
	return msg
}
