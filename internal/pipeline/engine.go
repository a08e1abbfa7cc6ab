// Package pipeline runs the three-pass document analysis: composition
// classification, content segmentation, and per-segment structured
// extraction. The engine owns pass ordering and document/segment state
// transitions; run lifecycle bookkeeping stays in the runs package.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"docalign-backend/internal/documents"
	"docalign-backend/internal/oracle"
	"docalign-backend/internal/runs"
	"docalign-backend/internal/segments"
	"docalign-backend/internal/shared/metrics"
	"docalign-backend/internal/shared/telemetry"
)

const (
	progressAfterComposition  = 25
	progressAfterSegmentation = 50
	previewLimit              = 200
)

// Engine executes analysis passes against one document at a time. All
// dependencies are explicit; a zero Engine is not usable.
type Engine struct {
	Docs     documents.Repo
	Segments segments.Repo
	Results  segments.ResultsRepo
	Runs     runs.Repo
	Oracle   oracle.Client

	// Now is overridable for tests; nil means time.Now.
	Now func() time.Time
}

// Execute runs all three passes for the run's document. Pass 1 and Pass 2
// failures are fatal and leave the document in analysis_failed; Pass 3
// segment failures are recorded per segment and never abort the run.
func (e *Engine) Execute(ctx context.Context, runID string) (err error) {
	run, err := e.Runs.GetByID(ctx, runID)
	if err != nil {
		return fmt.Errorf("load run: %w", err)
	}
	doc, err := e.Docs.GetByID(ctx, run.DocumentID)
	if err != nil {
		return fmt.Errorf("load document %s: %w", run.DocumentID, err)
	}
	defer func() {
		if r := recover(); r != nil {
			err = e.fatal(doc.ID, fmt.Errorf("analysis panic: %v", r))
		}
	}()
	if doc.RawText == "" {
		return e.fatal(doc.ID, errors.New("document has no extracted text"))
	}

	started := time.Now()
	telemetry.Info("pipeline.run_started", map[string]any{
		"run_id":        run.ID,
		"document_id":   doc.ID,
		"learning_mode": run.LearningMode,
	})

	comp, err := e.classifyComposition(ctx, doc)
	if err != nil {
		return e.fatal(doc.ID, err)
	}
	segs, err := e.segmentDocument(ctx, run, doc, comp)
	if err != nil {
		return e.fatal(doc.ID, err)
	}
	completed, failed, skipped := e.extractSegments(ctx, doc, segs)

	if run.LearningMode {
		e.reportLearningSignals(ctx, run, doc)
	}

	status := documents.StatusAnalyzed
	progress := 100
	if uerr := e.Docs.UpdateAnalysisState(ctx, doc.ID, &status, &progress); uerr != nil {
		return e.fatal(doc.ID, fmt.Errorf("finalize document state: %w", uerr))
	}
	telemetry.Info("pipeline.run_finished", map[string]any{
		"run_id":      run.ID,
		"document_id": doc.ID,
		"segments":    len(segs),
		"completed":   completed,
		"failed":      failed,
		"skipped":     skipped,
		"duration_ms": time.Since(started).Milliseconds(),
	})
	return nil
}

// ExtractPending reruns Pass 3 over the run's pending segments and then
// recomputes the run's counters. Serves the failed-segment retry path; the
// run's terminal status is left alone.
func (e *Engine) ExtractPending(ctx context.Context, runID string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("extraction panic: %v", r)
		}
	}()

	run, err := e.Runs.GetByID(ctx, runID)
	if err != nil {
		return fmt.Errorf("load run: %w", err)
	}
	doc, err := e.Docs.GetByID(ctx, run.DocumentID)
	if err != nil {
		return fmt.Errorf("load document %s: %w", run.DocumentID, err)
	}
	pending, err := e.Segments.ListByRunAndStatus(ctx, runID, segments.StatusPending)
	if err != nil {
		return fmt.Errorf("list pending segments: %w", err)
	}

	var completed, failed, skipped int
	for _, seg := range pending {
		switch e.extractOne(ctx, doc, seg) {
		case segments.StatusCompleted:
			completed++
		case segments.StatusSkipped:
			skipped++
		default:
			failed++
		}
	}

	counts, err := e.Segments.StatusCountsByRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("recount segments: %w", err)
	}
	if err := e.Runs.UpdateCounters(ctx, runID, nil, counts[segments.StatusCompleted], counts[segments.StatusFailed]); err != nil {
		return fmt.Errorf("update run counters: %w", err)
	}
	telemetry.Info("pipeline.retry_finished", map[string]any{
		"run_id":    runID,
		"processed": len(pending),
		"completed": completed,
		"failed":    failed,
		"skipped":   skipped,
	})
	return nil
}

// classifyComposition is Pass 1. On success the composition and confidence
// are persisted onto the document and progress moves to 25.
func (e *Engine) classifyComposition(ctx context.Context, doc documents.Document) (compositionResponse, error) {
	raw, err := e.Oracle.Generate(ctx, buildCompositionPrompt(doc.RawText))
	if err != nil {
		return compositionResponse{}, fmt.Errorf("composition call: %w", err)
	}
	outcome := oracle.DecodeJSON(raw)
	if outcome.Kind != oracle.OutcomeSuccess {
		return compositionResponse{}, errors.New("composition response is not valid JSON")
	}
	var comp compositionResponse
	if err := json.Unmarshal(outcome.Data, &comp); err != nil {
		return compositionResponse{}, fmt.Errorf("decode composition: %w", err)
	}

	if err := e.Docs.UpdateComposition(ctx, doc.ID, comp.Composition, comp.Confidence); err != nil {
		return compositionResponse{}, fmt.Errorf("persist composition: %w", err)
	}
	status := documents.StatusAnalyzing
	progress := progressAfterComposition
	if err := e.Docs.UpdateAnalysisState(ctx, doc.ID, &status, &progress); err != nil {
		return compositionResponse{}, fmt.Errorf("checkpoint composition: %w", err)
	}
	telemetry.Info("pipeline.composition", map[string]any{
		"document_id": doc.ID,
		"types":       len(comp.Composition),
		"confidence":  comp.Confidence,
	})
	return comp, nil
}

// segmentDocument is Pass 2. Prior segments and results for the document are
// discarded first; a rerun never appends to stale state. Candidates are
// filtered against the composition and the document bounds, survivors are
// materialized as pending segment rows.
func (e *Engine) segmentDocument(ctx context.Context, run runs.Run, doc documents.Document, comp compositionResponse) ([]segments.Segment, error) {
	if err := e.Results.DeleteByDocument(ctx, doc.ID); err != nil {
		return nil, fmt.Errorf("clear prior results: %w", err)
	}
	if err := e.Segments.DeleteByDocument(ctx, doc.ID); err != nil {
		return nil, fmt.Errorf("clear prior segments: %w", err)
	}

	raw, err := e.Oracle.Generate(ctx, buildSegmentationPrompt(comp, doc.RawText))
	if err != nil {
		return nil, fmt.Errorf("segmentation call: %w", err)
	}
	outcome := oracle.DecodeJSON(raw)
	if outcome.Kind != oracle.OutcomeSuccess {
		return nil, errors.New("segmentation response is not valid JSON")
	}
	var resp segmentationResponse
	if err := json.Unmarshal(outcome.Data, &resp); err != nil {
		return nil, fmt.Errorf("decode segmentation: %w", err)
	}
	if resp.Segments == nil {
		return nil, errors.New("segmentation response has no segments field")
	}

	now := e.now()
	rows := make([]segments.Segment, 0, len(resp.Segments))
	for _, cand := range resp.Segments {
		if comp.Composition[cand.SegmentType] <= 0 {
			telemetry.Debug("pipeline.candidate_dropped", map[string]any{
				"document_id":  doc.ID,
				"segment_type": cand.SegmentType,
				"reason":       "type absent from composition",
			})
			continue
		}
		if cand.StartCharIndex < 0 || cand.StartCharIndex >= cand.EndCharIndex || cand.EndCharIndex > len(doc.RawText) {
			telemetry.Warn("pipeline.candidate_dropped", map[string]any{
				"document_id":  doc.ID,
				"segment_type": cand.SegmentType,
				"start":        cand.StartCharIndex,
				"end":          cand.EndCharIndex,
				"reason":       "offsets out of range",
			})
			continue
		}
		rows = append(rows, segments.Segment{
			ID:             uuid.NewString(),
			DocumentID:     doc.ID,
			AnalysisRunID:  run.ID,
			SegmentType:    cand.SegmentType,
			StartCharIndex: cand.StartCharIndex,
			EndCharIndex:   cand.EndCharIndex,
			ContentPreview: truncatePreview(cand.ContentPreview),
			Confidence:     cand.Confidence,
			Status:         segments.StatusPending,
			CreatedAt:      now,
			UpdatedAt:      now,
		})
	}
	if len(rows) > 0 {
		if err := e.Segments.CreateBatch(ctx, rows); err != nil {
			return nil, fmt.Errorf("materialize segments: %w", err)
		}
	}

	if err := e.Runs.SetTotalSegments(ctx, run.ID, len(rows)); err != nil {
		return nil, fmt.Errorf("record total segments: %w", err)
	}
	progress := progressAfterSegmentation
	if err := e.Docs.UpdateAnalysisState(ctx, doc.ID, nil, &progress); err != nil {
		return nil, fmt.Errorf("checkpoint segmentation: %w", err)
	}
	telemetry.Info("pipeline.segments_materialized", map[string]any{
		"document_id":  doc.ID,
		"run_id":       run.ID,
		"candidates":   len(resp.Segments),
		"materialized": len(rows),
	})
	return rows, nil
}

// extractSegments is Pass 3: strictly sequential, one durable transition per
// segment before the next one starts.
func (e *Engine) extractSegments(ctx context.Context, doc documents.Document, segs []segments.Segment) (completed, failed, skipped int) {
	total := len(segs)
	for i, seg := range segs {
		switch e.extractOne(ctx, doc, seg) {
		case segments.StatusCompleted:
			completed++
		case segments.StatusSkipped:
			skipped++
		default:
			failed++
		}
		progress := progressAfterSegmentation + (100-progressAfterSegmentation)*(i+1)/total
		if err := e.Docs.UpdateAnalysisState(ctx, doc.ID, nil, &progress); err != nil {
			telemetry.Warn("pipeline.document_state_failed", map[string]any{
				"document_id": doc.ID,
				"error":       err.Error(),
			})
		}
	}
	return completed, failed, skipped
}

func (e *Engine) extractOne(ctx context.Context, doc documents.Document, seg segments.Segment) string {
	if seg.StartCharIndex < 0 || seg.StartCharIndex >= seg.EndCharIndex || seg.EndCharIndex > len(doc.RawText) {
		return e.finishSegment(ctx, seg, segments.StatusFailed, nil, errors.New("segment offsets out of range"), 0)
	}
	if err := e.Segments.UpdateStatus(ctx, seg.ID, segments.StatusProcessing, nil); err != nil {
		return e.finishSegment(ctx, seg, segments.StatusFailed, nil, fmt.Errorf("mark processing: %w", err), 0)
	}

	text := doc.RawText[seg.StartCharIndex:seg.EndCharIndex]
	started := time.Now()
	raw, err := e.Oracle.Generate(ctx, buildExtractionPrompt(seg.SegmentType, text))
	elapsed := time.Since(started).Milliseconds()
	if err != nil {
		return e.finishSegment(ctx, seg, segments.StatusFailed, nil, fmt.Errorf("extraction call: %w", err), elapsed)
	}
	outcome := oracle.DecodeJSON(raw)
	if outcome.Kind != oracle.OutcomeSuccess {
		return e.finishSegment(ctx, seg, segments.StatusFailed, nil, errors.New("extraction response is not valid JSON"), elapsed)
	}
	if isEmptyStructure(outcome.Data) {
		return e.finishSegment(ctx, seg, segments.StatusSkipped, nil, nil, elapsed)
	}
	return e.finishSegment(ctx, seg, segments.StatusCompleted, outcome.Data, nil, elapsed)
}

// finishSegment writes the segment's result row and final status. Any prior
// result for the segment is removed first so the retry path replaces rather
// than accumulates.
func (e *Engine) finishSegment(ctx context.Context, seg segments.Segment, status string, data json.RawMessage, cause error, elapsedMs int64) string {
	if err := e.Results.DeleteBySegment(ctx, seg.ID); err != nil {
		telemetry.Warn("pipeline.result_cleanup_failed", map[string]any{
			"segment_id": seg.ID,
			"error":      err.Error(),
		})
	}

	result := segments.Result{
		ID:               uuid.NewString(),
		SegmentID:        seg.ID,
		DocumentID:       seg.DocumentID,
		ProcessingTimeMs: elapsedMs,
		CreatedAt:        e.now(),
	}
	var lastError *string
	switch status {
	case segments.StatusCompleted:
		result.Status = segments.ResultStatusSuccess
		result.StructuredData = data
		metrics.IncSegmentCompleted()
	case segments.StatusSkipped:
		result.Status = segments.ResultStatusSkipped
		metrics.IncSegmentSkipped()
	default:
		msg := sanitizeError(cause)
		result.Status = segments.ResultStatusFailed
		result.ErrorMessage = msg
		lastError = &msg
		metrics.IncSegmentFailed()
	}

	if err := e.Results.Create(ctx, result); err != nil {
		telemetry.Error("pipeline.result_write_failed", map[string]any{
			"segment_id": seg.ID,
			"error":      err.Error(),
		})
	}
	if err := e.Segments.UpdateStatus(ctx, seg.ID, status, lastError); err != nil {
		telemetry.Error("pipeline.segment_state_failed", map[string]any{
			"segment_id": seg.ID,
			"error":      err.Error(),
		})
	}
	telemetry.Debug("pipeline.segment", map[string]any{
		"segment_id":   seg.ID,
		"segment_type": seg.SegmentType,
		"status":       status,
		"elapsed_ms":   elapsedMs,
	})
	return status
}

// reportLearningSignals summarizes what a learning-mode run extracted. There
// is no ontology engine behind this yet; the event stream is the hook for it.
func (e *Engine) reportLearningSignals(ctx context.Context, run runs.Run, doc documents.Document) {
	results, err := e.Results.ListSuccessfulByDocument(ctx, doc.ID)
	if err != nil {
		telemetry.Warn("pipeline.learning_signals_failed", map[string]any{
			"run_id": run.ID,
			"error":  err.Error(),
		})
		return
	}
	entities := 0
	for _, res := range results {
		entities += countEntities(res.StructuredData)
	}
	telemetry.Info("pipeline.learning_signals", map[string]any{
		"run_id":      run.ID,
		"document_id": doc.ID,
		"results":     len(results),
		"entities":    entities,
	})
}

// fatal marks the document analysis_failed and passes the cause through.
// The write uses a fresh context so a cancelled run still lands in a
// terminal document state.
func (e *Engine) fatal(documentID string, cause error) error {
	status := documents.StatusAnalysisFailed
	if err := e.Docs.UpdateAnalysisState(context.Background(), documentID, &status, nil); err != nil {
		telemetry.Error("pipeline.document_state_failed", map[string]any{
			"document_id": documentID,
			"error":       err.Error(),
		})
	}
	return cause
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

// isEmptyStructure reports whether decoded JSON carries nothing extractable:
// an empty object, an empty array, or null.
func isEmptyStructure(data json.RawMessage) bool {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return false
	}
	switch t := v.(type) {
	case nil:
		return true
	case map[string]any:
		return len(t) == 0
	case []any:
		return len(t) == 0
	}
	return false
}

// countEntities approximates how many extracted facts a result carries: list
// fields count by element, everything else counts once.
func countEntities(data json.RawMessage) int {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return 0
	}
	switch t := v.(type) {
	case map[string]any:
		n := 0
		for _, field := range t {
			if list, ok := field.([]any); ok {
				n += len(list)
				continue
			}
			n++
		}
		return n
	case []any:
		return len(t)
	}
	return 1
}

func truncatePreview(preview string) string {
	if len(preview) <= previewLimit {
		return preview
	}
	cut := previewLimit
	// Back up off a multibyte rune rather than splitting it.
	for cut > 0 && !utf8.RuneStart(preview[cut]) {
		cut--
	}
	return preview[:cut]
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

var _ runs.Executor = (*Engine)(nil)
