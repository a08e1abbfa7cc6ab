package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"docalign-backend/internal/documents"
	"docalign-backend/internal/runs"
	"docalign-backend/internal/segments"
)

const sampleText = "The system shall allow admins to export audit reports. GET /reports lists generated reports."

type oracleResponse struct {
	text string
	err  error
}

type scriptedOracle struct {
	calls     int
	responses []oracleResponse
}

func (s *scriptedOracle) Generate(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.calls >= len(s.responses) {
		return "", fmt.Errorf("unexpected oracle call %d", s.calls+1)
	}
	r := s.responses[s.calls]
	s.calls++
	return r.text, r.err
}

type testEnv struct {
	engine  *Engine
	docs    *documents.MemoryRepo
	segs    *segments.MemoryRepo
	results *segments.ResultsMemoryRepo
	runs    *runs.MemoryRepo
}

func setupEngine(t *testing.T, o *scriptedOracle) testEnv {
	t.Helper()
	env := testEnv{
		docs:    documents.NewMemoryRepo(),
		segs:    segments.NewMemoryRepo(),
		results: segments.NewResultsMemoryRepo(),
		runs:    runs.NewMemoryRepo(),
	}
	env.engine = &Engine{
		Docs:     env.docs,
		Segments: env.segs,
		Results:  env.results,
		Runs:     env.runs,
		Oracle:   o,
	}
	return env
}

func seedDocumentAndRun(t *testing.T, env testEnv, rawText string, learningMode bool) (string, string) {
	t.Helper()
	ctx := context.Background()
	doc := documents.Document{
		ID:           "doc-1",
		OwnerID:      "user-1",
		Filename:     "requirements.txt",
		DocumentType: "requirements",
		RawText:      rawText,
	}
	if err := env.docs.Create(ctx, doc); err != nil {
		t.Fatalf("create document: %v", err)
	}
	run := runs.Run{
		ID:           "run-1",
		DocumentID:   doc.ID,
		TriggeredBy:  "user-1",
		Status:       runs.StatusRunning,
		LearningMode: learningMode,
	}
	if err := env.runs.Create(ctx, run); err != nil {
		t.Fatalf("create run: %v", err)
	}
	return doc.ID, run.ID
}

func happyPassResponses(rawText string, extractions ...oracleResponse) []oracleResponse {
	cut := strings.Index(rawText, "GET /reports")
	composition := `{"composition":{"SRS":60,"API_DOCS":40},"confidence":"HIGH","reasoning":"requirement statements followed by an endpoint listing"}`
	segmentation := fmt.Sprintf(`{"segments":[
		{"segment_type":"SRS","start_char_index":0,"end_char_index":%d,"content_preview":"The system shall","confidence":0.9},
		{"segment_type":"API_DOCS","start_char_index":%d,"end_char_index":%d,"content_preview":"GET /reports","confidence":0.8}
	],"total_segments":2,"segmentation_quality":"HIGH"}`, cut, cut, len(rawText))

	responses := []oracleResponse{{text: composition}, {text: segmentation}}
	return append(responses, extractions...)
}

func TestExecuteHappyPathAnalyzesDocument(t *testing.T) {
	o := &scriptedOracle{responses: happyPassResponses(sampleText,
		oracleResponse{text: `{"functional_requirements":[{"id":"REQ-1","description":"export audit reports","priority":"must"}]}`},
		oracleResponse{text: `{"endpoints":[{"method":"GET","path":"/reports","description":"list generated reports"}]}`},
	)}
	env := setupEngine(t, o)
	docID, runID := seedDocumentAndRun(t, env, sampleText, false)
	ctx := context.Background()

	if err := env.engine.Execute(ctx, runID); err != nil {
		t.Fatalf("execute: %v", err)
	}

	doc, err := env.docs.GetByID(ctx, docID)
	if err != nil {
		t.Fatalf("get document: %v", err)
	}
	if doc.Status != documents.StatusAnalyzed {
		t.Fatalf("expected document status analyzed, got %s", doc.Status)
	}
	if doc.Progress != 100 {
		t.Fatalf("expected progress 100, got %d", doc.Progress)
	}
	if doc.Composition["SRS"] != 60 || doc.Composition["API_DOCS"] != 40 {
		t.Fatalf("expected composition persisted, got %v", doc.Composition)
	}
	if doc.CompositionConfidence != "HIGH" {
		t.Fatalf("expected composition confidence HIGH, got %q", doc.CompositionConfidence)
	}

	segs, err := env.segs.ListByDocument(ctx, docID)
	if err != nil {
		t.Fatalf("list segments: %v", err)
	}
	if len(segs) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(segs))
	}
	for _, seg := range segs {
		if seg.Status != segments.StatusCompleted {
			t.Fatalf("expected segment %s completed, got %s", seg.ID, seg.Status)
		}
		if seg.AnalysisRunID != runID {
			t.Fatalf("expected segment tied to run %s, got %s", runID, seg.AnalysisRunID)
		}
	}

	results, err := env.results.ListByDocument(ctx, docID)
	if err != nil {
		t.Fatalf("list results: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	for _, res := range results {
		if res.Status != segments.ResultStatusSuccess {
			t.Fatalf("expected result success, got %s", res.Status)
		}
		if len(res.StructuredData) == 0 {
			t.Fatalf("expected structured data on result %s", res.ID)
		}
	}

	run, err := env.runs.GetByID(ctx, runID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if run.TotalSegments == nil || *run.TotalSegments != 2 {
		t.Fatalf("expected total_segments 2, got %v", run.TotalSegments)
	}
	if o.calls != 4 {
		t.Fatalf("expected 4 oracle calls, got %d", o.calls)
	}
}

func TestExecuteSegmentFailureDoesNotAbortRun(t *testing.T) {
	o := &scriptedOracle{responses: happyPassResponses(sampleText,
		oracleResponse{text: `{"functional_requirements":[{"id":"REQ-1"}]}`},
		oracleResponse{err: errors.New("gemini http status 500: upstream exploded")},
	)}
	env := setupEngine(t, o)
	docID, runID := seedDocumentAndRun(t, env, sampleText, false)
	ctx := context.Background()

	if err := env.engine.Execute(ctx, runID); err != nil {
		t.Fatalf("expected partial failure to be tolerated, got %v", err)
	}

	doc, err := env.docs.GetByID(ctx, docID)
	if err != nil {
		t.Fatalf("get document: %v", err)
	}
	if doc.Status != documents.StatusAnalyzed {
		t.Fatalf("expected document analyzed despite a failed segment, got %s", doc.Status)
	}

	segs, err := env.segs.ListByDocument(ctx, docID)
	if err != nil {
		t.Fatalf("list segments: %v", err)
	}
	var completed, failed int
	for _, seg := range segs {
		switch seg.Status {
		case segments.StatusCompleted:
			completed++
		case segments.StatusFailed:
			failed++
			if seg.LastError == "" {
				t.Fatalf("expected last_error on failed segment")
			}
			if strings.Contains(seg.LastError, "\n") {
				t.Fatalf("expected sanitized last_error, got %q", seg.LastError)
			}
		}
	}
	if completed != 1 || failed != 1 {
		t.Fatalf("expected 1 completed and 1 failed segment, got %d/%d", completed, failed)
	}

	results, err := env.results.ListByDocument(ctx, docID)
	if err != nil {
		t.Fatalf("list results: %v", err)
	}
	var failedResults int
	for _, res := range results {
		if res.Status == segments.ResultStatusFailed {
			failedResults++
			if res.ErrorMessage == "" {
				t.Fatalf("expected error message on failed result")
			}
		}
	}
	if failedResults != 1 {
		t.Fatalf("expected 1 failed result, got %d", failedResults)
	}
}

func TestExecuteCompositionParseFailureIsFatal(t *testing.T) {
	o := &scriptedOracle{responses: []oracleResponse{{text: "I cannot classify this document."}}}
	env := setupEngine(t, o)
	docID, runID := seedDocumentAndRun(t, env, sampleText, false)
	ctx := context.Background()

	err := env.engine.Execute(ctx, runID)
	if err == nil {
		t.Fatalf("expected composition parse failure to be fatal")
	}

	doc, gerr := env.docs.GetByID(ctx, docID)
	if gerr != nil {
		t.Fatalf("get document: %v", gerr)
	}
	if doc.Status != documents.StatusAnalysisFailed {
		t.Fatalf("expected document analysis_failed, got %s", doc.Status)
	}

	segs, lerr := env.segs.ListByDocument(ctx, docID)
	if lerr != nil {
		t.Fatalf("list segments: %v", lerr)
	}
	if len(segs) != 0 {
		t.Fatalf("expected no segments after fatal pass 1, got %d", len(segs))
	}
	if o.calls != 1 {
		t.Fatalf("expected a single oracle call, got %d", o.calls)
	}
}

func TestExecuteEmptyRawTextIsFatal(t *testing.T) {
	o := &scriptedOracle{}
	env := setupEngine(t, o)
	docID, runID := seedDocumentAndRun(t, env, "", false)
	ctx := context.Background()

	if err := env.engine.Execute(ctx, runID); err == nil {
		t.Fatalf("expected empty raw text to be fatal")
	}
	doc, err := env.docs.GetByID(ctx, docID)
	if err != nil {
		t.Fatalf("get document: %v", err)
	}
	if doc.Status != documents.StatusAnalysisFailed {
		t.Fatalf("expected document analysis_failed, got %s", doc.Status)
	}
	if o.calls != 0 {
		t.Fatalf("expected no oracle calls, got %d", o.calls)
	}
}

func TestExecuteDropsCandidatesOutsideCompositionAndBounds(t *testing.T) {
	composition := `{"composition":{"SRS":100},"confidence":"MEDIUM","reasoning":"requirements only"}`
	segmentation := fmt.Sprintf(`{"segments":[
		{"segment_type":"SRS","start_char_index":0,"end_char_index":%d,"content_preview":"ok","confidence":0.9},
		{"segment_type":"API_DOCS","start_char_index":0,"end_char_index":10,"content_preview":"not in composition","confidence":0.9},
		{"segment_type":"SRS","start_char_index":5,"end_char_index":%d,"content_preview":"end past document","confidence":0.9},
		{"segment_type":"SRS","start_char_index":20,"end_char_index":10,"content_preview":"inverted","confidence":0.9}
	],"total_segments":4,"segmentation_quality":"LOW"}`, len(sampleText), len(sampleText)+50)
	o := &scriptedOracle{responses: []oracleResponse{
		{text: composition},
		{text: segmentation},
		{text: `{"functional_requirements":[{"id":"REQ-1"}]}`},
	}}
	env := setupEngine(t, o)
	docID, runID := seedDocumentAndRun(t, env, sampleText, false)
	ctx := context.Background()

	if err := env.engine.Execute(ctx, runID); err != nil {
		t.Fatalf("execute: %v", err)
	}

	segs, err := env.segs.ListByDocument(ctx, docID)
	if err != nil {
		t.Fatalf("list segments: %v", err)
	}
	if len(segs) != 1 {
		t.Fatalf("expected 1 surviving segment, got %d", len(segs))
	}
	if segs[0].SegmentType != "SRS" || segs[0].EndCharIndex != len(sampleText) {
		t.Fatalf("unexpected surviving segment %+v", segs[0])
	}

	run, err := env.runs.GetByID(ctx, runID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if run.TotalSegments == nil || *run.TotalSegments != 1 {
		t.Fatalf("expected total_segments 1, got %v", run.TotalSegments)
	}
}

func TestExecuteEmptyExtractionMarksSegmentSkipped(t *testing.T) {
	o := &scriptedOracle{responses: happyPassResponses(sampleText,
		oracleResponse{text: "{}"},
		oracleResponse{text: "```json\n[]\n```"},
	)}
	env := setupEngine(t, o)
	docID, runID := seedDocumentAndRun(t, env, sampleText, false)
	ctx := context.Background()

	if err := env.engine.Execute(ctx, runID); err != nil {
		t.Fatalf("execute: %v", err)
	}

	segs, err := env.segs.ListByDocument(ctx, docID)
	if err != nil {
		t.Fatalf("list segments: %v", err)
	}
	for _, seg := range segs {
		if seg.Status != segments.StatusSkipped {
			t.Fatalf("expected segment skipped, got %s", seg.Status)
		}
	}

	results, err := env.results.ListByDocument(ctx, docID)
	if err != nil {
		t.Fatalf("list results: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	for _, res := range results {
		if res.Status != segments.ResultStatusSkipped {
			t.Fatalf("expected result skipped, got %s", res.Status)
		}
		if len(res.StructuredData) != 0 {
			t.Fatalf("expected no structured data on skipped result")
		}
	}
	if _, rerr := env.runs.GetByID(ctx, runID); rerr != nil {
		t.Fatalf("get run: %v", rerr)
	}
}

func TestExecuteReplacesSegmentsFromEarlierRuns(t *testing.T) {
	o := &scriptedOracle{responses: happyPassResponses(sampleText,
		oracleResponse{text: `{"functional_requirements":[]}`},
		oracleResponse{text: `{"endpoints":[{"method":"GET","path":"/reports"}]}`},
	)}
	env := setupEngine(t, o)
	docID, runID := seedDocumentAndRun(t, env, sampleText, false)
	ctx := context.Background()

	stale := segments.Segment{
		ID:             "stale-segment",
		DocumentID:     docID,
		AnalysisRunID:  "run-0",
		SegmentType:    "BRD",
		StartCharIndex: 0,
		EndCharIndex:   10,
		Status:         segments.StatusCompleted,
	}
	if err := env.segs.CreateBatch(ctx, []segments.Segment{stale}); err != nil {
		t.Fatalf("seed stale segment: %v", err)
	}
	if err := env.results.Create(ctx, segments.Result{
		ID:         "stale-result",
		SegmentID:  stale.ID,
		DocumentID: docID,
		Status:     segments.ResultStatusSuccess,
	}); err != nil {
		t.Fatalf("seed stale result: %v", err)
	}

	if err := env.engine.Execute(ctx, runID); err != nil {
		t.Fatalf("execute: %v", err)
	}

	segs, err := env.segs.ListByDocument(ctx, docID)
	if err != nil {
		t.Fatalf("list segments: %v", err)
	}
	for _, seg := range segs {
		if seg.ID == stale.ID {
			t.Fatalf("expected stale segment to be removed")
		}
		if seg.AnalysisRunID != runID {
			t.Fatalf("expected only segments from the new run, got %s", seg.AnalysisRunID)
		}
	}
	results, err := env.results.ListByDocument(ctx, docID)
	if err != nil {
		t.Fatalf("list results: %v", err)
	}
	for _, res := range results {
		if res.ID == "stale-result" {
			t.Fatalf("expected stale result to be removed")
		}
	}
}

func TestExtractPendingProcessesOnlyPendingAndRecounts(t *testing.T) {
	o := &scriptedOracle{responses: []oracleResponse{
		{text: `{"endpoints":[{"method":"GET","path":"/reports"}]}`},
	}}
	env := setupEngine(t, o)
	docID, runID := seedDocumentAndRun(t, env, sampleText, false)
	ctx := context.Background()

	cut := strings.Index(sampleText, "GET /reports")
	done := segments.Segment{
		ID:             "seg-done",
		DocumentID:     docID,
		AnalysisRunID:  runID,
		SegmentType:    "SRS",
		StartCharIndex: 0,
		EndCharIndex:   cut,
		Status:         segments.StatusCompleted,
	}
	pending := segments.Segment{
		ID:             "seg-pending",
		DocumentID:     docID,
		AnalysisRunID:  runID,
		SegmentType:    "API_DOCS",
		StartCharIndex: cut,
		EndCharIndex:   len(sampleText),
		Status:         segments.StatusPending,
		RetryCount:     1,
	}
	if err := env.segs.CreateBatch(ctx, []segments.Segment{done, pending}); err != nil {
		t.Fatalf("seed segments: %v", err)
	}

	if err := env.engine.ExtractPending(ctx, runID); err != nil {
		t.Fatalf("extract pending: %v", err)
	}

	got, err := env.segs.GetByID(ctx, pending.ID)
	if err != nil {
		t.Fatalf("get segment: %v", err)
	}
	if got.Status != segments.StatusCompleted {
		t.Fatalf("expected pending segment completed, got %s", got.Status)
	}
	if o.calls != 1 {
		t.Fatalf("expected 1 oracle call, got %d", o.calls)
	}

	run, err := env.runs.GetByID(ctx, runID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if run.CompletedSegments != 2 || run.FailedSegments != 0 {
		t.Fatalf("expected counters 2/0, got %d/%d", run.CompletedSegments, run.FailedSegments)
	}
}

func TestExecuteLearningModeCompletes(t *testing.T) {
	o := &scriptedOracle{responses: happyPassResponses(sampleText,
		oracleResponse{text: `{"functional_requirements":[{"id":"REQ-1"},{"id":"REQ-2"}]}`},
		oracleResponse{text: `{"endpoints":[{"method":"GET","path":"/reports"}]}`},
	)}
	env := setupEngine(t, o)
	docID, runID := seedDocumentAndRun(t, env, sampleText, true)
	ctx := context.Background()

	if err := env.engine.Execute(ctx, runID); err != nil {
		t.Fatalf("execute in learning mode: %v", err)
	}
	doc, err := env.docs.GetByID(ctx, docID)
	if err != nil {
		t.Fatalf("get document: %v", err)
	}
	if doc.Status != documents.StatusAnalyzed {
		t.Fatalf("expected document analyzed, got %s", doc.Status)
	}
}

func TestTruncatePreviewKeepsRuneBoundaries(t *testing.T) {
	short := strings.Repeat("a", previewLimit)
	if got := truncatePreview(short); got != short {
		t.Fatalf("expected preview at the limit unchanged, got %d bytes", len(got))
	}

	// 3-byte runes put the byte limit mid-sequence; the cut must back up to
	// the previous rune start instead of emitting a broken tail.
	wide := strings.Repeat("世", 100)
	got := truncatePreview(wide)
	if len(got) > previewLimit {
		t.Fatalf("expected at most %d bytes, got %d", previewLimit, len(got))
	}
	if !utf8.ValidString(got) {
		t.Fatalf("expected valid UTF-8 after truncation, got %q", got)
	}
	if want := previewLimit / 3 * 3; len(got) != want {
		t.Fatalf("expected cut at %d bytes, got %d", want, len(got))
	}
}

func TestExecuteFencedResponsesAreRepaired(t *testing.T) {
	cut := strings.Index(sampleText, "GET /reports")
	fencedComposition := "```json\n" + `{"composition":{"SRS":100},"confidence":"LOW","reasoning":"short"}` + "\n```"
	fencedSegmentation := fmt.Sprintf("```json\n"+`{"segments":[{"segment_type":"SRS","start_char_index":0,"end_char_index":%d,"content_preview":"x","confidence":0.5}],"total_segments":1,"segmentation_quality":"LOW"}`+"\n```", cut)
	o := &scriptedOracle{responses: []oracleResponse{
		{text: fencedComposition},
		{text: fencedSegmentation},
		{text: `{"functional_requirements":[{"id":"REQ-9"}]}`},
	}}
	env := setupEngine(t, o)
	docID, runID := seedDocumentAndRun(t, env, sampleText, false)
	ctx := context.Background()

	if err := env.engine.Execute(ctx, runID); err != nil {
		t.Fatalf("execute with fenced responses: %v", err)
	}
	doc, err := env.docs.GetByID(ctx, docID)
	if err != nil {
		t.Fatalf("get document: %v", err)
	}
	if doc.Status != documents.StatusAnalyzed {
		t.Fatalf("expected document analyzed, got %s", doc.Status)
	}
}
