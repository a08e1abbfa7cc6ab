package validation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"docalign-backend/internal/artifacts"
	"docalign-backend/internal/documents"
	"docalign-backend/internal/links"
	"docalign-backend/internal/oracle"
	"docalign-backend/internal/segments"
	"docalign-backend/internal/shared/metrics"
	"docalign-backend/internal/shared/telemetry"
)

const (
	defaultMaxOracleCalls = 5
	severityThreshold     = "Medium"
	maxFindingsPerCheck   = 8
	defaultRating         = "Medium"
)

// Engine cross-validates document analyses against linked code analyses and
// persists the disagreements as mismatches. One Engine is shared process-wide
// so its semaphore bounds oracle calls across every concurrent scan.
type Engine struct {
	Oracle     oracle.Client
	Mismatches Repo
	Links      links.Repo
	Documents  documents.Repo
	Artifacts  artifacts.Repo
	Segments   segments.Repo
	Results    segments.ResultsRepo

	sem *semaphore.Weighted
}

// NewEngine constructs an Engine whose oracle concurrency is capped at
// maxOracleCalls (<= 0 means the default of 5).
func NewEngine(o oracle.Client, mismatches Repo, linkRepo links.Repo, docs documents.Repo, arts artifacts.Repo, segs segments.Repo, results segments.ResultsRepo, maxOracleCalls int) *Engine {
	if maxOracleCalls <= 0 {
		maxOracleCalls = defaultMaxOracleCalls
	}
	return &Engine{
		Oracle:     o,
		Mismatches: mismatches,
		Links:      linkRepo,
		Documents:  docs,
		Artifacts:  arts,
		Segments:   segs,
		Results:    results,
		sem:        semaphore.NewWeighted(int64(maxOracleCalls)),
	}
}

// Scan cross-validates the given documents against every artifact linked to
// them. Pairings run concurrently; one pairing's failure never aborts its
// siblings. The report carries one outcome per pairing.
func (e *Engine) Scan(ctx context.Context, userID string, documentIDs []string) (ScanReport, error) {
	ids := dedupeIDs(documentIDs)
	if len(ids) == 0 {
		return ScanReport{}, fmt.Errorf("%w: document_ids are required", ErrInvalidInput)
	}

	type pairing struct {
		doc        documents.Document
		artifactID string
	}
	var pairings []pairing
	var missing []string
	for _, documentID := range ids {
		doc, err := e.Documents.GetForOwner(ctx, userID, documentID)
		if err != nil {
			if errors.Is(err, documents.ErrNotFound) {
				missing = append(missing, documentID)
				continue
			}
			return ScanReport{}, err
		}
		artifactIDs, err := e.Links.ListArtifactIDsByDocument(ctx, doc.ID)
		if err != nil {
			return ScanReport{}, err
		}
		for _, artifactID := range artifactIDs {
			pairings = append(pairings, pairing{doc: doc, artifactID: artifactID})
		}
	}
	if len(missing) > 0 {
		telemetry.Warn("validation.documents_missing", map[string]any{
			"user_id":      userID,
			"document_ids": missing,
		})
	}

	metrics.IncValidationScan()
	report := ScanReport{Pairings: make([]PairingOutcome, len(pairings))}
	if len(pairings) == 0 {
		return report, nil
	}

	started := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range pairings {
		i, p := i, p
		g.Go(func() error {
			// Pairing failures land in the outcome, never in the group.
			report.Pairings[i] = e.validatePairing(gctx, userID, p.doc, p.artifactID)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}

	success, skipped, failed, findings := report.Counts()
	telemetry.Info("validation.scan_finished", map[string]any{
		"user_id":     userID,
		"pairings":    len(report.Pairings),
		"success":     success,
		"skipped":     skipped,
		"errors":      failed,
		"findings":    findings,
		"duration_ms": time.Since(started).Milliseconds(),
	})
	return report, nil
}

// validatePairing runs the full check set for one document/artifact pair.
func (e *Engine) validatePairing(ctx context.Context, userID string, doc documents.Document, artifactID string) PairingOutcome {
	outcome := PairingOutcome{DocumentID: doc.ID, ArtifactID: artifactID}

	artifact, err := e.Artifacts.GetByID(ctx, artifactID)
	if err != nil {
		outcome.Status = PairingError
		outcome.Error = fmt.Sprintf("load artifact: %v", err)
		return outcome
	}

	// Both sides need a finished structured analysis; anything less is a
	// normal skip, not a failure.
	if artifact.StructuredAnalysis == nil {
		outcome.Status = PairingSkipped
		outcome.Error = "artifact has no structured analysis"
		return outcome
	}
	results, err := e.Results.ListSuccessfulByDocument(ctx, doc.ID)
	if err != nil {
		outcome.Status = PairingError
		outcome.Error = fmt.Sprintf("load results: %v", err)
		return outcome
	}
	if len(results) == 0 {
		outcome.Status = PairingSkipped
		outcome.Error = "document has no successful analysis results"
		return outcome
	}

	documentJSON, err := e.documentAnalysisJSON(ctx, doc.ID, results)
	if err != nil {
		outcome.Status = PairingError
		outcome.Error = fmt.Sprintf("encode document analysis: %v", err)
		return outcome
	}
	codeJSON, err := json.MarshalIndent(artifact.StructuredAnalysis, "", "  ")
	if err != nil {
		outcome.Status = PairingError
		outcome.Error = fmt.Sprintf("encode code analysis: %v", err)
		return outcome
	}

	// Replace-on-rescan: old findings for this exact pair go first.
	if err := e.Mismatches.DeleteByPair(ctx, doc.ID, artifact.ID); err != nil {
		outcome.Status = PairingError
		outcome.Error = fmt.Sprintf("clear previous findings: %v", err)
		return outcome
	}

	var (
		mu       sync.Mutex
		rows     []Mismatch
		checkErr []string
	)
	var wg sync.WaitGroup
	for _, checkType := range scanChecks {
		checkType := checkType
		wg.Add(1)
		go func() {
			defer wg.Done()
			found, err := e.runCheck(ctx, userID, doc, artifact, checkType, documentJSON, string(codeJSON))
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				checkErr = append(checkErr, fmt.Sprintf("%s: %v", checkType, err))
				return
			}
			rows = append(rows, found...)
		}()
	}
	wg.Wait()

	if err := e.Mismatches.CreateBatch(ctx, rows); err != nil {
		outcome.Status = PairingError
		outcome.Error = fmt.Sprintf("store findings: %v", err)
		return outcome
	}
	outcome.Findings = len(rows)
	metrics.AddMismatchesWritten(len(rows))

	if len(checkErr) > 0 {
		outcome.Status = PairingError
		outcome.Error = strings.Join(checkErr, "; ")
	} else {
		outcome.Status = PairingSuccess
	}

	telemetry.Info("validation.pairing_finished", map[string]any{
		"document_id": doc.ID,
		"artifact_id": artifact.ID,
		"status":      outcome.Status,
		"findings":    outcome.Findings,
	})
	return outcome
}

// runCheck issues one oracle call for one validation area and maps the
// response to mismatch rows tagged with that area's type.
func (e *Engine) runCheck(ctx context.Context, userID string, doc documents.Document, artifact artifacts.Artifact, checkType, documentJSON, codeJSON string) ([]Mismatch, error) {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire oracle slot: %w", err)
	}
	defer e.sem.Release(1)

	prompt := buildScanPrompt(checkType, doc.DocumentType, documentJSON, codeJSON, maxFindingsPerCheck, severityThreshold)
	raw, err := e.Oracle.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("oracle: %w", err)
	}

	decoded := oracle.DecodeJSON(raw)
	if decoded.Kind != oracle.OutcomeSuccess {
		return nil, errors.New("check response is not valid JSON")
	}
	findings, err := decodeFindings(decoded.Data)
	if err != nil {
		return nil, err
	}
	if len(findings) > maxFindingsPerCheck {
		findings = findings[:maxFindingsPerCheck]
	}

	now := time.Now().UTC()
	rows := make([]Mismatch, 0, len(findings))
	for _, f := range findings {
		if strings.TrimSpace(f.Description) == "" {
			continue
		}
		rows = append(rows, Mismatch{
			ID:           uuid.NewString(),
			OwnerID:      userID,
			DocumentID:   doc.ID,
			ArtifactID:   artifact.ID,
			MismatchType: checkType,
			Description:  strings.TrimSpace(f.Description),
			Severity:     orDefault(f.Severity, defaultRating),
			Confidence:   orDefault(f.Confidence, defaultRating),
			Details:      f.Details,
			Status:       StatusOpen,
			DetectedAt:   now,
			UpdatedAt:    now,
		})
	}
	return rows, nil
}

// documentAnalysisJSON assembles the document side of a comparison: every
// successful extraction, labeled with its segment type.
func (e *Engine) documentAnalysisJSON(ctx context.Context, documentID string, results []segments.Result) (string, error) {
	segmentTypes := map[string]string{}
	segs, err := e.Segments.ListByDocument(ctx, documentID)
	if err != nil {
		return "", err
	}
	for _, seg := range segs {
		segmentTypes[seg.ID] = seg.SegmentType
	}

	type entry struct {
		SegmentType string          `json:"segment_type,omitempty"`
		Extracted   json.RawMessage `json:"extracted"`
	}
	entries := make([]entry, 0, len(results))
	for _, result := range results {
		if len(result.StructuredData) == 0 {
			continue
		}
		entries = append(entries, entry{
			SegmentType: segmentTypes[result.SegmentID],
			Extracted:   result.StructuredData,
		})
	}
	payload, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return "", err
	}
	return string(payload), nil
}

// decodeFindings parses the oracle's response array. A lone object counts as
// a one-element array.
func decodeFindings(data json.RawMessage) ([]finding, error) {
	var list []finding
	if err := json.Unmarshal(data, &list); err == nil {
		return list, nil
	}
	var single finding
	if err := json.Unmarshal(data, &single); err == nil {
		return []finding{single}, nil
	}
	return nil, errors.New("check response shape is neither array nor object")
}

func dedupeIDs(ids []string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
