package main

// Manual oracle smoke tool. Runs the full analysis pipeline against a local
// file using in-memory repositories and a live Gemini client:
//
//	GEMINI_API_KEY=... go run ./cmd/prompttest -file spec.pdf
//
// Or print a prompt template for inspection without calling the oracle:
//
//	go run ./cmd/prompttest -print-prompt composition_v1

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"docalign-backend/internal/artifacts"
	"docalign-backend/internal/documents"
	"docalign-backend/internal/extract"
	"docalign-backend/internal/oracle"
	"docalign-backend/internal/oracle/gemini"
	"docalign-backend/internal/pipeline"
	"docalign-backend/internal/runs"
	"docalign-backend/internal/segments"
	"docalign-backend/internal/shared/config"
	"docalign-backend/internal/validation"
)

func main() {
	cfg := config.Load()

	filePath := flag.String("file", "", "Path to document file (pdf, docx, txt, or md)")
	docType := flag.String("type", "", "Declared document type (optional)")
	outPath := flag.String("out", "", "Path to write the JSON report (optional)")
	model := flag.String("model", cfg.GeminiModel, "Gemini model")
	printPrompt := flag.String("print-prompt", "", "Print a prompt template and exit")
	flag.Parse()

	if name := strings.TrimSpace(*printPrompt); name != "" {
		template, ok := lookupTemplate(name)
		if !ok {
			exitErr(fmt.Sprintf("unknown prompt template: %s", name))
		}
		fmt.Println(template)
		return
	}

	if strings.TrimSpace(*filePath) == "" {
		exitErr("file path is required")
	}
	raw, err := os.ReadFile(*filePath)
	if err != nil {
		exitErr(fmt.Sprintf("read file: %v", err))
	}
	fileName := filepath.Base(*filePath)

	ctx := context.Background()
	text, err := extract.ExtractTextFromBytes(ctx, raw, "", fileName)
	if err != nil {
		exitErr(fmt.Sprintf("extract text: %v", err))
	}

	if strings.TrimSpace(cfg.GeminiAPIKey) == "" {
		exitErr("GEMINI_API_KEY is required")
	}
	client, err := gemini.NewClient(gemini.Config{
		APIKey:  cfg.GeminiAPIKey,
		Model:   *model,
		BaseURL: cfg.OracleBaseURL,
		Timeout: time.Duration(cfg.OracleTimeoutS) * time.Second,
	})
	if err != nil {
		exitErr(err.Error())
	}
	oracleClient := oracle.WithRetry(client, oracle.RetryConfig{
		MaxAttempts: cfg.OracleMaxAttempts,
		BaseDelay:   time.Duration(cfg.OracleRetryBaseS) * time.Second,
		MaxDelay:    time.Duration(cfg.OracleRetryMaxS) * time.Second,
	})

	report, err := runPipeline(ctx, oracleClient, fileName, *docType, text)
	if err != nil {
		exitErr(err.Error())
	}

	pretty, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		exitErr(fmt.Sprintf("format json: %v", err))
	}
	if *outPath != "" {
		if err := os.WriteFile(*outPath, pretty, 0o644); err != nil {
			exitErr(fmt.Sprintf("write output: %v", err))
		}
	}
	if _, err := os.Stdout.Write(pretty); err != nil {
		exitErr(fmt.Sprintf("write stdout: %v", err))
	}
	_, _ = os.Stdout.Write([]byte("\n"))
}

// report is the flattened pipeline output printed by the tool.
type report struct {
	Document documents.Document `json:"document"`
	Run      runs.Run           `json:"run"`
	Segments []segments.Segment `json:"segments"`
	Results  []segments.Result  `json:"results"`
}

// runPipeline materializes the document in memory repositories and drives
// the same engine the worker uses.
func runPipeline(ctx context.Context, oracleClient oracle.Client, fileName, docType, text string) (report, error) {
	docRepo := documents.NewMemoryRepo()
	runRepo := runs.NewMemoryRepo()
	segRepo := segments.NewMemoryRepo()
	resultRepo := segments.NewResultsMemoryRepo()

	now := time.Now().UTC()
	doc := documents.Document{
		ID:           uuid.NewString(),
		OwnerID:      "prompttest",
		Filename:     fileName,
		DocumentType: docType,
		RawText:      text,
		SizeBytes:    int64(len(text)),
		Status:       documents.StatusUploaded,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := docRepo.Create(ctx, doc); err != nil {
		return report{}, fmt.Errorf("create document: %w", err)
	}

	run := runs.Run{
		ID:          uuid.NewString(),
		DocumentID:  doc.ID,
		TriggeredBy: "prompttest",
		Status:      runs.StatusPending,
		CreatedAt:   now,
	}
	if err := runRepo.Create(ctx, run); err != nil {
		return report{}, fmt.Errorf("create run: %w", err)
	}

	engine := &pipeline.Engine{
		Docs:     docRepo,
		Segments: segRepo,
		Results:  resultRepo,
		Runs:     runRepo,
		Oracle:   oracleClient,
	}
	if err := engine.Execute(ctx, run.ID); err != nil {
		return report{}, fmt.Errorf("pipeline: %w", err)
	}

	finishedDoc, err := docRepo.GetByID(ctx, doc.ID)
	if err != nil {
		return report{}, err
	}
	finishedRun, err := runRepo.GetByID(ctx, run.ID)
	if err != nil {
		return report{}, err
	}
	segs, err := segRepo.ListByDocument(ctx, doc.ID)
	if err != nil {
		return report{}, err
	}
	results, err := resultRepo.ListByDocument(ctx, doc.ID)
	if err != nil {
		return report{}, err
	}

	return report{Document: finishedDoc, Run: finishedRun, Segments: segs, Results: results}, nil
}

func lookupTemplate(name string) (string, bool) {
	if template, ok := pipeline.PromptTemplate(name); ok {
		return template, true
	}
	if template, ok := artifacts.PromptTemplate(name); ok {
		return template, true
	}
	return validation.PromptTemplate(name)
}

func exitErr(msg string) {
	_, _ = fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}
