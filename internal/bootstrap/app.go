// Package bootstrap assembles the application graph: storage, oracle,
// repositories, services, handlers, and the router. Binaries call Build and
// pick the pieces they serve.
package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"docalign-backend/internal/artifacts"
	"docalign-backend/internal/documents"
	"docalign-backend/internal/links"
	"docalign-backend/internal/oracle"
	"docalign-backend/internal/oracle/gemini"
	"docalign-backend/internal/pipeline"
	"docalign-backend/internal/queue"
	"docalign-backend/internal/runs"
	"docalign-backend/internal/segments"
	"docalign-backend/internal/shared/config"
	"docalign-backend/internal/shared/server"
	"docalign-backend/internal/shared/storage/db"
	"docalign-backend/internal/shared/storage/object"
	localstore "docalign-backend/internal/shared/storage/object/local"
	s3store "docalign-backend/internal/shared/storage/object/s3"
	"docalign-backend/internal/users"
	"docalign-backend/internal/validation"
)

// App holds shared dependencies for the API server and the worker.
type App struct {
	Config config.Config
	Router *gin.Engine
	DB     *sql.DB
	Store  object.ObjectStore
	Queue  queue.Client
	Oracle oracle.Client

	DocumentsRepo  documents.Repo
	RunsRepo       runs.Repo
	SegmentsRepo   segments.Repo
	ResultsRepo    segments.ResultsRepo
	ArtifactsRepo  artifacts.Repo
	LinksRepo      links.Repo
	MismatchesRepo validation.Repo
	UsersRepo      users.Repo

	DocumentsService *documents.Service
	RunsService      *runs.Service
	ArtifactsService *artifacts.Service
	LinksService     *links.Service
	UsersService     *users.Service
	Pipeline         *pipeline.Engine
	Validation       *validation.Engine

	// Processor overrides allow worker tests to substitute job handling;
	// nil falls back to the real services.
	RunProcessor      RunProcessor
	ArtifactProcessor ArtifactProcessor

	UsersHandler      *users.Handler
	DocumentsHandler  *documents.Handler
	RunsHandler       *runs.Handler
	SegmentsHandler   *segments.Handler
	ArtifactsHandler  *artifacts.Handler
	LinksHandler      *links.Handler
	ValidationHandler *validation.Handler
}

// RunProcessor executes one analysis run to a terminal state.
type RunProcessor interface {
	ProcessRun(ctx context.Context, runID string) error
}

// ArtifactProcessor executes one artifact analysis to a terminal state.
type ArtifactProcessor interface {
	ProcessArtifact(ctx context.Context, artifactID string) error
}

// Build prepares shared dependencies and wires the router.
func Build(cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if strings.TrimSpace(cfg.ObjectStoreType) == "" {
		cfg.ObjectStoreType = "local"
	}
	ctx := context.Background()

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	queueClient, err := buildQueue(ctx, cfg)
	if err != nil {
		return nil, err
	}

	oracleClient, err := buildOracle(cfg)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config: cfg,
		DB:     sqlDB,
		Store:  store,
		Queue:  queueClient,
		Oracle: oracleClient,
	}
	buildServices(app)

	app.Router = server.NewRouter(server.RouterDeps{
		Config:            app.Config,
		UsersHandler:      app.UsersHandler,
		DocumentsHandler:  app.DocumentsHandler,
		RunsHandler:       app.RunsHandler,
		SegmentsHandler:   app.SegmentsHandler,
		ArtifactsHandler:  app.ArtifactsHandler,
		LinksHandler:      app.LinksHandler,
		ValidationHandler: app.ValidationHandler,
	})

	return app, nil
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: DATABASE_URL empty; using in-memory repositories")
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	opts := db.OptionsFromEnv(db.DefaultServerOptions())
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, opts)
	if err != nil {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: database connect failed; using in-memory repositories: %v", err)
			return nil, nil
		}
		return nil, err
	}
	return sqlDB, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		if strings.TrimSpace(cfg.S3Bucket) == "" {
			return nil, fmt.Errorf("OBJECT_STORE=s3 requires S3_BUCKET")
		}
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.S3KMSKeyID)
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

func buildQueue(ctx context.Context, cfg config.Config) (queue.Client, error) {
	if strings.TrimSpace(cfg.QueueURL) == "" {
		return nil, nil
	}
	return queue.NewSQSClient(ctx, cfg.AWSRegion, cfg.QueueURL)
}

// buildOracle wires the Gemini client behind the retrying decorator. A dev
// environment without an API key still boots; oracle-backed operations fail
// with a clear error until the key is set.
func buildOracle(cfg config.Config) (oracle.Client, error) {
	if strings.TrimSpace(cfg.GeminiAPIKey) == "" {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: GEMINI_API_KEY empty; oracle calls will fail until configured")
			return oracle.GenerateFunc(func(ctx context.Context, prompt string) (string, error) {
				return "", errors.New("oracle not configured: GEMINI_API_KEY is empty")
			}), nil
		}
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}

	client, err := gemini.NewClient(gemini.Config{
		APIKey:  cfg.GeminiAPIKey,
		Model:   cfg.GeminiModel,
		BaseURL: cfg.OracleBaseURL,
		Timeout: time.Duration(cfg.OracleTimeoutS) * time.Second,
	})
	if err != nil {
		return nil, err
	}

	return oracle.WithRetry(client, oracle.RetryConfig{
		MaxAttempts: cfg.OracleMaxAttempts,
		BaseDelay:   time.Duration(cfg.OracleRetryBaseS) * time.Second,
		MaxDelay:    time.Duration(cfg.OracleRetryMaxS) * time.Second,
	}), nil
}

func buildServices(app *App) {
	if app.DB != nil {
		app.DocumentsRepo = &documents.PGRepo{DB: app.DB}
		app.RunsRepo = &runs.PGRepo{DB: app.DB}
		app.SegmentsRepo = &segments.PGRepo{DB: app.DB}
		app.ResultsRepo = &segments.ResultsPGRepo{DB: app.DB}
		app.ArtifactsRepo = &artifacts.PGRepo{DB: app.DB}
		app.LinksRepo = &links.PGRepo{DB: app.DB}
		app.MismatchesRepo = &validation.PGRepo{DB: app.DB}
		app.UsersRepo = &users.PGRepo{DB: app.DB}
	} else {
		app.DocumentsRepo = documents.NewMemoryRepo()
		app.RunsRepo = runs.NewMemoryRepo()
		app.SegmentsRepo = segments.NewMemoryRepo()
		app.ResultsRepo = segments.NewResultsMemoryRepo()
		app.ArtifactsRepo = artifacts.NewMemoryRepo()
		app.LinksRepo = links.NewMemoryRepo()
		app.MismatchesRepo = validation.NewMemoryRepo()
		app.UsersRepo = users.NewMemoryRepo()
	}

	var dispatcher *queue.Dispatcher
	if app.Queue != nil {
		dispatcher = queue.NewDispatcher(app.Queue)
	}

	docSvc := &documents.Service{
		Store:           app.Store,
		Repo:            app.DocumentsRepo,
		MaxRawTextBytes: app.Config.MaxExtractedTextSize,
	}
	if app.DB == nil {
		// Memory repos have no foreign keys; the service fans the delete out.
		docSvc.Cascades = []documents.Cascader{
			app.SegmentsRepo, app.ResultsRepo, app.RunsRepo, app.LinksRepo, app.MismatchesRepo,
		}
	}

	app.Pipeline = &pipeline.Engine{
		Docs:     app.DocumentsRepo,
		Segments: app.SegmentsRepo,
		Results:  app.ResultsRepo,
		Runs:     app.RunsRepo,
		Oracle:   app.Oracle,
	}

	runsSvc := &runs.Service{
		Repo:              app.RunsRepo,
		Segments:          app.SegmentsRepo,
		Pipeline:          app.Pipeline,
		MaxSegmentRetries: app.Config.SegmentMaxRetries,
		RetentionDays:     app.Config.RunRetentionDays,
	}
	if dispatcher != nil {
		runsSvc.Queue = dispatcher
	}

	artifactsSvc := &artifacts.Service{
		Repo:         app.ArtifactsRepo,
		Oracle:       app.Oracle,
		FetchToken:   app.Config.ArtifactFetchToken,
		FetchTimeout: time.Duration(app.Config.ArtifactFetchTimeoutS) * time.Second,
	}
	if dispatcher != nil {
		artifactsSvc.Queue = dispatcher
	}
	if app.DB == nil {
		artifactsSvc.Cascades = []artifacts.Cascader{app.LinksRepo, app.MismatchesRepo}
	}

	linksSvc := &links.Service{
		Repo:      app.LinksRepo,
		Documents: app.DocumentsRepo,
		Artifacts: app.ArtifactsRepo,
	}

	app.Validation = validation.NewEngine(
		app.Oracle,
		app.MismatchesRepo,
		app.LinksRepo,
		app.DocumentsRepo,
		app.ArtifactsRepo,
		app.SegmentsRepo,
		app.ResultsRepo,
		app.Config.ValidationMaxOracle,
	)

	app.DocumentsService = docSvc
	app.RunsService = runsSvc
	app.ArtifactsService = artifactsSvc
	app.LinksService = linksSvc
	app.UsersService = users.NewService(app.UsersRepo)

	app.UsersHandler = users.NewHandler(app.UsersService)
	app.DocumentsHandler = documents.NewHandler(app.DocumentsService)
	app.RunsHandler = runs.NewHandler(app.RunsService, app.DocumentsRepo)
	app.SegmentsHandler = segments.NewHandler(app.SegmentsRepo, app.ResultsRepo, app.DocumentsRepo)
	app.ArtifactsHandler = artifacts.NewHandler(app.ArtifactsService)
	app.LinksHandler = links.NewHandler(app.LinksService)
	app.ValidationHandler = validation.NewHandler(app.Validation)
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}
