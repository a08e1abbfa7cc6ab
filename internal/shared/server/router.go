package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"docalign-backend/internal/artifacts"
	"docalign-backend/internal/documents"
	"docalign-backend/internal/links"
	"docalign-backend/internal/runs"
	"docalign-backend/internal/segments"
	"docalign-backend/internal/shared/config"
	"docalign-backend/internal/shared/metrics"
	"docalign-backend/internal/shared/server/middleware"
	"docalign-backend/internal/shared/server/respond"
	"docalign-backend/internal/users"
	"docalign-backend/internal/validation"
)

// RouterDeps carries the handlers the router mounts. Handlers left nil are
// skipped, which keeps partial wiring usable in tests.
type RouterDeps struct {
	Config            config.Config
	UsersHandler      *users.Handler
	DocumentsHandler  *documents.Handler
	RunsHandler       *runs.Handler
	SegmentsHandler   *segments.Handler
	ArtifactsHandler  *artifacts.Handler
	LinksHandler      *links.Handler
	ValidationHandler *validation.Handler
}

// NewRouter constructs the Gin engine with middleware and routes registered.
// Everything under /api/v1 except the auth endpoints requires a bearer token;
// /healthz and /metrics stay open for probes and scrapers.
func NewRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.CORSAllowOrigin),
	)

	r.GET("/healthz", func(c *gin.Context) {
		respond.JSON(c, http.StatusOK, gin.H{"ok": true})
	})
	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")
	if deps.UsersHandler != nil {
		deps.UsersHandler.RegisterPublicRoutes(api)
	}

	authed := api.Group("")
	authed.Use(middleware.Auth(), rateLimit())
	if deps.UsersHandler != nil {
		deps.UsersHandler.RegisterRoutes(authed)
	}
	if deps.DocumentsHandler != nil {
		deps.DocumentsHandler.RegisterRoutes(authed)
	}
	if deps.RunsHandler != nil {
		deps.RunsHandler.RegisterRoutes(authed)
	}
	if deps.SegmentsHandler != nil {
		deps.SegmentsHandler.RegisterRoutes(authed)
	}
	if deps.ArtifactsHandler != nil {
		deps.ArtifactsHandler.RegisterRoutes(authed)
	}
	if deps.LinksHandler != nil {
		deps.LinksHandler.RegisterRoutes(authed)
	}
	if deps.ValidationHandler != nil {
		deps.ValidationHandler.RegisterRoutes(authed)
	}

	return r
}

// rateLimit allows status polling a higher budget than mutating calls so a
// dashboard refreshing run progress does not starve uploads.
func rateLimit() gin.HandlerFunc {
	return middleware.RateLimit(middleware.RateLimitConfig{
		DefaultGroup: "DEFAULT",
		GroupFor: func(c *gin.Context) string {
			if c.Request.Method == http.MethodGet {
				switch c.FullPath() {
				case "/api/v1/runs/:id", "/api/v1/documents/:id/status":
					return "POLLING"
				}
			}
			return "DEFAULT"
		},
		Rules: map[string]middleware.RateLimitRule{
			"DEFAULT": {Rate: 5, Burst: 20},
			"POLLING": {Rate: 20, Burst: 60},
		},
	})
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
