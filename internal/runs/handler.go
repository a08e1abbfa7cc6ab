package runs

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"docalign-backend/internal/documents"
	"docalign-backend/internal/shared/server/middleware"
	"docalign-backend/internal/shared/server/respond"
)

// Handler wires HTTP handlers to the runs service. Document lookups gate
// every route on ownership; a foreign run reads as 404.
type Handler struct {
	Svc  *Service
	Docs documents.Repo
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service, docs documents.Repo) *Handler {
	return &Handler{Svc: svc, Docs: docs}
}

// RegisterRoutes attaches run routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/documents/:id/analyze", h.startAnalysis)
	rg.GET("/documents/:id/runs", h.recentRuns)
	rg.GET("/runs/:id", h.runStatus)
	rg.POST("/runs/:id/retry-segments", h.retrySegments)
	rg.DELETE("/runs", h.cleanup)
}

type startAnalysisRequest struct {
	LearningMode bool `json:"learning_mode"`
}

func (h *Handler) startAnalysis(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	documentID := c.Param("id")
	if documentID == "" {
		respond.Error(c, http.StatusBadRequest, "validation", "document id is required", nil)
		return
	}

	// Body is optional; absent means learning_mode=false.
	var req startAnalysisRequest
	if c.Request.Body != nil && c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respond.Error(c, http.StatusBadRequest, "validation", "invalid request body", nil)
			return
		}
	}

	doc, err := h.Docs.GetForOwner(c.Request.Context(), userID, documentID)
	if err != nil {
		switch {
		case errors.Is(err, documents.ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "document not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal", "failed to start analysis", nil)
		}
		return
	}

	ctx := WithRequestID(c.Request.Context(), c.GetString("requestId"))
	run, err := h.Svc.StartAnalysis(ctx, doc.ID, userID, req.LearningMode)
	if err != nil {
		switch {
		case errors.Is(err, ErrRunActive):
			respond.Error(c, http.StatusConflict, "conflict", "document already has an active analysis run", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal", "failed to start analysis", nil)
		}
		return
	}

	respond.JSON(c, http.StatusAccepted, gin.H{
		"run_id": run.ID,
		"status": run.Status,
	})
}

func (h *Handler) runStatus(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	runID := c.Param("id")
	if runID == "" {
		respond.Error(c, http.StatusBadRequest, "validation", "run id is required", nil)
		return
	}

	status, err := h.Svc.Status(c.Request.Context(), runID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "analysis run not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal", "failed to fetch run", nil)
		}
		return
	}

	if _, err := h.Docs.GetForOwner(c.Request.Context(), userID, status.DocumentID); err != nil {
		switch {
		case errors.Is(err, documents.ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "analysis run not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal", "failed to fetch run", nil)
		}
		return
	}

	respond.JSON(c, http.StatusOK, status)
}

func (h *Handler) recentRuns(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	documentID := c.Param("id")
	if documentID == "" {
		respond.Error(c, http.StatusBadRequest, "validation", "document id is required", nil)
		return
	}

	limit := 0
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}

	if _, err := h.Docs.GetForOwner(c.Request.Context(), userID, documentID); err != nil {
		switch {
		case errors.Is(err, documents.ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "document not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal", "failed to list runs", nil)
		}
		return
	}

	statuses, err := h.Svc.Recent(c.Request.Context(), documentID, limit)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal", "failed to list runs", nil)
		return
	}
	respond.JSON(c, http.StatusOK, statuses)
}

func (h *Handler) retrySegments(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	runID := c.Param("id")
	if runID == "" {
		respond.Error(c, http.StatusBadRequest, "validation", "run id is required", nil)
		return
	}

	run, err := h.Svc.Get(c.Request.Context(), runID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "analysis run not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal", "failed to retry segments", nil)
		}
		return
	}
	if _, err := h.Docs.GetForOwner(c.Request.Context(), userID, run.DocumentID); err != nil {
		switch {
		case errors.Is(err, documents.ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "analysis run not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal", "failed to retry segments", nil)
		}
		return
	}

	ctx := WithRequestID(c.Request.Context(), c.GetString("requestId"))
	segmentIDs, err := h.Svc.RetryFailedSegments(ctx, runID)
	if err != nil {
		switch {
		case errors.Is(err, ErrRunNotTerminal):
			respond.Error(c, http.StatusConflict, "conflict", "analysis run is still active", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal", "failed to retry segments", nil)
		}
		return
	}

	respond.JSON(c, http.StatusOK, gin.H{
		"run_id":      runID,
		"segment_ids": segmentIDs,
	})
}

func (h *Handler) cleanup(c *gin.Context) {
	olderThanDays := 0
	if v := c.Query("older_than_days"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			respond.Error(c, http.StatusBadRequest, "validation", "older_than_days must be a non-negative integer", nil)
			return
		}
		olderThanDays = parsed
	}

	deleted, err := h.Svc.CleanupOld(c.Request.Context(), olderThanDays)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal", "failed to clean up runs", nil)
		return
	}
	respond.JSON(c, http.StatusOK, gin.H{"deleted": deleted})
}
