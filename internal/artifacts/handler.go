package artifacts

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"docalign-backend/internal/shared/server/middleware"
	"docalign-backend/internal/shared/server/respond"
)

// Handler wires HTTP handlers to the artifacts service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches artifact routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/artifacts", h.register)
	rg.GET("/artifacts", h.list)
	rg.GET("/artifacts/:id", h.get)
	rg.DELETE("/artifacts/:id", h.remove)
	rg.POST("/artifacts/:id/analyze", h.analyze)
}

type registerArtifactRequest struct {
	Name         string `json:"name"`
	ArtifactType string `json:"artifact_type"`
	Location     string `json:"location"`
	Version      string `json:"version"`
}

func (h *Handler) register(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)

	var req registerArtifactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation", "invalid request body", nil)
		return
	}

	artifact, err := h.Svc.Register(c.Request.Context(), userID, req.Name, req.ArtifactType, req.Location, req.Version)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidInput):
			respond.Error(c, http.StatusBadRequest, "validation", err.Error(), nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal", "failed to register artifact", nil)
		}
		return
	}
	respond.JSON(c, http.StatusCreated, artifact)
}

func (h *Handler) list(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)

	limit := 20
	offset := 0
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}
	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			offset = parsed
		}
	}

	artifacts, err := h.Svc.List(c.Request.Context(), userID, limit, offset)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal", "failed to list artifacts", nil)
		return
	}
	if artifacts == nil {
		artifacts = []Artifact{}
	}
	respond.JSON(c, http.StatusOK, artifacts)
}

func (h *Handler) get(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	artifactID := c.Param("id")

	artifact, err := h.Svc.Get(c.Request.Context(), userID, artifactID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "artifact not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal", "failed to fetch artifact", nil)
		}
		return
	}
	respond.JSON(c, http.StatusOK, artifact)
}

func (h *Handler) remove(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	artifactID := c.Param("id")

	if err := h.Svc.Delete(c.Request.Context(), userID, artifactID); err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "artifact not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal", "failed to delete artifact", nil)
		}
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) analyze(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	artifactID := c.Param("id")

	ctx := WithRequestID(c.Request.Context(), c.GetString("requestId"))
	artifact, err := h.Svc.StartAnalysis(ctx, userID, artifactID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "artifact not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal", "failed to start analysis", nil)
		}
		return
	}

	respond.JSON(c, http.StatusAccepted, gin.H{
		"artifact_id": artifact.ID,
		"message":     "analysis scheduled",
	})
}
