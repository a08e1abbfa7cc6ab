package links

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"docalign-backend/internal/artifacts"
	"docalign-backend/internal/shared/server/middleware"
	"docalign-backend/internal/shared/server/respond"
)

// Handler wires HTTP handlers to the links service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches link routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/links", h.create)
	rg.DELETE("/links", h.remove)
	rg.GET("/documents/:id/artifacts", h.artifactsForDocument)
}

type linkPairRequest struct {
	DocumentID string `json:"document_id"`
	ArtifactID string `json:"artifact_id"`
}

func (h *Handler) create(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)

	var req linkPairRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation", "invalid request body", nil)
		return
	}

	link, err := h.Svc.Create(c.Request.Context(), userID, req.DocumentID, req.ArtifactID)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidInput):
			respond.Error(c, http.StatusBadRequest, "validation", err.Error(), nil)
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "document or artifact not found", nil)
		case errors.Is(err, ErrAlreadyLinked):
			respond.Error(c, http.StatusConflict, "conflict", "document and artifact are already linked", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal", "failed to create link", nil)
		}
		return
	}
	respond.JSON(c, http.StatusCreated, link)
}

func (h *Handler) remove(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)

	var req linkPairRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation", "invalid request body", nil)
		return
	}

	if err := h.Svc.Delete(c.Request.Context(), userID, req.DocumentID, req.ArtifactID); err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "link not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal", "failed to delete link", nil)
		}
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) artifactsForDocument(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	documentID := c.Param("id")

	linked, err := h.Svc.ArtifactsForDocument(c.Request.Context(), userID, documentID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "document not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal", "failed to list linked artifacts", nil)
		}
		return
	}
	if linked == nil {
		linked = []artifacts.Artifact{}
	}
	respond.JSON(c, http.StatusOK, linked)
}
