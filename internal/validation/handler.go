package validation

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"docalign-backend/internal/shared/server/middleware"
	"docalign-backend/internal/shared/server/respond"
	"docalign-backend/internal/shared/telemetry"
)

// Handler wires HTTP handlers to the validation engine.
type Handler struct {
	Engine *Engine
}

// NewHandler constructs a Handler.
func NewHandler(engine *Engine) *Handler {
	return &Handler{Engine: engine}
}

// RegisterRoutes attaches validation routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/validation/scan", h.scan)
	rg.GET("/mismatches", h.listMismatches)
	rg.PATCH("/mismatches/:id", h.updateMismatch)
}

type scanRequest struct {
	DocumentIDs []string `json:"document_ids"`
}

// scan replies 202 and runs the scan in the background; findings land in the
// mismatch listing.
func (h *Handler) scan(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)

	var req scanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation", "invalid request body", nil)
		return
	}
	if len(req.DocumentIDs) == 0 {
		respond.Error(c, http.StatusBadRequest, "validation", "document_ids are required", nil)
		return
	}

	ctx := WithRequestID(context.Background(), c.GetString("requestId"))
	go func() {
		if _, err := h.Engine.Scan(ctx, userID, req.DocumentIDs); err != nil {
			telemetry.Error("validation.scan_failed", map[string]any{
				"user_id":    userID,
				"request_id": requestIDFromContext(ctx),
				"error":      err.Error(),
			})
		}
	}()

	respond.JSON(c, http.StatusAccepted, gin.H{
		"message":        "validation scan scheduled",
		"document_count": len(req.DocumentIDs),
	})
}

func (h *Handler) listMismatches(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	documentID := c.Query("document_id")

	limit := 50
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

	mismatches, err := h.Engine.ListMismatches(c.Request.Context(), userID, documentID, limit, offset)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "document not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal", "failed to list mismatches", nil)
		}
		return
	}
	if mismatches == nil {
		mismatches = []Mismatch{}
	}
	respond.JSON(c, http.StatusOK, mismatches)
}

type mismatchFeedbackRequest struct {
	Status    *string `json:"status"`
	UserNotes *string `json:"user_notes"`
}

func (h *Handler) updateMismatch(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	mismatchID := c.Param("id")

	var req mismatchFeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation", "invalid request body", nil)
		return
	}

	updated, err := h.Engine.UpdateMismatch(c.Request.Context(), userID, mismatchID, req.Status, req.UserNotes)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidInput):
			respond.Error(c, http.StatusBadRequest, "validation", err.Error(), nil)
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "mismatch not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal", "failed to update mismatch", nil)
		}
		return
	}
	respond.JSON(c, http.StatusOK, updated)
}
