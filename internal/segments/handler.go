package segments

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"docalign-backend/internal/documents"
	"docalign-backend/internal/shared/server/middleware"
	"docalign-backend/internal/shared/server/respond"
)

// Handler serves the extraction results read surface. Document lookups gate
// the route on ownership; a foreign document reads as 404.
type Handler struct {
	Segments Repo
	Results  ResultsRepo
	Docs     documents.Repo
}

// NewHandler constructs a Handler.
func NewHandler(segs Repo, results ResultsRepo, docs documents.Repo) *Handler {
	return &Handler{Segments: segs, Results: results, Docs: docs}
}

// RegisterRoutes attaches segment result routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/documents/:id/results", h.listResults)
}

// resultView is one successful extraction result labeled with the type of the
// segment it came from.
type resultView struct {
	Result
	SegmentType string `json:"segment_type,omitempty"`
}

func (h *Handler) listResults(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	documentID := c.Param("id")
	if documentID == "" {
		respond.Error(c, http.StatusBadRequest, "validation", "document id is required", nil)
		return
	}

	if _, err := h.Docs.GetForOwner(c.Request.Context(), userID, documentID); err != nil {
		switch {
		case errors.Is(err, documents.ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "document not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal", "failed to list results", nil)
		}
		return
	}

	results, err := h.Results.ListSuccessfulByDocument(c.Request.Context(), documentID)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal", "failed to list results", nil)
		return
	}

	typesBySegment, err := h.segmentTypes(c, documentID)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal", "failed to list results", nil)
		return
	}

	views := make([]resultView, 0, len(results))
	for _, result := range results {
		views = append(views, resultView{
			Result:      result,
			SegmentType: typesBySegment[result.SegmentID],
		})
	}
	respond.JSON(c, http.StatusOK, views)
}

func (h *Handler) segmentTypes(c *gin.Context, documentID string) (map[string]string, error) {
	segs, err := h.Segments.ListByDocument(c.Request.Context(), documentID)
	if err != nil {
		return nil, err
	}
	types := make(map[string]string, len(segs))
	for _, seg := range segs {
		types[seg.ID] = seg.SegmentType
	}
	return types, nil
}
