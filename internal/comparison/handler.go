package comparison

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"takeoff-backend/internal/shared/server/respond"
)

// Handler wires HTTP handlers to the comparison engine.
type Handler struct {
	Engine *Engine
}

// NewHandler constructs a Handler.
func NewHandler(e *Engine) *Handler {
	return &Handler{Engine: e}
}

// RegisterRoutes attaches comparison routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/projects/:id/compare", h.compare)
	rg.GET("/projects/:id/compare/latest", h.latest)
	rg.POST("/projects/:id/compare/suggestions", h.suggest)
}

type compareRequest struct {
	Force bool `json:"force"`
}

// CompareResponse is the body of a successful comparison.
type CompareResponse struct {
	RunID   string   `json:"runId"`
	Results []Result `json:"results"`
	Stats   Stats    `json:"stats"`
	Cached  bool     `json:"cached"`
}

func (h *Handler) compare(c *gin.Context) {
	var req compareRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	run, cached, err := h.Engine.Compare(c.Request.Context(), c.Param("id"), req.Force)
	if err != nil {
		writeError(c, err)
		return
	}
	if run.Status == StatusFailed {
		// Partial results stay available; a retry with force bypasses the cache.
		respond.Error(c, http.StatusBadGateway, "comparison_failed", run.Error.Message, gin.H{
			"runId":   run.ID,
			"results": run.Results,
			"stats":   run.Stats,
			"chunk":   run.Error.Chunk,
		})
		return
	}
	respond.OK(c, CompareResponse{RunID: run.ID, Results: run.Results, Stats: run.Stats, Cached: cached})
}

func (h *Handler) latest(c *gin.Context) {
	run, err := h.Engine.Latest(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	respond.OK(c, run)
}

func (h *Handler) suggest(c *gin.Context) {
	out, err := h.Engine.Suggest(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	respond.OK(c, out)
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "no comparison run yet", nil)
	case errors.Is(err, ErrNothingToCompare), errors.Is(err, ErrNoDetail):
		respond.Error(c, http.StatusUnprocessableEntity, "not_comparable", err.Error(), nil)
	default:
		respond.Error(c, http.StatusInternalServerError, "internal_error", "comparison request failed", nil)
	}
}
