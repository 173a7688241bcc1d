package projectlog

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"takeoff-backend/internal/shared/server/respond"
)

const maxListLimit = 500

// Handler serves the project activity log.
type Handler struct {
	Repo Repo
}

// NewHandler constructs a Handler.
func NewHandler(repo Repo) *Handler {
	return &Handler{Repo: repo}
}

// RegisterRoutes attaches log routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/projects/:id/logs", h.list)
}

func (h *Handler) list(c *gin.Context) {
	limit := DefaultLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respond.Error(c, http.StatusBadRequest, "validation_error", "limit must be a positive integer", nil)
			return
		}
		limit = min(n, maxListLimit)
	}
	out, err := h.Repo.ListRecent(c.Request.Context(), c.Param("id"), c.Query("fileId"), limit)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list logs", nil)
		return
	}
	respond.OK(c, gin.H{"logs": out})
}
