package files

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"takeoff-backend/internal/shared/server/respond"
)

const maxUploadBytes = 200 << 20

// Handler wires HTTP handlers to the files service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches file routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/projects/:id/files", h.upload)
	rg.GET("/projects/:id/files", h.list)
	rg.DELETE("/projects/:id/files/:fileId", h.remove)
}

func (h *Handler) upload(c *gin.Context) {
	projectID := c.Param("id")
	kind, err := ParseKind(c.PostForm("kind"))
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)
	fh, err := c.FormFile("file")
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "file is required", nil)
		return
	}
	src, err := fh.Open()
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "unable to read file", nil)
		return
	}
	defer src.Close()

	file, err := h.Svc.Upload(c.Request.Context(), projectID, kind, fh.Filename, src)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to store file", nil)
		return
	}
	respond.JSON(c, http.StatusCreated, file)
}

func (h *Handler) list(c *gin.Context) {
	out, err := h.Svc.List(c.Request.Context(), c.Param("id"))
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list files", nil)
		return
	}
	respond.OK(c, gin.H{"files": out})
}

func (h *Handler) remove(c *gin.Context) {
	err := h.Svc.Delete(c.Request.Context(), c.Param("id"), c.Param("fileId"))
	switch {
	case err == nil:
		c.Status(http.StatusNoContent)
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "file not found", nil)
	case errors.Is(err, ErrFileBusy):
		respond.Error(c, http.StatusConflict, "file_busy", err.Error(), nil)
	default:
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to delete file", nil)
	}
}
