package progress

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"takeoff-backend/internal/shared/telemetry"
)

// DefaultHeartbeat keeps idle connections open through proxies.
const DefaultHeartbeat = 25 * time.Second

// Handler serves the project event stream.
type Handler struct {
	Publisher *Publisher
	Heartbeat time.Duration
}

// NewHandler constructs a Handler.
func NewHandler(p *Publisher) *Handler {
	return &Handler{Publisher: p, Heartbeat: DefaultHeartbeat}
}

// RegisterRoutes attaches the stream route to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/projects/:id/stream", h.stream)
}

func (h *Handler) stream(c *gin.Context) {
	projectID := c.Param("id")
	ctx := c.Request.Context()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	// Subscribe before the first snapshot so no change between the two is lost.
	sub := h.Publisher.Broker.Subscribe(projectID)
	defer h.Publisher.Broker.Unsubscribe(sub)

	snap, err := h.Publisher.Snapshot(ctx, projectID)
	if err != nil {
		telemetry.Error("progress.snapshot_failed", map[string]any{"project_id": projectID, "error": err.Error()})
		c.SSEvent(EventError, gin.H{"message": "failed to load project state"})
	} else {
		c.SSEvent(EventUpdate, snap)
	}
	c.Writer.Flush()

	heartbeat := h.Heartbeat
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			c.SSEvent(ev.Name, ev.Data)
			c.Writer.Flush()
		case <-ticker.C:
			if _, err := c.Writer.WriteString(": heartbeat\n\n"); err != nil {
				return
			}
			c.Writer.Flush()
		}
	}
}
