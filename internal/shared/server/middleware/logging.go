package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"takeoff-backend/internal/shared/telemetry"
)

// Context keys handlers set so the request log line can carry them.
const (
	ProjectIDKey = "projectId"
	JobIDKey     = "jobId"
)

// Logging emits a structured log per request.
func Logging() gin.HandlerFunc {
	return func(c *gin.Context) {
		if strings.EqualFold(c.Request.Method, "OPTIONS") {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		latency := time.Since(start)
		status := c.Writer.Status()
		reqID := RequestIDFromContext(c)

		projectID := c.GetString(ProjectIDKey)
		if projectID == "" {
			projectID = c.Param("id")
		}

		telemetry.Info("request.complete", map[string]any{
			"request_id":      reqID,
			"method":          c.Request.Method,
			"path":            c.Request.URL.Path,
			"route":           c.FullPath(),
			"status":          status,
			"duration_ms":     float64(latency.Microseconds()) / 1000.0,
			"project_id":      projectID,
			"job_id":          c.GetString(JobIDKey),
			"idempotency_key": IdempotencyKeyFromContext(c),
			"client_ip":       c.ClientIP(),
			"user_agent":      c.Request.UserAgent(),
		})
	}
}
