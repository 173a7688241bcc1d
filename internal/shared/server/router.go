package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"takeoff-backend/internal/comparison"
	"takeoff-backend/internal/extraction"
	"takeoff-backend/internal/files"
	"takeoff-backend/internal/progress"
	"takeoff-backend/internal/projectlog"
	"takeoff-backend/internal/services/health"
	"takeoff-backend/internal/shared/config"
	"takeoff-backend/internal/shared/metrics"
	"takeoff-backend/internal/shared/server/middleware"
	"takeoff-backend/internal/shared/server/respond"
)

// Rate limit groups.
const (
	GroupCompare = "COMPARE"
	GroupSubmit  = "SUBMIT"
)

// RouterDeps holds handlers for router registration.
type RouterDeps struct {
	Config            config.Config
	Health            *health.Service
	FilesHandler      *files.Handler
	ExtractionHandler *extraction.Handler
	LogsHandler       *projectlog.Handler
	CompareHandler    *comparison.Handler
	ProgressHandler   *progress.Handler
	RateLimiter       *middleware.RateLimiter
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.CORSAllowOrigin),
		middleware.RateLimit(middleware.RateLimitConfig{
			Rules: map[string]middleware.RateLimitRule{
				// Each comparison fans out into several model calls.
				GroupCompare: {Rate: 0.2, Burst: 3},
				GroupSubmit:  {Rate: 2, Burst: 10},
			},
			GroupFor: routeGroup,
			Limiter:  deps.RateLimiter,
		}),
	)

	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")
	api.GET("/health", func(c *gin.Context) {
		if deps.Health == nil {
			respond.JSON(c, http.StatusOK, gin.H{"ok": true})
			return
		}
		report := deps.Health.Status(c.Request.Context())
		status := http.StatusOK
		if !report.OK {
			status = http.StatusServiceUnavailable
		}
		respond.JSON(c, status, report)
	})

	if deps.FilesHandler != nil {
		deps.FilesHandler.RegisterRoutes(api)
	}
	if deps.ExtractionHandler != nil {
		deps.ExtractionHandler.RegisterRoutes(api)
	}
	if deps.LogsHandler != nil {
		deps.LogsHandler.RegisterRoutes(api)
	}
	if deps.CompareHandler != nil {
		deps.CompareHandler.RegisterRoutes(api)
	}
	if deps.ProgressHandler != nil {
		deps.ProgressHandler.RegisterRoutes(api)
	}

	return r
}

// routeGroup picks the rate limit group from the matched route.
func routeGroup(c *gin.Context) string {
	path := c.FullPath()
	switch {
	case c.Request.Method != http.MethodPost:
		return ""
	case strings.HasSuffix(path, "/compare"), strings.HasSuffix(path, "/compare/suggestions"):
		return GroupCompare
	case strings.HasSuffix(path, "/extractions/start"), strings.HasSuffix(path, "/retry"):
		return GroupSubmit
	default:
		return ""
	}
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
