package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"takeoff-backend/internal/shared/server/respond"
)

const (
	// IdempotencyHeader carries the client-chosen key of a mutating request.
	IdempotencyHeader = "Idempotency-Key"
	idempotencyKey    = "idempotencyKey"
)

// RequireIdempotencyKey rejects requests without a UUID Idempotency-Key header.
// The canonical lower-case form is stored for IdempotencyKeyFromContext.
func RequireIdempotencyKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(IdempotencyHeader))
		if raw == "" {
			respond.Error(c, http.StatusBadRequest, "missing_idempotency_key", "Idempotency-Key header is required", nil)
			return
		}
		key, err := uuid.Parse(raw)
		if err != nil {
			respond.Error(c, http.StatusBadRequest, "invalid_idempotency_key", "Idempotency-Key must be a UUID", nil)
			return
		}
		c.Set(idempotencyKey, key.String())
		c.Next()
	}
}

// IdempotencyKeyFromContext returns the key stored by RequireIdempotencyKey.
func IdempotencyKeyFromContext(c *gin.Context) string {
	if c == nil {
		return ""
	}
	return c.GetString(idempotencyKey)
}
