package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestRequireIdempotencyKey(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/start", RequireIdempotencyKey(), func(c *gin.Context) {
		c.JSON(http.StatusAccepted, gin.H{"key": IdempotencyKeyFromContext(c)})
	})

	cases := []struct {
		name   string
		header string
		status int
		code   string
	}{
		{name: "missing", header: "", status: http.StatusBadRequest, code: "missing_idempotency_key"},
		{name: "not a uuid", header: "retry-please", status: http.StatusBadRequest, code: "invalid_idempotency_key"},
		{name: "valid", header: "1b4e28ba-2fa1-11d2-883f-0016d3cca427", status: http.StatusAccepted},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/start", nil)
			if tc.header != "" {
				req.Header.Set(IdempotencyHeader, tc.header)
			}
			resp := httptest.NewRecorder()
			router.ServeHTTP(resp, req)
			if resp.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, resp.Code)
			}
			var body map[string]any
			if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if tc.code != "" {
				errBody, _ := body["error"].(map[string]any)
				if errBody["code"] != tc.code {
					t.Fatalf("expected code %s, got %v", tc.code, body)
				}
				return
			}
			if body["key"] != tc.header {
				t.Fatalf("expected key echoed, got %v", body["key"])
			}
		})
	}
}
