package projectlog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestListLogsHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := NewMemoryRepo()
	w := &Writer{Repo: repo}
	ctx := context.Background()
	w.Infof(ctx, "p1", "f1", "j1", "boq extraction queued")
	w.Warnf(ctx, "p1", "f2", "j2", "drawing extraction waiting")
	w.Errorf(ctx, "p1", "f1", "j1", "boq extraction failed")
	w.Infof(ctx, "p2", "f3", "j3", "other project")

	r := gin.New()
	NewHandler(repo).RegisterRoutes(r.Group("/api/v1"))

	cases := []struct {
		name   string
		query  string
		status int
		count  int
		first  string
	}{
		{name: "whole project", query: "", status: http.StatusOK, count: 3, first: "boq extraction failed"},
		{name: "one file", query: "?fileId=f1", status: http.StatusOK, count: 2, first: "boq extraction failed"},
		{name: "limited", query: "?limit=1", status: http.StatusOK, count: 1, first: "boq extraction failed"},
		{name: "bad limit", query: "?limit=zero", status: http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := httptest.NewRecorder()
			r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/projects/p1/logs"+tc.query, nil))
			if resp.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, resp.Code)
			}
			if tc.status != http.StatusOK {
				return
			}
			var body struct {
				Logs []Entry `json:"logs"`
			}
			if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if len(body.Logs) != tc.count {
				t.Fatalf("expected %d entries, got %d", tc.count, len(body.Logs))
			}
			if body.Logs[0].Message != tc.first {
				t.Fatalf("expected newest first, got %q", body.Logs[0].Message)
			}
		})
	}
}
