package comparison

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"takeoff-backend/internal/files"
	"takeoff-backend/internal/llm"
)

func postCompare(r http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/projects/"+testProject+"/compare", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestCompareHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine, repo, _, _ := newEngine(matchAll)
	r := gin.New()
	NewHandler(engine).RegisterRoutes(r.Group("/api/v1"))

	if resp := postCompare(r, ""); resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 without items, got %d", resp.Code)
	}

	seed(t, repo, "boq", files.KindBOQ, coded("D1", "D2"))
	seed(t, repo, "sched", files.KindSchedule, coded("D1", "D2"))

	first := postCompare(r, "")
	if first.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", first.Code, first.Body.String())
	}
	var body CompareResponse
	if err := json.Unmarshal(first.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Cached || len(body.Results) != 2 || body.Stats.Matched != 2 {
		t.Fatalf("unexpected response %+v", body)
	}

	second := postCompare(r, `{"force": false}`)
	var cached CompareResponse
	_ = json.Unmarshal(second.Body.Bytes(), &cached)
	if !cached.Cached || cached.RunID != body.RunID {
		t.Fatalf("expected cached run %s, got %+v", body.RunID, cached)
	}

	latest := httptest.NewRecorder()
	r.ServeHTTP(latest, httptest.NewRequest(http.MethodGet, "/api/v1/projects/"+testProject+"/compare/latest", nil))
	if latest.Code != http.StatusOK {
		t.Fatalf("expected 200 for latest, got %d", latest.Code)
	}
}

func TestCompareHandlerFailedRunIs502WithPartialResults(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine, repo, _, _ := newEngine(func(req llm.CompareRequest) (llm.Result, error) {
		if req.BOQ[0].ItemCode == "B11" {
			return llm.Result{}, llm.Fatal("llm output does not match schema", nil)
		}
		return matchAll(req)
	})
	seed(t, repo, "boq", files.KindBOQ, coded(sequentialCodes("B", 12)...))
	seed(t, repo, "sched", files.KindSchedule, coded(sequentialCodes("B", 12)...))
	r := gin.New()
	NewHandler(engine).RegisterRoutes(r.Group("/api/v1"))

	resp := postCompare(r, `{"force": true}`)
	if resp.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", resp.Code)
	}
	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
			Details struct {
				Results []Result `json:"results"`
				Stats   Stats    `json:"stats"`
				Chunk   int      `json:"chunk"`
			} `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error.Code != "comparison_failed" || body.Error.Details.Chunk != 2 {
		t.Fatalf("unexpected error body %+v", body.Error)
	}
	if len(body.Error.Details.Results) != 10 || body.Error.Details.Stats.FailedChunks != 1 {
		t.Fatalf("expected partial results of chunk 1, got %d", len(body.Error.Details.Results))
	}
}
