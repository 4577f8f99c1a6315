package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/andresuchdata/vendcast/internal/pipeline"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubAdvice struct {
	location string
	limit    int
	err      error
}

func (s *stubAdvice) ProductAdvice(_ context.Context, location string) ([]map[string]any, error) {
	s.location = location
	return []map[string]any{{"Location": location, "ProductId": 1, "refill_date": "2024-05-13"}}, s.err
}

func (s *stubAdvice) LocationAdvice(context.Context) ([]map[string]any, error) {
	return []map[string]any{{"Location": "L1"}, {"Location": "L2"}}, s.err
}

func (s *stubAdvice) RecentRuns(_ context.Context, limit int) ([]pipeline.ForecastRun, error) {
	s.limit = limit
	return []pipeline.ForecastRun{{ID: "run-1", Status: pipeline.StatusCompleted}}, s.err
}

func get(t *testing.T, router http.Handler, target string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))

	var body map[string]any
	if w.Body.Len() > 0 && w.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	}
	return w, body
}

func TestHealth(t *testing.T) {
	router := NewRouter(nil, nil)
	w, body := get(t, router, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["status"])
}

func TestProductAdviceRoute(t *testing.T) {
	stub := &stubAdvice{}
	router := NewRouter(&Services{AdviceService: stub}, []string{"*"})

	w, body := get(t, router, "/api/v1/refill-advice/products?location=L1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "L1", stub.location)
	assert.Equal(t, float64(1), body["count"])
	data := body["data"].([]any)
	assert.Equal(t, "2024-05-13", data[0].(map[string]any)["refill_date"])
}

func TestLocationAdviceRoute(t *testing.T) {
	router := NewRouter(&Services{AdviceService: &stubAdvice{}}, nil)

	w, body := get(t, router, "/api/v1/refill-advice/locations")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), body["count"])
}

func TestRunsRoute(t *testing.T) {
	stub := &stubAdvice{}
	router := NewRouter(&Services{AdviceService: stub}, nil)

	w, body := get(t, router, "/api/v1/runs?limit=5")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 5, stub.limit)
	run := body["data"].([]any)[0].(map[string]any)
	assert.Equal(t, "run-1", run["id"])
	assert.Equal(t, "completed", run["status"])

	w, _ = get(t, router, "/api/v1/runs?limit=abc")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdviceRouteFailure(t *testing.T) {
	router := NewRouter(&Services{AdviceService: &stubAdvice{err: errors.New("db down")}}, nil)

	w, body := get(t, router, "/api/v1/refill-advice/locations")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "failed to read location advice", body["error"])
}

func TestMetricsRoute(t *testing.T) {
	router := NewRouter(nil, nil)
	get(t, router, "/health")

	w, _ := get(t, router, "/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "http_requests_total")
}

func TestNormalizeAllowedOrigins(t *testing.T) {
	origins, all := normalizeAllowedOrigins([]string{"https://a.example, https://b.example", ""})
	assert.False(t, all)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, origins)

	_, all = normalizeAllowedOrigins([]string{"*"})
	assert.True(t, all)
}
