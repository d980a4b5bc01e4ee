package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shiftplanner/shiftplanner/internal/observability"
	"github.com/shiftplanner/shiftplanner/internal/platform/httpx"
	"github.com/shiftplanner/shiftplanner/jobs"
)

func serve(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = "10.0.0.1:1234"
	h.ServeHTTP(rr, req)
	return rr
}

func TestRouterHealthAndMetrics(t *testing.T) {
	metrics := observability.NewMetrics()
	router := NewRouter(RouterParams{Config: &Config{AppEnv: "development"}, Metrics: metrics, JobHandler: jobs.NewHandler(nil, nil)})

	rr := serve(t, router, "/healthz")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))

	rr = serve(t, router, "/jobs/health")
	require.Equal(t, http.StatusOK, rr.Code)

	rr = serve(t, router, "/metrics")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.Contains(rr.Body.String(), "shiftplanner_http_requests_total"))
}

func TestRouterReadiness(t *testing.T) {
	healthy := NewRouter(RouterParams{Readiness: []ReadinessCheck{
		{Name: "postgres", Check: func(context.Context) error { return nil }},
	}})
	rr := serve(t, healthy, "/readyz")
	require.Equal(t, http.StatusOK, rr.Code)

	failing := NewRouter(RouterParams{Readiness: []ReadinessCheck{
		{Name: "postgres", Check: func(context.Context) error { return nil }},
		{Name: "redis", Check: func(context.Context) error { return errors.New("connection refused") }},
	}})
	rr = serve(t, failing, "/readyz")
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
	var problem httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &problem))
	assert.Equal(t, "redis unavailable", problem.Detail)
}

func TestRouterRateLimitsPerClient(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	var h http.Handler = handler
	stack := MiddlewareStack(MiddlewareConfig{RequestsPerMinute: 2})
	for i := len(stack) - 1; i >= 0; i-- {
		h = stack[i](h)
	}

	assert.Equal(t, http.StatusNoContent, serve(t, h, "/").Code)
	assert.Equal(t, http.StatusNoContent, serve(t, h, "/").Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(t, h, "/").Code)
}
