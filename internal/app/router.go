package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/shiftplanner/shiftplanner/internal/observability"
	"github.com/shiftplanner/shiftplanner/internal/platform/httpx"
	"github.com/shiftplanner/shiftplanner/jobs"
)

// ReadinessCheck pings one backing service.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// RouterParams groups dependencies for building the ops router.
type RouterParams struct {
	Logger     *slog.Logger
	Config     *Config
	Metrics    *observability.Metrics
	JobHandler *jobs.Handler
	Readiness  []ReadinessCheck
}

// NewRouter constructs the worker's ops router.
func NewRouter(params RouterParams) http.Handler {
	logger := params.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := chi.NewRouter()
	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		checks := make(map[string]string, len(params.Readiness))
		for _, rc := range params.Readiness {
			if err := rc.Check(ctx); err != nil {
				logger.Warn("readiness check failed", slog.String("check", rc.Name), slog.Any("error", err))
				httpx.Problem(w, http.StatusServiceUnavailable, "Not Ready", rc.Name+" unavailable")
				return
			}
			checks[rc.Name] = "ok"
		}
		httpx.JSON(w, http.StatusOK, map[string]any{"status": "ready", "checks": checks})
	})

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	return r
}
