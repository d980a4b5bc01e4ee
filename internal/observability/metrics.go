package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the planner and its ops endpoints.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	generations        *prometheus.CounterVec
	generationDuration *prometheus.HistogramVec
	assignments        prometheus.Counter
	unfilledSlots      prometheus.Counter
	optimizerSwaps     prometheus.Counter
	transitions        *prometheus.CounterVec
}

// NewMetrics initialises the registry with HTTP and generation collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shiftplanner_http_requests_total",
		Help: "HTTP requests served by route and status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "shiftplanner_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	generations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shiftplanner_generations_total",
		Help: "Month generations partitioned by strategy and result.",
	}, []string{"strategy", "result"})
	generationDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "shiftplanner_generation_duration_seconds",
		Help:    "Wall time of a month generation including persistence.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"strategy"})
	assignments := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "shiftplanner_assignments_generated_total",
		Help: "Assignments persisted by month generation.",
	})
	unfilled := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "shiftplanner_unfilled_slots_total",
		Help: "Shift positions left empty because the candidate pool ran out.",
	})
	swaps := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "shiftplanner_optimizer_swaps_total",
		Help: "Position swaps applied by the preference optimizer.",
	})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shiftplanner_schedule_transitions_total",
		Help: "Schedule status transitions by target status.",
	}, []string{"status"})
	registry.MustRegister(requests, duration, generations, generationDuration, assignments, unfilled, swaps, transitions)
	return &Metrics{
		registry:           registry,
		handler:            promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:      requests,
		requestDuration:    duration,
		generations:        generations,
		generationDuration: generationDuration,
		assignments:        assignments,
		unfilledSlots:      unfilled,
		optimizerSwaps:     swaps,
		transitions:        transitions,
	}
}

// Handler returns the http.Handler serving /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records metrics for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Registerer exposes the registry for package specific collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// ObserveGeneration records the outcome of one month generation.
func (m *Metrics) ObserveGeneration(strategy string, err error, elapsed time.Duration, assignments, unfilled int) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.generations.WithLabelValues(strategy, result).Inc()
	m.generationDuration.WithLabelValues(strategy).Observe(elapsed.Seconds())
	if err != nil {
		return
	}
	m.assignments.Add(float64(assignments))
	m.unfilledSlots.Add(float64(unfilled))
}

// AddSwaps counts optimizer swaps.
func (m *Metrics) AddSwaps(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.optimizerSwaps.Add(float64(n))
}

// ObserveTransition counts a schedule moving into status.
func (m *Metrics) ObserveTransition(status string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(status).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
