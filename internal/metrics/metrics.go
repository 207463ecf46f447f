// Package metrics declares the Prometheus collectors exported on /metrics.
//
//nolint:gochecknoglobals
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "metas"

var (
	SlotsDrawn = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "slots_drawn_total",
		Help:      "The total number of deposit slots handed out",
	})

	ProofsSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "proofs_submitted_total",
		Help:      "The total number of payment proofs submitted",
	})

	ProofsDecided = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "proofs_decided_total",
		Help:      "The total number of payment proofs decided",
	}, []string{"decision"})

	GoalsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "goals_completed_total",
		Help:      "The total number of goals that reached their target",
	})

	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_published_total",
		Help:      "Ledger events handed to the broker",
	}, []string{"type", "result"})

	EventsConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "worker",
		Name:      "events_consumed_total",
		Help:      "Ledger events processed by the worker",
	}, []string{"type", "result"})

	RateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rate_limited_total",
		Help:      "Requests rejected by the rate limiter",
	}, []string{"limiter"})

	SuspiciousRequests = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "suspicious_requests_total",
		Help:      "Requests matching a known probing pattern",
	})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sessions",
		Help:      "Signed-in sessions held in memory",
	})

	httpRequestsDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "The latency of the HTTP requests.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "method", "code"})
)

// TrackLimiterClients exports the number of clients an in-memory rate
// limiter is tracking. Call it once per process.
func TrackLimiterClients(count func() int) {
	promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "rate_limit_clients",
		Help:      "Clients tracked by the in-memory rate limiter",
	}, func() float64 { return float64(count()) })
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware observes request latency labelled by the chi route pattern so
// path parameters do not explode the label set.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		httpRequestsDuration.With(prometheus.Labels{
			"route":  route,
			"method": r.Method,
			"code":   strconv.Itoa(rec.status),
		}).Observe(time.Since(start).Seconds())
	})
}
