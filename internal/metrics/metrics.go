package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "console",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "console",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "console",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	submissionOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "console",
			Subsystem: "forms",
			Name:      "submission_outcomes_total",
			Help:      "Form submission reconciliations by resulting action.",
		},
		[]string{"action", "status"},
	)

	odooCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "console",
			Subsystem: "odoo",
			Name:      "calls_total",
			Help:      "Total number of Odoo RPC calls.",
		},
		[]string{"model", "method", "outcome"},
	)

	odooUp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "console",
			Subsystem: "odoo",
			Name:      "up",
			Help:      "Whether the last Odoo availability probe succeeded.",
		},
	)

	paymentIntents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "console",
			Subsystem: "payments",
			Name:      "intents_total",
			Help:      "Payment intents created, by outcome.",
		},
		[]string{"outcome"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		submissionOutcomes,
		odooCalls,
		odooUp,
		paymentIntents,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordSubmissionOutcome records a reconciler decision.
func RecordSubmissionOutcome(action, status string) {
	submissionOutcomes.WithLabelValues(action, status).Inc()
}

// RecordOdooCall records an RPC gateway call result.
func RecordOdooCall(model, method, outcome string) {
	odooCalls.WithLabelValues(model, method, outcome).Inc()
}

// SetOdooUp records the latest availability probe result.
func SetOdooUp(up bool) {
	if up {
		odooUp.Set(1)
	} else {
		odooUp.Set(0)
	}
}

// RecordPaymentIntent records a payment intent creation attempt.
func RecordPaymentIntent(outcome string) {
	paymentIntents.WithLabelValues(outcome).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func canonicalPath(raw string) string {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	if len(parts) < 3 || parts[0] != "api" {
		return "/" + parts[0]
	}
	// /api/v1/<resource>[/:id[/...]]
	if len(parts) == 3 {
		return "/api/v1/" + parts[2]
	}
	switch parts[3] {
	case "submissions", "redeem", "intent":
		return "/api/v1/" + parts[2] + "/" + parts[3]
	default:
		return "/api/v1/" + parts[2] + "/:id"
	}
}
