// Package metrics exposes the Prometheus collectors for the billing backend.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	InvoicesFinalized = promauto.NewCounter(prometheus.CounterOpts{
		Name: "astrogems_invoices_finalized_total",
		Help: "Total number of finalized invoices.",
	})

	AIParses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "astrogems_ai_parse_total",
		Help: "Smart-add parse attempts by outcome.",
	}, []string{"outcome"})

	RegistrySize = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "astrogems_registry_entries",
		Help: "Current number of entries per registry.",
	}, []string{"registry"})

	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "astrogems_http_requests_total",
		Help: "Total HTTP requests by method, path and status.",
	}, []string{"method", "path", "status"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "astrogems_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})
)

const (
	ParseOutcomeOK    = "ok"
	ParseOutcomeEmpty = "empty"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// HTTPMiddleware records request counts and latencies. Paths are bucketed
// to their leading segments to keep the label space bounded.
func HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		path := pathBucket(r.URL.Path)
		httpRequests.WithLabelValues(r.Method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func pathBucket(path string) string {
	segments := 0
	for i := 1; i < len(path); i++ {
		if path[i] == '/' {
			segments++
			if segments == 4 {
				return path[:i]
			}
		}
	}
	return path
}
