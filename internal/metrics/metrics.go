// Package metrics holds the Prometheus collectors for the ledger and the
// HTTP layer. Collectors are package-level and safe for concurrent use.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Admissions counts payment creation attempts by outcome
	// (admitted, rejected).
	Admissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_admissions_total",
			Help: "Payment admission checks by outcome.",
		},
		[]string{"outcome"},
	)

	// TxRetries counts transactions retried after a conflict, by operation.
	TxRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_tx_retries_total",
			Help: "Ledger transactions retried after a concurrent-write conflict.",
		},
		[]string{"op"},
	)

	// TxExhausted counts operations that ran out of retry attempts.
	TxExhausted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_tx_exhausted_total",
			Help: "Ledger operations that failed after exhausting retries.",
		},
		[]string{"op"},
	)

	httpReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpLat = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// Register adds every collector to reg.
func Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{Admissions, TxRetries, TxExhausted, httpReqs, httpLat} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}

	return nil
}

// Middleware records request count and latency keyed by the chi route
// pattern, which keeps label cardinality bounded.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		httpReqs.WithLabelValues(r.Method, path, strconv.Itoa(status)).Inc()
		httpLat.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}
