package middleware

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/evtxhunter/evtxhunter/internal/metrics"
)

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(status int) {
	rw.status = status
	rw.ResponseWriter.WriteHeader(status)
}

// RequestLogger logs each request and records it to the API's Prometheus
// metrics (requests_total, request_duration_seconds).
func RequestLogger(verbose bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			requestID := uuid.New().String()[:8]
			w.Header().Set("X-Request-ID", requestID)

			wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(wrapped, r)

			duration := time.Since(start)
			metrics.APIRequestsTotal.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(wrapped.status)).Inc()
			metrics.APIRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(duration.Seconds())

			if verbose || wrapped.status >= 400 {
				log.Printf("[%s] %s %s %d %v", requestID, r.Method, r.URL.Path, wrapped.status, duration)
			}
		})
	}
}
