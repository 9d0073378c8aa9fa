package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/giovannimirarchi420/polito-reservation-webhook-client/internal/metrics"
)

// Metrics middleware records request counts and latency per path. The
// /metrics endpoint itself is not measured.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		wrapped := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(wrapped, r)

		metrics.Requests.WithLabelValues(r.URL.Path, strconv.Itoa(wrapped.statusCode)).Inc()
		metrics.RequestDuration.WithLabelValues(r.URL.Path).Observe(time.Since(start).Seconds())
	})
}
