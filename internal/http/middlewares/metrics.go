package middlewares

import (
	"net/http"
	"time"

	"github.com/dropDatabas3/accesscore/internal/observability/metrics"
)

// WithMetrics registra latencia, conteo por status e in-flight.
func WithMetrics() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			metrics.InflightAdd(1)
			defer metrics.InflightAdd(-1)

			rec := recorderFor(w)
			next.ServeHTTP(rec, r)
			metrics.ObserveHTTP(r.Method, r.URL.Path, rec.status, time.Since(start).Seconds())
		})
	}
}
