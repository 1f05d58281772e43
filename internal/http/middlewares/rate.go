package middlewares

import (
	"math"
	"net/http"
	"strconv"

	"github.com/dropDatabas3/accesscore/internal/http/errors"
	"github.com/dropDatabas3/accesscore/internal/observability/logger"
	"github.com/dropDatabas3/accesscore/internal/observability/metrics"
	"github.com/dropDatabas3/accesscore/internal/rate"
)

// WithClientIP resuelve la IP del cliente según la política y la deja en el
// contexto; los handlers la usan para auditoría.
func WithClientIP(policy rate.Policy) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := setClientIP(r.Context(), policy.ClientIP(r))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithRateLimit aplica el límite de la clase del endpoint por IP.
// limiter nil desactiva el middleware. Si el backend falla, el request pasa.
func WithRateLimit(policy rate.Policy, limiter rate.Limiter) Middleware {
	if limiter == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if policy.Bypass(r) {
				next.ServeHTTP(w, r)
				return
			}
			ip := GetClientIP(r.Context())
			if ip == "" {
				ip = policy.ClientIP(r)
			}
			class := policy.Classify(r.URL.Path)
			limit := policy.LimitFor(class)

			res, err := limiter.Allow(r.Context(), rate.Key(ip, class), limit)
			if err != nil {
				logger.From(r.Context()).Warn("rate limiter unavailable",
					logger.Component("http.rate"),
					logger.EndpointClass(class),
					logger.Err(err),
				)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			if !res.Allowed {
				metrics.RecordRateLimited(class)
				logger.From(r.Context()).Info("rate limited",
					logger.Component("http.rate"),
					logger.ClientIP(ip),
					logger.EndpointClass(class),
				)
				secs := int(math.Ceil(res.RetryAfter.Seconds()))
				if secs < 1 {
					secs = 1
				}
				errors.WriteError(w, errors.ErrRateLimitExceeded.WithRetryAfter(secs))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
