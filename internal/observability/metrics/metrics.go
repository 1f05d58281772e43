// Package metrics define los collectors Prometheus del servicio. Los helpers
// Record* son no-op hasta que Register corre, así los tests de los services
// no necesitan un registry.
package metrics

import (
	"database/sql"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Resultados de login.
const (
	LoginSuccess     = "success"
	LoginFailed      = "failed"
	LoginLocked      = "locked"
	LoginRateLimited = "rate_limited"
)

var (
	once   sync.Once
	regErr error

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpInflight        prometheus.Gauge

	loginAttemptsTotal *prometheus.CounterVec
	rateLimitedTotal   *prometheus.CounterVec
	lockoutsTotal      prometheus.Counter
	revokedPurgedTotal prometheus.Counter
	auditDroppedTotal  prometheus.Counter
)

// Register crea y registra los collectors una sola vez (nil = registry global).
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	once.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Número total de requests procesadas",
		}, []string{"method", "path", "status"})

		httpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Latencia de los requests HTTP",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"})

		httpInflight = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Requests en vuelo",
		})

		loginAttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_login_attempts_total",
			Help: "Intentos de login por resultado",
		}, []string{"outcome"})

		rateLimitedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rate_limit_rejections_total",
			Help: "Requests rechazadas por el rate limiter, por clase de endpoint",
		}, []string{"class"})

		lockoutsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auth_lockouts_total",
			Help: "Transiciones de cuenta a bloqueada",
		})

		revokedPurgedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "revocation_purged_total",
			Help: "Entradas vencidas eliminadas del registro de revocación",
		})

		auditDroppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "audit_events_dropped_total",
			Help: "Eventos de auditoría que no pudieron registrarse",
		})

		for _, c := range []prometheus.Collector{
			httpRequestsTotal, httpRequestDuration, httpInflight,
			loginAttemptsTotal, rateLimitedTotal, lockoutsTotal,
			revokedPurgedTotal, auditDroppedTotal,
		} {
			if err := registerCollector(reg, c); err != nil {
				regErr = err
				return
			}
		}
	})
	return regErr
}

// RegisterDB expone las estadísticas del pool de database/sql.
func RegisterDB(reg prometheus.Registerer, db *sql.DB, name string) error {
	if db == nil {
		return nil
	}
	return registerCollector(reg, collectors.NewDBStatsCollector(db, name))
}

// Handler retorna el handler de /metrics sobre el gatherer global.
func Handler() http.Handler { return promhttp.Handler() }

// registerCollector registra el collector ignorando duplicados.
func registerCollector(reg prometheus.Registerer, c prometheus.Collector) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if err := reg.Register(c); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return nil
		}
		return err
	}
	return nil
}

// ObserveHTTP registra un request terminado.
func ObserveHTTP(method, path string, status int, seconds float64) {
	if httpRequestsTotal == nil {
		return
	}
	method = strings.ToUpper(method)
	path = NormalizePath(path)
	httpRequestDuration.WithLabelValues(method, path).Observe(seconds)
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
}

// InflightAdd suma delta a los requests en vuelo.
func InflightAdd(delta float64) {
	if httpInflight != nil {
		httpInflight.Add(delta)
	}
}

func RecordLogin(outcome string) {
	if loginAttemptsTotal != nil {
		loginAttemptsTotal.WithLabelValues(outcome).Inc()
	}
}

func RecordRateLimited(class string) {
	if rateLimitedTotal != nil {
		rateLimitedTotal.WithLabelValues(class).Inc()
	}
}

func RecordLockout() {
	if lockoutsTotal != nil {
		lockoutsTotal.Inc()
	}
}

func RecordPurged(n int) {
	if revokedPurgedTotal != nil && n > 0 {
		revokedPurgedTotal.Add(float64(n))
	}
}

func RecordAuditDropped() {
	if auditDroppedTotal != nil {
		auditDroppedTotal.Inc()
	}
}

var (
	uuidSegmentRE  = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F-]{4}-[0-9a-fA-F-]{4,}$`)
	hexSegmentRE   = regexp.MustCompile(`^[0-9a-fA-F]{16,}$`)
	tokenSegmentRE = regexp.MustCompile(`^[A-Za-z0-9_-]{24,}$`)
)

// NormalizePath reemplaza segmentos dinámicos (ids, tokens) por ":param"
// para acotar la cardinalidad del label path.
func NormalizePath(p string) string {
	clean := strings.SplitN(p, "?", 2)[0]
	var out []string
	for _, seg := range strings.Split(clean, "/") {
		if seg == "" {
			continue
		}
		if isDynamicSegment(seg) {
			out = append(out, ":param")
		} else {
			out = append(out, seg)
		}
	}
	if len(out) == 0 {
		return "/"
	}
	return "/" + strings.Join(out, "/")
}

func isDynamicSegment(seg string) bool {
	if len(seg) > 48 {
		return true
	}
	if uuidSegmentRE.MatchString(seg) || hexSegmentRE.MatchString(seg) || tokenSegmentRE.MatchString(seg) {
		return true
	}
	_, err := strconv.Atoi(seg)
	return err == nil
}
