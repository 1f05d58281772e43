package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	httperrors "github.com/dropDatabas3/accesscore/internal/http/errors"
	"github.com/dropDatabas3/accesscore/internal/observability/logger"
)

// Check reporta la salud de una dependencia (store, redis).
type Check func(ctx context.Context) error

// HealthController maneja GET /healthz.
type HealthController struct {
	checks  map[string]Check
	timeout time.Duration
	version string
}

func NewHealthController(version string, checks map[string]Check) *HealthController {
	return &HealthController{checks: checks, timeout: 2 * time.Second, version: version}
}

type healthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version,omitempty"`
	Checks  map[string]string `json:"checks,omitempty"`
}

func (c *HealthController) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), c.timeout)
	defer cancel()

	names := make([]string, 0, len(c.checks))
	for n := range c.checks {
		names = append(names, n)
	}
	sort.Strings(names)

	resp := healthResponse{Status: "ok", Version: c.version, Checks: map[string]string{}}
	status := http.StatusOK
	for _, n := range names {
		if err := c.checks[n](ctx); err != nil {
			logger.From(ctx).Warn("health check failed", logger.Component(n), logger.Err(err))
			resp.Checks[n] = "down"
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[n] = "up"
	}
	w.Header().Set("Cache-Control", "no-store")
	httperrors.WriteJSON(w, status, resp)
}
