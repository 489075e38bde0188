package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/xhaelri/qitchen/internal/handler"
	"github.com/xhaelri/qitchen/internal/middleware"
)

// HealthCheck checks one dependency.
type HealthCheck func(ctx context.Context) error

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Health returns GET /healthz. Every check runs under a short deadline; any
// failure answers 503.
func Health(checks map[string]HealthCheck) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := healthResponse{Status: "ok", Checks: make(map[string]string, len(names))}
		for _, name := range names {
			if err := checks[name](ctx); err != nil {
				middleware.GetLogger(r.Context()).Warn("health check failed", "check", name, "error", err)
				resp.Status = "degraded"
				resp.Checks[name] = "down"
				continue
			}
			resp.Checks[name] = "up"
		}

		status := http.StatusOK
		if resp.Status != "ok" {
			status = http.StatusServiceUnavailable
		}
		handler.JSON(w, status, resp)
	}
}
