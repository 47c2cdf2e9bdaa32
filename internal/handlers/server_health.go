package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/bobmcallan/elida-portal/internal/common"
)

// HealthChecker probes the ELIDA backend.
type HealthChecker interface {
	Health(ctx context.Context) error
	BaseURL() string
}

// ServerHealthHandler reports whether the ELIDA backend is reachable.
type ServerHealthHandler struct {
	logger  *common.Logger
	backend HealthChecker
}

// NewServerHealthHandler creates a new server health handler.
func NewServerHealthHandler(logger *common.Logger, backend HealthChecker) *ServerHealthHandler {
	return &ServerHealthHandler{logger: logger.OrSilent(), backend: backend}
}

// ServeHTTP handles GET /api/server-health.
func (h *ServerHealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.backend.Health(ctx); err != nil {
		h.logger.Debug().Str("api_url", h.backend.BaseURL()).Err(err).Msg("backend health check failed")
		WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "down", "error": err.Error()})
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
