package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/bobmcallan/elida-portal/internal/common"
	"github.com/bobmcallan/elida-portal/internal/interfaces"
)

// healthProbeKey is read, never written, to prove the store answers.
const healthProbeKey = "health:probe"

// HealthHandler reports whether the daemon and its local store are up.
// It never calls the backend; see ServerHealthHandler for that.
type HealthHandler struct {
	logger  *common.Logger
	store   interfaces.KeyValueStorage
	started time.Time
}

// NewHealthHandler creates a new health handler. store may be nil.
func NewHealthHandler(logger *common.Logger, store interfaces.KeyValueStorage) *HealthHandler {
	return &HealthHandler{logger: logger.OrSilent(), store: store, started: time.Now()}
}

// ServeHTTP handles GET /api/health.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	uptime := time.Since(h.started).Truncate(time.Second).String()
	if h.store != nil {
		if _, err := h.store.Get(r.Context(), healthProbeKey); err != nil && !errors.Is(err, interfaces.ErrNotFound) {
			h.logger.Warn().Err(err).Msg("health check: store unavailable")
			WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "degraded",
				"store":  err.Error(),
				"uptime": uptime,
			})
			return
		}
	}

	WriteJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"uptime": uptime,
	})
}
