package handlers

import (
	"context"
	"net/http"

	"github.com/bobmcallan/elida-portal/internal/client"
	"github.com/bobmcallan/elida-portal/internal/common"
	"github.com/bobmcallan/elida-portal/internal/interfaces"
	"github.com/bobmcallan/elida-portal/internal/models"
)

// SessionReader returns the current session, nil when signed out.
type SessionReader interface {
	Current(ctx context.Context) (*models.Session, error)
}

// SettingsHandler reads and replaces the per-user settings blob.
type SettingsHandler struct {
	logger   *common.Logger
	store    interfaces.SettingsStorage
	sessions SessionReader
}

// NewSettingsHandler creates a new settings handler.
func NewSettingsHandler(logger *common.Logger, store interfaces.SettingsStorage, sessions SessionReader) *SettingsHandler {
	return &SettingsHandler{logger: logger.OrSilent(), store: store, sessions: sessions}
}

func (h *SettingsHandler) userID(ctx context.Context) (string, error) {
	sess, err := h.sessions.Current(ctx)
	if err != nil {
		return "", err
	}
	return sess.SettingsKey(), nil
}

// HandleGet handles GET /api/settings.
func (h *SettingsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	uid, err := h.userID(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, nil, "get settings", err)
		return
	}
	values, err := h.store.GetSettings(r.Context(), uid)
	if err != nil {
		writeServiceError(w, r, h.logger, nil, "get settings", err)
		return
	}
	WriteJSON(w, http.StatusOK, values)
}

// HandlePut handles PUT /api/settings. The body replaces the stored map.
func (h *SettingsHandler) HandlePut(w http.ResponseWriter, r *http.Request) {
	var values map[string]string
	if !decodeJSON(w, r, &values) {
		return
	}
	if values == nil {
		values = map[string]string{}
	}
	for k := range values {
		if k == "" {
			writeServiceError(w, r, h.logger, nil, "save settings",
				&client.Error{Kind: client.KindValidation, Op: "save settings", Message: "setting names must not be empty"})
			return
		}
	}

	uid, err := h.userID(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, nil, "save settings", err)
		return
	}
	if err := h.store.SaveSettings(r.Context(), uid, values); err != nil {
		writeServiceError(w, r, h.logger, nil, "save settings", err)
		return
	}
	h.logger.Info().Str("user_id", uid).Int("keys", len(values)).Msg("settings saved")
	WriteJSON(w, http.StatusOK, values)
}
