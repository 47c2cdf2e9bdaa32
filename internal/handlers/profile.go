package handlers

import (
	"context"
	"net/http"

	"github.com/bobmcallan/elida-portal/internal/common"
	"github.com/bobmcallan/elida-portal/internal/models"
)

// Profiles is the part of the ELIDA client holding per-user backend data.
type Profiles interface {
	GetProfile(ctx context.Context) (*models.InvestorProfile, error)
	SaveProfile(ctx context.Context, p *models.InvestorProfile) error
	ListHistory(ctx context.Context) ([]models.HistoryEntry, error)
	GetHistory(ctx context.Context, id string) (*models.HistoryEntry, error)
	DeleteHistory(ctx context.Context, id string) error
}

// ProfileHandler proxies the investor profile and analysis history.
type ProfileHandler struct {
	logger   *common.Logger
	profiles Profiles
	sessions authFailureHandler
}

// NewProfileHandler creates a new profile handler. sessions may be nil.
func NewProfileHandler(logger *common.Logger, profiles Profiles, sessions authFailureHandler) *ProfileHandler {
	return &ProfileHandler{logger: logger.OrSilent(), profiles: profiles, sessions: sessions}
}

// HandleGetProfile handles GET /api/profile.
func (h *ProfileHandler) HandleGetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := h.profiles.GetProfile(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, h.sessions, "get profile", err)
		return
	}
	WriteJSON(w, http.StatusOK, p)
}

// HandleSaveProfile handles POST /api/profile.
func (h *ProfileHandler) HandleSaveProfile(w http.ResponseWriter, r *http.Request) {
	var p models.InvestorProfile
	if !decodeJSON(w, r, &p) {
		return
	}
	if err := h.profiles.SaveProfile(r.Context(), &p); err != nil {
		writeServiceError(w, r, h.logger, h.sessions, "save profile", err)
		return
	}
	WriteJSON(w, http.StatusOK, &p)
}

// HandleListHistory handles GET /api/history.
func (h *ProfileHandler) HandleListHistory(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	entries, err := h.profiles.ListHistory(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, h.sessions, "list history", err)
		return
	}
	if entries == nil {
		entries = []models.HistoryEntry{}
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}

// HandleGetHistory handles GET /api/history/{id}.
func (h *ProfileHandler) HandleGetHistory(w http.ResponseWriter, r *http.Request) {
	entry, err := h.profiles.GetHistory(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, h.logger, h.sessions, "get history", err)
		return
	}
	WriteJSON(w, http.StatusOK, entry)
}

// HandleDeleteHistory handles DELETE /api/history/{id}.
func (h *ProfileHandler) HandleDeleteHistory(w http.ResponseWriter, r *http.Request) {
	if err := h.profiles.DeleteHistory(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, r, h.logger, h.sessions, "delete history", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
