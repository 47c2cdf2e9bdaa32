package handlers

import (
	"net/http"
	"time"

	"github.com/bobmcallan/elida-portal/internal/auth"
	"github.com/bobmcallan/elida-portal/internal/common"
	"github.com/bobmcallan/elida-portal/internal/models"
)

// AuthHandler signs the local user in and out of the ELIDA backend.
type AuthHandler struct {
	logger   *common.Logger
	sessions *auth.SessionManager
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(logger *common.Logger, sessions *auth.SessionManager) *AuthHandler {
	return &AuthHandler{logger: logger.OrSilent(), sessions: sessions}
}

type loginRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// sessionView is a session without its token.
type sessionView struct {
	SignedIn  bool         `json:"signed_in"`
	User      *models.User `json:"user,omitempty"`
	CreatedAt string       `json:"created_at,omitempty"`
}

func viewOf(sess *models.Session) sessionView {
	if !sess.Valid() {
		return sessionView{}
	}
	user := sess.User
	v := sessionView{SignedIn: true, User: &user}
	if !sess.CreatedAt.IsZero() {
		v.CreatedAt = sess.CreatedAt.Format(time.RFC3339)
	}
	return v
}

// HandleLogin handles POST /api/session/login.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	sess, err := h.sessions.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeServiceError(w, r, h.logger, nil, "login", err)
		return
	}
	WriteJSON(w, http.StatusOK, viewOf(sess))
}

// HandleRegister handles POST /api/session/register.
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	sess, err := h.sessions.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		writeServiceError(w, r, h.logger, nil, "register", err)
		return
	}
	WriteJSON(w, http.StatusCreated, viewOf(sess))
}

// HandleSession handles GET /api/session.
func (h *AuthHandler) HandleSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.Current(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, nil, "session", err)
		return
	}
	WriteJSON(w, http.StatusOK, viewOf(sess))
}

// HandleLogout handles DELETE /api/session.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Logout(r.Context()); err != nil {
		writeServiceError(w, r, h.logger, nil, "logout", err)
		return
	}
	WriteJSON(w, http.StatusOK, viewOf(nil))
}
