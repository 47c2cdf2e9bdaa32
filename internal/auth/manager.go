// Package auth holds the signed-in session and supplies bearer tokens to the
// ELIDA client.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/bobmcallan/elida-portal/internal/client"
	"github.com/bobmcallan/elida-portal/internal/common"
	"github.com/bobmcallan/elida-portal/internal/interfaces"
	"github.com/bobmcallan/elida-portal/internal/models"
)

// Authenticator is the part of the ELIDA client the session manager needs.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (*models.Session, error)
	Register(ctx context.Context, username, email, password string) (*models.Session, error)
}

// SessionManager owns the current session. It caches the stored session in
// memory and writes every change through to storage.
type SessionManager struct {
	mu      sync.RWMutex
	current *models.Session
	loaded  bool

	store  interfaces.SessionStorage
	auth   Authenticator
	logger *common.Logger
}

// NewSessionManager creates a session manager over the given storage.
func NewSessionManager(store interfaces.SessionStorage, auth Authenticator, logger *common.Logger) *SessionManager {
	return &SessionManager{
		store:  store,
		auth:   auth,
		logger: logger.OrSilent(),
	}
}

// SetAuthenticator sets the client used by Login and Register. The client
// itself needs the manager as its token source, so the two are wired after
// construction.
func (m *SessionManager) SetAuthenticator(auth Authenticator) {
	m.auth = auth
}

// Login signs in and persists the new session.
func (m *SessionManager) Login(ctx context.Context, username, password string) (*models.Session, error) {
	if m.auth == nil {
		return nil, errors.New("no authenticator configured")
	}
	sess, err := m.auth.Login(ctx, username, password)
	if err != nil {
		m.logger.Warn().Str("username", username).Err(err).Msg("login failed")
		return nil, err
	}
	if err := m.set(ctx, sess); err != nil {
		return nil, err
	}
	m.logger.Info().Str("username", sess.User.Username).Msg("signed in")
	return sess, nil
}

// Register creates an account, signs in and persists the session.
func (m *SessionManager) Register(ctx context.Context, username, email, password string) (*models.Session, error) {
	if m.auth == nil {
		return nil, errors.New("no authenticator configured")
	}
	sess, err := m.auth.Register(ctx, username, email, password)
	if err != nil {
		m.logger.Warn().Str("username", username).Err(err).Msg("registration failed")
		return nil, err
	}
	if err := m.set(ctx, sess); err != nil {
		return nil, err
	}
	m.logger.Info().Str("username", sess.User.Username).Msg("registered and signed in")
	return sess, nil
}

// Logout forgets the session locally. The backend has no logout endpoint.
func (m *SessionManager) Logout(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.store.ClearSession(ctx); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	m.current = nil
	m.loaded = true
	m.logger.Info().Msg("signed out")
	return nil
}

// Current returns the signed-in session, or nil.
func (m *SessionManager) Current(ctx context.Context) (*models.Session, error) {
	m.mu.RLock()
	if m.loaded {
		sess := m.current
		m.mu.RUnlock()
		return sess, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loaded {
		return m.current, nil
	}
	sess, err := m.store.GetSession(ctx)
	if err != nil {
		return nil, err
	}
	m.current = sess
	m.loaded = true
	return sess, nil
}

// Token implements client.TokenSource. An empty token means signed out.
func (m *SessionManager) Token(ctx context.Context) (string, error) {
	sess, err := m.Current(ctx)
	if err != nil {
		return "", err
	}
	if !sess.Valid() {
		return "", nil
	}
	return sess.Token, nil
}

// HandleAuthFailure drops the session when the backend rejected its token
// with 401. It reports whether the session was dropped.
func (m *SessionManager) HandleAuthFailure(ctx context.Context, err error) bool {
	var ce *client.Error
	if !errors.As(err, &ce) || ce.Kind != client.KindAuth || ce.StatusCode != http.StatusUnauthorized {
		return false
	}
	if lerr := m.Logout(ctx); lerr != nil {
		m.logger.Warn().Err(lerr).Msg("failed to drop rejected session")
		return false
	}
	m.logger.Warn().Str("op", ce.Op).Msg("backend rejected session token, signed out")
	return true
}

func (m *SessionManager) set(ctx context.Context, sess *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.store.SaveSession(ctx, sess); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	m.current = sess
	m.loaded = true
	return nil
}

var _ client.TokenSource = (*SessionManager)(nil)
