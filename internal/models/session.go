package models

import "time"

// User is the account returned by the ELIDA auth endpoints.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Session is the signed-in state: a bearer token and its user.
type Session struct {
	Token     string    `json:"token"`
	User      User      `json:"user"`
	CreatedAt time.Time `json:"created_at"`
}

// Valid returns true if the session carries a token.
func (s *Session) Valid() bool {
	return s != nil && s.Token != ""
}

// AnonymousUser keys per-user data saved while signed out.
const AnonymousUser = "anonymous"

// SettingsKey is the user id settings are stored under.
func (s *Session) SettingsKey() string {
	if !s.Valid() || s.User.ID == "" {
		return AnonymousUser
	}
	return s.User.ID
}
