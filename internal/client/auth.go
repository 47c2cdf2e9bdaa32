package client

import (
	"context"
	"net/http"
	"time"

	"github.com/bobmcallan/elida-portal/internal/models"
)

// Login exchanges credentials for a session.
// POST /api/auth/login {username, password} -> {token, user}
func (c *Client) Login(ctx context.Context, username, password string) (*models.Session, error) {
	return c.authenticate(ctx, "login", "/api/auth/login", map[string]string{
		"username": username,
		"password": password,
	})
}

// Register creates an account and returns its session.
// POST /api/auth/register {username, email, password} -> {token, user}
func (c *Client) Register(ctx context.Context, username, email, password string) (*models.Session, error) {
	return c.authenticate(ctx, "register", "/api/auth/register", map[string]string{
		"username": username,
		"email":    email,
		"password": password,
	})
}

// credentialFields is the order empty fields are reported in.
var credentialFields = []string{"username", "email", "password"}

func (c *Client) authenticate(ctx context.Context, op, path string, body map[string]string) (*models.Session, error) {
	for _, field := range credentialFields {
		if value, ok := body[field]; ok && value == "" {
			return nil, &Error{Kind: KindValidation, Op: op, Message: field + " is required"}
		}
	}

	obj, _, err := c.doGeneric(ctx, request{op: op, method: http.MethodPost, path: path, body: body, auth: authNone})
	if err != nil {
		return nil, err
	}

	token := lookupString(obj, []string{"$.token", "$.access_token", "$.data.token"})
	if token == "" {
		return nil, &Error{Kind: KindValidation, Op: op, Message: "response has no token"}
	}

	user := models.User{
		ID:       lookupString(obj, []string{"$.user.id", "$.user.user_id", "$.user_id"}),
		Username: lookupString(obj, []string{"$.user.username", "$.username"}),
		Email:    lookupString(obj, []string{"$.user.email", "$.email"}),
	}
	if user.Username == "" {
		user.Username = body["username"]
	}
	if user.Email == "" {
		user.Email = body["email"]
	}

	return &models.Session{Token: token, User: user, CreatedAt: time.Now().UTC()}, nil
}
