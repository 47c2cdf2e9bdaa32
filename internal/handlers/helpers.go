// Package handlers implements the portal daemon's local JSON API.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/bobmcallan/elida-portal/internal/client"
	"github.com/bobmcallan/elida-portal/internal/common"
	"github.com/bobmcallan/elida-portal/internal/interfaces"
	"github.com/bobmcallan/elida-portal/internal/scan"
)

// RequireMethod validates that the HTTP request uses the specified method.
// Returns true if the method matches, false otherwise (and writes error response).
func RequireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method || (method == http.MethodGet && r.Method == http.MethodHead) {
		return true
	}
	allow := method
	if method == http.MethodGet {
		allow += ", " + http.MethodHead
	}
	w.Header().Set("Allow", allow)
	WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
	return false
}

// WriteJSON writes a JSON response with the specified status code and data.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// WriteError writes a standard error JSON response.
func WriteError(w http.ResponseWriter, statusCode int, message string) error {
	return WriteJSON(w, statusCode, map[string]string{
		"status": "error",
		"error":  message,
	})
}

// StatusFor maps a service error to an HTTP status code.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, interfaces.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, scan.ErrScanInFlight):
		return http.StatusConflict
	case errors.Is(err, scan.ErrGaveUp):
		return http.StatusBadGateway
	}
	return client.HTTPStatus(err)
}

// authFailureHandler drops a session the backend has rejected.
type authFailureHandler interface {
	HandleAuthFailure(ctx context.Context, err error) bool
}

// writeServiceError logs err and writes it with the mapped status. A
// rejected token signs the user out.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *common.Logger, sessions authFailureHandler, op string, err error) {
	status := StatusFor(err)
	if sessions != nil {
		sessions.HandleAuthFailure(r.Context(), err)
	}
	if status >= http.StatusInternalServerError {
		logger.Error().Str("op", op).Int("status", status).Err(err).Msg("request failed")
	} else {
		logger.Debug().Str("op", op).Int("status", status).Err(err).Msg("request rejected")
	}
	WriteError(w, status, err.Error())
}

// decodeJSON reads a JSON body into v. On failure it writes a 400 and
// returns false.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func decodeBytes(w http.ResponseWriter, body []byte, v interface{}) bool {
	if err := json.Unmarshal(body, v); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}
