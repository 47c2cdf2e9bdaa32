package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// Kind classifies a failed backend call.
type Kind string

const (
	KindTransport  Kind = "transport"
	KindTimeout    Kind = "timeout"
	KindCanceled   Kind = "canceled"
	KindAuth       Kind = "auth"
	KindValidation Kind = "validation"
	KindNotFound   Kind = "not_found"
	KindServer     Kind = "server"
)

// Retryable reports whether a call failing with this kind may succeed later.
func (k Kind) Retryable() bool {
	switch k {
	case KindTransport, KindTimeout, KindServer:
		return true
	}
	return false
}

// Error is the typed error returned by every Client method.
type Error struct {
	Kind       Kind
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	b.WriteString(": ")
	b.WriteString(string(e.Kind))
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (%d)", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	} else if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// ErrUnauthenticated is returned before any request when a call needs a
// session and none is available.
var ErrUnauthenticated = &Error{Kind: KindAuth, Op: "session", Message: "not signed in"}

// KindOf returns the kind of err, or "" if err is not a client error.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}

// IsRetryable reports whether err is a client error of a retryable kind.
func IsRetryable(err error) bool {
	return KindOf(err).Retryable()
}

// HTTPStatus maps an error to the status code a local API should answer with.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindAuth:
		return http.StatusUnauthorized
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindTransport, KindServer:
		return http.StatusBadGateway
	case KindCanceled:
		return 499
	}
	return http.StatusInternalServerError
}

// classifyTransport turns a failed round trip into an Error.
func classifyTransport(op string, ctx context.Context, err error) *Error {
	var netErr net.Error
	switch {
	case errors.Is(err, context.Canceled) && ctx.Err() == context.Canceled:
		return &Error{Kind: KindCanceled, Op: op, Err: err}
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return &Error{Kind: KindTimeout, Op: op, Err: err}
	default:
		return &Error{Kind: KindTransport, Op: op, Err: err}
	}
}

// classifyStatus turns a non-2xx response into an Error.
func classifyStatus(op string, statusCode int, body []byte) *Error {
	e := &Error{Op: op, StatusCode: statusCode, Message: errorMessage(statusCode, body)}
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		e.Kind = KindAuth
	case statusCode == http.StatusNotFound:
		e.Kind = KindNotFound
	case statusCode == http.StatusRequestTimeout || statusCode == http.StatusGatewayTimeout:
		e.Kind = KindTimeout
	case statusCode == http.StatusTooManyRequests:
		e.Kind = KindServer
	case statusCode >= 500:
		e.Kind = KindServer
	default:
		e.Kind = KindValidation
	}
	return e
}

// errorMessage extracts a message from common error body shapes.
func errorMessage(statusCode int, body []byte) string {
	var errResp map[string]any
	if json.Unmarshal(body, &errResp) == nil {
		for _, key := range []string{"error", "detail", "message"} {
			if s, ok := errResp[key].(string); ok && s != "" {
				return s
			}
		}
	}
	text := strings.TrimSpace(string(body))
	if len(text) > 200 {
		text = text[:200]
	}
	if text == "" {
		return http.StatusText(statusCode)
	}
	return text
}

// malformed wraps a decoding failure as a validation error.
func malformed(op string, err error) *Error {
	return &Error{Kind: KindValidation, Op: op, Message: "unexpected response shape", Err: err}
}
