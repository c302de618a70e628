package errors

import (
	"net/http"
	"strings"
)

// friendlyMapping rewrites a known backend error message into a message fit
// for end users. Matching is by substring because the hosted backend does not
// expose stable machine codes for auth failures.
type friendlyMapping struct {
	substring string
	message   string
	code      Code
	status    int
}

var friendlyMappings = []friendlyMapping{
	{"Invalid login credentials", "Incorrect email or password.", CodeUnauthorized, http.StatusUnauthorized},
	{"Email not confirmed", "Please confirm your email address before signing in.", CodeUnauthorized, http.StatusUnauthorized},
	{"already registered", "An account with this email already exists.", CodeConflict, http.StatusConflict},
	{"already been registered", "An account with this email already exists.", CodeConflict, http.StatusConflict},
	{"Password should be at least", "Password must be at least 6 characters long.", CodeInvalidRequest, http.StatusBadRequest},
	{"Unable to validate email address", "Please enter a valid email address.", CodeInvalidRequest, http.StatusBadRequest},
	{"For security purposes", "Too many attempts. Please wait a moment and try again.", CodeRateLimited, http.StatusTooManyRequests},
	{"refresh_token", "Your session has expired. Please sign in again.", CodeUnauthorized, http.StatusUnauthorized},
	{"duplicate key value", "That record already exists.", CodeConflict, http.StatusConflict},
	{"violates foreign key constraint", "The referenced record no longer exists.", CodeInvalidRequest, http.StatusBadRequest},
	{"violates row-level security", "You do not have permission to do that.", CodeForbidden, http.StatusForbidden},
	{"JWT expired", "Your session has expired. Please sign in again.", CodeUnauthorized, http.StatusUnauthorized},
}

// FromBackend converts a raw backend error message and status into a
// ServiceError with a user-facing message.
func FromBackend(statusCode int, raw string) *ServiceError {
	for _, m := range friendlyMappings {
		if strings.Contains(raw, m.substring) {
			e := newError(m.code, m.message, m.status, nil)
			return e.WithDetails("backend_message", raw)
		}
	}

	switch {
	// PostgREST answers 406 when a single-object request matched no rows.
	case statusCode == http.StatusNotFound || statusCode == http.StatusNotAcceptable:
		return newError(CodeNotFound, "The requested record was not found.", http.StatusNotFound, nil)
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		e := newError(CodeForbidden, "You do not have permission to do that.", http.StatusForbidden, nil)
		return e.WithDetails("backend_message", raw)
	case statusCode >= 500:
		e := newError(CodeBackendError, "Something went wrong. Please try again.", http.StatusBadGateway, nil)
		return e.WithDetails("backend_status", statusCode)
	default:
		e := newError(CodeBackendError, "Something went wrong. Please try again.", http.StatusBadGateway, nil)
		if raw != "" {
			e = e.WithDetails("backend_message", raw)
		}
		return e
	}
}
