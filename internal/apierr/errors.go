// Package apierr standardizes HTTP error responses. It maps engine and store
// errors to a status code and a stable machine-readable code without leaking
// internal details to the client.
package apierr

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	goTasks "github.com/MrEthical07/goTasks"
	"github.com/MrEthical07/goTasks/tasks"
)

// StatusClientClosedRequest is the non-standard status used when the client went away.
const StatusClientClosedRequest = 499

// HeaderRequestID carries the request id set by the request-id middleware.
const HeaderRequestID = "X-Request-Id"

// ErrMalformedBody is returned by handlers when the request body cannot be decoded.
var ErrMalformedBody = errors.New("malformed request body")

// APIError is the error object returned to clients.
type APIError struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	RequestID string            `json:"request_id,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
}

// ErrorResponse is the response envelope.
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// ToHTTP converts err to a status code and an envelope.
//
// A nil err is a programming error and maps to 500 so a failure is never
// reported as success. Credential failures share one code so a response never
// reveals whether the email or the password was wrong.
func ToHTTP(err error) (int, ErrorResponse) {
	status, code, msg := classify(err)
	resp := ErrorResponse{Error: APIError{Code: code, Message: msg}}

	var verr *goTasks.ValidationError
	if errors.As(err, &verr) {
		resp.Error.Fields = verr.Fields
	}
	return status, resp
}

// WriteError writes the envelope for err, copying the request id from the request headers.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := ToHTTP(err)

	if rid := r.Header.Get(HeaderRequestID); rid != "" {
		resp.Error.RequestID = rid
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

func classify(err error) (int, string, string) {
	var verr *goTasks.ValidationError

	switch {
	case err == nil:
		return http.StatusInternalServerError, "internal", "internal error"
	case errors.As(err, &verr):
		return http.StatusBadRequest, "validation_failed", "invalid input"
	case errors.Is(err, ErrMalformedBody):
		return http.StatusBadRequest, "malformed_body", "request body is not valid JSON"
	case errors.Is(err, goTasks.ErrInvalidCredentials), errors.Is(err, goTasks.ErrAccountExists):
		return http.StatusBadRequest, "invalid_credentials", "invalid email or password"
	case errors.Is(err, goTasks.ErrTokenInvalid):
		return http.StatusUnauthorized, "invalid_token", "access token is missing or invalid"
	case errors.Is(err, goTasks.ErrSessionNotFound), errors.Is(err, goTasks.ErrSessionExpired):
		return http.StatusUnauthorized, "invalid_session", "session is missing or expired"
	case errors.Is(err, goTasks.ErrCSRFMismatch):
		return http.StatusForbidden, "csrf_mismatch", "csrf token missing or mismatched"
	case errors.Is(err, goTasks.ErrRateLimited):
		return http.StatusTooManyRequests, "rate_limited", "too many requests"
	case errors.Is(err, goTasks.ErrConfiguration), errors.Is(err, goTasks.ErrEngineNotReady):
		return http.StatusInternalServerError, "configuration_error", "server misconfigured"
	case errors.Is(err, goTasks.ErrUserNotFound), errors.Is(err, tasks.ErrNotFound):
		return http.StatusNotFound, "not_found", "not found"
	case errors.Is(err, tasks.ErrInvalidInput):
		return http.StatusBadRequest, "validation_failed", "invalid input"
	case errors.Is(err, goTasks.ErrStoreUnavailable), errors.Is(err, tasks.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "unavailable", "service unavailable"
	case errors.Is(err, context.Canceled):
		return StatusClientClosedRequest, "canceled", "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "deadline_exceeded", "deadline exceeded"
	default:
		return http.StatusInternalServerError, "internal", "internal error"
	}
}
