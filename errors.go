package goTasks

import (
	"errors"
	"sort"
	"strings"
)

var (
	// ErrConfiguration is returned by token operations when no signing key is configured.
	ErrConfiguration = errors.New("auth configuration error")
	// ErrTokenInvalid is returned for malformed, expired or wrongly signed access tokens.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrSessionNotFound is returned when a refresh token matches no live session.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExpired is returned when the refresh token's session has expired.
	ErrSessionExpired = errors.New("session expired")
	// ErrCSRFMismatch is returned when the CSRF cookie and header are absent or differ.
	ErrCSRFMismatch = errors.New("csrf token mismatch")
	// ErrInvalidCredentials is returned when the email or password does not match an account.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountExists is returned by Signup when the email is already registered.
	ErrAccountExists = errors.New("account already exists")
	// ErrUserNotFound is returned when an authenticated user id no longer resolves.
	ErrUserNotFound = errors.New("user not found")
	// ErrRateLimited is returned when a client exceeds the auth endpoint budget.
	ErrRateLimited = errors.New("rate limited")
	// ErrEngineNotReady is returned by methods called on a nil or unbuilt Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrStoreUnavailable is returned when Redis cannot be reached.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// ValidationError reports request fields that failed validation.
// Fields maps a field name to a short human-readable reason.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return "validation failed"
	}
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("validation failed: ")
	for i, name := range names {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(name)
		b.WriteString(": ")
		b.WriteString(e.Fields[name])
	}
	return b.String()
}

// Add records a failure for field. The first reason recorded for a field wins.
func (e *ValidationError) Add(field, reason string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, ok := e.Fields[field]; !ok {
		e.Fields[field] = reason
	}
}

// OrNil returns e when any field failed and nil otherwise.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}
