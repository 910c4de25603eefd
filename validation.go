package goTasks

import (
	"net/mail"
	"strconv"
	"strings"
	"unicode/utf8"
)

const maxEmailLength = 254

// NormalizeEmail trims surrounding whitespace and lower-cases the address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// validateEmail checks a normalized address. Display names and comments are rejected.
func validateEmail(email string, verr *ValidationError) {
	switch {
	case email == "":
		verr.Add("email", "is required")
	case len(email) > maxEmailLength:
		verr.Add("email", "is too long")
	default:
		addr, err := mail.ParseAddress(email)
		if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndexByte(email, '@')+1:], ".") {
			verr.Add("email", "must be a valid email address")
		}
	}
}

func (e *Engine) validatePassword(field, password string, verr *ValidationError) {
	switch {
	case password == "":
		verr.Add(field, "is required")
	case !utf8.ValidString(password):
		verr.Add(field, "must be valid UTF-8")
	case len(password) < e.config.Password.MinLength:
		verr.Add(field, "must be at least "+strconv.Itoa(e.config.Password.MinLength)+" characters")
	case len(password) > e.config.Password.MaxLength:
		verr.Add(field, "is too long")
	}
}

// validateCredentials normalizes email and checks both fields for signup.
func (e *Engine) validateCredentials(email, password string) (string, error) {
	normalized := NormalizeEmail(email)

	verr := &ValidationError{}
	validateEmail(normalized, verr)
	e.validatePassword("password", password, verr)

	return normalized, verr.OrNil()
}
