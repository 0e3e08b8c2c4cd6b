// Package apperr defines the error taxonomy shared by the client and the local server.
package apperr

import (
	"errors"
	"fmt"
)

// Local errors.
var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrAlreadyExists     = errors.New("already exists")
	ErrUnknownField      = errors.New("unknown field")
	ErrInvalidConnection = errors.New("invalid connection")
	ErrInvalid           = errors.New("invalid input")
)

// Backend call failures. Callers branch only on redirect vs display.
var (
	// ErrAuthExpired means the session expired and the refresh attempt failed.
	ErrAuthExpired = errors.New("session expired")
	// ErrUnauthenticated means there is no valid session at all.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrUnexpected is matched by every *UnexpectedError.
	ErrUnexpected = errors.New("unexpected error")
)

// UnexpectedError is a transport or server failure unrelated to auth.
// StatusCode is zero when no response was received.
type UnexpectedError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
	Err        error
}

func (e *UnexpectedError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
	}
	if e.Body != "" {
		return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s %s: status %d", e.Method, e.URL, e.StatusCode)
}

func (e *UnexpectedError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrUnexpected) match any UnexpectedError.
func (e *UnexpectedError) Is(target error) bool {
	return target == ErrUnexpected
}

// ConfigError reports a programming or configuration mistake, such as
// asking for a node type the registry does not know. It is not recoverable.
type ConfigError struct {
	What string
}

func (e *ConfigError) Error() string {
	return "config error: " + e.What
}

// IsRedirect reports whether err means the user has to log in again.
func IsRedirect(err error) bool {
	return errors.Is(err, ErrAuthExpired) || errors.Is(err, ErrUnauthenticated)
}
