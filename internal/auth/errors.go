package auth

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound     = errors.New("auth: not found")
	ErrConflict     = errors.New("auth: already exists")
	ErrInvalidInput = errors.New("auth: invalid input")
	ErrUnauthorized = errors.New("auth: unauthorized")
	ErrForbidden    = errors.New("auth: forbidden")
	ErrInvalidToken = errors.New("auth: invalid token")
)

// WeakPasswordError reports every strength rule a candidate password violated.
type WeakPasswordError struct {
	Violations []string
}

func (e *WeakPasswordError) Error() string {
	return fmt.Sprintf("password does not meet requirements: %s", strings.Join(e.Violations, "; "))
}

func (e *WeakPasswordError) Unwrap() error { return ErrInvalidInput }
