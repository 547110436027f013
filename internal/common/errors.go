// Package common defines shared constants and sentinel errors used across
// the shopkeeper auth core. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrInternal     = errors.New("internal error")
	ErrUnauthorized = errors.New("unauthorized")

	// Validation / registration errors. ErrValidation wraps a field-level
	// message; ErrDuplicateEmail is the user-facing unique-constraint message.
	ErrValidation     = errors.New("validation error")
	ErrDuplicateEmail = errors.New("this email is already registered")

	// Auth errors. ErrInvalidCredentials is deliberately identical for an
	// unknown email and a wrong password.
	ErrInvalidCredentials = errors.New("incorrect email or password")
	ErrInvalidToken       = errors.New("invalid token")
)
