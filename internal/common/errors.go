// Package common defines shared sentinel errors used across the service and
// repository layers. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// repository-level errors
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")

	// validation errors
	ErrValidation    = errors.New("validation error")
	ErrInvalidStatus = errors.New("invalid status")

	// auth errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidToken = errors.New("invalid token")
	ErrInactiveUser = errors.New("user is not active")
	ErrForbidden    = errors.New("forbidden")

	// refresh session lifecycle errors
	ErrSessionNotFound = errors.New("refresh session not found")
	ErrSessionRevoked  = errors.New("refresh session revoked")
	ErrSessionExpired  = errors.New("refresh session expired")

	// job lifecycle errors
	ErrUnknownJob        = errors.New("unknown job")
	ErrInvalidTransition = errors.New("invalid job transition")

	// internal errors
	ErrInternal        = errors.New("internal error")
	ErrArtifactMissing = errors.New("results artifact missing")
)
