// Package common contains shared constants and sentinel errors used across
// Ringside components. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// Conflict lifecycle errors.
	ErrConflictNotFound = errors.New("conflict not found")
	ErrConflictClosed   = errors.New("conflict already resolved or ignored")

	// Preload errors.
	ErrShowNotPreloaded = errors.New("show is not preloaded")

	// Backend session errors.
	ErrSessionExpired = errors.New("session expired")
)
