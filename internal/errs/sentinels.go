// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrVersionConflict indicates optimistic concurrency failure (stale version).
	ErrVersionConflict = errors.New("version conflict")

	// ErrValidation indicates a malformed or out-of-range input rejected at the boundary.
	ErrValidation = errors.New("validation")

	// ErrRateLimited indicates a device temporarily blocked from pushing.
	ErrRateLimited = errors.New("rate limited")
)
