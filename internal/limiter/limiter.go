// Package limiter defines interfaces and implementations for push rate limiting.
package limiter

import (
	"context"
	"time"
)

// Limiter throttles sync pushes per (user, device) and applies temporary
// blocks to misbehaving devices.
type Limiter interface {
	// Allow reports whether pushes are currently allowed and optional retry-after.
	Allow(ctx context.Context, userID, deviceID string) (bool, time.Duration, error)
	// Record counts one push; may place a temporary block when the window
	// budget is exhausted.
	Record(ctx context.Context, userID, deviceID string) (bool, time.Duration, error)
}

// Nop is a pass-through limiter for deployments without throttling.
type Nop struct{}

// Allow always permits.
func (Nop) Allow(context.Context, string, string) (bool, time.Duration, error) {
	return true, 0, nil
}

// Record never blocks.
func (Nop) Record(context.Context, string, string) (bool, time.Duration, error) {
	return false, 0, nil
}
