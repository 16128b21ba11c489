package ports

import "context"

// LoginThrottle limits repeated failed login attempts per identifier.
type LoginThrottle interface {
	// Allow reports whether another attempt is permitted right now.
	Allow(ctx context.Context, identifier string) (bool, error)
	// RecordFailure notes one failed attempt.
	RecordFailure(ctx context.Context, identifier string) error
	// Reset clears the failure count after a successful login.
	Reset(ctx context.Context, identifier string) error
}
