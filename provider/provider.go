// Package provider defines the value store used by flightcache backends.
//
// A backend keeps its process-local copies in a Provider, and the shared
// backend also talks to the shared store through one (see provider/redis).
//
// Implementations MUST be byte-for-byte transparent: Get returns exactly the
// bytes previously passed to Set for a key. Any internal framing (e.g. the
// expiry header provider/bigcache adds) has to be stripped on the way out.
package provider

import (
	"context"
	"time"
)

// Provider is a minimal byte store with per-entry TTLs.
// Must be safe for concurrent use.
type Provider interface {
	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss or expiry.
	// An expired entry must never be returned.
	// If an IO/remote error happens, return (nil, false, err).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value for ttl; ttl <= 0 means no expiry. May ignore cost if unsupported.
	// Returns ok=false when the store refused the write under pressure.
	Set(ctx context.Context, key string, value []byte, cost int64, ttl time.Duration) (ok bool, err error)

	// Del removes a key. Missing keys are not an error.
	Del(ctx context.Context, key string) error

	// Close releases resources.
	Close(ctx context.Context) error
}
