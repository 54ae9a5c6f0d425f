// Package lease implements the renew lock behind flightcache's single-flight
// protocol: a time-bounded, owner-tagged claim on a key.
//
// At most one owner holds a key at any instant. A lease that is never
// released expires on its own, so a crashed holder cannot wedge the key.
// Release only removes a lease still held by the caller, never one some
// other owner acquired after the caller's lease ran out.
package lease

import (
	"context"
	"time"
)

// Locker abstracts where leases live.
// Use Local for in-process leases or Redis for leases shared between processes.
type Locker interface {
	// Acquire claims key for owner during ttl if nobody holds it.
	// Returns false (and no error) when another owner holds the key.
	Acquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	// Release drops the lease if owner still holds it; reports whether it did.
	Release(ctx context.Context, key, owner string) (bool, error)
	// Close releases resources (no-op ok).
	Close(context.Context) error
}
