package flightcache

import "time"

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking; they run on hot paths.
// Wrap a slow implementation in hooks/async.
type Hooks interface {
	// This caller won the renew lock and is computing key.
	RenewGranted(key string)
	// Another identity holds the renew lock; this caller waits.
	RenewContended(key string)
	// A waiter gave up after waited and fell back to the default.
	WaitTimedOut(key string, waited time.Duration)
	// The compute function failed; nothing was cached.
	ComputeFailed(key string, err error)

	// A cached value was dropped locally on read.
	// reason ∈ {"value_decode"}
	SelfHeal(key, reason string)
	// A local store returned ok=false on Set (backpressure/eviction).
	ProviderSetRejected(key string)

	// The invalidation channel refreshed key; found=false when the shared
	// store no longer had it.
	Refreshed(key string, found bool)
	// The invalidation subscription dropped; it is being retried.
	SubscriptionLost(err error)
	// A shared-store operation failed.
	BackendError(op string, err error)

	// A session renewed its credentials (err != nil when renewal failed).
	SessionRenewed(name string, err error)
	// A session request ran out of renew-and-retry cycles.
	SessionRetriesExhausted(method, path string)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) RenewGranted(string)                    {}
func (NopHooks) RenewContended(string)                  {}
func (NopHooks) WaitTimedOut(string, time.Duration)     {}
func (NopHooks) ComputeFailed(string, error)            {}
func (NopHooks) SelfHeal(string, string)                {}
func (NopHooks) ProviderSetRejected(string)             {}
func (NopHooks) Refreshed(string, bool)                 {}
func (NopHooks) SubscriptionLost(error)                 {}
func (NopHooks) BackendError(string, error)             {}
func (NopHooks) SessionRenewed(string, error)           {}
func (NopHooks) SessionRetriesExhausted(string, string) {}
