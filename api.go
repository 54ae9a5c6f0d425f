package flightcache

import (
	"context"
	"encoding/json"
	"maps"
	"time"
)

// NoExpiry passed as a ttl stores a value without expiry.
// A zero ttl means "use the backend default".
const NoExpiry time.Duration = -1

const (
	DefaultTTL          = 10 * time.Minute
	DefaultTimeout      = 30 * time.Second
	DefaultPollInterval = time.Second
	DefaultTopic        = "flightcache:keychanged"
)

// Backend is the storage + coordination abstraction under Flight and
// session.Session. LocalBackend serves a single process; SharedBackend
// coordinates every process that talks to the same Redis.
//
// Contract:
//   - Concurrency: implementations must be safe for concurrent use.
//   - Errors: only shared-store failures are returned (as *BackendError
//     wrapping ErrBackendUnavailable). Misses are (nil, false, nil).
type Backend interface {
	// Get returns the value for key. The shared variant falls back to the
	// shared store on a local miss and keeps a local copy of what it finds.
	Get(ctx context.Context, key string) (Payload, bool, error)

	// Save stores value for ttl (0 => backend default, NoExpiry => never expires)
	// and, for the shared variant, tells other processes the key changed.
	Save(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Clear drops the process-local copy only.
	Clear(ctx context.Context, key string) error

	// RequestRenew claims the renew lock of key for identity during lease.
	RequestRenew(ctx context.Context, key, identity string, lease time.Duration) (bool, error)

	// FinishRenew releases the renew lock if identity still holds it.
	FinishRenew(ctx context.Context, key, identity string) error

	// Wait blocks until key has a value or timeout elapses (then it reports a miss).
	Wait(ctx context.Context, key string, timeout time.Duration) (Payload, bool, error)

	// Describe reports which store the backend talks to.
	Describe() Descriptor

	Close(ctx context.Context) error
}

type Kind string

const (
	KindLocal  Kind = "local"
	KindShared Kind = "shared"
)

// Descriptor is read-only metadata about a backend, meant to be handed to an
// out-of-process participant (e.g. a two-factor callback running elsewhere)
// so it can reach the same store.
type Descriptor struct {
	kind    Kind
	ttl     time.Duration
	timeout time.Duration
	params  map[string]string
}

func newDescriptor(kind Kind, ttl, timeout time.Duration, params map[string]string) Descriptor {
	return Descriptor{kind: kind, ttl: ttl, timeout: timeout, params: maps.Clone(params)}
}

func (d Descriptor) Kind() Kind             { return d.kind }
func (d Descriptor) TTL() time.Duration     { return d.ttl }
func (d Descriptor) Timeout() time.Duration { return d.timeout }

// Params returns a copy of the connection parameters.
func (d Descriptor) Params() map[string]string { return maps.Clone(d.params) }

type descriptorJSON struct {
	Kind      Kind              `json:"kind"`
	TTLMS     int64             `json:"ttl"`
	TimeoutMS int64             `json:"timeout"`
	Params    map[string]string `json:"params,omitempty"`
}

// MarshalJSON encodes durations in milliseconds.
func (d Descriptor) MarshalJSON() ([]byte, error) {
	return json.Marshal(descriptorJSON{
		Kind:      d.kind,
		TTLMS:     d.ttl.Milliseconds(),
		TimeoutMS: d.timeout.Milliseconds(),
		Params:    d.params,
	})
}

func (d *Descriptor) UnmarshalJSON(b []byte) error {
	var dj descriptorJSON
	if err := json.Unmarshal(b, &dj); err != nil {
		return err
	}
	*d = newDescriptor(dj.Kind, time.Duration(dj.TTLMS)*time.Millisecond,
		time.Duration(dj.TimeoutMS)*time.Millisecond, dj.Params)
	return nil
}
