package flightcache

import (
	"context"
	"fmt"
	"time"

	"github.com/unkn0wn-root/flightcache/lease"
	pr "github.com/unkn0wn-root/flightcache/provider"
	"github.com/unkn0wn-root/flightcache/provider/lru"
)

// LocalOptions configure a single-process backend. All fields are optional.
type LocalOptions struct {
	Store   pr.Provider   // nil => lru.New with lru.DefaultCapacity entries
	TTL     time.Duration // default entry lifetime; 0 => DefaultTTL
	Timeout time.Duration // renew lease / wait bound; 0 => DefaultTimeout

	// PollInterval is how often Wait checks the store while another
	// goroutine holds a lease. 0 => DefaultPollInterval/10.
	PollInterval time.Duration

	// Leases, when set, gives RequestRenew real in-process leases (see
	// lease.Local). Without it every RequestRenew is granted: a Flight already
	// collapses concurrent callers of its own keys.
	Leases lease.Locker

	Logger Logger // nil => NopLogger
	Hooks  Hooks  // nil => NopHooks
}

// LocalBackend keeps everything in a process-local store.
type LocalBackend struct {
	store   pr.Provider
	ttl     time.Duration
	timeout time.Duration
	poll    time.Duration
	leases  lease.Locker
	log     Logger
	hooks   Hooks
	desc    Descriptor
}

var _ Backend = (*LocalBackend)(nil)

func NewLocal(opts LocalOptions) *LocalBackend {
	b := &LocalBackend{
		store:   opts.Store,
		ttl:     coalesce(opts.TTL, DefaultTTL),
		timeout: coalesce(opts.Timeout, DefaultTimeout),
		poll:    coalesce(opts.PollInterval, DefaultPollInterval/10),
		leases:  opts.Leases,
		log:     coalesce[Logger](opts.Logger, NopLogger{}),
		hooks:   coalesce[Hooks](opts.Hooks, NopHooks{}),
	}
	if b.store == nil {
		b.store = lru.New(lru.Config{})
	}
	b.desc = newDescriptor(KindLocal, b.ttl, b.timeout, nil)
	return b
}

func (b *LocalBackend) Get(ctx context.Context, key string) (Payload, bool, error) {
	v, ok, err := b.store.Get(ctx, key)
	if err != nil {
		b.log.Warn("local store get failed", Fields{"key": key, "err": err})
		return nil, false, nil
	}
	if !ok {
		return nil, false, nil
	}
	return Payload(v), true, nil
}

func (b *LocalBackend) Save(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ok, err := b.store.Set(ctx, key, value, int64(len(value)), resolveTTL(ttl, b.ttl))
	if err != nil {
		return fmt.Errorf("flightcache: local save %q: %w", key, err)
	}
	if !ok {
		b.hooks.ProviderSetRejected(key)
		b.log.Debug("local store rejected write", Fields{"key": key})
	}
	return nil
}

func (b *LocalBackend) Clear(ctx context.Context, key string) error {
	return b.store.Del(ctx, key)
}

func (b *LocalBackend) RequestRenew(ctx context.Context, key, identity string, leaseFor time.Duration) (bool, error) {
	if b.leases == nil {
		return true, nil
	}
	return b.leases.Acquire(ctx, key, identity, leaseFor)
}

func (b *LocalBackend) FinishRenew(ctx context.Context, key, identity string) error {
	if b.leases == nil {
		return nil
	}
	_, err := b.leases.Release(ctx, key, identity)
	return err
}

// Wait is Get: without a locker nobody else can be renewing. With one, the
// holder lives in this process and the caller polls the local store every
// PollInterval.
func (b *LocalBackend) Wait(ctx context.Context, key string, timeout time.Duration) (Payload, bool, error) {
	if b.leases == nil {
		return b.Get(ctx, key)
	}
	return pollUntil(ctx, timeout, b.poll, nil, func() (Payload, bool, error) {
		return b.Get(ctx, key)
	})
}

func (b *LocalBackend) Describe() Descriptor { return b.desc }

func (b *LocalBackend) Close(ctx context.Context) error {
	if b.leases != nil {
		_ = b.leases.Close(ctx)
	}
	return b.store.Close(ctx)
}
