package flightcache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/flightcache/lease"
	pr "github.com/unkn0wn-root/flightcache/provider"
	"github.com/unkn0wn-root/flightcache/provider/lru"
	prredis "github.com/unkn0wn-root/flightcache/provider/redis"
)

// lockNamespace keeps renew locks apart from the values they guard.
const lockNamespace = "renew:"

// SharedOptions configure a backend shared between processes through Redis.
// Only Client is required.
type SharedOptions struct {
	Client      redis.UniversalClient
	CloseClient bool // set true only if the backend exclusively owns the client

	Local        pr.Provider   // process-local copies; nil => lru.New
	TTL          time.Duration // default entry lifetime; 0 => DefaultTTL
	Timeout      time.Duration // renew lease / wait bound; 0 => DefaultTimeout
	PollInterval time.Duration // Wait polling cadence; 0 => DefaultPollInterval
	Prefix       string        // prepended to every key in Redis
	Topic        string        // key-change topic; "" => DefaultTopic

	// DescriptorParams are merged into Describe().Params(). Connection
	// secrets are never copied from the client; add them here if a remote
	// participant needs them.
	DescriptorParams map[string]string

	StopGrace          time.Duration // how long Close waits for the shutdown sentinel; 0 => 2s
	ResubscribeBackoff time.Duration // pause after a lost subscription; 0 => 500ms

	Logger Logger // nil => NopLogger
	Hooks  Hooks  // nil => NopHooks
}

// SharedBackend keeps a process-local copy of values in front of Redis,
// serializes renewals with Redis leases and refreshes local copies when
// another process saves a key.
type SharedBackend struct {
	local   pr.Provider
	remote  *prredis.Redis
	locker  *lease.Redis
	rdb     redis.UniversalClient
	prefix  string
	topic   string
	ttl     time.Duration
	timeout time.Duration
	poll    time.Duration
	log     Logger
	hooks   Hooks
	desc    Descriptor

	waiters *waiters
	inv     *invalidation
}

var _ Backend = (*SharedBackend)(nil)

// NewShared connects the backend and starts its invalidation channel.
// The subscription is confirmed before NewShared returns when Redis is
// reachable; otherwise the channel keeps retrying in the background.
func NewShared(ctx context.Context, opts SharedOptions) (*SharedBackend, error) {
	if opts.Client == nil {
		return nil, prredis.ErrNilClient
	}
	remote, err := prredis.New(prredis.Config{
		Client:      opts.Client,
		Prefix:      opts.Prefix,
		CloseClient: opts.CloseClient,
	})
	if err != nil {
		return nil, err
	}

	b := &SharedBackend{
		local:   opts.Local,
		remote:  remote,
		locker:  lease.NewRedis(opts.Client, opts.Prefix+lockNamespace),
		rdb:     opts.Client,
		prefix:  opts.Prefix,
		topic:   coalesce(opts.Topic, DefaultTopic),
		ttl:     coalesce(opts.TTL, DefaultTTL),
		timeout: coalesce(opts.Timeout, DefaultTimeout),
		poll:    coalesce(opts.PollInterval, DefaultPollInterval),
		log:     coalesce[Logger](opts.Logger, NopLogger{}),
		hooks:   coalesce[Hooks](opts.Hooks, NopHooks{}),
		waiters: newWaiters(),
	}
	if b.local == nil {
		b.local = lru.New(lru.Config{})
	}
	b.desc = newDescriptor(KindShared, b.ttl, b.timeout, sharedParams(opts))

	b.inv = startInvalidation(ctx, invalidationConfig{
		rdb:     opts.Client,
		topic:   b.topic,
		grace:   coalesce(opts.StopGrace, 2*time.Second),
		backoff: coalesce(opts.ResubscribeBackoff, 500*time.Millisecond),
		refresh: b.refresh,
		log:     b.log,
		hooks:   b.hooks,
	})
	return b, nil
}

func sharedParams(opts SharedOptions) map[string]string {
	params := make(map[string]string, len(opts.DescriptorParams)+5)
	if c, ok := opts.Client.(*redis.Client); ok {
		o := c.Options()
		params["addr"] = o.Addr
		params["db"] = strconv.Itoa(o.DB)
		if o.Username != "" {
			params["username"] = o.Username
		}
	}
	if opts.Prefix != "" {
		params["prefix"] = opts.Prefix
	}
	params["topic"] = coalesce(opts.Topic, DefaultTopic)
	for k, v := range opts.DescriptorParams {
		params[k] = v
	}
	return params
}

func (b *SharedBackend) Get(ctx context.Context, key string) (Payload, bool, error) {
	if v, ok := b.localGet(ctx, key); ok {
		return v, true, nil
	}
	return b.fetch(ctx, key)
}

// fetch reads key from Redis and keeps a local copy that expires no later
// than the shared one (and never later than the default ttl).
func (b *SharedBackend) fetch(ctx context.Context, key string) (Payload, bool, error) {
	raw, remaining, ok, err := b.remote.GetWithTTL(ctx, key)
	if err != nil {
		return nil, false, b.unavailable("get", key, err)
	}
	if !ok {
		return nil, false, nil
	}
	b.localSet(ctx, key, raw, remaining)
	return Payload(raw), true, nil
}

func (b *SharedBackend) Save(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ttl = resolveTTL(ttl, b.ttl)
	b.localSet(ctx, key, value, ttl)
	if _, err := b.remote.Set(ctx, key, value, int64(len(value)), ttl); err != nil {
		return b.unavailable("save", key, err)
	}
	if err := b.rdb.Publish(ctx, b.topic, key).Err(); err != nil {
		return b.unavailable("publish", key, err)
	}
	return nil
}

// Clear does not touch Redis: the next miss may fetch the old value back
// until it expires there.
func (b *SharedBackend) Clear(ctx context.Context, key string) error {
	return b.local.Del(ctx, key)
}

func (b *SharedBackend) RequestRenew(ctx context.Context, key, identity string, leaseFor time.Duration) (bool, error) {
	ok, err := b.locker.Acquire(ctx, key, identity, leaseFor)
	if err != nil {
		return false, b.unavailable("request_renew", key, err)
	}
	return ok, nil
}

func (b *SharedBackend) FinishRenew(ctx context.Context, key, identity string) error {
	released, err := b.locker.Release(ctx, key, identity)
	if err != nil {
		return b.unavailable("finish_renew", key, err)
	}
	if !released {
		b.log.Debug("renew lock no longer held", Fields{"key": key, "identity": identity})
	}
	return nil
}

// Wait polls Redis every PollInterval until key shows up or timeout
// elapses. A key-change notification for key wakes it early.
func (b *SharedBackend) Wait(ctx context.Context, key string, timeout time.Duration) (Payload, bool, error) {
	wake := b.waiters.add(key)
	defer b.waiters.remove(key, wake)
	return pollUntil(ctx, timeout, b.poll, wake, func() (Payload, bool, error) {
		return b.fetch(ctx, key)
	})
}

func (b *SharedBackend) Describe() Descriptor { return b.desc }

// Close stops the invalidation channel, then releases the stores.
func (b *SharedBackend) Close(ctx context.Context) error {
	stopErr := b.inv.Stop(ctx)
	return errors.Join(stopErr, b.local.Close(ctx), b.remote.Close(ctx))
}

// refresh is the invalidation channel's handler for KeyChanged(key).
func (b *SharedBackend) refresh(ctx context.Context, key string) {
	_, found, err := b.fetch(ctx, key)
	if err != nil {
		b.log.Warn("invalidation refresh failed", Fields{"key": key, "err": err})
		return
	}
	b.hooks.Refreshed(key, found)
	if found {
		b.waiters.notify(key)
	}
}

func (b *SharedBackend) localGet(ctx context.Context, key string) (Payload, bool) {
	v, ok, err := b.local.Get(ctx, key)
	if err != nil {
		b.log.Warn("local store get failed", Fields{"key": key, "err": err})
		return nil, false
	}
	return Payload(v), ok
}

// localSet caps local copies at the default ttl so writes made elsewhere
// converge even when the invalidation channel is down.
func (b *SharedBackend) localSet(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 || ttl > b.ttl {
		ttl = b.ttl
	}
	ok, err := b.local.Set(ctx, key, value, int64(len(value)), ttl)
	if err != nil {
		b.log.Warn("local store set failed", Fields{"key": key, "err": err})
		return
	}
	if !ok {
		b.hooks.ProviderSetRejected(key)
	}
}

func (b *SharedBackend) unavailable(op, key string, err error) error {
	b.hooks.BackendError(op, err)
	b.log.Error("shared store "+op+" failed", Fields{"key": key, "err": err})
	return &BackendError{Op: op, Key: key, Err: err}
}

func (b *SharedBackend) String() string {
	return fmt.Sprintf("flightcache.SharedBackend(topic=%s, prefix=%q)", b.topic, b.prefix)
}
