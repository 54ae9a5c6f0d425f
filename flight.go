package flightcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/unkn0wn-root/flightcache/codec"
	"github.com/unkn0wn-root/flightcache/internal/util"
)

// Args fill the {name} placeholders of a Flight key template.
type Args map[string]string

// FlightOptions configure a Flight. Backend and Key are required.
type FlightOptions[V any] struct {
	Backend Backend
	Key     string         // template, e.g. "report:{account}:{day}"
	Codec   codec.Codec[V] // nil => codec.JSON[V]
	Default V              // returned when no value could be obtained
	TTL     time.Duration  // 0 => backend default, NoExpiry => never expires
	Timeout time.Duration  // renew lease and wait bound; 0 => Backend.Describe().Timeout()

	Logger Logger // nil => NopLogger
	Hooks  Hooks  // nil => NopHooks
}

// Flight caches the result of an expensive computation under a key template
// and guarantees at most one computation per key at a time: across
// goroutines through singleflight, across processes through the backend's
// renew lock. Callers that lose the race get the winner's result, or Default
// if it does not show up within Timeout.
type Flight[V any] struct {
	backend Backend
	tmpl    string
	names   []string
	codec   codec.Codec[V]
	def     V
	ttl     time.Duration
	timeout time.Duration
	log     Logger
	hooks   Hooks

	group singleflight.Group
}

func NewFlight[V any](opts FlightOptions[V]) (*Flight[V], error) {
	if opts.Backend == nil {
		return nil, errors.New("flightcache: flight needs a backend")
	}
	if opts.Key == "" {
		return nil, errors.New("flightcache: flight needs a key template")
	}
	f := &Flight[V]{
		backend: opts.Backend,
		tmpl:    opts.Key,
		names:   util.Placeholders(opts.Key),
		codec:   opts.Codec,
		def:     opts.Default,
		ttl:     opts.TTL,
		timeout: coalesce(opts.Timeout, opts.Backend.Describe().Timeout()),
		log:     coalesce[Logger](opts.Logger, NopLogger{}),
		hooks:   coalesce[Hooks](opts.Hooks, NopHooks{}),
	}
	if f.codec == nil {
		f.codec = codec.JSON[V]{}
	}
	if f.timeout <= 0 {
		f.timeout = DefaultTimeout
	}
	return f, nil
}

// Key expands the template with args.
func (f *Flight[V]) Key(args Args) (string, error) {
	for _, name := range f.names {
		if _, ok := args[name]; !ok {
			return "", fmt.Errorf("flightcache: key %q: missing argument %q", f.tmpl, name)
		}
	}
	return util.ExpandKey(f.tmpl, args), nil
}

// Get returns the cached value for args, computing and saving it when absent.
//
// A failed compute releases the renew lock, caches nothing and returns
// (Default, err). When the computed value cannot be saved it is returned
// together with the error. Backend failures come back with Default.
// Losing the renew race is never an error.
//
// Concurrent callers of the same key share the first caller's ctx.
func (f *Flight[V]) Get(ctx context.Context, args Args, compute func(context.Context) (V, error)) (V, error) {
	key, err := f.Key(args)
	if err != nil {
		return f.def, err
	}
	if v, ok, err := f.lookup(ctx, key); err != nil || ok {
		if err != nil {
			return f.def, err
		}
		return v, nil
	}

	res, err, _ := f.group.Do(key, func() (any, error) {
		return f.renew(ctx, key, compute)
	})
	v, ok := res.(V)
	if !ok {
		return f.def, err
	}
	return v, err
}

// Invalidate drops this process's copy of the value for args.
func (f *Flight[V]) Invalidate(ctx context.Context, args Args) error {
	key, err := f.Key(args)
	if err != nil {
		return err
	}
	return f.backend.Clear(ctx, key)
}

func (f *Flight[V]) renew(ctx context.Context, key string, compute func(context.Context) (V, error)) (V, error) {
	// a previous singleflight round may have filled it
	if v, ok, err := f.lookup(ctx, key); err != nil || ok {
		if err != nil {
			return f.def, err
		}
		return v, nil
	}

	identity := uuid.NewString()
	granted, err := f.backend.RequestRenew(ctx, key, identity, f.timeout)
	if err != nil {
		return f.def, err
	}
	if !granted {
		return f.await(ctx, key)
	}

	f.hooks.RenewGranted(key)
	f.log.Debug("renew granted", Fields{"key": key, "identity": identity})
	defer func() {
		if err := f.backend.FinishRenew(context.WithoutCancel(ctx), key, identity); err != nil {
			f.log.Warn("finish renew failed", Fields{"key": key, "identity": identity, "err": err})
		}
	}()

	v, err := compute(ctx)
	if err != nil {
		f.hooks.ComputeFailed(key, err)
		f.log.Warn("compute failed", Fields{"key": key, "err": err})
		return f.def, fmt.Errorf("flightcache: compute %q: %w", key, err)
	}
	b, err := f.codec.Encode(v)
	if err != nil {
		return v, fmt.Errorf("flightcache: encode %q: %w", key, err)
	}
	if err := f.backend.Save(ctx, key, b, f.ttl); err != nil {
		return v, err
	}
	return v, nil
}

// await waits for another holder's result.
func (f *Flight[V]) await(ctx context.Context, key string) (V, error) {
	f.hooks.RenewContended(key)
	start := time.Now()
	p, ok, err := f.backend.Wait(ctx, key, f.timeout)
	if err != nil {
		return f.def, err
	}
	if !ok {
		waited := time.Since(start)
		f.hooks.WaitTimedOut(key, waited)
		f.log.Warn("no value after waiting, using default", Fields{"key": key, "waited": waited})
		return f.def, nil
	}
	v, err := f.codec.Decode(p)
	if err != nil {
		f.heal(ctx, key, err)
		return f.def, nil
	}
	return v, nil
}

func (f *Flight[V]) lookup(ctx context.Context, key string) (V, bool, error) {
	p, ok, err := f.backend.Get(ctx, key)
	if err != nil || !ok {
		return f.def, false, err
	}
	v, err := f.codec.Decode(p)
	if err != nil {
		f.heal(ctx, key, err)
		return f.def, false, nil
	}
	return v, true, nil
}

func (f *Flight[V]) heal(ctx context.Context, key string, cause error) {
	f.hooks.SelfHeal(key, "value_decode")
	f.log.Warn("dropping undecodable value", Fields{"key": key, "err": cause})
	if err := f.backend.Clear(ctx, key); err != nil {
		f.log.Debug("clear after decode failure failed", Fields{"key": key, "err": err})
	}
}
