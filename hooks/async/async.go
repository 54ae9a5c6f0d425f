// Package asynchook moves flightcache.Hooks calls off the hot path.
//
//	raw := sloghook.New(slog.Default(), sloghook.Options{SelfHealEvery: 10})
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	b, _ := flightcache.NewShared(ctx, flightcache.SharedOptions{Client: rdb, Hooks: hooks})
//
// Events are dropped, never blocked on, when the queue is full.
package asynchook

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/flightcache"
)

type Hooks struct {
	inner   flightcache.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	closed  atomic.Bool
	dropped atomic.Uint64
}

var _ flightcache.Hooks = (*Hooks)(nil)

func New(inner flightcache.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains queued events and stops the workers. Events sent after Close
// are dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.closed.Store(true)
		close(h.q)
		h.wg.Wait()
	})
}

// Dropped reports how many events were discarded.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	if h.closed.Load() {
		h.dropped.Add(1)
		return
	}
	defer func() {
		// lost a race with Close: send on closed channel
		if recover() != nil {
			h.dropped.Add(1)
		}
	}()
	select {
	case h.q <- f:
	default:
		h.dropped.Add(1)
	}
}

func (h *Hooks) RenewGranted(k string)   { h.try(func() { h.inner.RenewGranted(k) }) }
func (h *Hooks) RenewContended(k string) { h.try(func() { h.inner.RenewContended(k) }) }
func (h *Hooks) WaitTimedOut(k string, d time.Duration) {
	h.try(func() { h.inner.WaitTimedOut(k, d) })
}
func (h *Hooks) ComputeFailed(k string, err error) { h.try(func() { h.inner.ComputeFailed(k, err) }) }
func (h *Hooks) SelfHeal(k, r string)              { h.try(func() { h.inner.SelfHeal(k, r) }) }
func (h *Hooks) ProviderSetRejected(k string)      { h.try(func() { h.inner.ProviderSetRejected(k) }) }
func (h *Hooks) Refreshed(k string, found bool)    { h.try(func() { h.inner.Refreshed(k, found) }) }
func (h *Hooks) SubscriptionLost(err error)        { h.try(func() { h.inner.SubscriptionLost(err) }) }
func (h *Hooks) BackendError(op string, err error) { h.try(func() { h.inner.BackendError(op, err) }) }
func (h *Hooks) SessionRenewed(name string, err error) {
	h.try(func() { h.inner.SessionRenewed(name, err) })
}
func (h *Hooks) SessionRetriesExhausted(method, path string) {
	h.try(func() { h.inner.SessionRetriesExhausted(method, path) })
}
