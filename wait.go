package flightcache

import (
	"context"
	"sync"
	"time"
)

// pollUntil calls check until it reports a value, timeout elapses or ctx ends.
// Each sleep lasts at most interval and never runs past the deadline; a
// signal on wake (nil ok) cuts it short. check runs once more at the deadline.
func pollUntil(ctx context.Context, timeout, interval time.Duration, wake <-chan struct{}, check func() (Payload, bool, error)) (Payload, bool, error) {
	deadline := time.Now().Add(timeout)
	for {
		p, ok, err := check()
		if err != nil || ok {
			return p, ok, err
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, false, nil
		}
		t := time.NewTimer(min(interval, remaining))
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, false, ctx.Err()
		case <-wake:
			t.Stop()
		case <-t.C:
		}
	}
}

// waiters lets the invalidation channel wake Wait calls blocked on a key.
type waiters struct {
	mu sync.Mutex
	m  map[string]map[chan struct{}]struct{}
}

func newWaiters() *waiters {
	return &waiters{m: make(map[string]map[chan struct{}]struct{})}
}

func (w *waiters) add(key string) chan struct{} {
	ch := make(chan struct{}, 1)
	w.mu.Lock()
	set, ok := w.m[key]
	if !ok {
		set = make(map[chan struct{}]struct{})
		w.m[key] = set
	}
	set[ch] = struct{}{}
	w.mu.Unlock()
	return ch
}

func (w *waiters) remove(key string, ch chan struct{}) {
	w.mu.Lock()
	if set, ok := w.m[key]; ok {
		delete(set, ch)
		if len(set) == 0 {
			delete(w.m, key)
		}
	}
	w.mu.Unlock()
}

func (w *waiters) notify(key string) {
	w.mu.Lock()
	for ch := range w.m[key] {
		select {
		case ch <- struct{}{}:
		default: // already pending
		}
	}
	w.mu.Unlock()
}
