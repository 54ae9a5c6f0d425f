package flightcache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// recHooks counts events; refreshed receives every Refreshed key.
type recHooks struct {
	NopHooks

	mu     sync.Mutex
	counts map[string]int

	refreshed chan string
	lost      chan error
}

func newRecHooks() *recHooks {
	return &recHooks{
		counts:    make(map[string]int),
		refreshed: make(chan string, 64),
		lost:      make(chan error, 64),
	}
}

func (h *recHooks) inc(name string) {
	h.mu.Lock()
	h.counts[name]++
	h.mu.Unlock()
}

func (h *recHooks) count(name string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.counts[name]
}

func (h *recHooks) RenewGranted(string)                { h.inc("granted") }
func (h *recHooks) RenewContended(string)              { h.inc("contended") }
func (h *recHooks) WaitTimedOut(string, time.Duration) { h.inc("wait_timeout") }
func (h *recHooks) ComputeFailed(string, error)        { h.inc("compute_failed") }
func (h *recHooks) SelfHeal(string, string)            { h.inc("self_heal") }
func (h *recHooks) BackendError(string, error)         { h.inc("backend_error") }
func (h *recHooks) ProviderSetRejected(string)         { h.inc("rejected") }

func (h *recHooks) Refreshed(key string, _ bool) {
	h.inc("refreshed")
	select {
	case h.refreshed <- key:
	default:
	}
}

func (h *recHooks) SubscriptionLost(err error) {
	h.inc("subscription_lost")
	select {
	case h.lost <- err:
	default:
	}
}

func newMiniredis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	m := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return m, rdb
}

func newTestShared(t *testing.T, addr string, opt func(*SharedOptions)) *SharedBackend {
	t.Helper()
	opts := SharedOptions{
		Client:             redis.NewClient(&redis.Options{Addr: addr}),
		CloseClient:        true,
		PollInterval:       20 * time.Millisecond,
		StopGrace:          500 * time.Millisecond,
		ResubscribeBackoff: 20 * time.Millisecond,
	}
	if opt != nil {
		opt(&opts)
	}
	b, err := NewShared(context.Background(), opts)
	if err != nil {
		t.Fatalf("NewShared: %v", err)
	}
	t.Cleanup(func() { _ = b.Close(context.Background()) })
	return b
}

// waitRefreshed blocks until key is refreshed through the invalidation channel.
func waitRefreshed(t *testing.T, h *recHooks, key string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case k := <-h.refreshed:
			if k == key {
				return
			}
		case <-deadline:
			t.Fatalf("no refresh for %q", key)
		}
	}
}
