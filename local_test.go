package flightcache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/unkn0wn-root/flightcache/lease"
	pr "github.com/unkn0wn-root/flightcache/provider"
)

// rejectingProvider refuses every write, like ristretto under pressure.
type rejectingProvider struct{ pr.Provider }

func (rejectingProvider) Set(context.Context, string, []byte, int64, time.Duration) (bool, error) {
	return false, nil
}

type brokenProvider struct{ pr.Provider }

var errBroken = errors.New("broken store")

func (brokenProvider) Get(context.Context, string) ([]byte, bool, error) { return nil, false, errBroken }
func (brokenProvider) Set(context.Context, string, []byte, int64, time.Duration) (bool, error) {
	return false, errBroken
}
func (brokenProvider) Close(context.Context) error { return nil }

func TestLocalSaveGetClear(t *testing.T) {
	ctx := context.Background()
	b := NewLocal(LocalOptions{})
	defer b.Close(ctx)

	if _, ok, err := b.Get(ctx, "k"); ok || err != nil {
		t.Fatalf("expected miss, ok=%v err=%v", ok, err)
	}
	if err := b.Save(ctx, "k", []byte(`{"n":1}`), 0); err != nil {
		t.Fatalf("Save: %v", err)
	}
	p, ok, err := b.Get(ctx, "k")
	if err != nil || !ok || p.String() != `{"n":1}` {
		t.Fatalf("Get: ok=%v p=%q err=%v", ok, p, err)
	}
	if err := b.Clear(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := b.Get(ctx, "k"); ok {
		t.Fatalf("cleared key still present")
	}
}

func TestLocalTTL(t *testing.T) {
	ctx := context.Background()
	b := NewLocal(LocalOptions{})
	defer b.Close(ctx)

	_ = b.Save(ctx, "short", []byte("v"), 30*time.Millisecond)
	_ = b.Save(ctx, "forever", []byte("v"), NoExpiry)
	time.Sleep(50 * time.Millisecond)

	if _, ok, _ := b.Get(ctx, "short"); ok {
		t.Fatalf("short-lived entry should have expired")
	}
	if _, ok, _ := b.Get(ctx, "forever"); !ok {
		t.Fatalf("NoExpiry entry should stay")
	}
}

func TestLocalRenewAlwaysGrantedWithoutLeases(t *testing.T) {
	ctx := context.Background()
	b := NewLocal(LocalOptions{})
	defer b.Close(ctx)

	for _, id := range []string{"a", "b"} {
		ok, err := b.RequestRenew(ctx, "k", id, time.Second)
		if err != nil || !ok {
			t.Fatalf("%s: ok=%v err=%v", id, ok, err)
		}
	}
	if err := b.FinishRenew(ctx, "k", "a"); err != nil {
		t.Fatal(err)
	}

	// Wait degenerates to Get
	start := time.Now()
	if _, ok, _ := b.Wait(ctx, "k", time.Second); ok {
		t.Fatalf("nothing saved, Wait must miss")
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Fatalf("Wait without leases must not block")
	}
}

func TestLocalWithLeases(t *testing.T) {
	ctx := context.Background()
	b := NewLocal(LocalOptions{Leases: lease.NewLocal(0)})
	defer b.Close(ctx)

	if ok, _ := b.RequestRenew(ctx, "k", "a", time.Second); !ok {
		t.Fatalf("first request should be granted")
	}
	if ok, _ := b.RequestRenew(ctx, "k", "b", time.Second); ok {
		t.Fatalf("second identity must be refused while a holds the lock")
	}

	go func() {
		time.Sleep(30 * time.Millisecond)
		_ = b.Save(ctx, "k", []byte("done"), 0)
		_ = b.FinishRenew(ctx, "k", "a")
	}()
	p, ok, err := b.Wait(ctx, "k", time.Second)
	if err != nil || !ok || p.String() != "done" {
		t.Fatalf("Wait: ok=%v p=%q err=%v", ok, p, err)
	}
	if ok, _ := b.RequestRenew(ctx, "k", "b", time.Second); !ok {
		t.Fatalf("lock should be free after FinishRenew")
	}
}

func TestLocalWaitUsesPollInterval(t *testing.T) {
	ctx := context.Background()
	b := NewLocal(LocalOptions{Leases: lease.NewLocal(0), PollInterval: time.Hour})
	defer b.Close(ctx)

	if ok, _ := b.RequestRenew(ctx, "k", "a", time.Second); !ok {
		t.Fatalf("first request should be granted")
	}
	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = b.Save(ctx, "k", []byte("done"), 0)
	}()

	// the only check after the first one happens at the deadline
	start := time.Now()
	p, ok, err := b.Wait(ctx, "k", 400*time.Millisecond)
	if err != nil || !ok || p.String() != "done" {
		t.Fatalf("Wait: ok=%v p=%q err=%v", ok, p, err)
	}
	if elapsed := time.Since(start); elapsed < 350*time.Millisecond {
		t.Fatalf("Wait polled sooner than PollInterval allows: %v", elapsed)
	}
}

func TestLocalRejectedWriteFiresHook(t *testing.T) {
	ctx := context.Background()
	h := newRecHooks()
	b := NewLocal(LocalOptions{Store: rejectingProvider{}, Hooks: h})

	if err := b.Save(ctx, "k", []byte("v"), 0); err != nil {
		t.Fatalf("rejected write is not an error: %v", err)
	}
	if n := h.count("rejected"); n != 1 {
		t.Fatalf("ProviderSetRejected calls: %d", n)
	}
}

func TestLocalStoreErrors(t *testing.T) {
	ctx := context.Background()
	b := NewLocal(LocalOptions{Store: brokenProvider{}})

	if _, ok, err := b.Get(ctx, "k"); ok || err != nil {
		t.Fatalf("read errors of a local store are a miss: ok=%v err=%v", ok, err)
	}
	if err := b.Save(ctx, "k", nil, 0); !errors.Is(err, errBroken) {
		t.Fatalf("Save should surface the store error, got %v", err)
	}
}

func TestLocalDescribe(t *testing.T) {
	b := NewLocal(LocalOptions{TTL: time.Minute})
	d := b.Describe()
	if d.Kind() != KindLocal || d.TTL() != time.Minute || d.Timeout() != DefaultTimeout {
		t.Fatalf("descriptor: %+v", d)
	}
	if len(d.Params()) != 0 {
		t.Fatalf("local descriptor has no params, got %v", d.Params())
	}
}
