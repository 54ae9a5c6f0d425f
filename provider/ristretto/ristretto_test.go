package ristretto

import (
	"context"
	"testing"
	"time"
)

func newTestProvider(t *testing.T) *Provider {
	t.Helper()
	p, err := New(Config{NumCounters: 1000, MaxCost: 100})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = p.Close(context.Background()) })
	return p
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected error for zero config")
	}
}

func TestSetThenGetIsVisible(t *testing.T) {
	ctx := context.Background()
	p := newTestProvider(t)

	ok, err := p.Set(ctx, "k", []byte("v"), 1, time.Minute)
	if err != nil || !ok {
		t.Fatalf("Set: ok=%v err=%v", ok, err)
	}
	v, ok, err := p.Get(ctx, "k")
	if err != nil || !ok || string(v) != "v" {
		t.Fatalf("Get: ok=%v v=%q err=%v", ok, v, err)
	}
}

func TestExpiredEntryMisses(t *testing.T) {
	ctx := context.Background()
	p := newTestProvider(t)

	if ok, _ := p.Set(ctx, "k", []byte("v"), 1, 50*time.Millisecond); !ok {
		t.Fatal("set rejected")
	}
	time.Sleep(80 * time.Millisecond)
	if _, ok, _ := p.Get(ctx, "k"); ok {
		t.Fatalf("expected miss after ttl")
	}
}

func TestNegativeTTLMeansNoExpiry(t *testing.T) {
	ctx := context.Background()
	p := newTestProvider(t)

	if ok, _ := p.Set(ctx, "k", []byte("v"), 1, -1); !ok {
		t.Fatal("set with negative ttl should be stored without expiry")
	}
	if _, ok, _ := p.Get(ctx, "k"); !ok {
		t.Fatalf("expected hit")
	}
}

func TestDel(t *testing.T) {
	ctx := context.Background()
	p := newTestProvider(t)

	_, _ = p.Set(ctx, "k", []byte("v"), 1, 0)
	if err := p.Del(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := p.Get(ctx, "k"); ok {
		t.Fatalf("expected miss after Del")
	}
}
