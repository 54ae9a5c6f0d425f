package flightcache

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestPayloadDecode(t *testing.T) {
	cases := []struct {
		name       string
		in         Payload
		structured bool
	}{
		{"object", Payload(`{"a":1}`), true},
		{"number", Payload(`42`), true},
		{"raw", Payload("\x01\x02binary"), false},
		{"empty", Payload(nil), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := tc.in.Decode()
			if d.Structured != tc.structured {
				t.Fatalf("structured=%v want %v", d.Structured, tc.structured)
			}
			if string(d.Raw) != string(tc.in) {
				t.Fatalf("raw bytes must always be kept")
			}
		})
	}

	d := Payload(`{"a":1}`).Decode()
	if m, ok := d.Doc.(map[string]any); !ok || m["a"] != float64(1) {
		t.Fatalf("doc: %#v", d.Doc)
	}
}

func TestDescriptorJSON(t *testing.T) {
	d := newDescriptor(KindShared, 2*time.Second, 500*time.Millisecond, map[string]string{"addr": "redis:6379"})
	raw, err := json.Marshal(d)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"kind":"shared","ttl":2000,"timeout":500,"params":{"addr":"redis:6379"}}`
	if string(raw) != want {
		t.Fatalf("got %s\nwant %s", raw, want)
	}

	var back Descriptor
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatal(err)
	}
	if back.Kind() != KindShared || back.TTL() != 2*time.Second || back.Timeout() != 500*time.Millisecond {
		t.Fatalf("round trip: %s", raw)
	}

	p := back.Params()
	p["addr"] = "tampered"
	if back.Params()["addr"] != "redis:6379" {
		t.Fatalf("Params must return a copy")
	}
}

func TestBackendErrorMatching(t *testing.T) {
	cause := errors.New("connection refused")
	err := error(&BackendError{Op: "get", Key: "k", Err: cause})

	if !errors.Is(err, ErrBackendUnavailable) || !errors.Is(err, cause) {
		t.Fatalf("errors.Is must match both sentinel and cause")
	}
	if got := err.Error(); got != `flightcache: get "k": backend unavailable: connection refused` {
		t.Fatalf("message: %s", got)
	}
}

func TestResolveTTL(t *testing.T) {
	def := time.Minute
	cases := map[time.Duration]time.Duration{
		0:           def,
		NoExpiry:    0,
		time.Second: time.Second,
	}
	for in, want := range cases {
		if got := resolveTTL(in, def); got != want {
			t.Fatalf("resolveTTL(%v)=%v want %v", in, got, want)
		}
	}
}

func TestPollUntilClampsToDeadline(t *testing.T) {
	var checks int
	start := time.Now()
	_, ok, err := pollUntil(context.Background(), 80*time.Millisecond, time.Hour, nil, func() (Payload, bool, error) {
		checks++
		return nil, false, nil
	})
	if ok || err != nil {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("interval longer than the timeout must be clamped, took %v", elapsed)
	}
	if checks != 2 {
		t.Fatalf("expected a check at start and one at the deadline, got %d", checks)
	}
}

func TestPollUntilWake(t *testing.T) {
	wake := make(chan struct{}, 1)
	var ready atomic.Bool
	go func() {
		time.Sleep(20 * time.Millisecond)
		ready.Store(true)
		wake <- struct{}{}
	}()

	start := time.Now()
	p, ok, _ := pollUntil(context.Background(), time.Minute, time.Minute, wake, func() (Payload, bool, error) {
		if ready.Load() {
			return Payload("v"), true, nil
		}
		return nil, false, nil
	})
	if !ok || p.String() != "v" || time.Since(start) > 5*time.Second {
		t.Fatalf("wake should end the sleep early: ok=%v p=%q", ok, p)
	}
}

func TestWaitersNotifyOnlyMatchingKey(t *testing.T) {
	w := newWaiters()
	a := w.add("a")
	b := w.add("b")

	w.notify("a")
	w.notify("a") // coalesced, must not block

	select {
	case <-a:
	default:
		t.Fatalf("waiter on a not notified")
	}
	select {
	case <-b:
		t.Fatalf("waiter on b notified for a")
	default:
	}

	w.remove("a", a)
	w.remove("b", b)
	if len(w.m) != 0 {
		t.Fatalf("registry not cleaned up: %v", w.m)
	}
}
