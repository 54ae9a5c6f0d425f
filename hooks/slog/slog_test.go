package sloghook

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func records(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	sc := bufio.NewScanner(buf)
	for sc.Scan() {
		var rec map[string]any
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			t.Fatalf("bad record %q: %v", sc.Text(), err)
		}
		out = append(out, rec)
	}
	return out
}

func newLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestRedactsKeysByDefault(t *testing.T) {
	var buf bytes.Buffer
	h := New(newLogger(&buf), Options{})
	h.ComputeFailed("report:acct-123", errors.New("boom"))

	recs := records(t, &buf)
	if len(recs) != 1 {
		t.Fatalf("records: %d", len(recs))
	}
	key, _ := recs[0]["key"].(string)
	if strings.Contains(key, "acct-123") || len(key) != 16 {
		t.Fatalf("key not redacted: %q", key)
	}
	if recs[0]["msg"] != "flightcache.compute_failed" || recs[0]["err"] != "boom" {
		t.Fatalf("record: %v", recs[0])
	}
}

func TestCustomRedactAndSampling(t *testing.T) {
	var buf bytes.Buffer
	h := New(newLogger(&buf), Options{
		SelfHealEvery: 3,
		Redact:        func(k string) string { return "<" + k + ">" },
	})
	for i := 0; i < 9; i++ {
		h.SelfHeal("k", "value_decode")
	}
	recs := records(t, &buf)
	if len(recs) != 3 {
		t.Fatalf("expected every 3rd self-heal, got %d", len(recs))
	}
	if recs[0]["key"] != "<k>" {
		t.Fatalf("custom redactor not used: %v", recs[0])
	}
}

func TestNilLoggerIsSilent(t *testing.T) {
	h := New(nil, Options{})
	h.BackendError("get", errors.New("x"))
	h.SessionRenewed("api", nil)
}

func TestSessionEvents(t *testing.T) {
	var buf bytes.Buffer
	h := New(newLogger(&buf), Options{})
	h.SessionRenewed("api", nil)
	h.SessionRenewed("api", errors.New("declined"))
	h.SessionRetriesExhausted("GET", "/v1/apps")

	recs := records(t, &buf)
	want := []string{"flightcache.session_renewed", "flightcache.session_renew_failed", "flightcache.session_retries_exhausted"}
	if len(recs) != len(want) {
		t.Fatalf("records: %v", recs)
	}
	for i, w := range want {
		if recs[i]["msg"] != w {
			t.Fatalf("record %d: %v", i, recs[i])
		}
	}
}
