// Package sloghook logs flightcache.Hooks events through log/slog.
// Keys are redacted (SHA-256 prefix by default) since cache keys often
// carry account or user identifiers.
package sloghook

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/flightcache"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	SelfHealEvery  uint64
	ContendedEvery uint64
	RefreshedEvery uint64
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	selfHealCtr  atomic.Uint64
	contendedCtr atomic.Uint64
	refreshedCtr atomic.Uint64
}

var _ flightcache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n <= 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) RenewGranted(key string) {
	if h.l == nil {
		return
	}
	h.l.Debug("flightcache.renew_granted", "key", h.redact(key))
}

func (h *Hooks) RenewContended(key string) {
	if h.l == nil || !sample(h.opts.ContendedEvery, &h.contendedCtr) {
		return
	}
	h.l.Debug("flightcache.renew_contended", "key", h.redact(key))
}

func (h *Hooks) WaitTimedOut(key string, waited time.Duration) {
	if h.l == nil {
		return
	}
	h.l.Warn("flightcache.wait_timed_out",
		"key", h.redact(key),
		"waited", waited)
}

func (h *Hooks) ComputeFailed(key string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("flightcache.compute_failed",
		"key", h.redact(key),
		"err", err)
}

func (h *Hooks) SelfHeal(key, reason string) {
	if h.l == nil || !sample(h.opts.SelfHealEvery, &h.selfHealCtr) {
		return
	}
	h.l.Debug("flightcache.self_heal",
		"key", h.redact(key),
		"reason", reason)
}

func (h *Hooks) ProviderSetRejected(key string) {
	if h.l == nil {
		return
	}
	h.l.Warn("flightcache.provider_set_rejected", "key", h.redact(key))
}

func (h *Hooks) Refreshed(key string, found bool) {
	if h.l == nil || !sample(h.opts.RefreshedEvery, &h.refreshedCtr) {
		return
	}
	h.l.Debug("flightcache.refreshed",
		"key", h.redact(key),
		"found", found)
}

func (h *Hooks) SubscriptionLost(err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("flightcache.subscription_lost", "err", err)
}

func (h *Hooks) BackendError(op string, err error) {
	if h.l == nil {
		return
	}
	h.l.Error("flightcache.backend_error",
		"op", op,
		"err", err)
}

func (h *Hooks) SessionRenewed(name string, err error) {
	if h.l == nil {
		return
	}
	if err != nil {
		h.l.Warn("flightcache.session_renew_failed",
			"session", name,
			"err", err)
		return
	}
	h.l.Info("flightcache.session_renewed", "session", name)
}

func (h *Hooks) SessionRetriesExhausted(method, path string) {
	if h.l == nil {
		return
	}
	h.l.Error("flightcache.session_retries_exhausted",
		"method", method,
		"path", path)
}
