// Package otelhook records flightcache.Hooks events as OpenTelemetry metrics.
// Keys are not recorded; attributes stay low-cardinality.
package otelhook

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/unkn0wn-root/flightcache"
)

const (
	MetricRenews         = "flightcache.renew.requests"
	MetricWaitTimeouts   = "flightcache.wait.timeouts"
	MetricWaitDuration   = "flightcache.wait.duration_ms"
	MetricComputeErrors  = "flightcache.compute.errors"
	MetricSelfHeals      = "flightcache.self_heals"
	MetricSetRejected    = "flightcache.provider.set_rejected"
	MetricRefreshes      = "flightcache.invalidation.refreshes"
	MetricSubLost        = "flightcache.invalidation.subscription_lost"
	MetricBackendErrors  = "flightcache.backend.errors"
	MetricSessionRenews  = "flightcache.session.renewals"
	MetricSessionExhaust = "flightcache.session.retries_exhausted"
)

type Hooks struct {
	renews         metric.Int64Counter
	waitTimeouts   metric.Int64Counter
	waitDuration   metric.Float64Histogram
	computeErrors  metric.Int64Counter
	selfHeals      metric.Int64Counter
	setRejected    metric.Int64Counter
	refreshes      metric.Int64Counter
	subLost        metric.Int64Counter
	backendErrors  metric.Int64Counter
	sessionRenews  metric.Int64Counter
	sessionExhaust metric.Int64Counter
}

var _ flightcache.Hooks = (*Hooks)(nil)

// New creates the instruments on meter.
func New(meter metric.Meter) (*Hooks, error) {
	h := &Hooks{}
	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
		unit string
	}{
		{&h.renews, MetricRenews, "Renew lock requests by outcome", "{request}"},
		{&h.waitTimeouts, MetricWaitTimeouts, "Waits that ended without a value", "{wait}"},
		{&h.computeErrors, MetricComputeErrors, "Failed computations", "{error}"},
		{&h.selfHeals, MetricSelfHeals, "Cached values dropped on read", "{value}"},
		{&h.setRejected, MetricSetRejected, "Local store writes refused", "{write}"},
		{&h.refreshes, MetricRefreshes, "Local copies refreshed by key-change notifications", "{refresh}"},
		{&h.subLost, MetricSubLost, "Invalidation subscriptions lost", "{event}"},
		{&h.backendErrors, MetricBackendErrors, "Shared store failures by operation", "{error}"},
		{&h.sessionRenews, MetricSessionRenews, "Session credential renewals by outcome", "{renewal}"},
		{&h.sessionExhaust, MetricSessionExhaust, "Session requests that ran out of retries", "{request}"},
	}
	for _, c := range counters {
		ctr, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc), metric.WithUnit(c.unit))
		if err != nil {
			return nil, err
		}
		*c.dst = ctr
	}

	hist, err := meter.Float64Histogram(
		MetricWaitDuration,
		metric.WithDescription("Time spent waiting before giving up"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}
	h.waitDuration = hist
	return h, nil
}

func outcome(v string) metric.AddOption {
	return metric.WithAttributes(attribute.String("outcome", v))
}

func (h *Hooks) RenewGranted(string) {
	h.renews.Add(context.Background(), 1, outcome("granted"))
}

func (h *Hooks) RenewContended(string) {
	h.renews.Add(context.Background(), 1, outcome("contended"))
}

func (h *Hooks) WaitTimedOut(_ string, waited time.Duration) {
	ctx := context.Background()
	h.waitTimeouts.Add(ctx, 1)
	h.waitDuration.Record(ctx, float64(waited.Milliseconds()))
}

func (h *Hooks) ComputeFailed(string, error) {
	h.computeErrors.Add(context.Background(), 1)
}

func (h *Hooks) SelfHeal(_ string, reason string) {
	h.selfHeals.Add(context.Background(), 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (h *Hooks) ProviderSetRejected(string) {
	h.setRejected.Add(context.Background(), 1)
}

func (h *Hooks) Refreshed(_ string, found bool) {
	h.refreshes.Add(context.Background(), 1, metric.WithAttributes(attribute.Bool("found", found)))
}

func (h *Hooks) SubscriptionLost(error) {
	h.subLost.Add(context.Background(), 1)
}

func (h *Hooks) BackendError(op string, _ error) {
	h.backendErrors.Add(context.Background(), 1, metric.WithAttributes(attribute.String("op", op)))
}

func (h *Hooks) SessionRenewed(name string, err error) {
	res := "ok"
	if err != nil {
		res = "failed"
	}
	h.sessionRenews.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("session", name),
		attribute.String("outcome", res),
	))
}

func (h *Hooks) SessionRetriesExhausted(method, _ string) {
	h.sessionExhaust.Add(context.Background(), 1, metric.WithAttributes(attribute.String("method", method)))
}
