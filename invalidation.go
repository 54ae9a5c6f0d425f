package flightcache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// sentinelPrefix marks shutdown messages. Every channel owns one sentinel and
// skips the ones other instances publish on the same topic.
const sentinelPrefix = "\x00flightcache:shutdown:"

type invalidationConfig struct {
	rdb     redis.UniversalClient
	topic   string
	grace   time.Duration
	backoff time.Duration
	refresh func(ctx context.Context, key string)
	log     Logger
	hooks   Hooks
}

// invalidation listens for key-change notifications and hands each key to
// refresh. Lost subscriptions are re-established after backoff.
type invalidation struct {
	cfg      invalidationConfig
	sentinel string

	cancel context.CancelFunc
	done   chan struct{}

	mu sync.Mutex
	ps *redis.PubSub

	stopOnce sync.Once
	stopErr  error
}

func startInvalidation(ctx context.Context, cfg invalidationConfig) *invalidation {
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	inv := &invalidation{
		cfg:      cfg,
		sentinel: sentinelPrefix + uuid.NewString(),
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	ps, err := inv.subscribe(ctx)
	if err != nil {
		cfg.log.Warn("invalidation subscribe failed, retrying in background", Fields{"topic": cfg.topic, "err": err})
		cfg.hooks.SubscriptionLost(err)
		ps = nil
	}
	go inv.run(loopCtx, ps)
	return inv
}

// subscribe opens a subscription and waits for Redis to confirm it.
func (inv *invalidation) subscribe(ctx context.Context) (*redis.PubSub, error) {
	ps := inv.cfg.rdb.Subscribe(ctx, inv.cfg.topic)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}
	if err := inv.adopt(ctx, ps); err != nil {
		return nil, err
	}
	return ps, nil
}

// adopt makes ps the live subscription unless ctx has ended. Stop cancels
// before it closes inv.ps, so a subscription confirmed after that point is
// closed here instead of being left for nobody to close.
func (inv *invalidation) adopt(ctx context.Context, ps *redis.PubSub) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if err := ctx.Err(); err != nil {
		_ = ps.Close()
		return err
	}
	inv.ps = ps
	return nil
}

func (inv *invalidation) run(ctx context.Context, ps *redis.PubSub) {
	defer close(inv.done)
	defer inv.closePubSub()

	for {
		if ps == nil {
			if ps = inv.resubscribe(ctx); ps == nil {
				return
			}
		}
		msg, err := ps.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			inv.cfg.log.Warn("invalidation subscription lost", Fields{"topic": inv.cfg.topic, "err": err})
			inv.cfg.hooks.SubscriptionLost(err)
			inv.closePubSub()
			ps = nil
			continue
		}
		switch {
		case msg.Payload == inv.sentinel:
			inv.cfg.log.Debug("invalidation channel stopped", Fields{"topic": inv.cfg.topic})
			return
		case strings.HasPrefix(msg.Payload, sentinelPrefix):
			continue // another instance shutting down
		default:
			inv.cfg.refresh(ctx, msg.Payload)
		}
	}
}

// resubscribe retries until a subscription is confirmed. It returns nil
// once ctx is done.
func (inv *invalidation) resubscribe(ctx context.Context) *redis.PubSub {
	for {
		t := time.NewTimer(inv.cfg.backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
		ps, err := inv.subscribe(ctx)
		if err == nil {
			inv.cfg.log.Info("invalidation subscription restored", Fields{"topic": inv.cfg.topic})
			return ps
		}
		if ctx.Err() != nil {
			return nil
		}
		inv.cfg.log.Debug("invalidation resubscribe failed", Fields{"topic": inv.cfg.topic, "err": err})
	}
}

func (inv *invalidation) closePubSub() {
	inv.mu.Lock()
	ps := inv.ps
	inv.ps = nil
	inv.mu.Unlock()
	if ps != nil {
		_ = ps.Close()
	}
}

// Stop publishes this channel's sentinel and waits up to the grace period
// for the loop to see it. If it does not (Redis gone, ctx done) the loop is
// cancelled and its connection closed. Safe to call more than once.
func (inv *invalidation) Stop(ctx context.Context) error {
	inv.stopOnce.Do(func() {
		if err := inv.cfg.rdb.Publish(ctx, inv.cfg.topic, inv.sentinel).Err(); err != nil {
			inv.cfg.log.Debug("shutdown sentinel not published", Fields{"topic": inv.cfg.topic, "err": err})
		} else {
			t := time.NewTimer(inv.cfg.grace)
			select {
			case <-inv.done:
			case <-t.C:
				inv.cfg.log.Warn("invalidation channel ignored shutdown sentinel", Fields{"topic": inv.cfg.topic})
			case <-ctx.Done():
				inv.stopErr = ctx.Err()
			}
			t.Stop()
		}
		inv.cancel()
		inv.closePubSub()
		<-inv.done
	})
	return inv.stopErr
}
