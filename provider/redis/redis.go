package redis

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"

	pr "github.com/unkn0wn-root/flightcache/provider"
)

var ErrNilClient = errors.New("redis provider: nil client")

// Redis is the shared store behind flightcache.SharedBackend.
// TTLs are sent with millisecond precision (SET ... PX).
type Redis struct {
	rdb         goredis.UniversalClient
	prefix      string
	closeClient bool
}

var _ pr.Provider = (*Redis)(nil)

type Config struct {
	Client      goredis.UniversalClient
	Prefix      string // prepended to every key
	CloseClient bool   // set true only if this provider exclusively owns the client
}

func New(cfg Config) (*Redis, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	return &Redis{rdb: cfg.Client, prefix: cfg.Prefix, closeClient: cfg.CloseClient}, nil
}

func (p *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := p.rdb.Get(ctx, p.prefix+key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

// GetWithTTL is Get plus the entry's remaining lifetime, read in one round
// trip. remaining is 0 when the key has no expiry.
func (p *Redis) GetWithTTL(ctx context.Context, key string) (value []byte, remaining time.Duration, ok bool, err error) {
	var (
		get  *goredis.StringCmd
		pttl *goredis.DurationCmd
	)
	_, err = p.rdb.Pipelined(ctx, func(pipe goredis.Pipeliner) error {
		get = pipe.Get(ctx, p.prefix+key)
		pttl = pipe.PTTL(ctx, p.prefix+key)
		return nil
	})
	if err != nil && !errors.Is(err, goredis.Nil) {
		return nil, 0, false, err
	}
	value, err = get.Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, 0, false, nil
	}
	if err != nil {
		return nil, 0, false, err
	}
	// PTTL answers -1 (no expiry) or -2 (gone since GET) as raw durations.
	if remaining = pttl.Val(); remaining < 0 {
		remaining = 0
	}
	return value, remaining, true, nil
}

func (p *Redis) Set(ctx context.Context, key string, value []byte, _ int64, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = 0 // 0 => no expiry; go-redis reads -1 as KEEPTTL which is not what we want
	} else if ttl < time.Millisecond {
		ttl = time.Millisecond
	}
	if err := p.rdb.Set(ctx, p.prefix+key, value, ttl).Err(); err != nil {
		return false, err
	}
	return true, nil
}

func (p *Redis) Del(ctx context.Context, key string) error {
	return p.rdb.Del(ctx, p.prefix+key).Err()
}

// Close releases the underlying client only when this provider owns it.
// Repeated calls are no-ops.
func (p *Redis) Close(context.Context) error {
	if p.closeClient {
		if err := p.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			return err
		}
	}
	return nil
}
