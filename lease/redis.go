package lease

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lease only while it still carries the caller's
// identity, in one round-trip, so a lease re-acquired by someone else after
// ours expired is never removed.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis shares leases across processes: SET key owner PX ttl NX to acquire,
// a compare-and-delete script to release.
type Redis struct {
	rdb    redis.UniversalClient
	prefix string
}

var _ Locker = (*Redis)(nil)

// NewRedis creates a Redis-backed locker. prefix is prepended to every key;
// keep it distinct from the value namespace.
func NewRedis(client redis.UniversalClient, prefix string) *Redis {
	return &Redis{rdb: client, prefix: prefix}
}

func (r *Redis) key(k string) string { return r.prefix + k }

func (r *Redis) Acquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	if ttl < time.Millisecond {
		ttl = time.Millisecond // PX 0 is rejected by redis
	}
	return r.rdb.SetNX(ctx, r.key(key), owner, ttl).Result()
}

func (r *Redis) Release(ctx context.Context, key, owner string) (bool, error) {
	n, err := releaseScript.Run(ctx, r.rdb, []string{r.key(key)}, owner).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Holder returns the identity currently stored for key.
func (r *Redis) Holder(ctx context.Context, key string) (string, bool, error) {
	v, err := r.rdb.Get(ctx, r.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// Close is a no-op; the client belongs to the caller.
func (r *Redis) Close(context.Context) error { return nil }
