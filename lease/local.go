package lease

import (
	"context"
	"sync"
	"time"
)

type localLease struct {
	owner     string
	expiresAt time.Time
}

// Local keeps leases in-process.
// An optional cleanup loop prunes leases whose holders never released them;
// expired leases are ignored on Acquire either way.
type Local struct {
	mu     sync.Mutex
	leases map[string]localLease
	now    func() time.Time

	ticker *time.Ticker
	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

var _ Locker = (*Local)(nil)

// NewLocal creates an in-process locker. cleanupInterval <= 0 disables the sweeper.
func NewLocal(cleanupInterval time.Duration) *Local {
	l := &Local{
		leases: make(map[string]localLease),
		now:    time.Now,
	}
	if cleanupInterval > 0 {
		l.ticker = time.NewTicker(cleanupInterval)
		l.stopCh = make(chan struct{})
		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			for {
				select {
				case <-l.ticker.C:
					l.Cleanup()
				case <-l.stopCh:
					return
				}
			}
		}()
	}
	return l
}

func (l *Local) Acquire(_ context.Context, key, owner string, ttl time.Duration) (bool, error) {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	if cur, ok := l.leases[key]; ok && now.Before(cur.expiresAt) {
		return false, nil
	}
	l.leases[key] = localLease{owner: owner, expiresAt: now.Add(ttl)}
	return true, nil
}

func (l *Local) Release(_ context.Context, key, owner string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cur, ok := l.leases[key]
	if !ok || cur.owner != owner {
		return false, nil
	}
	delete(l.leases, key)
	return true, nil
}

// Holder returns the current owner of key, if its lease is live.
func (l *Local) Holder(key string) (string, bool) {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	cur, ok := l.leases[key]
	if !ok || !now.Before(cur.expiresAt) {
		return "", false
	}
	return cur.owner, true
}

// Cleanup drops expired leases.
func (l *Local) Cleanup() {
	now := l.now()
	l.mu.Lock()
	for k, cur := range l.leases {
		if !now.Before(cur.expiresAt) {
			delete(l.leases, k)
		}
	}
	l.mu.Unlock()
}

func (l *Local) Close(_ context.Context) error {
	l.once.Do(func() {
		if l.stopCh != nil {
			l.ticker.Stop() // stop ticker before waiting
			close(l.stopCh)
			l.wg.Wait()
		}
	})
	return nil
}
