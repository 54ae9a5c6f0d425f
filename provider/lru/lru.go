// Package lru is the default process-local value store: a fixed number of
// entries, per-entry expiry and least-recently-used eviction.
package lru

import (
	"container/list"
	"context"
	"sync"
	"time"

	pr "github.com/unkn0wn-root/flightcache/provider"
)

// DefaultCapacity matches the bounded size the local cache has always used.
const DefaultCapacity = 1024

type entry struct {
	key       string
	value     []byte
	expiresAt time.Time // zero => no expiry
}

// LRU keeps at most Capacity entries. Inserting a new key into a full store
// evicts the least recently used entry regardless of its remaining TTL.
type LRU struct {
	mu       sync.Mutex
	capacity int
	ll       *list.List // front = most recently used
	items    map[string]*list.Element
	now      func() time.Time
	onEvict  func(key string)
}

var _ pr.Provider = (*LRU)(nil)

type Config struct {
	Capacity int // 0 => DefaultCapacity

	// OnEvict is called (under the store lock) for capacity evictions only,
	// not for expiry or explicit deletes. Must not call back into the store.
	OnEvict func(key string)
}

func New(cfg Config) *LRU {
	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &LRU{
		capacity: capacity,
		ll:       list.New(),
		items:    make(map[string]*list.Element, capacity),
		now:      time.Now,
		onEvict:  cfg.OnEvict,
	}
}

func (c *LRU) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return nil, false, nil
	}
	e := el.Value.(*entry)
	if !e.expiresAt.IsZero() && !c.now().Before(e.expiresAt) {
		c.removeElement(el)
		return nil, false, nil
	}
	c.ll.MoveToFront(el)
	return e.value, true, nil
}

// Set never rejects; cost is ignored (capacity is counted in entries).
func (c *LRU) Set(_ context.Context, key string, value []byte, _ int64, ttl time.Duration) (bool, error) {
	var exp time.Time
	if ttl > 0 {
		exp = c.now().Add(ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		e := el.Value.(*entry)
		e.value = value
		e.expiresAt = exp
		c.ll.MoveToFront(el)
		return true, nil
	}

	if c.ll.Len() >= c.capacity {
		if oldest := c.ll.Back(); oldest != nil {
			k := oldest.Value.(*entry).key
			c.removeElement(oldest)
			if c.onEvict != nil {
				c.onEvict(k)
			}
		}
	}
	c.items[key] = c.ll.PushFront(&entry{key: key, value: value, expiresAt: exp})
	return true, nil
}

func (c *LRU) Del(_ context.Context, key string) error {
	c.mu.Lock()
	if el, ok := c.items[key]; ok {
		c.removeElement(el)
	}
	c.mu.Unlock()
	return nil
}

// Len reports the number of resident entries, expired ones included until touched.
func (c *LRU) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

func (c *LRU) Close(_ context.Context) error {
	c.mu.Lock()
	c.ll.Init()
	c.items = make(map[string]*list.Element)
	c.mu.Unlock()
	return nil
}

func (c *LRU) removeElement(el *list.Element) {
	c.ll.Remove(el)
	delete(c.items, el.Value.(*entry).key)
}
