package signing

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/wrenlabs/quill/internal/agent"
)

// Cache memoizes signing results keyed by fingerprint. Implementations are
// advisory: a miss or a corrupted entry falls through to regeneration and
// never blocks the caller.
type Cache interface {
	Get(ctx context.Context, fingerprint string) (Result, bool)
	Put(ctx context.Context, fingerprint string, res Result, ttl time.Duration)
}

type cacheEntry struct {
	fingerprint string
	value       Result
	createdAt   time.Time
	ttl         time.Duration
}

func (e *cacheEntry) expired(now time.Time) bool {
	return e.ttl > 0 && now.Sub(e.createdAt) >= e.ttl
}

// LRUCache is a TTL + capacity bounded in-process cache. Entries are
// immutable and leave only through TTL expiry or LRU eviction.
type LRUCache struct {
	mu       sync.Mutex
	capacity int
	ll       *list.List
	items    map[string]*list.Element
	clock    agent.Clock
}

// NewLRUCache builds a cache holding at most capacity entries.
func NewLRUCache(capacity int, clock agent.Clock) *LRUCache {
	if capacity <= 0 {
		capacity = 256
	}
	return &LRUCache{
		capacity: capacity,
		ll:       list.New(),
		items:    make(map[string]*list.Element),
		clock:    clock,
	}
}

// Get returns the cached result when present and inside its TTL.
func (c *LRUCache) Get(_ context.Context, fingerprint string) (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[fingerprint]
	if !ok {
		return Result{}, false
	}
	entry := el.Value.(*cacheEntry)
	if entry.expired(c.clock.Now()) {
		c.ll.Remove(el)
		delete(c.items, fingerprint)
		return Result{}, false
	}
	c.ll.MoveToFront(el)
	return entry.value, true
}

// Put stores a result, evicting the least recently used entry at capacity.
func (c *LRUCache) Put(_ context.Context, fingerprint string, res Result, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[fingerprint]; ok {
		c.ll.Remove(el)
		delete(c.items, fingerprint)
	}
	for c.ll.Len() >= c.capacity {
		oldest := c.ll.Back()
		if oldest == nil {
			break
		}
		c.ll.Remove(oldest)
		delete(c.items, oldest.Value.(*cacheEntry).fingerprint)
	}
	el := c.ll.PushFront(&cacheEntry{
		fingerprint: fingerprint,
		value:       res,
		createdAt:   c.clock.Now(),
		ttl:         ttl,
	})
	c.items[fingerprint] = el
}

// Len reports the number of live entries (expired ones included until read).
func (c *LRUCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}
