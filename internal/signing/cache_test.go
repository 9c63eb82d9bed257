package signing

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestLRUCacheTTLExpiry checks entries disappear once their TTL elapses.
func TestLRUCacheTTLExpiry(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{now: time.Unix(1700000000, 0)}
	cache := NewLRUCache(4, clk)
	ctx := context.Background()

	cache.Put(ctx, "fp", Result{Signature: "sig"}, 30*time.Second)
	res, ok := cache.Get(ctx, "fp")
	require.True(t, ok)
	require.Equal(t, "sig", res.Signature)

	clk.Advance(29 * time.Second)
	_, ok = cache.Get(ctx, "fp")
	require.True(t, ok)

	clk.Advance(time.Second)
	_, ok = cache.Get(ctx, "fp")
	require.False(t, ok)
	require.Zero(t, cache.Len())
}

// TestLRUCacheEvictsOldest checks capacity eviction removes the least
// recently used entry, respecting Get recency.
func TestLRUCacheEvictsOldest(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{now: time.Unix(1700000000, 0)}
	cache := NewLRUCache(2, clk)
	ctx := context.Background()

	cache.Put(ctx, "a", Result{Signature: "a"}, time.Minute)
	cache.Put(ctx, "b", Result{Signature: "b"}, time.Minute)
	// Touch "a" so "b" becomes the eviction candidate.
	_, ok := cache.Get(ctx, "a")
	require.True(t, ok)

	cache.Put(ctx, "c", Result{Signature: "c"}, time.Minute)
	require.Equal(t, 2, cache.Len())

	_, ok = cache.Get(ctx, "b")
	require.False(t, ok)
	_, ok = cache.Get(ctx, "a")
	require.True(t, ok)
	_, ok = cache.Get(ctx, "c")
	require.True(t, ok)
}

// TestLRUCacheReplaceExisting checks a Put under an existing key replaces the
// value without growing the cache.
func TestLRUCacheReplaceExisting(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{now: time.Unix(1700000000, 0)}
	cache := NewLRUCache(2, clk)
	ctx := context.Background()

	cache.Put(ctx, "a", Result{Signature: "v1"}, time.Minute)
	cache.Put(ctx, "a", Result{Signature: "v2"}, time.Minute)
	require.Equal(t, 1, cache.Len())

	res, ok := cache.Get(ctx, "a")
	require.True(t, ok)
	require.Equal(t, "v2", res.Signature)
}

// TestLRUCacheZeroTTLNeverExpires checks a zero TTL means no expiry.
func TestLRUCacheZeroTTLNeverExpires(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{now: time.Unix(1700000000, 0)}
	cache := NewLRUCache(2, clk)
	ctx := context.Background()

	cache.Put(ctx, "a", Result{Signature: "a"}, 0)
	clk.Advance(24 * time.Hour)
	_, ok := cache.Get(ctx, "a")
	require.True(t, ok)
}

// TestLRUCacheConcurrentAccess exercises the cache from many goroutines.
func TestLRUCacheConcurrentAccess(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{now: time.Unix(1700000000, 0)}
	cache := NewLRUCache(16, clk)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("fp-%d", (n+j)%32)
				cache.Put(ctx, key, Result{Signature: key}, time.Minute)
				cache.Get(ctx, key)
			}
		}(i)
	}
	wg.Wait()
	require.LessOrEqual(t, cache.Len(), 16)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
