package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"qualitygrid/internal/taxonomy"
)

var testTTLs = TTLs{
	CategoryClassification: 24 * time.Hour,
	CategoryExternal:       12 * time.Hour,
}

type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time { return f.t }

func newMemoryWithClock() (*Memory, *fakeClock) {
	clk := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewMemory(testTTLs, nil)
	c.now = clk.now
	return c, clk
}

func TestMemory_HitWithinTTL(t *testing.T) {
	c, clk := newMemoryWithClock()
	ctx := context.Background()

	c.Set(ctx, CategoryClassification, "ISO 9001:2015", "ISO_9001")
	clk.t = clk.t.Add(23 * time.Hour)

	v, ok := c.Get(ctx, CategoryClassification, "ISO 9001:2015")
	require.True(t, ok)
	assert.Equal(t, "ISO_9001", v)
}

func TestMemory_ExpiresAtTTL(t *testing.T) {
	c, clk := newMemoryWithClock()
	ctx := context.Background()

	c.Set(ctx, CategoryExternal, "apollo|chennai", "1")
	clk.t = clk.t.Add(12 * time.Hour)

	_, ok := c.Get(ctx, CategoryExternal, "apollo|chennai")
	assert.False(t, ok, "entry is stale once now-ts reaches the TTL")
	assert.Equal(t, 0, c.Len())
}

func TestMemory_CategoriesHaveDistinctTTLs(t *testing.T) {
	c, clk := newMemoryWithClock()
	ctx := context.Background()

	c.Set(ctx, CategoryClassification, "k", "a")
	c.Set(ctx, CategoryExternal, "k", "b")
	clk.t = clk.t.Add(13 * time.Hour)

	v, ok := c.Get(ctx, CategoryClassification, "k")
	assert.True(t, ok)
	assert.Equal(t, "a", v)
	_, ok = c.Get(ctx, CategoryExternal, "k")
	assert.False(t, ok)
}

func TestMemory_UnknownCategoryNeverCached(t *testing.T) {
	c, _ := newMemoryWithClock()
	ctx := context.Background()

	c.Set(ctx, "other", "k", "v")
	_, ok := c.Get(ctx, "other", "k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestMemory_Purge(t *testing.T) {
	c, clk := newMemoryWithClock()
	ctx := context.Background()

	c.Set(ctx, CategoryClassification, "a", "1")
	c.Set(ctx, CategoryExternal, "b", "1")
	clk.t = clk.t.Add(12 * time.Hour)

	assert.Equal(t, 1, c.Purge())
	assert.Equal(t, 1, c.Len())
}

func TestMemory_ConcurrentAccess(t *testing.T) {
	c := NewMemory(testTTLs, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				key := fmt.Sprintf("k%d", j%10)
				c.Set(ctx, CategoryClassification, key, fmt.Sprintf("%d", i))
				_, _ = c.Get(ctx, CategoryClassification, key)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 10, c.Len())
}

func TestTTLsFrom(t *testing.T) {
	ttls := TTLsFrom(taxonomy.CacheTTLs{Classification: time.Hour, External: time.Minute})
	assert.Equal(t, time.Hour, ttls[CategoryClassification])
	assert.Equal(t, time.Minute, ttls[CategoryExternal])
}

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *Redis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewRedis(client, testTTLs, zap.NewNop(), nil)
}

func TestRedis_SetGet(t *testing.T) {
	_, c := setupTestRedis(t)
	ctx := context.Background()

	c.Set(ctx, CategoryClassification, "CAP accredited", "CAP")
	v, ok := c.Get(ctx, CategoryClassification, "CAP accredited")
	require.True(t, ok)
	assert.Equal(t, "CAP", v)
}

func TestRedis_AppliesCategoryTTL(t *testing.T) {
	mr, c := setupTestRedis(t)
	ctx := context.Background()

	c.Set(ctx, CategoryExternal, "org", "1")
	assert.Equal(t, 12*time.Hour, mr.TTL(defaultKeyPrefix+"external:org"))

	mr.FastForward(12 * time.Hour)
	_, ok := c.Get(ctx, CategoryExternal, "org")
	assert.False(t, ok)
}

func TestRedis_MissOnAbsentKey(t *testing.T) {
	_, c := setupTestRedis(t)
	_, ok := c.Get(context.Background(), CategoryClassification, "absent")
	assert.False(t, ok)
}

func TestRedis_UnavailableDegradesToMiss(t *testing.T) {
	mr, c := setupTestRedis(t)
	ctx := context.Background()

	c.Set(ctx, CategoryClassification, "k", "v")
	mr.Close()

	assert.NotPanics(t, func() {
		c.Set(ctx, CategoryClassification, "k2", "v2")
	})
	_, ok := c.Get(ctx, CategoryClassification, "k")
	assert.False(t, ok)
}

func TestNop(t *testing.T) {
	var c Nop
	c.Set(context.Background(), CategoryClassification, "k", "v")
	_, ok := c.Get(context.Background(), CategoryClassification, "k")
	assert.False(t, ok)
}
