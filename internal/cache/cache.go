// Package cache is the validation cache: a time-bounded memo in front of
// classification and external registry lookups. Entries are valid while
// now-storedAt < TTL, with TTLs set per category.
package cache

import (
	"context"
	"sync"
	"time"

	"qualitygrid/internal/metrics"
	"qualitygrid/internal/taxonomy"
)

const (
	CategoryClassification = "classification"
	CategoryExternal       = "external"
)

// TTLs maps a category to its lifetime. Categories without a TTL are never
// cached.
type TTLs map[string]time.Duration

// TTLsFrom maps the table TTLs onto cache categories.
func TTLsFrom(t taxonomy.CacheTTLs) TTLs {
	return TTLs{
		CategoryClassification: t.Classification,
		CategoryExternal:       t.External,
	}
}

type entry struct {
	category string
	value    string
	storedAt time.Time
}

// Memory is a process-local cache guarded by a single mutex.
type Memory struct {
	mu      sync.Mutex
	entries map[string]entry
	ttls    TTLs
	now     func() time.Time
	metrics *metrics.Metrics
}

func NewMemory(ttls TTLs, m *metrics.Metrics) *Memory {
	return &Memory{
		entries: make(map[string]entry),
		ttls:    ttls,
		now:     time.Now,
		metrics: m,
	}
}

func cacheKey(category, key string) string { return category + ":" + key }

func (c *Memory) Get(_ context.Context, category, key string) (string, bool) {
	ttl, ok := c.ttls[category]
	if !ok || ttl <= 0 {
		c.metrics.CacheLookup(category, false)
		return "", false
	}
	k := cacheKey(category, key)
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[k]
	if !ok {
		c.metrics.CacheLookup(category, false)
		return "", false
	}
	if c.now().Sub(e.storedAt) >= ttl {
		delete(c.entries, k)
		c.metrics.CacheLookup(category, false)
		return "", false
	}
	c.metrics.CacheLookup(category, true)
	return e.value, true
}

func (c *Memory) Set(_ context.Context, category, key, value string) {
	if ttl, ok := c.ttls[category]; !ok || ttl <= 0 {
		return
	}
	c.mu.Lock()
	c.entries[cacheKey(category, key)] = entry{category: category, value: value, storedAt: c.now()}
	c.mu.Unlock()
}

// Purge drops expired entries.
func (c *Memory) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	n := 0
	for k, e := range c.entries {
		if now.Sub(e.storedAt) >= c.ttls[e.category] {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

func (c *Memory) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Nop never stores anything; every lookup is a miss.
type Nop struct{}

func (Nop) Get(context.Context, string, string) (string, bool) { return "", false }

func (Nop) Set(context.Context, string, string, string) {}
