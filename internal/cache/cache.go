// Package cache provides a namespaced TTL cache shared by the pipeline
// components. Entries expire lazily: an expired entry is removed when it is
// next read, never by a background sweep.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Params identifies a cached call within a namespace. Keys are serialized
// with sorted map keys, so argument order never affects the cache key.
type Params map[string]any

// entry is a stored value with its creation time.
type entry struct {
	value     any
	createdAt time.Time
}

// Cache is a thread-safe key-value store with per-cache TTL.
type Cache struct {
	mu       sync.Mutex
	entries  map[string]entry
	ttl      time.Duration
	now      func() time.Time
	onLookup func(namespace string, hit bool)
	logger   zerolog.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides the time source. Used by tests to simulate expiry.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithLookupHook observes every Get as a hit or a miss per namespace. An
// expired entry counts as a miss. Used to feed the cache lookup metrics.
func WithLookupHook(fn func(namespace string, hit bool)) Option {
	return func(c *Cache) { c.onLookup = fn }
}

// WithLogger sets the cache logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Cache) { c.logger = logger.With().Str("component", "cache").Logger() }
}

// New creates a Cache with the given TTL. A non-positive TTL defaults to one hour.
func New(ttl time.Duration, opts ...Option) *Cache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	c := &Cache{
		entries: make(map[string]entry),
		ttl:     ttl,
		now:     time.Now,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Key derives the deterministic cache key for a namespace and params.
// encoding/json marshals maps with sorted keys, which gives the required
// order independence.
func Key(namespace string, params Params) string {
	raw, err := json.Marshal(params)
	if err != nil {
		// Params that cannot marshal still need a stable key.
		raw = []byte(fmt.Sprintf("%v", params))
	}
	sum := sha256.Sum256(raw)
	return namespace + "_" + hex.EncodeToString(sum[:])
}

// Get returns the cached value for the namespace and params, or false when
// the key is missing or expired. Expired entries are evicted on this read.
func (c *Cache) Get(namespace string, params Params) (any, bool) {
	key := Key(namespace, params)

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.lookup(namespace, false)
		return nil, false
	}
	if c.now().Sub(e.createdAt) >= c.ttl {
		delete(c.entries, key)
		c.logger.Debug().Str("key", key).Msg("cache entry expired")
		c.lookup(namespace, false)
		return nil, false
	}
	c.logger.Debug().Str("key", key).Msg("cache hit")
	c.lookup(namespace, true)
	return e.value, true
}

func (c *Cache) lookup(namespace string, hit bool) {
	if c.onLookup != nil {
		c.onLookup(namespace, hit)
	}
}

// Set stores a value for the namespace and params, resetting its TTL.
func (c *Cache) Set(namespace string, value any, params Params) {
	key := Key(namespace, params)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = entry{value: value, createdAt: c.now()}
	c.logger.Debug().Str("key", key).Msg("cache set")
}

// Remove deletes the entry for the namespace and params, if present.
func (c *Cache) Remove(namespace string, params Params) {
	key := Key(namespace, params)

	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Clear removes all entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry)
}

// Len returns the number of stored entries, including any not yet lazily evicted.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
