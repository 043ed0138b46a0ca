package cache

import (
	"time"

	"github.com/FocuswithJustin/IntrinsicsGuide/core/intrinsics"
)

// SnapshotCache holds parsed snapshots keyed by the content hash of the
// data file they came from, so reloading an unchanged file is free.
type SnapshotCache struct {
	cache Cache[string, *intrinsics.ParseResult]
}

// NewSnapshotCache creates a snapshot cache.
func NewSnapshotCache(config Config) *SnapshotCache {
	return &SnapshotCache{cache: NewLRUCache[string, *intrinsics.ParseResult](config)}
}

// NewDefaultSnapshotCache keeps a handful of snapshots; each one holds the
// full database and is large.
func NewDefaultSnapshotCache() *SnapshotCache {
	config := DefaultConfig()
	config.MaxSize = 4
	return NewSnapshotCache(config)
}

// Get retrieves a snapshot by content key.
func (c *SnapshotCache) Get(key string) (*intrinsics.ParseResult, bool) {
	return c.cache.Get(key)
}

// Put stores a snapshot. Nil snapshots are ignored.
func (c *SnapshotCache) Put(key string, res *intrinsics.ParseResult) {
	if res == nil {
		return
	}
	c.cache.Put(key, res)
}

// Remove drops a snapshot.
func (c *SnapshotCache) Remove(key string) {
	c.cache.Remove(key)
}

// Clear drops every snapshot.
func (c *SnapshotCache) Clear() {
	c.cache.Clear()
}

// Len returns the number of cached snapshots.
func (c *SnapshotCache) Len() int {
	return c.cache.Len()
}

// Stats returns cache statistics.
func (c *SnapshotCache) Stats() Stats {
	return c.cache.Stats()
}

// ResponseCache holds rendered responses for a limited time.
type ResponseCache struct {
	cache Cache[string, []byte]
}

// NewResponseCache creates a response cache whose entries live for ttl.
func NewResponseCache(maxSize int, ttl time.Duration) *ResponseCache {
	return &ResponseCache{cache: NewLRUCache[string, []byte](Config{MaxSize: maxSize, TTL: ttl})}
}

// Get returns a live response body.
func (c *ResponseCache) Get(key string) ([]byte, bool) {
	return c.cache.Get(key)
}

// Put stores a response body.
func (c *ResponseCache) Put(key string, body []byte) {
	c.cache.Put(key, body)
}

// Invalidate drops every response, typically after a reload.
func (c *ResponseCache) Invalidate() {
	c.cache.Clear()
}

// Sweep removes expired responses.
func (c *ResponseCache) Sweep() int {
	return c.cache.PurgeExpired()
}

// Stats returns cache statistics.
func (c *ResponseCache) Stats() Stats {
	return c.cache.Stats()
}
