package cache

import "context"

// Cache is a fixed-capacity, in-memory LRU key/value cache.
// All methods are safe for concurrent use by multiple goroutines.
//
// Operations cost O(1) expected time: a map access plus a constant number
// of slot relinks, all inside one critical section.
type Cache[K comparable, V any] interface {
	// Get returns a copy of the value for k and whether it was present.
	// A hit makes k the most recently used entry.
	Get(k K) (V, bool)

	// Put inserts or updates k→v and makes k the most recently used entry.
	// For an existing key it returns the previous value and true; for a new
	// key it may first evict the least recently used entry.
	Put(k K, v V) (prev V, replaced bool)

	// Add inserts k→v only if k is absent. An existing entry is neither
	// updated nor promoted. Returns false if the key already exists.
	Add(k K, v V) bool

	// Peek returns the value for k without touching its recency.
	Peek(k K) (V, bool)

	// Contains reports whether k is resident without touching its recency.
	Contains(k K) bool

	// Remove deletes k if present and returns true on success.
	// It is not reported as an eviction.
	Remove(k K) bool

	// Keys returns a snapshot of resident keys from most to least recently
	// used. In sharded mode the order holds within each shard only.
	Keys() []K

	// Len returns the number of resident entries.
	Len() int

	// Cap returns the configured capacity.
	Cap() int

	// Purge drops every entry, reporting each to OnEvict with EvictPurge.
	Purge()

	// Stats returns hit/miss/eviction counters and the current size.
	Stats() Stats

	// GetOrLoad returns the value for k, loading it via Options.Loader on
	// a miss and storing the result. Concurrent loads of the same key are
	// coalesced. If no Loader was configured, returns ErrNoLoader.
	GetOrLoad(ctx context.Context, k K) (V, error)
}
