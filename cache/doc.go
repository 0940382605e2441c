// Package cache provides a generic, fixed-capacity, in-memory LRU cache
// meant to sit on a service's hot path as a lookup or memoization layer.
//
// Design
//
//   - Storage: each shard keeps a map[K]handle index and a recency order.
//     The order is an arena of slots ([]slot) whose prev/next links are
//     slot indices, with slot 0 as the ring sentinel (next = MRU,
//     prev = LRU). A handle stays valid until its slot is removed, so a
//     hit is promoted by relinking a known index, never by searching.
//     Freed slots are zeroed and recycled through a free list.
//
//   - Concurrency: index and order are guarded together by one lock per
//     shard. Get, Put, Add, Remove and Purge hold the exclusive lock for
//     their whole decide-and-mutate step; deciding to evict and evicting
//     are never split. Peek, Contains, Len and Keys take the shared lock.
//
//   - Modes: by default there is a single shard and eviction is exact LRU.
//     Options.Shards > 1 opts into a sharded mode with exact per-shard
//     LRU and approximate global LRU; shard capacities always sum to
//     Options.Capacity.
//
//   - Values: results are copies of V. For reference-typed values set
//     Options.Clone to get deep copies in and out; without it such values
//     are shared handles and must be treated as immutable.
//
//   - Capacity 0 is valid: nothing is retained and every Put evicts the
//     entry it was given.
//
//   - Corruption: if the index and the order are ever found to disagree,
//     the cache logs the fact and panics with an *InvariantError wrapping
//     ErrCorrupted. It does not try to recover.
//
//   - Metrics: Options.Metrics receives Hit/Miss/Evict/Resident signals;
//     metrics/prom exports them to Prometheus. Stats returns counters
//     kept by the cache itself.
//
// Basic usage
//
//	c := cache.New[string, int](2)
//	c.Put("a", 1)
//	c.Put("b", 2)
//	c.Get("a")    // "a" is now most recently used
//	c.Put("c", 3) // evicts "b"
//
// With GetOrLoad (singleflight)
//
//	c := cache.NewWithOptions(cache.Options[string, string]{
//	    Capacity: 1024,
//	    Loader: func(ctx context.Context, k string) (string, error) {
//	        return fetch(ctx, k)
//	    },
//	})
//	v, err := c.GetOrLoad(ctx, "key")
//
// Exporting metrics
//
//	m := prom.New(nil, "app", "lru", nil) // implements Metrics
//	c := cache.NewWithOptions(cache.Options[string, []byte]{
//	    Capacity: 10_000,
//	    Metrics:  m,
//	})
package cache
