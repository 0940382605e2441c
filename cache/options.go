package cache

import (
	"context"
	"log/slog"
)

// EvictReason explains why an entry left the cache.
type EvictReason int

const (
	// EvictCapacity: the LRU entry was dropped to admit a new key
	// (with Capacity 0, the new entry itself).
	EvictCapacity EvictReason = iota
	// EvictPurge: removed by Purge.
	EvictPurge
)

// String returns a stable label, suitable for metrics.
func (r EvictReason) String() string {
	switch r {
	case EvictCapacity:
		return "capacity"
	case EvictPurge:
		return "purge"
	default:
		return "unknown"
	}
}

// Metrics exposes cache-level observability hooks.
// A NoopMetrics implementation is provided and used by default.
// Hooks are called outside shard locks and must be safe for concurrent use.
type Metrics interface {
	Hit()
	Miss()
	Evict(reason EvictReason)
	// Resident reports a change in the number of resident entries.
	Resident(delta int)
}

// ShardsAuto asks New to pick a shard count from GOMAXPROCS
// (relaxed mode, see Options.Shards).
const ShardsAuto = -1

// Options configures the cache. Zero values are safe; defaults are
// applied in NewWithOptions:
//   - Shards <= 1  => one shard, strict LRU
//   - nil Metrics  => NoopMetrics
//   - nil Logger   => slog.Default()
type Options[K comparable, V any] struct {
	// Capacity is the entry count limit. It must be >= 0; 0 means nothing
	// is ever retained.
	Capacity int

	// Shards selects the locking mode. With 0 or 1 the whole cache is one
	// critical section and eviction is exact LRU. A larger value (rounded
	// up to a power of two, and down so every shard gets capacity) splits
	// keys across independently locked shards: LRU is exact per shard and
	// approximate overall. ShardsAuto picks a count from GOMAXPROCS.
	Shards int

	// Hasher maps keys to shards in sharded mode. Nil uses a built-in
	// xxhash hasher for strings, byte arrays, integers and fmt.Stringer;
	// other key types must set it.
	Hasher func(K) uint64

	// Clone deep-copies a value. When set, values are cloned on their way
	// in (Put, Add, loaded values) and on their way out (Get, Peek), so no
	// caller ever shares memory with a resident entry. When nil, values are
	// copied by assignment only: reference-typed values (slices, maps,
	// pointers) are then shared handles and must be treated as immutable
	// by everyone holding them.
	Clone func(V) V

	// Loader fetches a value on a miss. Used by GetOrLoad.
	Loader func(ctx context.Context, k K) (V, error)

	// OnEvict is called for every capacity eviction and for every entry
	// dropped by Purge. It runs after the shard lock is released, possibly
	// from several goroutines at once. Remove does not trigger it.
	OnEvict func(k K, v V, reason EvictReason)

	Metrics Metrics
	Logger  *slog.Logger
}
