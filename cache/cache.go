package cache

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/IvanBrykalov/lru/internal/singleflight"
	"github.com/IvanBrykalov/lru/internal/util"
)

// cache is the Cache facade over one or more shards.
// All methods are safe for concurrent use by multiple goroutines.
type cache[K comparable, V any] struct {
	shards []*shard[K, V]
	hash   func(K) uint64 // nil with a single shard

	opt Options[K, V]

	// singleflight group for coalescing concurrent loads in GetOrLoad.
	sf singleflight.Group[K, V]
}

// New constructs a strict LRU cache holding at most capacity entries.
// It panics if capacity is negative.
func New[K comparable, V any](capacity int) Cache[K, V] {
	return NewWithOptions(Options[K, V]{Capacity: capacity})
}

// NewWithOptions constructs a cache from opt.
// Defaults:
//   - nil Metrics  -> NoopMetrics
//   - nil Logger   -> slog.Default()
//   - Shards <= 1  -> single shard, strict LRU
//
// It panics on a negative Capacity, and in sharded mode when K has no
// built-in hasher and Options.Hasher is nil.
func NewWithOptions[K comparable, V any](opt Options[K, V]) Cache[K, V] {
	if opt.Capacity < 0 {
		panic(fmt.Sprintf("cache: Capacity must be >= 0, got %d", opt.Capacity))
	}
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}
	if opt.Logger == nil {
		opt.Logger = slog.Default()
	}

	want := opt.Shards
	if want == ShardsAuto {
		want = util.ReasonableShardCount()
	}
	n := util.ClampShards(want, opt.Capacity)

	c := &cache[K, V]{opt: opt}
	if n > 1 {
		c.hash = opt.Hasher
		if c.hash == nil {
			h, ok := util.HasherFor[K]()
			if !ok {
				var zero K
				panic(fmt.Sprintf("cache: no built-in hasher for key type %T; set Options.Hasher", zero))
			}
			c.hash = h
		}
	}

	c.shards = make([]*shard[K, V], n)
	for i, capacity := range util.SplitCapacity(opt.Capacity, n) {
		c.shards[i] = newShard[K, V](i, capacity, opt.Logger)
	}

	mode := "strict"
	if n > 1 {
		mode = "sharded"
	}
	opt.Logger.Debug("cache: constructed",
		slog.Int("capacity", opt.Capacity), slog.Int("shards", n), slog.String("mode", mode))

	// return pointer-to-impl as the interface (avoids unexported-return lint)
	return c
}

// ---- Cache[K,V] implementation ----

func (c *cache[K, V]) Get(k K) (V, bool) {
	v, ok := c.shardFor(k).get(k)
	if !ok {
		c.opt.Metrics.Miss()
		return v, false
	}
	c.opt.Metrics.Hit()
	return c.clone(v), true
}

func (c *cache[K, V]) Put(k K, v V) (V, bool) {
	prev, replaced, ev, evicted := c.shardFor(k).put(k, c.clone(v))
	if !replaced {
		c.opt.Metrics.Resident(1)
	}
	if evicted {
		c.evicted(ev)
	}
	// prev is no longer reachable from the cache; it is the caller's now.
	return prev, replaced
}

func (c *cache[K, V]) Add(k K, v V) bool {
	added, ev, evicted := c.shardFor(k).add(k, c.clone(v))
	if added {
		c.opt.Metrics.Resident(1)
	}
	if evicted {
		c.evicted(ev)
	}
	return added
}

func (c *cache[K, V]) Peek(k K) (V, bool) {
	v, ok := c.shardFor(k).peek(k)
	if !ok {
		return v, false
	}
	return c.clone(v), true
}

func (c *cache[K, V]) Contains(k K) bool { return c.shardFor(k).contains(k) }

func (c *cache[K, V]) Remove(k K) bool {
	if !c.shardFor(k).remove(k) {
		return false
	}
	c.opt.Metrics.Resident(-1)
	return true
}

func (c *cache[K, V]) Keys() []K {
	keys := make([]K, 0, c.Len())
	for _, s := range c.shards {
		keys = s.appendKeys(keys)
	}
	return keys
}

// Len returns the total number of resident entries across all shards.
func (c *cache[K, V]) Len() int {
	total := 0
	for _, s := range c.shards {
		total += s.len()
	}
	return total
}

func (c *cache[K, V]) Cap() int { return c.opt.Capacity }

// Purge empties shards one at a time; concurrent writers may refill a
// shard that was already purged.
func (c *cache[K, V]) Purge() {
	collect := c.opt.OnEvict != nil
	for _, s := range c.shards {
		n, evs := s.purge(collect)
		for i := 0; i < n; i++ {
			c.opt.Metrics.Evict(EvictPurge)
		}
		c.opt.Metrics.Resident(-n)
		for _, ev := range evs {
			c.opt.OnEvict(ev.key, ev.val, ev.reason)
		}
	}
}

func (c *cache[K, V]) Stats() Stats {
	st := Stats{Capacity: c.opt.Capacity}
	for _, s := range c.shards {
		st.Hits += s.hits.Load()
		st.Misses += s.misses.Load()
		st.Evictions += s.evicts.Load()
		st.Len += s.len()
	}
	return st
}

// GetOrLoad returns the value for k; on miss it loads via Options.Loader,
// coalescing concurrent loads for the same key (singleflight).
// If no Loader is configured, returns ErrNoLoader.
func (c *cache[K, V]) GetOrLoad(ctx context.Context, k K) (V, error) {
	// fast path
	if v, ok := c.Get(k); ok {
		return v, nil
	}
	if c.opt.Loader == nil {
		var zero V
		return zero, ErrNoLoader
	}

	v, shared, err := c.sf.Do(ctx, k, func() (V, error) {
		// double-check after flight join
		if v, ok := c.Get(k); ok {
			return v, nil
		}
		v, err := c.opt.Loader(ctx, k)
		if err != nil {
			c.opt.Logger.Debug("cache: loader failed", slog.Any("key", k), slog.Any("error", err))
			return v, err
		}
		c.Put(k, v)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	if shared {
		// every waiter gets its own copy
		v = c.clone(v)
	}
	return v, nil
}

// ---- helpers ----

// shardFor picks the shard owning k. With a single shard no hashing is done.
func (c *cache[K, V]) shardFor(k K) *shard[K, V] {
	if len(c.shards) == 1 {
		return c.shards[0]
	}
	return c.shards[util.ShardIndex(c.hash(k), len(c.shards))]
}

func (c *cache[K, V]) clone(v V) V {
	if c.opt.Clone == nil {
		return v
	}
	return c.opt.Clone(v)
}

// evicted reports an eviction; called after the shard lock is released.
func (c *cache[K, V]) evicted(ev eviction[K, V]) {
	c.opt.Metrics.Evict(ev.reason)
	c.opt.Metrics.Resident(-1)
	if cb := c.opt.OnEvict; cb != nil {
		cb(ev.key, ev.val, ev.reason)
	}
}

// verify checks every shard's internal invariants. O(n); tests only.
func (c *cache[K, V]) verify() error {
	for _, s := range c.shards {
		if err := s.verify(); err != nil {
			return err
		}
	}
	return nil
}
