package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// quietLogger keeps invariant-violation logs out of test output.
var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func mustVerify[K comparable, V any](t *testing.T, c Cache[K, V]) {
	t.Helper()
	require.NoError(t, c.(*cache[K, V]).verify())
}

// Scenario: capacity 1, the second key pushes out the first.
func TestCache_CapacityOne(t *testing.T) {
	t.Parallel()

	c := New[string, int](1)

	_, replaced := c.Put("a", 1)
	assert.False(t, replaced)
	_, replaced = c.Put("b", 2)
	assert.False(t, replaced)

	_, ok := c.Get("a")
	assert.False(t, ok, "a must be evicted")
	v, ok := c.Get("b")
	require.True(t, ok)
	assert.Equal(t, 2, v)
	assert.Equal(t, 1, c.Len())
	mustVerify(t, c)
}

// Scenario: capacity 2, a touched key survives the next overflow.
func TestCache_TouchProtectsFromEviction(t *testing.T) {
	t.Parallel()

	c := New[int, int](2)
	c.Put(1, 1)
	c.Put(2, 2)

	v, ok := c.Get(1)
	require.True(t, ok)
	assert.Equal(t, 1, v)

	c.Put(3, 3) // evicts 2, not 1

	_, ok = c.Get(2)
	assert.False(t, ok)
	v, ok = c.Get(1)
	require.True(t, ok)
	assert.Equal(t, 1, v)
	v, ok = c.Get(3)
	require.True(t, ok)
	assert.Equal(t, 3, v)
	mustVerify(t, c)
}

func TestCache_ZeroCapacity(t *testing.T) {
	t.Parallel()

	var evicted []string
	c := NewWithOptions(Options[string, int]{
		Capacity: 0,
		OnEvict: func(k string, v int, r EvictReason) {
			assert.Equal(t, EvictCapacity, r)
			evicted = append(evicted, k+"="+strconv.Itoa(v))
		},
	})

	for i := 0; i < 3; i++ {
		_, replaced := c.Put("k", i)
		assert.False(t, replaced, "nothing is retained, so nothing is replaced")
		_, ok := c.Get("k")
		assert.False(t, ok)
	}
	assert.True(t, c.Add("x", 9), "Add admits then immediately evicts")
	assert.False(t, c.Contains("x"))

	assert.Equal(t, 0, c.Len())
	assert.Equal(t, 0, c.Cap())
	assert.Empty(t, c.Keys())
	assert.Equal(t, []string{"k=0", "k=1", "k=2", "x=9"}, evicted)

	st := c.Stats()
	assert.Equal(t, uint64(4), st.Evictions)
	assert.Equal(t, uint64(3), st.Misses)
	mustVerify(t, c)
}

func TestCache_NegativeCapacityPanics(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() { New[string, int](-1) })
}

func TestCache_GetAfterPut(t *testing.T) {
	t.Parallel()

	c := New[string, string](8)
	for i := 0; i < 8; i++ {
		k := "k" + strconv.Itoa(i)
		c.Put(k, "v"+strconv.Itoa(i))
		v, ok := c.Get(k)
		require.True(t, ok)
		assert.Equal(t, "v"+strconv.Itoa(i), v)
	}
}

func TestCache_PutExistingReturnsPrevious(t *testing.T) {
	t.Parallel()

	c := New[string, int](3)
	c.Put("a", 1)
	c.Put("b", 2)
	c.Put("c", 3)

	prev, replaced := c.Put("a", 10)
	require.True(t, replaced)
	assert.Equal(t, 1, prev)
	assert.Equal(t, 3, c.Len(), "update keeps the size")
	assert.Equal(t, []string{"a", "c", "b"}, c.Keys(), "update makes the key MRU")

	c.Put("d", 4) // evicts b
	assert.False(t, c.Contains("b"))
	v, _ := c.Peek("a")
	assert.Equal(t, 10, v)
	mustVerify(t, c)
}

// Every overflow evicts exactly the least recently touched key.
func TestCache_EvictsLeastRecentlyTouched(t *testing.T) {
	t.Parallel()

	var evicted []int
	c := NewWithOptions(Options[int, int]{
		Capacity: 3,
		OnEvict:  func(k, _ int, _ EvictReason) { evicted = append(evicted, k) },
	})
	c.Put(1, 1)
	c.Put(2, 2)
	c.Put(3, 3)
	c.Get(1)    // order: 1 3 2
	c.Put(2, 2) // order: 2 1 3
	c.Put(4, 4) // evicts 3
	c.Get(1)    // order: 1 4 2
	c.Put(5, 5) // evicts 2
	c.Put(6, 6) // evicts 4

	assert.Equal(t, []int{3, 2, 4}, evicted)
	assert.Equal(t, []int{6, 5, 1}, c.Keys())
	mustVerify(t, c)
}

// Size tracks min(capacity, distinct live keys) after every Put.
func TestCache_SizeInvariant(t *testing.T) {
	t.Parallel()

	const capacity = 5
	c := New[int, int](capacity)
	live := map[int]bool{}
	for i := 0; i < 50; i++ {
		k := (i * 7) % 13
		c.Put(k, i)
		live[k] = true
		assert.LessOrEqual(t, c.Len(), capacity)
		assert.Equal(t, min(capacity, len(live)), c.Len())
		if c.Len() == capacity {
			// From here on every new key is paired with an eviction.
			live = map[int]bool{}
			for _, k := range c.Keys() {
				live[k] = true
			}
		}
	}
	mustVerify(t, c)
}

func TestCache_AddPeekContainsRemove(t *testing.T) {
	t.Parallel()

	c := New[string, int](2)

	require.True(t, c.Add("a", 1))
	assert.False(t, c.Add("a", 2), "duplicate Add is rejected")
	v, ok := c.Peek("a")
	require.True(t, ok)
	assert.Equal(t, 1, v, "failed Add must not overwrite")

	c.Put("b", 2)
	c.Peek("a") // no promotion: a stays LRU
	assert.True(t, c.Contains("a"))
	c.Put("c", 3)
	assert.False(t, c.Contains("a"), "Peek/Contains must not touch recency")

	assert.True(t, c.Remove("b"))
	assert.False(t, c.Remove("b"))
	_, ok = c.Get("b")
	assert.False(t, ok)
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, uint64(1), c.Stats().Evictions, "Remove is not an eviction")

	assert.True(t, c.Add("b", 20), "Add after Remove succeeds")
	mustVerify(t, c)
}

func TestCache_Purge(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	got := map[string]EvictReason{}
	c := NewWithOptions(Options[string, int]{
		Capacity: 4,
		OnEvict: func(k string, _ int, r EvictReason) {
			mu.Lock()
			got[k] = r
			mu.Unlock()
		},
	})
	c.Put("a", 1)
	c.Put("b", 2)
	c.Purge()

	assert.Equal(t, 0, c.Len())
	assert.Empty(t, c.Keys())
	assert.Equal(t, map[string]EvictReason{"a": EvictPurge, "b": EvictPurge}, got)

	c.Put("c", 3)
	v, ok := c.Get("c")
	require.True(t, ok)
	assert.Equal(t, 3, v)
	mustVerify(t, c)
}

func TestCache_Stats(t *testing.T) {
	t.Parallel()

	c := New[string, int](1)
	c.Put("a", 1)
	c.Get("a")
	c.Get("a")
	c.Get("zzz")
	c.Put("b", 2)

	st := c.Stats()
	assert.Equal(t, Stats{Hits: 2, Misses: 1, Evictions: 1, Len: 1, Capacity: 1}, st)
	assert.InDelta(t, 2.0/3.0, st.HitRatio(), 1e-9)
	assert.Zero(t, Stats{}.HitRatio())
}

type recMetrics struct {
	hits, misses, resident atomic.Int64
	evicts                 sync.Map // EvictReason -> *atomic.Int64
}

func (m *recMetrics) Hit()  { m.hits.Add(1) }
func (m *recMetrics) Miss() { m.misses.Add(1) }
func (m *recMetrics) Evict(r EvictReason) {
	v, _ := m.evicts.LoadOrStore(r, new(atomic.Int64))
	v.(*atomic.Int64).Add(1)
}
func (m *recMetrics) Resident(d int) { m.resident.Add(int64(d)) }

func (m *recMetrics) evicted(r EvictReason) int64 {
	v, ok := m.evicts.Load(r)
	if !ok {
		return 0
	}
	return v.(*atomic.Int64).Load()
}

func TestCache_MetricsHooks(t *testing.T) {
	t.Parallel()

	m := &recMetrics{}
	c := NewWithOptions(Options[string, int]{Capacity: 2, Metrics: m})

	c.Put("a", 1)
	c.Put("a", 2) // update: resident unchanged
	c.Put("b", 2)
	c.Put("c", 3) // evicts a
	c.Get("b")
	c.Get("a")
	c.Remove("b")
	c.Add("d", 4)
	c.Purge()

	assert.Equal(t, int64(1), m.hits.Load())
	assert.Equal(t, int64(1), m.misses.Load())
	assert.Equal(t, int64(1), m.evicted(EvictCapacity))
	assert.Equal(t, int64(2), m.evicted(EvictPurge))
	assert.Equal(t, int64(0), m.resident.Load(), "resident gauge returns to zero")
}

// With Clone set, callers never share memory with a resident entry.
func TestCache_CloneIsolatesValues(t *testing.T) {
	t.Parallel()

	c := NewWithOptions(Options[string, []byte]{
		Capacity: 2,
		Clone:    bytes.Clone,
	})

	in := []byte("hello")
	c.Put("k", in)
	in[0] = 'J' // caller mutates what it stored

	out, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, []byte("hello"), out)
	out[0] = 'Y' // caller mutates what it received

	again, _ := c.Peek("k")
	assert.Equal(t, []byte("hello"), again)
}

// Without Clone, reference-typed values are shared handles.
func TestCache_NoCloneSharesHandles(t *testing.T) {
	t.Parallel()

	c := New[string, []byte](2)
	in := []byte("hello")
	c.Put("k", in)
	out, _ := c.Get("k")
	assert.Same(t, &in[0], &out[0])
}

func TestCache_KeysMRUOrder(t *testing.T) {
	t.Parallel()

	c := New[int, string](4)
	for i := 1; i <= 4; i++ {
		c.Put(i, strconv.Itoa(i))
	}
	c.Get(2)
	assert.Equal(t, []int{2, 4, 3, 1}, c.Keys())
}

// Concurrent GetOrLoad calls for the same key trigger the Loader once;
// subsequent calls are cache hits.
func TestCache_GetOrLoad_Singleflight(t *testing.T) {
	var calls atomic.Int64

	c := NewWithOptions(Options[string, string]{
		Capacity: 64,
		Loader: func(_ context.Context, k string) (string, error) {
			calls.Add(1)
			time.Sleep(5 * time.Millisecond) // simulate I/O
			return "v:" + k, nil
		},
	})

	const N = 64
	var g errgroup.Group
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for i := 0; i < N; i++ {
		g.Go(func() error {
			v, err := c.GetOrLoad(ctx, "k")
			if err != nil {
				return err
			}
			if v != "v:k" {
				return fmt.Errorf("got %q", v)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, int64(1), calls.Load(), "loader must run exactly once")

	v, err := c.GetOrLoad(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "v:k", v)
	assert.Equal(t, int64(1), calls.Load())
}

func TestCache_GetOrLoad_Errors(t *testing.T) {
	t.Parallel()

	_, err := New[string, int](4).GetOrLoad(context.Background(), "k")
	assert.ErrorIs(t, err, ErrNoLoader)

	boom := errors.New("backend down")
	c := NewWithOptions(Options[string, int]{
		Capacity: 4,
		Logger:   quietLogger,
		Loader: func(context.Context, string) (int, error) {
			return 0, boom
		},
	})
	_, err = c.GetOrLoad(context.Background(), "k")
	assert.ErrorIs(t, err, boom)
	assert.False(t, c.Contains("k"), "failed loads are not cached")
}

func TestCache_ShardedCapacitySplit(t *testing.T) {
	t.Parallel()

	c := NewWithOptions(Options[int, int]{Capacity: 10, Shards: 4})
	impl := c.(*cache[int, int])
	require.Len(t, impl.shards, 4)

	total := 0
	for _, s := range impl.shards {
		total += s.cap
	}
	assert.Equal(t, 10, total, "shard capacities sum to Capacity")

	for i := 0; i < 1000; i++ {
		c.Put(i, i)
		require.LessOrEqual(t, c.Len(), 10)
	}
	assert.Len(t, c.Keys(), c.Len())
	mustVerify(t, c)

	small := NewWithOptions(Options[int, int]{Capacity: 3, Shards: 64})
	assert.Len(t, small.(*cache[int, int]).shards, 2, "no shard is left without capacity")

	auto := NewWithOptions(Options[int, int]{Capacity: 1 << 16, Shards: ShardsAuto})
	assert.GreaterOrEqual(t, len(auto.(*cache[int, int]).shards), 2)
}

type point struct{ x, y int }

func TestCache_ShardedNeedsHasher(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() {
		NewWithOptions(Options[point, int]{Capacity: 8, Shards: 2})
	})

	c := NewWithOptions(Options[point, int]{
		Capacity: 8,
		Shards:   2,
		Hasher:   func(p point) uint64 { return uint64(p.x*31 + p.y) },
	})
	c.Put(point{1, 2}, 3)
	v, ok := c.Get(point{1, 2})
	require.True(t, ok)
	assert.Equal(t, 3, v)

	// A single shard never hashes, so any comparable key works.
	single := New[point, int](2)
	single.Put(point{0, 0}, 1)
	assert.True(t, single.Contains(point{0, 0}))
}

// Corrupted internal state must surface as a panic, never be absorbed.
func TestCache_CorruptionPanics(t *testing.T) {
	t.Parallel()

	newCorrupt := func() (Cache[string, int], *shard[string, int]) {
		c := NewWithOptions(Options[string, int]{Capacity: 2, Logger: quietLogger})
		c.Put("a", 1)
		c.Put("b", 2)
		return c, c.(*cache[string, int]).shards[0]
	}
	expectCorrupted := func(t *testing.T, op string, fn func()) {
		t.Helper()
		defer func() {
			r := recover()
			require.NotNil(t, r, "%s must panic", op)
			err, ok := r.(error)
			require.True(t, ok, "panic value must be an error, got %T", r)
			assert.ErrorIs(t, err, ErrCorrupted)
			var ie *InvariantError
			require.ErrorAs(t, err, &ie)
			assert.Equal(t, op, ie.Op)
		}()
		fn()
	}

	t.Run("index points at wrong slot", func(t *testing.T) {
		c, s := newCorrupt()
		h, _ := s.idx.get("a")
		s.ord.at(h).key = "zzz"
		expectCorrupted(t, "get", func() { c.Get("a") })
		// the deferred unlock ran: the cache is still usable for inspection
		assert.Error(t, c.(*cache[string, int]).verify())
	})

	t.Run("order lost a slot", func(t *testing.T) {
		c, s := newCorrupt()
		h, _ := s.idx.get("a")
		s.ord.remove(h)
		expectCorrupted(t, "put", func() { c.Put("c", 3) })
	})

	t.Run("index lost a key", func(t *testing.T) {
		c, s := newCorrupt()
		s.idx.remove("b")
		expectCorrupted(t, "add", func() { c.Add("c", 3) })
	})

	t.Run("LRU victim not indexed", func(t *testing.T) {
		c, s := newCorrupt()
		back, _ := s.ord.back()
		victim := s.ord.at(back).key
		h, _ := s.idx.remove(victim)
		s.idx.insert("ghost", h)
		expectCorrupted(t, "put", func() { c.Put("c", 3) })
	})
}
