package cache

import (
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/IvanBrykalov/lru/internal/util"
)

// maxShardCapacity keeps every slot index representable as a handle.
const maxShardCapacity = math.MaxInt32 - 1

// shard is one critical section of the cache: a lookup index and a
// recency order guarded together by a single lock. Every operation that
// touches either structure does its whole read-decide-mutate sequence
// under that lock; there are no partial entry points.
type shard[K comparable, V any] struct {
	// ---- guarded by mu ----
	mu  sync.RWMutex
	idx index[K]
	ord order[K, V]
	cap int

	id  int
	log *slog.Logger

	// ---- hot counters (separate cache lines to avoid false sharing) ----
	_      util.CacheLinePad
	hits   util.PaddedAtomicUint64
	misses util.PaddedAtomicUint64
	evicts util.PaddedAtomicUint64
}

// eviction describes an entry that left the shard, for callbacks and
// metrics run after the lock is released.
type eviction[K comparable, V any] struct {
	key    K
	val    V
	reason EvictReason
}

func newShard[K comparable, V any](id, capacity int, log *slog.Logger) *shard[K, V] {
	if capacity < 0 || capacity > maxShardCapacity {
		panic(fmt.Sprintf("cache: shard capacity %d out of range [0, %d]", capacity, maxShardCapacity))
	}
	return &shard[K, V]{
		idx: newIndex[K](capacity),
		ord: newOrder[K, V](capacity),
		cap: capacity,
		id:  id,
		log: log,
	}
}

// get returns the value for k and promotes it to MRU.
// Promotion mutates the order, so get takes the exclusive lock.
func (s *shard[K, V]) get(k K) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.idx.get(k)
	if !ok {
		s.misses.Add(1)
		var zero V
		return zero, false
	}
	s.mustHold("get", k, h)
	s.ord.moveToFront(h)
	s.hits.Add(1)
	return s.ord.at(h).val, true
}

// put inserts or updates k→v. For a new key on a full shard the LRU entry
// is evicted within the same critical section that admits k.
func (s *shard[K, V]) put(k K, v V) (prev V, replaced bool, ev eviction[K, V], evicted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if h, ok := s.idx.get(k); ok {
		s.mustHold("put", k, h)
		e := s.ord.at(h)
		prev, e.val = e.val, v
		s.ord.moveToFront(h)
		return prev, true, ev, false
	}
	ev, evicted = s.admitLocked("put", k, v)
	return prev, false, ev, evicted
}

// add inserts k→v only if k is absent.
func (s *shard[K, V]) add(k K, v V) (added bool, ev eviction[K, V], evicted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if h, ok := s.idx.get(k); ok {
		s.mustHold("add", k, h)
		return false, ev, false
	}
	ev, evicted = s.admitLocked("add", k, v)
	return true, ev, evicted
}

// peek reads k without promoting it.
func (s *shard[K, V]) peek(k K) (V, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.idx.get(k)
	if !ok {
		var zero V
		return zero, false
	}
	s.mustHold("peek", k, h)
	return s.ord.at(h).val, true
}

func (s *shard[K, V]) contains(k K) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.idx.get(k)
	return ok
}

// remove deletes k from both structures. Not counted as an eviction.
func (s *shard[K, V]) remove(k K) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.idx.remove(k)
	if !ok {
		return false
	}
	s.mustHold("remove", k, h)
	s.ord.remove(h)
	s.checkLenLocked("remove")
	return true
}

// purge empties the shard. Evicted entries are collected only when the
// caller needs them for callbacks; the count is always returned.
func (s *shard[K, V]) purge(collect bool) (int, []eviction[K, V]) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.checkLenLocked("purge")
	n := s.ord.len()
	var evs []eviction[K, V]
	if collect && n > 0 {
		evs = make([]eviction[K, V], 0, n)
		s.ord.walk(func(_ handle, e *slot[K, V]) bool {
			evs = append(evs, eviction[K, V]{key: e.key, val: e.val, reason: EvictPurge})
			return true
		})
	}
	s.idx.reset()
	s.ord.reset()
	s.evicts.Add(uint64(n))
	return n, evs
}

func (s *shard[K, V]) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ord.len()
}

// appendKeys appends resident keys MRU→LRU to dst.
func (s *shard[K, V]) appendKeys(dst []K) []K {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.ord.walk(func(_ handle, e *slot[K, V]) bool {
		dst = append(dst, e.key)
		return true
	}) {
		s.fail("keys", "recency ring does not close")
	}
	return dst
}

// -------------------- internals (mu held) --------------------

// admitLocked inserts a key known to be absent. If the shard is full the
// back-most entry goes first; with capacity 0 the new entry itself is the
// eviction and nothing is stored.
func (s *shard[K, V]) admitLocked(op string, k K, v V) (ev eviction[K, V], evicted bool) {
	s.checkLenLocked(op)

	if s.cap == 0 {
		s.evicts.Add(1)
		return eviction[K, V]{key: k, val: v, reason: EvictCapacity}, true
	}
	if s.ord.len() == s.cap {
		ev, evicted = s.evictBackLocked(op), true
	}

	h := s.ord.pushFront(k, v)
	if old, dup := s.idx.insert(k, h); dup {
		s.fail(op, fmt.Sprintf("index already mapped an absent key to slot %d", old))
	}
	return ev, evicted
}

// evictBackLocked drops the LRU entry from the order and its key from the
// index as one step, verifying that both agree on the victim.
func (s *shard[K, V]) evictBackLocked(op string) eviction[K, V] {
	k, v, h, ok := s.ord.popBack()
	if !ok {
		s.fail(op, "shard is full but the recency order is empty")
	}
	if ih, ok := s.idx.remove(k); !ok || ih != h {
		s.fail(op, fmt.Sprintf("LRU slot %d held a key the index does not map back to it", h))
	}
	s.evicts.Add(1)
	return eviction[K, V]{key: k, val: v, reason: EvictCapacity}
}

// mustHold checks that the index entry k→h addresses a live slot storing k.
func (s *shard[K, V]) mustHold(op string, k K, h handle) {
	if !s.ord.holds(h, k) {
		s.fail(op, fmt.Sprintf("index maps key to slot %d, which does not hold it", h))
	}
}

// checkLenLocked verifies the O(1) size invariant |index| == |order| <= cap.
func (s *shard[K, V]) checkLenLocked(op string) {
	if n, m := s.idx.len(), s.ord.len(); n != m || m > s.cap {
		s.fail(op, fmt.Sprintf("index holds %d keys, order holds %d slots, capacity %d", n, m, s.cap))
	}
}

// fail logs and panics with an InvariantError. Deferred unlocks in the
// caller still run, so other goroutines observe the panic rather than a
// deadlock.
func (s *shard[K, V]) fail(op, detail string) {
	err := &InvariantError{Shard: s.id, Op: op, Detail: detail}
	s.log.Error("cache: internal invariant violated",
		slog.Int("shard", s.id), slog.String("op", op), slog.String("detail", detail))
	panic(err)
}

// verify walks the whole shard and checks bijection, size and ring
// integrity. O(n); meant for tests and debugging, not the hot path.
func (s *shard[K, V]) verify() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bad := func(format string, args ...any) error {
		return &InvariantError{Shard: s.id, Op: "verify", Detail: fmt.Sprintf(format, args...)}
	}
	if n, m := s.idx.len(), s.ord.len(); n != m || m > s.cap {
		return bad("index holds %d keys, order holds %d slots, capacity %d", n, m, s.cap)
	}

	var err error
	seen := 0
	prev := sentinel
	closed := s.ord.walk(func(h handle, e *slot[K, V]) bool {
		switch {
		case !e.live():
			err = bad("free slot %d linked into the recency order", h)
		case e.prev != prev:
			err = bad("slot %d has prev %d, want %d", h, e.prev, prev)
		default:
			if ih, ok := s.idx.get(e.key); !ok || ih != h {
				err = bad("slot %d is not indexed under its key", h)
			}
		}
		prev = h
		seen++
		return err == nil
	})
	switch {
	case err != nil:
		return err
	case !closed:
		return bad("recency ring does not close after %d slots", seen)
	case seen != s.ord.len():
		return bad("walked %d slots, order reports %d", seen, s.ord.len())
	case s.ord.at(sentinel).prev != prev:
		return bad("sentinel prev is %d, want LRU slot %d", s.ord.at(sentinel).prev, prev)
	}
	return nil
}
