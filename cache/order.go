package cache

// initialArena bounds the up-front arena allocation; larger shards grow on
// demand up to their capacity.
const initialArena = 1024

// order is the recency list of one shard, stored as an arena of slots.
// Slot 0 is the sentinel closing the ring; front = MRU, back = LRU.
// Removed slots are zeroed and pushed onto a free list threaded through
// next, so the arena never holds more than capacity+1 slots.
//
// order is not safe for concurrent use; the owning shard serialises access.
type order[K comparable, V any] struct {
	slots []slot[K, V]
	free  handle // head of the free list; sentinel when empty
	n     int    // live slots
}

func newOrder[K comparable, V any](capacity int) order[K, V] {
	return order[K, V]{slots: make([]slot[K, V], 1, min(capacity, initialArena)+1)}
}

func (o *order[K, V]) len() int { return o.n }

// pushFront stores k→v in a free slot, links it at MRU and returns its handle.
func (o *order[K, V]) pushFront(k K, v V) handle {
	h := o.alloc()
	o.slots[h].key = k
	o.slots[h].val = v
	o.linkFront(h)
	o.n++
	return h
}

// moveToFront relinks h at MRU in O(1).
func (o *order[K, V]) moveToFront(h handle) {
	if o.slots[sentinel].next == h {
		return
	}
	o.unlink(h)
	o.linkFront(h)
}

// remove unlinks h, releases its key and value for GC, returns the slot to
// the free list and hands the entry back to the caller.
func (o *order[K, V]) remove(h handle) (K, V) {
	o.unlink(h)
	k, v := o.slots[h].key, o.slots[h].val
	o.slots[h] = slot[K, V]{prev: freeSlot, next: o.free}
	o.free = h
	o.n--
	return k, v
}

// back returns the LRU handle, or false when the order is empty.
func (o *order[K, V]) back() (handle, bool) {
	h := o.slots[sentinel].prev
	return h, h != sentinel
}

// popBack removes and returns the LRU entry.
func (o *order[K, V]) popBack() (k K, v V, h handle, ok bool) {
	h, ok = o.back()
	if !ok {
		return k, v, h, false
	}
	k, v = o.remove(h)
	return k, v, h, true
}

// at returns the slot for h. The pointer is only valid until the next
// pushFront, which may grow the arena.
func (o *order[K, V]) at(h handle) *slot[K, V] { return &o.slots[h] }

// holds reports whether h addresses a live slot storing k.
func (o *order[K, V]) holds(h handle, k K) bool {
	if h <= sentinel || int(h) >= len(o.slots) {
		return false
	}
	s := &o.slots[h]
	return s.live() && s.key == k
}

// walk visits live slots from MRU to LRU until fn returns false.
// It stops after len() steps so a corrupted ring cannot loop forever;
// the result is false if the ring did not close where expected.
func (o *order[K, V]) walk(fn func(h handle, s *slot[K, V]) bool) bool {
	h := o.slots[sentinel].next
	for steps := 0; h != sentinel; steps++ {
		if steps >= o.n || h < sentinel || int(h) >= len(o.slots) {
			return false
		}
		if !fn(h, &o.slots[h]) {
			return true
		}
		h = o.slots[h].next
	}
	return true
}

// reset drops every entry and shrinks the arena back to the sentinel.
func (o *order[K, V]) reset() {
	clear(o.slots)
	o.slots = o.slots[:1]
	o.free = sentinel
	o.n = 0
}

func (o *order[K, V]) alloc() handle {
	if o.free != sentinel {
		h := o.free
		o.free = o.slots[h].next
		o.slots[h] = slot[K, V]{}
		return h
	}
	o.slots = append(o.slots, slot[K, V]{})
	return handle(len(o.slots) - 1)
}

func (o *order[K, V]) linkFront(h handle) {
	first := o.slots[sentinel].next
	o.slots[h].prev = sentinel
	o.slots[h].next = first
	o.slots[first].prev = h
	o.slots[sentinel].next = h
}

func (o *order[K, V]) unlink(h handle) {
	p, n := o.slots[h].prev, o.slots[h].next
	o.slots[p].next = n
	o.slots[n].prev = p
}
