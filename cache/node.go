package cache

// handle addresses a slot in a shard's arena. A handle returned by
// order.pushFront stays valid until that slot is removed, no matter how
// many other slots are linked or unlinked in between.
type handle int32

const (
	// sentinel is slot 0 of every arena: its next is the MRU slot and its
	// prev the LRU slot. It never holds an entry.
	sentinel handle = 0
	// freeSlot marks the prev field of a slot sitting on the free list.
	freeSlot handle = -1
)

// slot is one arena cell: the cached key/value together with its recency
// links. Links are slot indices, not pointers, so the arena can grow or be
// recycled without any entry referring to another by address.
type slot[K comparable, V any] struct {
	key K
	val V

	// Recency links: prev points towards MRU, next towards LRU.
	// On the free list prev == freeSlot and next chains free slots.
	prev handle
	next handle
}

func (s *slot[K, V]) live() bool { return s.prev != freeSlot }
