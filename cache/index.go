package cache

// index maps keys to the arena handle of their slot. It carries no
// ordering of its own and is only touched under the owning shard's lock.
type index[K comparable] struct {
	m map[K]handle
}

func newIndex[K comparable](capacity int) index[K] {
	return index[K]{m: make(map[K]handle, min(capacity, initialArena))}
}

// insert maps k to h and returns the handle it replaced, if any.
func (x *index[K]) insert(k K, h handle) (old handle, replaced bool) {
	old, replaced = x.m[k]
	x.m[k] = h
	return old, replaced
}

func (x *index[K]) get(k K) (handle, bool) {
	h, ok := x.m[k]
	return h, ok
}

// remove deletes k and returns the handle it pointed to.
func (x *index[K]) remove(k K) (handle, bool) {
	h, ok := x.m[k]
	if ok {
		delete(x.m, k)
	}
	return h, ok
}

func (x *index[K]) len() int { return len(x.m) }

func (x *index[K]) reset() { clear(x.m) }
