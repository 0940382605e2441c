// Package singleflight coalesces concurrent loads of the same key.
package singleflight

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrPanicked is returned to followers whose leader's fn panicked.
// The leader itself re-panics with the original value.
var ErrPanicked = errors.New("singleflight: load panicked")

// Group runs fn at most once per key at a time. Followers arriving while a
// load is in flight wait for the leader's result instead of running fn.
//
// Cancelling a follower's ctx unblocks only that follower; the leader keeps
// running. Thread ctx into fn if the work itself must stop.
type Group[K comparable, V any] struct {
	mu sync.Mutex
	m  map[K]*call[V]
}

type call[V any] struct {
	done chan struct{} // closed once val/err are published
	val  V
	err  error
	dups int
}

// Do runs fn for key unless a call is already in flight, in which case it
// waits for that call. shared reports whether the result was handed to
// more than one caller.
func (g *Group[K, V]) Do(ctx context.Context, key K, fn func() (V, error)) (v V, shared bool, err error) {
	g.mu.Lock()
	if g.m == nil {
		g.m = make(map[K]*call[V])
	}
	if c, ok := g.m[key]; ok {
		c.dups++
		g.mu.Unlock()

		select {
		case <-c.done:
			return c.val, true, c.err
		case <-ctx.Done():
			var zero V
			return zero, false, ctx.Err()
		}
	}

	c := &call[V]{done: make(chan struct{})}
	g.m[key] = c
	g.mu.Unlock()

	g.run(key, c, fn)

	g.mu.Lock()
	shared = c.dups > 0
	g.mu.Unlock()
	return c.val, shared, c.err
}

// run executes fn outside the lock and publishes its result. A panic in fn
// is reported to followers as ErrPanicked and re-raised in the leader.
func (g *Group[K, V]) run(key K, c *call[V], fn func() (V, error)) {
	normal := false
	defer func() {
		var r any
		if !normal {
			r = recover()
			c.err = fmt.Errorf("%w: %v", ErrPanicked, r)
		}
		g.mu.Lock()
		if g.m[key] == c {
			delete(g.m, key)
		}
		g.mu.Unlock()
		close(c.done)
		if !normal {
			panic(r)
		}
	}()

	c.val, c.err = fn()
	normal = true
}

// Forget drops the in-flight marker for key so the next Do starts a fresh
// call. Callers already waiting still receive the old result.
func (g *Group[K, V]) Forget(key K) {
	g.mu.Lock()
	delete(g.m, key)
	g.mu.Unlock()
}
