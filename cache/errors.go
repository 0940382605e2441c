package cache

import (
	"errors"
	"fmt"
)

var (
	// ErrNoLoader is returned by GetOrLoad when no Loader was configured in Options.
	ErrNoLoader = errors.New("cache: no Loader provided")

	// ErrCorrupted is wrapped by every InvariantError.
	ErrCorrupted = errors.New("cache: internal state corrupted")
)

// InvariantError reports that a shard's index and recency order disagree.
// It is never returned: the cache panics with it, because the structure
// cannot be repaired locally and continuing would leak stale values or
// grow without bound.
type InvariantError struct {
	Shard  int
	Op     string
	Detail string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("cache: invariant violated during %s on shard %d: %s", e.Op, e.Shard, e.Detail)
}

func (e *InvariantError) Unwrap() error { return ErrCorrupted }
