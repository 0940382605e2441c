package util

import "runtime"

// ReasonableShardCount picks a practical default shard count based on CPU
// parallelism. Heuristic: nextPow2(2*GOMAXPROCS), clamped to [1..256].
func ReasonableShardCount() int {
	p := runtime.GOMAXPROCS(0)
	if p < 1 {
		p = 1
	}
	n := int(NextPow2(uint64(p * 2)))
	if n > 256 {
		n = 256
	}
	return n
}

// ClampShards rounds want up to a power of two, then down so that no shard
// would be left with zero capacity. A zero capacity collapses to one shard.
func ClampShards(want, capacity int) int {
	if want <= 1 || capacity <= 1 {
		return 1
	}
	n := int(NextPow2(uint64(want)))
	if n > capacity {
		n = int(PrevPow2(uint64(capacity)))
	}
	return n
}

// SplitCapacity divides total across n shards so the parts sum exactly to
// total; the first total%n shards get one extra slot.
func SplitCapacity(total, n int) []int {
	if n < 1 {
		n = 1
	}
	parts := make([]int, n)
	base, rem := total/n, total%n
	for i := range parts {
		parts[i] = base
		if i < rem {
			parts[i]++
		}
	}
	return parts
}

// ShardIndex maps a 64-bit hash to a shard index.
// Assumes shard count is a power of two for the fast mask path,
// but remains correct for arbitrary shard counts (uses modulo).
func ShardIndex(hash uint64, shards int) int {
	if shards <= 1 {
		return 0
	}
	if IsPowerOfTwo(uint64(shards)) {
		return int(hash & uint64(shards-1))
	}
	return int(hash % uint64(shards))
}
