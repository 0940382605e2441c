// Package util contains internal helpers (hashing, sharding, padding).
//revive:disable:var-naming  // allow 'util' as an internal helpers package name
package util

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// HasherFor returns an xxhash-based hash function for K when K is one of
// the built-in key kinds: string, []byte-like arrays ([16|32|64]byte),
// every int/uint width, uintptr, or a concrete type implementing
// fmt.Stringer. The second result is false for anything else; callers
// must then supply their own hasher.
//
// Named types (type ID string) are not matched here because the type
// switch sees the named type, not its underlying one.
func HasherFor[K comparable]() (func(K) uint64, bool) {
	var zero K
	switch any(zero).(type) {
	case string:
		return func(k K) uint64 { return xxhash.Sum64String(any(k).(string)) }, true
	case [16]byte:
		return func(k K) uint64 { b := any(k).([16]byte); return xxhash.Sum64(b[:]) }, true
	case [32]byte:
		return func(k K) uint64 { b := any(k).([32]byte); return xxhash.Sum64(b[:]) }, true
	case [64]byte:
		return func(k K) uint64 { b := any(k).([64]byte); return xxhash.Sum64(b[:]) }, true

	// Integer-like keys: hash the little-endian bytes of the value.
	case uint8, uint16, uint32, uint64, uint, uintptr,
		int8, int16, int32, int64, int:
		return func(k K) uint64 { return sum64Uint(asUint64(any(k))) }, true

	// Fallback for pseudo-keys via String() (avoid if you can).
	case fmt.Stringer:
		return func(k K) uint64 { return xxhash.Sum64String(any(k).(fmt.Stringer).String()) }, true
	default:
		return nil, false
	}
}

// asUint64 widens any integer kind to uint64. Signed values keep their
// two's complement bit pattern of the original width.
func asUint64(v any) uint64 {
	switch x := v.(type) {
	case uint8:
		return uint64(x)
	case uint16:
		return uint64(x)
	case uint32:
		return uint64(x)
	case uint64:
		return x
	case uint:
		return uint64(x)
	case uintptr:
		return uint64(x)
	case int8:
		return uint64(uint8(x))
	case int16:
		return uint64(uint16(x))
	case int32:
		return uint64(uint32(x))
	case int64:
		return uint64(x)
	case int:
		return uint64(x)
	}
	panic(fmt.Sprintf("util.asUint64: unsupported integer type %T", v))
}

func sum64Uint(u uint64) uint64 {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], u)
	return xxhash.Sum64(b[:])
}
