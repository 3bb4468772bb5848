// Package hashutil provides the 63-bit hash primitive shared by the
// string pool and the feature table: a strong 64-bit hash over byte
// buffers with the top bit always cleared.
package hashutil

import (
	"math/bits"

	"github.com/dgryski/go-spooky"
)

// topBit is reserved; every Hash result has it cleared so the value
// fits the 63-bit key space the concurrent map and feature keys use.
const topBit = uint64(1) << 63

// Hash returns a deterministic 63-bit hash of b. Stable across runs,
// platforms and thread counts; two equal byte sequences always hash
// equal.
func Hash(b []byte) uint64 {
	return spooky.Hash64(b) &^ topBit
}

// HashString is a convenience wrapper avoiding a []byte copy at call
// sites that already hold a string.
func HashString(s string) uint64 {
	return Hash([]byte(s))
}

// BitReverse reverses the bit order of x (math/bits.Reverse64). cmap
// derives its split-order keys with the same math/bits.Reverse64 call
// directly and does not go through this function.
func BitReverse(x uint64) uint64 {
	return bits.Reverse64(x)
}
