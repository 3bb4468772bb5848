// Package cmap implements a lock-free concurrent hash map keyed by
// 63-bit hashes, following the split-ordered list design of Shalev
// and Shavit: a single sorted linked list holding every entry in
// bit-reversed ("split-order") key order, with a growable two-level
// bucket array of fast entry points into that list.
//
// Deletion of a real node D between predecessor P and successor S is
// a two-step protocol: first D.next is swapped (by CAS) from S to a
// freshly allocated marker node wrapping S, which logically deletes D
// without touching P; any thread subsequently walking through D
// notices the marker and physically unlinks D by CASing P.next from D
// to S, helping on behalf of the original deleter. This reproduces
// Harris' lock-free list algorithm without hiding a delete bit inside
// a tagged pointer (which would require unsafe pointer-to-uintptr
// round-tripping that Go's garbage collector gives no guarantees
// about); the marker node is an ordinary, GC-visible allocation.
package cmap

import (
	"math/bits"
	"sync/atomic"
)

// node is an entry in the split-ordered list. Sentinel (bucket entry
// point) nodes have an even key (low bit clear); data nodes have an
// odd key (low bit set) — the spec's "head/data marker" convention.
// A node with marker set is never addressable by key: it exists only
// as the transient successor-holder written into a logically deleted
// node's next pointer.
type node[V any] struct {
	key    uint64
	value  V
	marker bool
	next   atomic.Pointer[node[V]]
}

func dummyKey(bucketIndex uint64) uint64 {
	return bits.Reverse64(bucketIndex)
}

func regularKey(hash uint64) uint64 {
	return bits.Reverse64(hash) | 1
}

// clearMSB clears the most significant set bit of x, yielding the
// index of x's parent bucket per the split-ordered list scheme.
func clearMSB(x uint64) uint64 {
	if x == 0 {
		return 0
	}
	msb := uint64(1) << uint(63-bits.LeadingZeros64(x))
	return x &^ msb
}

// find walks the list starting at start, helping unlink any logically
// deleted node it passes through, and returns the adjacent pair
// (prev, cur) such that prev.key < key <= cur.key (cur may be nil at
// the tail). start must have a key <= key.
func find[V any](start *node[V], key uint64) (prev, cur *node[V]) {
retry:
	prev = start
	cur = prev.next.Load()
	for cur != nil {
		nxt := cur.next.Load()
		if nxt != nil && nxt.marker {
			// cur is logically deleted; help physically unlink it.
			succ := nxt.next.Load()
			if !prev.next.CompareAndSwap(cur, succ) {
				goto retry
			}
			cur = succ
			continue
		}
		if cur.key >= key {
			return prev, cur
		}
		prev = cur
		cur = nxt
	}
	return prev, cur
}

// insertAfter links a new data/sentinel node with the given key and
// value into the list starting the search at start, or returns the
// existing node if key is already present. ok reports whether this
// call performed the insertion.
func insertAfter[V any](start *node[V], key uint64, value V) (n *node[V], ok bool) {
	for {
		prev, cur := find(start, key)
		if cur != nil && cur.key == key {
			return cur, false
		}
		nn := &node[V]{key: key, value: value}
		nn.next.Store(cur)
		if prev.next.CompareAndSwap(cur, nn) {
			return nn, true
		}
	}
}

// removeFrom logically deletes the node with the given key, if
// present and not already being deleted, and opportunistically helps
// physically unlink it. Returns the removed node's value.
func removeFrom[V any](start *node[V], key uint64) (value V, ok bool) {
	for {
		prev, cur := find(start, key)
		if cur == nil || cur.key != key {
			return value, false
		}
		succ := cur.next.Load()
		if succ != nil && succ.marker {
			continue
		}
		mk := &node[V]{marker: true}
		mk.next.Store(succ)
		if !cur.next.CompareAndSwap(succ, mk) {
			continue
		}
		prev.next.CompareAndSwap(cur, succ)
		return cur.value, true
	}
}
