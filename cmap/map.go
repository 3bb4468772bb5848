package cmap

import (
	"math/bits"
	"sync/atomic"
)

const (
	initialBuckets = 16
	// growThreshold is the average chain length (count/size) above
	// which a thread CASes the bucket array to double in size.
	growThreshold = 2.0
)

type bucketTable[V any] struct {
	buckets []atomic.Pointer[node[V]]
}

// Map is a lock-free hash map keyed by 63-bit hashes (the top bit of
// a key is never inspected, but callers are expected to pass values
// produced by hashutil.Hash so the key space stays 63 bits per the
// spec's reserved-bit convention). Find and Insert are fully
// lock-free and safe under unbounded concurrent use; Remove is safe
// to call concurrently with Find/Insert, but the caller must not
// treat the returned value's backing memory as reusable until a
// global quiescence point (no in-flight operation can retain a
// reference), matching §5's memory discipline.
type Map[V any] struct {
	head  *node[V]
	table atomic.Pointer[bucketTable[V]]
	count atomic.Int64
}

// New creates an empty map.
func New[V any]() *Map[V] {
	head := &node[V]{key: 0}
	t := &bucketTable[V]{buckets: make([]atomic.Pointer[node[V]], initialBuckets)}
	t.buckets[0].Store(head)
	m := &Map[V]{head: head}
	m.table.Store(t)
	return m
}

// Len returns the approximate number of live entries. Exact
// immediately after a quiescent point (e.g. after every worker in a
// gradient pass has joined).
func (m *Map[V]) Len() int {
	return int(m.count.Load())
}

func (m *Map[V]) getBucket(t *bucketTable[V], index uint64) *node[V] {
	if n := t.buckets[index].Load(); n != nil {
		return n
	}
	var parent *node[V]
	if index == 0 {
		parent = m.head
	} else {
		parent = m.getBucket(t, clearMSB(index))
	}
	key := dummyKey(index)
	var zero V
	n, _ := insertAfter(parent, key, zero)
	t.buckets[index].CompareAndSwap(nil, n)
	return t.buckets[index].Load()
}

func (m *Map[V]) startFor(hash uint64) (*bucketTable[V], *node[V]) {
	t := m.table.Load()
	idx := hash & uint64(len(t.buckets)-1)
	return t, m.getBucket(t, idx)
}

// Find returns the value stored under hash, if present.
func (m *Map[V]) Find(hash uint64) (V, bool) {
	_, start := m.startFor(hash)
	key := regularKey(hash)
	_, cur := find(start, key)
	if cur != nil && cur.key == key {
		return cur.value, true
	}
	var zero V
	return zero, false
}

// Insert links value under hash if absent, returning the now-current
// value (the caller's value if this call inserted it, the
// pre-existing value otherwise) and whether this call performed the
// insertion.
func (m *Map[V]) Insert(hash uint64, value V) (V, bool) {
	t, start := m.startFor(hash)
	key := regularKey(hash)
	n, inserted := insertAfter(start, key, value)
	if inserted {
		if m.count.Add(1) > int64(float64(len(t.buckets))*growThreshold) {
			m.maybeGrow(t)
		}
	}
	return n.value, inserted
}

// Remove deletes the entry stored under hash, if present, returning
// its value. See the Map docstring for the memory-quiescence
// requirement on the returned value.
func (m *Map[V]) Remove(hash uint64) (V, bool) {
	_, start := m.startFor(hash)
	key := regularKey(hash)
	v, ok := removeFrom(start, key)
	if ok {
		m.count.Add(-1)
	}
	return v, ok
}

// maybeGrow doubles the bucket array. New slots are resolved lazily
// by getBucket; no list entry ever moves, so growth never races with
// Find/Insert/Remove on the shared list.
func (m *Map[V]) maybeGrow(old *bucketTable[V]) {
	if m.table.Load() != old {
		return
	}
	bigger := &bucketTable[V]{buckets: make([]atomic.Pointer[node[V]], len(old.buckets)*2)}
	bigger.buckets[0].Store(m.head)
	m.table.CompareAndSwap(old, bigger)
}

// Range calls f for every live, non-sentinel entry in split-order.
// Like sync.Map.Range, f may observe a state that never existed
// consecutively if the map is mutated concurrently; Range itself
// never revisits a key and always terminates. Range stops early if f
// returns false.
func (m *Map[V]) Range(f func(hash uint64, value V) bool) {
	cur := m.head.next.Load()
	for cur != nil {
		nxt := cur.next.Load()
		if nxt != nil && nxt.marker {
			cur = nxt.next.Load()
			continue
		}
		if cur.key&1 == 1 { // data node, not a bucket sentinel
			hash := bits.Reverse64(cur.key &^ 1)
			if !f(hash, cur.value) {
				return
			}
		}
		cur = nxt
	}
}
