// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package timerqueue

import (
	"iter"

	"golang.org/x/exp/constraints"
)

// Item is the record returned by Poll, Remove, and PeekItem: the handle
// that identified the entry, its priority at that moment, and the payload.
type Item[V comparable, P any] struct {
	Handle   *Handle[V]
	Payload  V
	Priority P
}

// Update reports a successful priority change. On a priority increase,
// After.Handle differs from Before.Handle, and Before.Handle becomes stale.
type Update[V comparable, P any] struct {
	Before Item[V, P]
	After  Item[V, P]
}

// Interface is the set of operations common to every queue layer. [Heap]
// provides the base implementation; [Evented], [Scheduled], and [Streamed]
// decorate an inner Interface.
type Interface[V comparable, P any] interface {
	// Insert adds payload at the given priority, returning its handle.
	Insert(priority P, payload V) (*Handle[V], error)

	// InsertWithID is Insert with a caller-supplied unique id.
	InsertWithID(id string, priority P, payload V) (*Handle[V], error)

	// Peek returns the minimum entry's handle, or nil when empty.
	Peek() *Handle[V]

	// PeekItem returns the minimum entry with its priority, or nil when
	// empty. The entry is not removed.
	PeekItem() *Item[V, P]

	// Poll removes and returns the minimum entry, or nil when empty.
	Poll() *Item[V, P]

	// Get resolves ref to its canonical handle. A miss is (nil, nil); a
	// non-canonical handle reference is (nil, [ErrStaleHandle]).
	Get(ref Ref[V]) (*Handle[V], error)

	// Has reports whether ref resolves. Never returns an error, including
	// for stale handles.
	Has(ref Ref[V]) bool

	// Remove removes the referenced entry, returning nil on a miss (a miss,
	// including a stale handle, is not an error).
	Remove(ref Ref[V]) *Item[V, P]

	// SetPriority changes the referenced entry's priority. An equal
	// priority is a no-op returning (nil, nil). A priority increase issues
	// a new handle (preserving the id); the prior handle becomes stale.
	// Unresolved references return [ErrNotFound].
	SetPriority(ref Ref[V], priority P) (*Update[V, P], error)

	// Clear removes all entries, returning how many were dropped.
	Clear() int

	// Len returns the number of stored entries.
	Len() int

	// Empty reports whether the queue holds no entries.
	Empty() bool

	// All yields (handle, payload) pairs in unspecified order.
	All() iter.Seq2[*Handle[V], V]
}

// node is a pairing heap node. The structural pointers follow the intrusive
// child/sibling/prev discipline: a parent's children form a singly linked
// list via sibling; the first child's prev points at the parent, every other
// child's prev points at its immediate left sibling; root.prev is nil.
type node[V comparable, P any] struct {
	handle   *Handle[V]
	child    *node[V, P]
	sibling  *node[V, P]
	prev     *node[V, P]
	priority P
}

// Heap is an addressable two-pass pairing heap: a mergeable min-heap with
// O(1) insert, amortized O(log n) delete-min, and cheap priority decrease,
// addressed through stable registry handles.
//
// Heap is not safe for concurrent use. [Queue] composes it behind a single
// mutex; standalone users must serialize access themselves.
type Heap[V comparable, P any] struct {
	reg   registry[V]
	nodes map[*Handle[V]]*node[V, P]
	root  *node[V, P]
	cmp   func(a, b P) int
}

// NewHeap creates a min-heap over the natural ordering of P.
func NewHeap[V comparable, P constraints.Ordered]() *Heap[V, P] {
	return NewHeapFunc[V](orderedCompare[P])
}

// NewHeapFunc creates a heap ordered by cmp, which must define a total
// preorder returning negative, zero, or positive. Panics if cmp is nil.
func NewHeapFunc[V comparable, P any](cmp func(a, b P) int) *Heap[V, P] {
	if cmp == nil {
		panic(`timerqueue: nil comparator`)
	}
	return &Heap[V, P]{
		reg:   newRegistry[V](),
		nodes: make(map[*Handle[V]]*node[V, P]),
		cmp:   cmp,
	}
}

func orderedCompare[P constraints.Ordered](a, b P) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// link makes the larger-priority root the new first child of the other,
// returning the combined root. On equal priorities the first argument wins.
func (h *Heap[V, P]) link(a, b *node[V, P]) *node[V, P] {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	if h.cmp(b.priority, a.priority) < 0 {
		a, b = b, a
	}
	b.prev = a
	b.sibling = a.child
	if a.child != nil {
		a.child.prev = b
	}
	a.child = b
	return a
}

// cut detaches a non-root node, with its subtree, from its parent/sibling
// list. The node's prev and sibling pointers are cleared.
func (h *Heap[V, P]) cut(n *node[V, P]) {
	if n.prev == nil {
		panic(&InvariantError{Op: `cut`, Message: `node has no predecessor`})
	}
	if n.prev.child == n {
		n.prev.child = n.sibling
	} else {
		n.prev.sibling = n.sibling
	}
	if n.sibling != nil {
		n.sibling.prev = n.prev
	}
	n.prev = nil
	n.sibling = nil
}

// combineSiblings folds a child list back into a single heap using the
// canonical two-pass strategy: pair left to right, then fold the pair
// results right to left.
func (h *Heap[V, P]) combineSiblings(first *node[V, P]) *node[V, P] {
	if first == nil {
		return nil
	}

	var pairs []*node[V, P]
	for first != nil {
		a := first
		b := a.sibling
		if b == nil {
			a.prev = nil
			a.sibling = nil
			pairs = append(pairs, a)
			break
		}
		next := b.sibling
		a.prev = nil
		a.sibling = nil
		b.prev = nil
		b.sibling = nil
		pairs = append(pairs, h.link(a, b))
		first = next
	}

	r := pairs[len(pairs)-1]
	for i := len(pairs) - 2; i >= 0; i-- {
		r = h.link(pairs[i], r)
	}
	return r
}

// Insert adds payload at the given priority. O(1).
func (h *Heap[V, P]) Insert(priority P, payload V) (*Handle[V], error) {
	return h.insert(priority, payload, ``, false)
}

// InsertWithID is [Heap.Insert] with a caller-supplied unique id.
func (h *Heap[V, P]) InsertWithID(id string, priority P, payload V) (*Handle[V], error) {
	return h.insert(priority, payload, id, true)
}

func (h *Heap[V, P]) insert(priority P, payload V, id string, hasID bool) (*Handle[V], error) {
	handle, err := h.reg.register(payload, id, hasID)
	if err != nil {
		return nil, err
	}

	n := &node[V, P]{handle: handle, priority: priority}
	h.nodes[handle] = n
	h.root = h.link(h.root, n)
	return handle, nil
}

// Peek returns the minimum entry's handle, or nil when empty. O(1).
func (h *Heap[V, P]) Peek() *Handle[V] {
	if h.root == nil {
		return nil
	}
	return h.root.handle
}

// PeekItem returns the minimum entry with its priority, or nil when empty.
func (h *Heap[V, P]) PeekItem() *Item[V, P] {
	if h.root == nil {
		return nil
	}
	return &Item[V, P]{
		Handle:   h.root.handle,
		Payload:  h.root.handle.payload,
		Priority: h.root.priority,
	}
}

// Poll removes and returns the minimum entry, or nil when empty. Amortized
// O(log n).
func (h *Heap[V, P]) Poll() *Item[V, P] {
	if h.root == nil {
		return nil
	}

	n := h.root
	h.root = h.combineSiblings(n.child)

	it := &Item[V, P]{
		Handle:   n.handle,
		Payload:  n.handle.payload,
		Priority: n.priority,
	}
	h.release(n)
	return it
}

// release unregisters a removed node and clears its pointers.
func (h *Heap[V, P]) release(n *node[V, P]) {
	delete(h.nodes, n.handle)
	h.reg.unregisterHandle(n.handle)
	n.child = nil
	n.sibling = nil
	n.prev = nil
}

// Get resolves ref via the registry.
func (h *Heap[V, P]) Get(ref Ref[V]) (*Handle[V], error) {
	return h.reg.resolve(ref)
}

// Has reports whether ref resolves, without error.
func (h *Heap[V, P]) Has(ref Ref[V]) bool {
	return h.reg.has(ref)
}

// Remove removes the referenced entry. A miss, including a stale handle,
// returns nil.
func (h *Heap[V, P]) Remove(ref Ref[V]) *Item[V, P] {
	hd, err := h.reg.resolve(ref)
	if err != nil || hd == nil {
		return nil
	}

	n := h.nodes[hd]
	if n == h.root {
		return h.Poll()
	}

	h.cut(n)
	sub := h.combineSiblings(n.child)
	n.child = nil
	h.root = h.link(h.root, sub)

	it := &Item[V, P]{
		Handle:   n.handle,
		Payload:  n.handle.payload,
		Priority: n.priority,
	}
	h.release(n)
	return it
}

// SetPriority changes the referenced entry's priority. Equal priorities are
// a no-op returning (nil, nil). A decrease updates in place (cutting and
// relinking non-root nodes); an increase removes and reinserts, preserving
// the id but issuing a new handle.
func (h *Heap[V, P]) SetPriority(ref Ref[V], priority P) (*Update[V, P], error) {
	hd, err := h.reg.resolve(ref)
	if err != nil {
		return nil, err
	}
	if hd == nil {
		return nil, ErrNotFound
	}

	n := h.nodes[hd]
	c := h.cmp(priority, n.priority)
	if c == 0 {
		return nil, nil
	}

	before := Item[V, P]{Handle: hd, Payload: hd.payload, Priority: n.priority}

	if c < 0 {
		// Higher priority: reposition toward the root. A root update leaves
		// the structure unchanged.
		n.priority = priority
		if n != h.root {
			h.cut(n)
			h.root = h.link(h.root, n)
		}
		return &Update[V, P]{
			Before: before,
			After:  Item[V, P]{Handle: hd, Payload: hd.payload, Priority: priority},
		}, nil
	}

	// Lower priority: remove and reinsert under the same id.
	payload := hd.payload
	id, hasID := hd.ID()
	h.Remove(ByHandle(hd))
	nh, err := h.insert(priority, payload, id, hasID)
	if err != nil {
		// Unreachable: the entry was just removed from both indexes.
		return nil, err
	}
	return &Update[V, P]{
		Before: before,
		After:  Item[V, P]{Handle: nh, Payload: payload, Priority: priority},
	}, nil
}

// Clear drops every entry and empties the registry, returning the number of
// entries removed.
func (h *Heap[V, P]) Clear() int {
	n := len(h.nodes)
	for _, nd := range h.nodes {
		nd.child = nil
		nd.sibling = nil
		nd.prev = nil
	}
	h.nodes = make(map[*Handle[V]]*node[V, P])
	h.reg.clear()
	h.root = nil
	return n
}

// Len returns the number of stored entries.
func (h *Heap[V, P]) Len() int {
	return len(h.nodes)
}

// Empty reports whether the heap holds no entries.
func (h *Heap[V, P]) Empty() bool {
	return h.root == nil
}

// All yields (handle, payload) pairs in unspecified order.
func (h *Heap[V, P]) All() iter.Seq2[*Handle[V], V] {
	return h.reg.all()
}
