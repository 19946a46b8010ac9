package timerqueue

import "iter"

// Handle is an immutable, registry-scoped reference to a stored payload.
//
// Handles are minted by insert operations and compared by pointer identity.
// A handle's fields never change; removing the underlying entry does not
// mutate the handle, but causes the registry to stop recognizing it (the
// handle becomes stale, see [ErrStaleHandle]).
type Handle[V comparable] struct {
	id      string
	payload V
	hasID   bool
}

// ID returns the caller-supplied id associated with the handle, if any.
func (h *Handle[V]) ID() (string, bool) {
	return h.id, h.hasID
}

// Payload returns the stored payload.
func (h *Handle[V]) Payload() V {
	return h.payload
}

type refKind int

const (
	refInvalid refKind = iota
	refID
	refHandle
	refPayload
)

// Ref is a tagged reference to a queue entry, resolvable by id, by handle,
// or by payload identity. The zero value resolves to nothing.
type Ref[V comparable] struct {
	handle  *Handle[V]
	id      string
	payload V
	kind    refKind
}

// ByID references an entry by its caller-supplied id.
func ByID[V comparable](id string) Ref[V] {
	return Ref[V]{kind: refID, id: id}
}

// ByHandle references an entry by a previously returned [Handle].
func ByHandle[V comparable](h *Handle[V]) Ref[V] {
	return Ref[V]{kind: refHandle, handle: h}
}

// ByPayload references an entry by payload identity.
func ByPayload[V comparable](payload V) Ref[V] {
	return Ref[V]{kind: refPayload, payload: payload}
}

// registry is the dual-indexed handle table. Each payload identity maps to
// at most one handle, and each supplied id is unique. The id index is a
// sub-map of the payload index.
type registry[V comparable] struct {
	byPayload map[V]*Handle[V]
	byID      map[string]*Handle[V]
}

func newRegistry[V comparable]() registry[V] {
	return registry[V]{
		byPayload: make(map[V]*Handle[V]),
		byID:      make(map[string]*Handle[V]),
	}
}

// register mints a new handle for payload, optionally indexed by id.
func (r *registry[V]) register(payload V, id string, hasID bool) (*Handle[V], error) {
	if _, ok := r.byPayload[payload]; ok {
		return nil, ErrDuplicatePayload
	}
	if hasID {
		if _, ok := r.byID[id]; ok {
			return nil, ErrDuplicateID
		}
	}

	h := &Handle[V]{id: id, payload: payload, hasID: hasID}
	r.byPayload[payload] = h
	if hasID {
		r.byID[id] = h
	}
	return h, nil
}

// resolve maps a reference to the registry's canonical handle. A miss is
// (nil, nil). A handle reference that is not canonical for its payload
// resolves to [ErrStaleHandle].
func (r *registry[V]) resolve(ref Ref[V]) (*Handle[V], error) {
	switch ref.kind {
	case refID:
		return r.byID[ref.id], nil
	case refPayload:
		return r.byPayload[ref.payload], nil
	case refHandle:
		if ref.handle == nil {
			return nil, nil
		}
		if cur := r.byPayload[ref.handle.payload]; cur == ref.handle {
			return cur, nil
		}
		return nil, ErrStaleHandle
	default:
		return nil, nil
	}
}

// has reports whether resolve would yield a handle. Stale handles report
// false rather than an error.
func (r *registry[V]) has(ref Ref[V]) bool {
	h, err := r.resolve(ref)
	return err == nil && h != nil
}

// unregister removes both indexes for the referenced entry. Misses and
// stale handles are silently ignored.
func (r *registry[V]) unregister(ref Ref[V]) *Handle[V] {
	h, err := r.resolve(ref)
	if err != nil || h == nil {
		return nil
	}
	r.unregisterHandle(h)
	return h
}

// unregisterHandle removes a known-canonical handle from both indexes.
func (r *registry[V]) unregisterHandle(h *Handle[V]) {
	delete(r.byPayload, h.payload)
	if h.hasID {
		delete(r.byID, h.id)
	}
}

func (r *registry[V]) len() int {
	return len(r.byPayload)
}

func (r *registry[V]) clear() {
	r.byPayload = make(map[V]*Handle[V])
	r.byID = make(map[string]*Handle[V])
}

// all yields (handle, payload) pairs in unspecified order.
func (r *registry[V]) all() iter.Seq2[*Handle[V], V] {
	return func(yield func(*Handle[V], V) bool) {
		for payload, h := range r.byPayload {
			if !yield(h, payload) {
				return
			}
		}
	}
}
