package timerqueue

import (
	"iter"
	"sync"
)

// EventType names a queue mutation or observation, as reported by the event
// layer.
type EventType string

const (
	// EventInsert fires after a successful insert; Data is the *Handle.
	EventInsert EventType = `insert`

	// EventPoll fires after a successful poll; Data is the *Item.
	EventPoll EventType = `poll`

	// EventRemove fires after a successful remove; Data is the *Item.
	EventRemove EventType = `remove`

	// EventUpdate fires after a priority change; Data is the *Update.
	EventUpdate EventType = `update`

	// EventClear fires after clearing a non-empty queue; Data is the int
	// count of dropped entries.
	EventClear EventType = `clear`

	// EventPeek fires after a non-empty peek; Data is the *Handle.
	EventPeek EventType = `peek`

	// EventGet fires after a successful get; Data is the *Handle.
	EventGet EventType = `get`

	// EventHas fires after a has that resolved; Data is the bool true.
	EventHas EventType = `has`
)

// eventAll is the internal registration key for meta listeners, which
// observe every specific event.
const eventAll EventType = `*`

// Event is delivered to listeners. Data carries the reported operation's
// result, with the concrete type documented per [EventType].
type Event struct {
	Data any
	Type EventType
}

// Listener is a callback registered with an [Emitter]. Delivery is
// synchronous, in registration order, on the goroutine that performed the
// operation. A panicking listener propagates to the caller; the underlying
// mutation is already committed at that point.
type Listener func(event Event)

// ListenerID uniquely identifies a registered listener for removal. Go
// functions cannot be reliably compared, so registration returns an id.
type ListenerID uint64

// Emitter is the mutation notifier consumed by [Evented]. A default,
// in-memory implementation is supplied by [NewEmitter].
type Emitter interface {
	// On registers a listener for the named event, returning its id.
	On(eventType EventType, listener Listener) ListenerID

	// Once registers a listener removed after its first delivery.
	Once(eventType EventType, listener Listener) ListenerID

	// OnAll registers a meta listener observing every event.
	OnAll(listener Listener) ListenerID

	// Off removes a listener by id, reporting whether one was removed.
	Off(eventType EventType, id ListenerID) bool

	// OffAll removes a meta listener by id.
	OffAll(id ListenerID) bool

	// Emit delivers an event to the named listeners, then to the meta
	// listeners.
	Emit(event Event)

	// ListenerCount returns the number of listeners for the event type.
	ListenerCount(eventType EventType) int
}

// listenerEntry pairs a listener with its unique id for removal.
type listenerEntry struct {
	listener Listener
	id       ListenerID
	once     bool
}

// emitter is the default Emitter. Listener state is guarded by a mutex;
// dispatch copies the entry list first, so listeners may register or remove
// listeners without deadlocking.
type emitter struct {
	listeners map[EventType][]listenerEntry
	nextID    ListenerID
	mu        sync.RWMutex
}

// NewEmitter returns the default in-memory [Emitter].
func NewEmitter() Emitter {
	return &emitter{
		listeners: make(map[EventType][]listenerEntry),
		nextID:    1,
	}
}

func (e *emitter) On(eventType EventType, listener Listener) ListenerID {
	return e.add(eventType, listener, false)
}

func (e *emitter) Once(eventType EventType, listener Listener) ListenerID {
	return e.add(eventType, listener, true)
}

func (e *emitter) OnAll(listener Listener) ListenerID {
	return e.add(eventAll, listener, false)
}

func (e *emitter) add(eventType EventType, listener Listener, once bool) ListenerID {
	if listener == nil {
		return 0
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	id := e.nextID
	e.nextID++

	e.listeners[eventType] = append(e.listeners[eventType], listenerEntry{
		id:       id,
		listener: listener,
		once:     once,
	})
	return id
}

func (e *emitter) Off(eventType EventType, id ListenerID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.removeLocked(eventType, id)
}

func (e *emitter) OffAll(id ListenerID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.removeLocked(eventAll, id)
}

func (e *emitter) removeLocked(eventType EventType, id ListenerID) bool {
	entries := e.listeners[eventType]
	for i, entry := range entries {
		if entry.id == id {
			e.listeners[eventType] = append(entries[:i], entries[i+1:]...)
			return true
		}
	}
	return false
}

func (e *emitter) Emit(event Event) {
	e.dispatch(event.Type, event)
	e.dispatch(eventAll, event)
}

func (e *emitter) dispatch(key EventType, event Event) {
	e.mu.RLock()
	entries := make([]listenerEntry, len(e.listeners[key]))
	copy(entries, e.listeners[key])
	e.mu.RUnlock()

	var removeIDs []ListenerID
	defer func() {
		// Once listeners are consumed even if a later listener panics.
		if len(removeIDs) > 0 {
			e.mu.Lock()
			for _, id := range removeIDs {
				e.removeLocked(key, id)
			}
			e.mu.Unlock()
		}
	}()

	for _, entry := range entries {
		if entry.once {
			removeIDs = append(removeIDs, entry.id)
		}
		entry.listener(event)
	}
}

func (e *emitter) ListenerCount(eventType EventType) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.listeners[eventType])
}

// Evented decorates an inner queue layer, emitting an event after each
// operation listed under [EventType] whose result is non-nil (non-zero for
// Clear, true for Has). PeekItem, Len, Empty, and All emit nothing. Events fire after
// the underlying effect is committed, so a listener observes post-operation
// state.
type Evented[V comparable, P any] struct {
	inner   Interface[V, P]
	emitter Emitter
}

// NewEvented wraps inner with the event layer. A nil emitter selects the
// default from [NewEmitter]. Panics if inner is nil.
func NewEvented[V comparable, P any](inner Interface[V, P], emitter Emitter) *Evented[V, P] {
	if inner == nil {
		panic(`timerqueue: nil inner queue`)
	}
	if emitter == nil {
		emitter = NewEmitter()
	}
	return &Evented[V, P]{inner: inner, emitter: emitter}
}

// Emitter returns the emitter used for notification.
func (e *Evented[V, P]) Emitter() Emitter {
	return e.emitter
}

func (e *Evented[V, P]) Insert(priority P, payload V) (*Handle[V], error) {
	h, err := e.inner.Insert(priority, payload)
	if err == nil {
		e.emitter.Emit(Event{Type: EventInsert, Data: h})
	}
	return h, err
}

func (e *Evented[V, P]) InsertWithID(id string, priority P, payload V) (*Handle[V], error) {
	h, err := e.inner.InsertWithID(id, priority, payload)
	if err == nil {
		e.emitter.Emit(Event{Type: EventInsert, Data: h})
	}
	return h, err
}

func (e *Evented[V, P]) Peek() *Handle[V] {
	h := e.inner.Peek()
	if h != nil {
		e.emitter.Emit(Event{Type: EventPeek, Data: h})
	}
	return h
}

func (e *Evented[V, P]) PeekItem() *Item[V, P] {
	return e.inner.PeekItem()
}

func (e *Evented[V, P]) Poll() *Item[V, P] {
	it := e.inner.Poll()
	if it != nil {
		e.emitter.Emit(Event{Type: EventPoll, Data: it})
	}
	return it
}

func (e *Evented[V, P]) Get(ref Ref[V]) (*Handle[V], error) {
	h, err := e.inner.Get(ref)
	if err == nil && h != nil {
		e.emitter.Emit(Event{Type: EventGet, Data: h})
	}
	return h, err
}

func (e *Evented[V, P]) Has(ref Ref[V]) bool {
	ok := e.inner.Has(ref)
	if ok {
		e.emitter.Emit(Event{Type: EventHas, Data: true})
	}
	return ok
}

func (e *Evented[V, P]) Remove(ref Ref[V]) *Item[V, P] {
	it := e.inner.Remove(ref)
	if it != nil {
		e.emitter.Emit(Event{Type: EventRemove, Data: it})
	}
	return it
}

func (e *Evented[V, P]) SetPriority(ref Ref[V], priority P) (*Update[V, P], error) {
	u, err := e.inner.SetPriority(ref, priority)
	if err == nil && u != nil {
		e.emitter.Emit(Event{Type: EventUpdate, Data: u})
	}
	return u, err
}

func (e *Evented[V, P]) Clear() int {
	n := e.inner.Clear()
	if n > 0 {
		e.emitter.Emit(Event{Type: EventClear, Data: n})
	}
	return n
}

func (e *Evented[V, P]) Len() int {
	return e.inner.Len()
}

func (e *Evented[V, P]) Empty() bool {
	return e.inner.Empty()
}

func (e *Evented[V, P]) All() iter.Seq2[*Handle[V], V] {
	return e.inner.All()
}
