// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package timerqueue

import (
	"context"
	"iter"
	"sync"
)

// Queue is the fully composed scheduled priority queue: a pairing [Heap]
// whose priorities are wall-clock instants (milliseconds since the Unix
// epoch), decorated bottom-up by the [Scheduled], [Evented], and [Streamed]
// layers.
//
// Once started, entries are dispatched as they fall due: each is polled in
// priority order, reported via the [EventPoll] event, then delivered to
// exactly one stream consumer.
//
// All public operations are serialized under a single mutex per instance,
// including the timer callback, so Queue is safe for concurrent use.
// [Queue.Next] and [Queue.Items] do not take that mutex and may block
// freely. Event listeners run with the mutex held and must not call back
// into locked Queue methods; they should act on the delivered [Event] data.
type Queue[V comparable] struct {
	heap    *Heap[V, int64]
	sched   *Scheduled[V]
	evented *Evented[V, int64]
	stream  *Streamed[V, int64]
	mu      sync.Mutex
}

// New creates a [Queue]. All collaborators default to production
// implementations; see [WithClock], [WithTimerSource], [WithEmitter],
// [WithComparator], [WithLogger], and [WithStreamCapacity].
func New[V comparable](opts ...Option) (*Queue[V], error) {
	cfg, err := resolveQueueOptions(opts)
	if err != nil {
		return nil, err
	}

	q := &Queue[V]{}
	q.heap = NewHeapFunc[V](cfg.comparator)

	q.sched, err = NewScheduled[V](q.heap, cfg.clock, cfg.timers, &q.mu)
	if err != nil {
		return nil, err
	}
	q.sched.logger = cfg.logger

	q.evented = NewEvented[V, int64](q.sched, cfg.emitter)
	q.stream = NewStreamed[V, int64](q.evented)
	if cfg.streamCapacity > 0 {
		q.stream.buffer = make([]*Item[V, int64], 0, cfg.streamCapacity)
	}

	// Drained entries are polled through the top of the stack so the event
	// and stream layers observe them.
	q.sched.Bind(q.stream)

	return q, nil
}

// Start enables scheduled dispatch.
func (q *Queue[V]) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.sched.Start()
}

// Stop disables scheduled dispatch and cancels any armed timer. Queue
// contents and buffered stream entries are preserved; pending consumer
// waits survive and resume when dispatch restarts.
func (q *Queue[V]) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.sched.Stop()
}

// Running reports whether scheduled dispatch is enabled.
func (q *Queue[V]) Running() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.sched.Running()
}

// Insert adds payload due at the given instant, returning its handle.
func (q *Queue[V]) Insert(priority int64, payload V) (*Handle[V], error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stream.Insert(priority, payload)
}

// InsertWithID is [Queue.Insert] with a caller-supplied unique id.
func (q *Queue[V]) InsertWithID(id string, priority int64, payload V) (*Handle[V], error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stream.InsertWithID(id, priority, payload)
}

// Peek returns the earliest entry's handle, or nil when empty.
func (q *Queue[V]) Peek() *Handle[V] {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stream.Peek()
}

// PeekItem returns the earliest entry with its deadline, or nil when empty.
func (q *Queue[V]) PeekItem() *Item[V, int64] {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stream.PeekItem()
}

// Poll removes and returns the earliest entry, or nil when empty. The
// result is also appended to the consumer stream.
func (q *Queue[V]) Poll() *Item[V, int64] {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stream.Poll()
}

// Get resolves ref to its canonical handle; see [Interface].
func (q *Queue[V]) Get(ref Ref[V]) (*Handle[V], error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stream.Get(ref)
}

// Has reports whether ref resolves; see [Interface].
func (q *Queue[V]) Has(ref Ref[V]) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stream.Has(ref)
}

// Remove removes the referenced entry, returning nil on a miss.
func (q *Queue[V]) Remove(ref Ref[V]) *Item[V, int64] {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stream.Remove(ref)
}

// SetPriority changes the referenced entry's deadline; see [Interface].
func (q *Queue[V]) SetPriority(ref Ref[V], priority int64) (*Update[V, int64], error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stream.SetPriority(ref, priority)
}

// Clear removes all entries and cancels any armed timer, returning the
// number of entries dropped. Buffered stream entries are preserved.
func (q *Queue[V]) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stream.Clear()
}

// Len returns the number of stored entries.
func (q *Queue[V]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stream.Len()
}

// Empty reports whether the queue holds no entries.
func (q *Queue[V]) Empty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stream.Empty()
}

// All yields a snapshot of (handle, payload) pairs in unspecified order.
func (q *Queue[V]) All() iter.Seq2[*Handle[V], V] {
	q.mu.Lock()
	type pair struct {
		handle  *Handle[V]
		payload V
	}
	pairs := make([]pair, 0, q.stream.Len())
	for h, v := range q.stream.All() {
		pairs = append(pairs, pair{h, v})
	}
	q.mu.Unlock()

	return func(yield func(*Handle[V], V) bool) {
		for _, p := range pairs {
			if !yield(p.handle, p.payload) {
				return
			}
		}
	}
}

// Next returns the next dispatched entry, blocking until one is available
// or ctx is done. See [Streamed.Next].
func (q *Queue[V]) Next(ctx context.Context) (*Item[V, int64], error) {
	return q.stream.Next(ctx)
}

// Items returns a range-over-func iterator over dispatched entries. See
// [Streamed.Items].
func (q *Queue[V]) Items(ctx context.Context) iter.Seq[*Item[V, int64]] {
	return q.stream.Items(ctx)
}

// Buffered returns the number of dispatched entries awaiting pickup.
func (q *Queue[V]) Buffered() int {
	return q.stream.Buffered()
}

// On registers a listener for the named event. Listeners run synchronously
// with the queue mutex held; see the type documentation.
func (q *Queue[V]) On(eventType EventType, listener Listener) ListenerID {
	return q.evented.Emitter().On(eventType, listener)
}

// Once registers a listener removed after its first delivery.
func (q *Queue[V]) Once(eventType EventType, listener Listener) ListenerID {
	return q.evented.Emitter().Once(eventType, listener)
}

// OnAll registers a meta listener observing every event.
func (q *Queue[V]) OnAll(listener Listener) ListenerID {
	return q.evented.Emitter().OnAll(listener)
}

// Off removes a listener by id, reporting whether one was removed.
func (q *Queue[V]) Off(eventType EventType, id ListenerID) bool {
	return q.evented.Emitter().Off(eventType, id)
}

// OffAll removes a meta listener by id.
func (q *Queue[V]) OffAll(id ListenerID) bool {
	return q.evented.Emitter().OffAll(id)
}

// Emitter returns the emitter used for notification.
func (q *Queue[V]) Emitter() Emitter {
	return q.evented.Emitter()
}
