// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package timerqueue

import (
	"errors"
	"iter"
	"sync"
	"time"

	"github.com/joeycumines/logiface"
)

// Clock reads the current instant, in the same units as scheduled
// priorities: milliseconds since the Unix epoch.
type Clock interface {
	Now() int64
}

// ClockFunc implements [Clock].
type ClockFunc func() int64

// Now calls the wrapped function.
func (f ClockFunc) Now() int64 { return f() }

// SystemClock implements [Clock] using the wall clock.
type SystemClock struct{}

// Now returns the current wall-clock time in milliseconds.
func (SystemClock) Now() int64 { return time.Now().UnixMilli() }

// TimerID identifies a scheduled one-shot callback within a [TimerSource].
type TimerID uint64

// TimerSource schedules and cancels one-shot callbacks. The production
// implementation is [NewSystemTimerSource]; tests bind a controllable fake.
type TimerSource interface {
	// ScheduleTimer schedules fn to run once after delay, returning a token
	// for cancellation. The delivery context is implementation defined.
	ScheduleTimer(delay time.Duration, fn func()) (TimerID, error)

	// CancelTimer cancels a scheduled callback. Returns [ErrTimerNotFound]
	// if the token is invalid or the callback already fired.
	CancelTimer(id TimerID) error
}

// systemTimerSource implements TimerSource on the runtime timer wheel.
type systemTimerSource struct {
	timers map[TimerID]*time.Timer
	nextID TimerID
	mu     sync.Mutex
}

// NewSystemTimerSource returns a [TimerSource] backed by [time.AfterFunc].
// Callbacks are delivered on their own goroutine.
func NewSystemTimerSource() TimerSource {
	return &systemTimerSource{timers: make(map[TimerID]*time.Timer)}
}

func (s *systemTimerSource) ScheduleTimer(delay time.Duration, fn func()) (TimerID, error) {
	if fn == nil {
		return 0, ErrInvalidConfig
	}
	if delay < 0 {
		delay = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID

	s.timers[id] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, id)
		s.mu.Unlock()
		fn()
	})
	return id, nil
}

func (s *systemTimerSource) CancelTimer(id TimerID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.timers[id]
	if !ok {
		return ErrTimerNotFound
	}
	delete(s.timers, id)
	t.Stop()
	return nil
}

// Scheduled decorates an inner queue whose priorities are wall-clock
// instants (milliseconds), dispatching entries as they fall due.
//
// A single timer is armed for the current minimum's deadline, regardless of
// queue size; every mutation re-evaluates the next firing deadline exactly
// once. When the timer fires, all due entries are polled in priority order
// through the top of the layer stack, so event and stream decorators
// observe them.
//
// Scheduled methods are not internally synchronized: callers must serialize
// them, holding the mutex supplied at construction. The timer callback
// acquires that mutex itself. [Queue] wires this up; standalone users
// should lock around every call.
type Scheduled[V comparable] struct {
	inner  Interface[V, int64]
	top    Interface[V, int64]
	clock  Clock
	timers TimerSource
	logger *logiface.Logger[logiface.Event]
	mu     *sync.Mutex

	running    bool
	draining   bool
	timerArmed bool
	timerID    TimerID
	timerGen   uint64
}

// NewScheduled wraps inner with the scheduler layer. The mutex serializes
// the timer callback against callers; if nil, a private one is created (in
// which case callers must not use the queue from multiple goroutines).
func NewScheduled[V comparable](inner Interface[V, int64], clock Clock, timers TimerSource, mu *sync.Mutex) (*Scheduled[V], error) {
	if inner == nil || clock == nil || timers == nil {
		return nil, ErrInvalidConfig
	}
	if mu == nil {
		mu = new(sync.Mutex)
	}
	s := &Scheduled[V]{
		inner:  inner,
		clock:  clock,
		timers: timers,
		mu:     mu,
	}
	s.top = s
	return s, nil
}

// Bind sets the top of the decorator stack, through which drained entries
// are polled. Defaults to the Scheduled layer itself.
func (s *Scheduled[V]) Bind(top Interface[V, int64]) {
	if top == nil {
		panic(`timerqueue: nil stack top`)
	}
	s.top = top
}

// Start enables dispatch and arms the timer from the current minimum.
func (s *Scheduled[V]) Start() {
	if s.running {
		return
	}
	s.running = true
	s.logger.Debug().Int(`size`, s.inner.Len()).Log(`scheduler started`)
	s.setTimer()
}

// Stop disables dispatch and cancels any armed timer. Queue contents and
// buffered stream items are preserved.
func (s *Scheduled[V]) Stop() {
	if !s.running {
		return
	}
	s.running = false
	s.cancelTimer()
	s.logger.Debug().Int(`size`, s.inner.Len()).Log(`scheduler stopped`)
}

// Running reports whether dispatch is enabled.
func (s *Scheduled[V]) Running() bool {
	return s.running
}

// resetTimer re-evaluates the firing deadline after a mutation. Re-arms are
// suppressed while a drain is in progress; the drain re-arms once when it
// completes.
func (s *Scheduled[V]) resetTimer() {
	if s.draining {
		return
	}
	s.cancelTimer()
	s.setTimer()
}

// setTimer arms the timer for the current minimum's deadline, if no timer
// is armed, dispatch is enabled, and the queue is non-empty.
func (s *Scheduled[V]) setTimer() {
	if s.timerArmed || !s.running {
		return
	}
	it := s.inner.PeekItem()
	if it == nil {
		return
	}

	delay := time.Duration(it.Priority-s.clock.Now()) * time.Millisecond
	if delay < 0 {
		delay = 0
	}

	s.timerGen++
	gen := s.timerGen
	id, err := s.timers.ScheduleTimer(delay, func() { s.onTimer(gen) })
	if err != nil {
		s.logger.Err().Err(err).Log(`schedule timer failed`)
		return
	}
	s.timerID = id
	s.timerArmed = true
	s.logger.Debug().Dur(`delay`, delay).Log(`timer armed`)
}

// cancelTimer discards any armed timer token. Bumping the generation makes
// an in-flight callback a no-op if cancellation raced with delivery.
func (s *Scheduled[V]) cancelTimer() {
	if !s.timerArmed {
		return
	}
	s.timerArmed = false
	s.timerGen++
	if err := s.timers.CancelTimer(s.timerID); err != nil && !errors.Is(err, ErrTimerNotFound) {
		s.logger.Err().Err(err).Log(`cancel timer failed`)
	}
	s.logger.Debug().Log(`timer canceled`)
}

// onTimer is the armed callback. It serializes with user-initiated
// mutations via the queue mutex.
func (s *Scheduled[V]) onTimer(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.timerArmed || gen != s.timerGen {
		// Canceled, or superseded by a re-arm.
		return
	}
	s.timerArmed = false
	s.drain()
}

// drain polls every due entry in priority order, then re-arms. If the timer
// fired late, multiple entries may be due; each is dispatched through the
// stack top so decorators observe it.
func (s *Scheduled[V]) drain() {
	if !s.running {
		return
	}

	t := s.clock.Now()
	var polled int
	s.draining = true
	// Deferred so that a panicking listener above still leaves the
	// scheduler re-armed and accepting mutations.
	defer func() {
		s.draining = false
		if polled > 0 {
			s.logger.Debug().Int(`polled`, polled).Int64(`now`, t).Log(`drained due entries`)
		}
		s.setTimer()
	}()
	for {
		it := s.inner.PeekItem()
		if it == nil || it.Priority > t {
			break
		}
		s.top.Poll()
		polled++
	}
}

func (s *Scheduled[V]) Insert(priority int64, payload V) (*Handle[V], error) {
	h, err := s.inner.Insert(priority, payload)
	s.resetTimer()
	return h, err
}

func (s *Scheduled[V]) InsertWithID(id string, priority int64, payload V) (*Handle[V], error) {
	h, err := s.inner.InsertWithID(id, priority, payload)
	s.resetTimer()
	return h, err
}

func (s *Scheduled[V]) Peek() *Handle[V] {
	return s.inner.Peek()
}

func (s *Scheduled[V]) PeekItem() *Item[V, int64] {
	return s.inner.PeekItem()
}

func (s *Scheduled[V]) Poll() *Item[V, int64] {
	it := s.inner.Poll()
	s.resetTimer()
	return it
}

func (s *Scheduled[V]) Get(ref Ref[V]) (*Handle[V], error) {
	return s.inner.Get(ref)
}

func (s *Scheduled[V]) Has(ref Ref[V]) bool {
	return s.inner.Has(ref)
}

func (s *Scheduled[V]) Remove(ref Ref[V]) *Item[V, int64] {
	it := s.inner.Remove(ref)
	s.resetTimer()
	return it
}

func (s *Scheduled[V]) SetPriority(ref Ref[V], priority int64) (*Update[V, int64], error) {
	u, err := s.inner.SetPriority(ref, priority)
	s.resetTimer()
	return u, err
}

func (s *Scheduled[V]) Clear() int {
	n := s.inner.Clear()
	s.resetTimer()
	return n
}

func (s *Scheduled[V]) Len() int {
	return s.inner.Len()
}

func (s *Scheduled[V]) Empty() bool {
	return s.inner.Empty()
}

func (s *Scheduled[V]) All() iter.Seq2[*Handle[V], V] {
	return s.inner.All()
}
