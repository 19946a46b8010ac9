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

// Streamed decorates an inner queue, turning polled entries into a stream
// consumable by asynchronous receivers. Only Poll is intercepted: every
// non-nil result is appended to the ready buffer, or handed directly to the
// oldest blocked consumer.
//
// The ready buffer is unbounded and FIFO in poll order; producers never
// block. All consumers share the one logical stream: N concurrent
// consumers split the work, each entry is delivered to exactly one
// consumer, and each consumer observes its own entries in poll order.
//
// Consumption via [Streamed.Next] and [Streamed.Items] is internally
// synchronized and never takes the queue mutex, so consumers may block
// while producers continue to mutate the queue. The remaining Interface
// methods follow the inner layer's synchronization requirements.
type Streamed[V comparable, P any] struct {
	inner   Interface[V, P]
	buffer  []*Item[V, P]
	waiters []chan *Item[V, P]
	mu      sync.Mutex
}

// NewStreamed wraps inner with the stream layer. Panics if inner is nil.
func NewStreamed[V comparable, P any](inner Interface[V, P]) *Streamed[V, P] {
	if inner == nil {
		panic(`timerqueue: nil inner queue`)
	}
	return &Streamed[V, P]{inner: inner}
}

// push delivers an entry to the oldest waiting consumer, or buffers it.
func (s *Streamed[V, P]) push(it *Item[V, P]) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.waiters) > 0 {
		ch := s.waiters[0]
		s.waiters = s.waiters[1:]
		// Per-wait channels have capacity 1 and exactly one sender.
		ch <- it
		return
	}
	s.buffer = append(s.buffer, it)
}

// Next returns the next polled entry, blocking until one is available or
// ctx is done. A canceled wait releases its slot without leaking; an entry
// won in the cancellation race is handed to the oldest remaining waiter, or
// requeued at the front of the buffer if none is waiting.
//
// Providing a nil ctx will cause a panic.
func (s *Streamed[V, P]) Next(ctx context.Context) (*Item[V, P], error) {
	if ctx == nil {
		panic(`timerqueue: nil context`)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if len(s.buffer) > 0 {
		it := s.buffer[0]
		s.buffer = s.buffer[1:]
		s.mu.Unlock()
		return it, nil
	}
	ch := make(chan *Item[V, P], 1)
	s.waiters = append(s.waiters, ch)
	s.mu.Unlock()

	select {
	case it := <-ch:
		return it, nil

	case <-ctx.Done():
		s.mu.Lock()
		for i, w := range s.waiters {
			if w == ch {
				s.waiters = append(s.waiters[:i], s.waiters[i+1:]...)
				break
			}
		}
		// The producer may have delivered before the waiter was removed;
		// hand the entry to the next consumer rather than dropping it.
		select {
		case it := <-ch:
			if len(s.waiters) > 0 {
				next := s.waiters[0]
				s.waiters = s.waiters[1:]
				next <- it
			} else {
				s.buffer = append([]*Item[V, P]{it}, s.buffer...)
			}
		default:
		}
		s.mu.Unlock()
		return nil, ctx.Err()
	}
}

// Items returns a range-over-func iterator consuming the stream until ctx
// is done or the consumer breaks. Multiple iterators may run concurrently;
// they share the stream.
func (s *Streamed[V, P]) Items(ctx context.Context) iter.Seq[*Item[V, P]] {
	return func(yield func(*Item[V, P]) bool) {
		for {
			it, err := s.Next(ctx)
			if err != nil {
				return
			}
			if !yield(it) {
				return
			}
		}
	}
}

// Buffered returns the number of polled entries awaiting pickup.
func (s *Streamed[V, P]) Buffered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buffer)
}

func (s *Streamed[V, P]) Insert(priority P, payload V) (*Handle[V], error) {
	return s.inner.Insert(priority, payload)
}

func (s *Streamed[V, P]) InsertWithID(id string, priority P, payload V) (*Handle[V], error) {
	return s.inner.InsertWithID(id, priority, payload)
}

func (s *Streamed[V, P]) Peek() *Handle[V] {
	return s.inner.Peek()
}

func (s *Streamed[V, P]) PeekItem() *Item[V, P] {
	return s.inner.PeekItem()
}

func (s *Streamed[V, P]) Poll() *Item[V, P] {
	it := s.inner.Poll()
	if it != nil {
		s.push(it)
	}
	return it
}

func (s *Streamed[V, P]) Get(ref Ref[V]) (*Handle[V], error) {
	return s.inner.Get(ref)
}

func (s *Streamed[V, P]) Has(ref Ref[V]) bool {
	return s.inner.Has(ref)
}

func (s *Streamed[V, P]) Remove(ref Ref[V]) *Item[V, P] {
	return s.inner.Remove(ref)
}

func (s *Streamed[V, P]) SetPriority(ref Ref[V], priority P) (*Update[V, P], error) {
	return s.inner.SetPriority(ref, priority)
}

func (s *Streamed[V, P]) Clear() int {
	return s.inner.Clear()
}

func (s *Streamed[V, P]) Len() int {
	return s.inner.Len()
}

func (s *Streamed[V, P]) Empty() bool {
	return s.inner.Empty()
}

func (s *Streamed[V, P]) All() iter.Seq2[*Handle[V], V] {
	return s.inner.All()
}
