// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package timerqueue

import (
	"github.com/joeycumines/logiface"
)

// queueOptions holds configuration for Queue creation.
type queueOptions struct {
	clock          Clock
	timers         TimerSource
	emitter        Emitter
	comparator     func(a, b int64) int
	logger         *logiface.Logger[logiface.Event]
	streamCapacity int
}

// Option configures a [Queue] instance.
type Option interface {
	applyQueue(*queueOptions) error
}

// optionImpl implements Option.
type optionImpl struct {
	applyQueueFunc func(*queueOptions) error
}

func (o *optionImpl) applyQueue(opts *queueOptions) error {
	return o.applyQueueFunc(opts)
}

// WithClock injects the clock used to decide when entries are due. It must
// return milliseconds since the Unix epoch, the same units as priorities.
// Defaults to [SystemClock].
func WithClock(clock Clock) Option {
	return &optionImpl{func(opts *queueOptions) error {
		if clock == nil {
			return ErrInvalidConfig
		}
		opts.clock = clock
		return nil
	}}
}

// WithTimerSource injects the one-shot timer implementation. Defaults to
// [NewSystemTimerSource].
func WithTimerSource(timers TimerSource) Option {
	return &optionImpl{func(opts *queueOptions) error {
		if timers == nil {
			return ErrInvalidConfig
		}
		opts.timers = timers
		return nil
	}}
}

// WithEmitter injects the mutation notifier. Defaults to [NewEmitter].
func WithEmitter(emitter Emitter) Option {
	return &optionImpl{func(opts *queueOptions) error {
		if emitter == nil {
			return ErrInvalidConfig
		}
		opts.emitter = emitter
		return nil
	}}
}

// WithComparator overrides the priority ordering. The default compares
// numerically, smallest (earliest deadline) first. Note that the scheduler
// decides due-ness by numeric comparison against the clock regardless of
// the ordering used for dispatch.
func WithComparator(cmp func(a, b int64) int) Option {
	return &optionImpl{func(opts *queueOptions) error {
		if cmp == nil {
			return ErrInvalidConfig
		}
		opts.comparator = cmp
		return nil
	}}
}

// WithLogger configures structured logging for timer and drain activity.
// A nil logger disables logging (the default).
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &optionImpl{func(opts *queueOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithStreamCapacity preallocates the ready buffer. The buffer remains
// unbounded; this only tunes the initial allocation.
func WithStreamCapacity(capacity int) Option {
	return &optionImpl{func(opts *queueOptions) error {
		if capacity < 0 {
			return ErrInvalidConfig
		}
		opts.streamCapacity = capacity
		return nil
	}}
}

// resolveQueueOptions applies Option instances to queueOptions.
func resolveQueueOptions(opts []Option) (*queueOptions, error) {
	cfg := &queueOptions{
		clock:      SystemClock{},
		timers:     NewSystemTimerSource(),
		emitter:    NewEmitter(),
		comparator: orderedCompare[int64],
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyQueue(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
