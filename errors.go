package timerqueue

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateID indicates an insert or register call supplied an id that
	// is already in use within the queue's registry.
	ErrDuplicateID = errors.New(`timerqueue: duplicate id`)

	// ErrDuplicatePayload indicates a payload identity that is already
	// registered. A payload may occupy at most one node at a time.
	ErrDuplicatePayload = errors.New(`timerqueue: duplicate payload`)

	// ErrStaleHandle indicates a [Handle] that is no longer the registry's
	// canonical handle for its payload, e.g. after the entry was removed, or
	// after a priority increase issued a replacement handle.
	ErrStaleHandle = errors.New(`timerqueue: stale handle`)

	// ErrNotFound indicates a reference that did not resolve to any entry.
	ErrNotFound = errors.New(`timerqueue: not found`)

	// ErrTimerNotFound indicates a timer id that is invalid, already fired,
	// or already canceled.
	ErrTimerNotFound = errors.New(`timerqueue: timer not found`)

	// ErrInvalidConfig indicates a missing or invalid collaborator at
	// construction, e.g. a nil [Clock] or [TimerSource].
	ErrInvalidConfig = errors.New(`timerqueue: invalid config`)
)

// InvariantError is used to report an internal structural invariant
// violation, e.g. cutting a node that is not linked into the heap. These
// states are unreachable through the public API; encountering one indicates
// memory corruption or misuse of unexported internals.
type InvariantError struct {
	// Op is the internal operation that detected the violation.
	Op string

	// Message describes the violated invariant.
	Message string
}

// Error implements the error interface.
func (e *InvariantError) Error() string {
	return fmt.Sprintf(`timerqueue: invariant violation in %s: %s`, e.Op, e.Message)
}
