// Package completion turns a callback-signalled transport operation into a
// single blocking call that resolves exactly once.
package completion

import (
	"go.uber.org/atomic"
)

// State is the resolution state of a Slot.
type State int32

// Slot states. Transitions only ever leave Pending.
const (
	Pending State = iota
	Succeeded
	Failed
	Cancelled
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Slot holds the outcome of one operation. The first resolution wins; every
// later attempt is a no-op.
type Slot struct {
	state atomic.Int32
	err   error
	done  chan struct{}
}

// NewSlot returns a pending slot.
func NewSlot() *Slot {
	return &Slot{done: make(chan struct{})}
}

// Succeed resolves the slot as succeeded. It reports whether this call won.
func (s *Slot) Succeed() bool {
	return s.resolve(Succeeded, nil)
}

// Fail resolves the slot as failed with err.
func (s *Slot) Fail(err error) bool {
	return s.resolve(Failed, err)
}

// Cancel resolves the slot as cancelled.
func (s *Slot) Cancel() bool {
	return s.resolve(Cancelled, nil)
}

func (s *Slot) resolve(to State, err error) bool {
	if !s.state.CompareAndSwap(int32(Pending), int32(to)) {
		return false
	}
	// err is published by closing done; readers go through Err.
	s.err = err
	close(s.done)
	return true
}

// Done is closed once the slot is resolved.
func (s *Slot) Done() <-chan struct{} {
	return s.done
}

// State returns the current state.
func (s *Slot) State() State {
	return State(s.state.Load())
}

// Err returns the failure recorded by Fail, or nil while pending.
func (s *Slot) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}
