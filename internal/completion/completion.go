package completion

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/atomic"
)

var (
	// ErrCancelled is returned when the transport acknowledged a cancellation.
	ErrCancelled = errors.New("operation was cancelled")

	// ErrUnexpectedToken is returned when a completion event carries a token
	// that belongs to a different invocation.
	ErrUnexpectedToken = errors.New("unexpected completion token")
)

// Token correlates a completion event with the invocation that started it.
type Token uint64

var lastToken atomic.Uint64

// NewToken returns a process-unique token.
func NewToken() Token {
	return Token(lastToken.Inc())
}

// Event is the completion notification raised by a transport.
type Event struct {
	Token     Token
	Cancelled bool
	Err       error
}

// Client is a transport whose completion is reported through subscribed
// handlers instead of a return value.
type Client[T any] interface {
	// Subscribe registers h for completion events and returns a function
	// that removes it. The returned function must be safe to call more
	// than once and from inside h.
	Subscribe(h func(Event)) (unsubscribe func())

	// SendAsync starts the operation. Completion is reported later through
	// an Event carrying token.
	SendAsync(payload T, token Token) error

	// Cancel asks the transport to abort the running operation. The
	// transport acknowledges with a cancelled Event. Cancel must not block.
	Cancel()
}

// Send starts payload on c and waits for its completion event.
//
// The handler is registered before the operation starts and removed on
// every exit path. The operation is started on its own goroutine so a
// transport that completes, fails or panics synchronously inside SendAsync
// never runs on the caller's goroutine. When ctx is done the cancellation
// is forwarded to c once and Send keeps waiting for the transport to
// acknowledge it; no result is made up on the transport's behalf.
//
// Send returns nil on success, ErrCancelled when the transport reports a
// cancellation, and the transport error otherwise.
func Send[T any](ctx context.Context, c Client[T], payload T) error {
	slot := NewSlot()
	token := NewToken()

	// A transport may deliver an event before Subscribe returns, so the
	// unsubscribe function is handed over under mu and run exactly once by
	// whichever side comes second.
	var (
		mu          sync.Mutex
		released    bool
		unsubscribe func()
	)
	release := func() {
		mu.Lock()
		released = true
		u := unsubscribe
		unsubscribe = nil
		mu.Unlock()
		if u != nil {
			u()
		}
	}

	handler := func(ev Event) {
		release()

		switch {
		case ev.Token != token:
			slot.Fail(fmt.Errorf("%w: got %d, want %d", ErrUnexpectedToken, ev.Token, token))
		case ev.Cancelled:
			slot.Cancel()
		case ev.Err != nil:
			slot.Fail(ev.Err)
		default:
			slot.Succeed()
		}
	}

	u := c.Subscribe(handler)
	mu.Lock()
	if released {
		mu.Unlock()
		u()
	} else {
		unsubscribe = u
		mu.Unlock()
	}
	defer release()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				slot.Fail(fmt.Errorf("transport panicked: %v", r))
			}
		}()
		if err := c.SendAsync(payload, token); err != nil {
			slot.Fail(err)
		}
	}()

	cancel := ctx.Done()
	for {
		select {
		case <-slot.Done():
			return outcome(slot)
		case <-cancel:
			cancel = nil
			c.Cancel()
		}
	}
}

func outcome(slot *Slot) error {
	switch slot.State() {
	case Succeeded:
		return nil
	case Cancelled:
		return ErrCancelled
	default:
		return slot.Err()
	}
}
