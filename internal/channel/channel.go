// Package channel defines the contract shared by every delivery channel.
package channel

import (
	"context"

	"github.com/shineum/smtpkit/internal/email"
)

// Channel is a delivery backend. Each channel hands a finished message to
// its target (stdout, a capture directory, an SMTP server, ...).
type Channel interface {
	// Send delivers msg and blocks until the attempt is over. Delivery
	// failures are reported as entries of the SendResult. The error is
	// reserved for faults of the output sink itself, which are not
	// recoverable delivery conditions.
	Send(ctx context.Context, msg *email.Message) (email.SendResult, error)

	// Name returns the human-readable name of this channel.
	Name() string
}

// Outcome is the value delivered by Go.
type Outcome struct {
	Result email.SendResult
	Err    error
}

// Go runs ch.Send on its own goroutine and delivers the outcome on the
// returned channel, which receives exactly one value.
func Go(ctx context.Context, ch Channel, msg *email.Message) <-chan Outcome {
	out := make(chan Outcome, 1)
	go func() {
		res, err := ch.Send(ctx, msg)
		out <- Outcome{Result: res, Err: err}
	}()
	return out
}
