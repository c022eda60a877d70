// Package console implements a Channel that prints messages to standard output.
package console

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/shineum/smtpkit/internal/email"
)

// Channel prints messages in the capture layout.
type Channel struct {
	// writer is the output destination, defaulting to os.Stdout.
	writer io.Writer
}

// New creates a console Channel that writes to os.Stdout.
func New() *Channel {
	return &Channel{writer: os.Stdout}
}

// NewWithWriter creates a console Channel that writes to the given writer.
// This is useful for testing.
func NewWithWriter(w io.Writer) *Channel {
	return &Channel{writer: w}
}

// Send writes the message. It never reports delivery errors; a failing
// writer is returned as a fatal error.
func (c *Channel) Send(ctx context.Context, msg *email.Message) (email.SendResult, error) {
	if _, err := fmt.Fprintln(c.writer, email.Format(msg)); err != nil {
		return email.SendResult{}, fmt.Errorf("failed to write message to console: %w", err)
	}

	slog.DebugContext(ctx, "message written to console",
		"subject", msg.Subject,
		"recipients", len(msg.Recipients()),
	)
	return email.SendResult{}, nil
}

// Name returns the channel name.
func (c *Channel) Name() string {
	return "console"
}
