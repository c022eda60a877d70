// Package smtp implements a Channel that relays messages to an SMTP server.
// Every send opens its own session, drives it to a single outcome and
// closes it again.
package smtp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shineum/smtpkit/internal/completion"
	"github.com/shineum/smtpkit/internal/email"
)

const (
	// DefaultPort is used when Config.Port is zero.
	DefaultPort = 25
	// DefaultTimeout bounds every network exchange when Config.Timeout is zero.
	DefaultTimeout = 100 * time.Second
)

// Config describes how to reach the SMTP server.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string

	// Certificate is presented to the server during STARTTLS when set.
	Certificate *tls.Certificate

	Timeout time.Duration
}

// Channel delivers messages over SMTP.
type Channel struct {
	cfg        Config
	newSession sessionFactory
}

// New creates an SMTP Channel.
func New(cfg Config) (*Channel, error) {
	return newWithFactory(cfg, newMailSession)
}

func newWithFactory(cfg Config, f sessionFactory) (*Channel, error) {
	if cfg.Host == "" {
		return nil, errors.New("smtp host is required")
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Channel{cfg: cfg, newSession: f}, nil
}

// Send relays msg and waits for the server's verdict. Transport failures
// and cancellation are reported as entries of the result.
//
// An already cancelled ctx is recorded as "message was cancelled before
// sending" and the attempt is still started, but the cancellation is
// forwarded to the session at once. Against a real server the exchange is
// then aborted and the result also carries "message delivery was
// cancelled"; only a transport that completes before honouring the abort
// delivers the message.
func (c *Channel) Send(ctx context.Context, msg *email.Message) (email.SendResult, error) {
	var res email.SendResult

	if ctx.Err() != nil {
		res.Add("message was cancelled before sending")
	}

	s, err := c.newSession(c.cfg)
	if err != nil {
		res.Add("%v", err)
		c.logFailure(ctx, res)
		return res, nil
	}
	defer func() {
		if err := s.Close(); err != nil {
			slog.WarnContext(ctx, "failed to close SMTP session", "channel", c.Name(), "error", err)
		}
	}()

	err = completion.Send(ctx, s, msg)
	switch {
	case err == nil:
	case errors.Is(err, completion.ErrCancelled):
		res.Add("message delivery was cancelled")
	default:
		res.Add("%v", err)
	}

	if !res.OK() {
		c.logFailure(ctx, res)
		return res, nil
	}

	slog.DebugContext(ctx, "message relayed",
		"channel", c.Name(),
		"addr", fmt.Sprintf("%s:%d", c.cfg.Host, c.cfg.Port),
		"subject", msg.Subject,
		"recipients", len(msg.Recipients()),
	)
	return res, nil
}

func (c *Channel) logFailure(ctx context.Context, res email.SendResult) {
	slog.WarnContext(ctx, "message delivery failed",
		"channel", c.Name(),
		"addr", fmt.Sprintf("%s:%d", c.cfg.Host, c.cfg.Port),
		"error", res.Err(),
	)
}

// Name returns the channel name.
func (c *Channel) Name() string {
	return "smtp"
}
