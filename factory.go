package smtpkit

import (
	"context"
	"fmt"
)

// Factory creates Emails that share a sender and a channel.
type Factory struct {
	from Address
	ch   Channel
}

// NewFactory returns a Factory stamping from on every new Email.
func NewFactory(from Address, ch Channel) *Factory {
	return &Factory{from: from, ch: ch}
}

// NewFactoryFromConfig builds the channel described by cfg and uses the
// configured sender.
func NewFactoryFromConfig(ctx context.Context, cfg *Config) (*Factory, error) {
	from, err := NewAddress(cfg.Sender.Address, cfg.Sender.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to parse configured sender: %w", err)
	}
	ch, err := ChannelFromConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewFactory(from, ch), nil
}

// Create starts a new Email.
func (f *Factory) Create() *Email {
	return New(f.from, f.ch)
}

// Channel returns the channel shared by every Email of the factory.
func (f *Factory) Channel() Channel {
	return f.ch
}
