package smtpkit

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shineum/smtpkit/internal/channel/console"
	"github.com/shineum/smtpkit/internal/channel/filecapture"
	"github.com/shineum/smtpkit/internal/channel/ses"
	"github.com/shineum/smtpkit/internal/channel/smtp"
	"github.com/shineum/smtpkit/internal/config"
	tlsutil "github.com/shineum/smtpkit/internal/tls"
)

// Config is the YAML and environment driven configuration.
type Config = config.Config

// LoadConfig reads configuration from the environment, layered over the
// YAML file at path when path is not empty.
func LoadConfig(path string) (*Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

// UseConsole routes every send to standard output.
func UseConsole() Channel {
	return console.New()
}

// UseFileSystem routes every send to a new timestamped file under dir. The
// directory is created if it does not exist.
func UseFileSystem(dir string) (Channel, error) {
	ch, err := filecapture.New(dir)
	if err != nil {
		return nil, err
	}
	return ch, nil
}

// SMTPOption customizes UseSMTP.
type SMTPOption func(*smtp.Config)

// WithCredentials authenticates with the given username and password.
func WithCredentials(username, password string) SMTPOption {
	return func(c *smtp.Config) {
		c.Username = username
		c.Password = password
	}
}

// WithCertificate presents cert to the server during STARTTLS.
func WithCertificate(cert *tls.Certificate) SMTPOption {
	return func(c *smtp.Config) {
		c.Certificate = cert
	}
}

// WithTimeout bounds every network exchange.
func WithTimeout(d time.Duration) SMTPOption {
	return func(c *smtp.Config) {
		c.Timeout = d
	}
}

// UseSMTP routes every send to the SMTP server at host:port, upgrading to
// TLS when the server offers STARTTLS.
func UseSMTP(host string, port int, opts ...SMTPOption) (Channel, error) {
	cfg := smtp.Config{Host: host, Port: port}
	for _, opt := range opts {
		opt(&cfg)
	}
	ch, err := smtp.New(cfg)
	if err != nil {
		return nil, err
	}
	return ch, nil
}

// SESConfig configures UseSES.
type SESConfig = ses.Config

// UseSES routes every send to AWS SES v2.
func UseSES(ctx context.Context, cfg SESConfig) (Channel, error) {
	ch, err := ses.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return ch, nil
}

// ChannelFromConfig chooses the delivery channel based on configuration.
// An explicit channel setting takes precedence. Otherwise SMTP is used when
// a host is set, then SES when configured, then the console.
func ChannelFromConfig(ctx context.Context, cfg *Config) (Channel, error) {
	switch cfg.Channel {
	case config.ChannelSMTP:
		if !cfg.SMTPConfigured() {
			return nil, errors.New("smtp channel selected but SMTP_HOST is required")
		}
		return smtpFromConfig(cfg)

	case config.ChannelSES:
		if !cfg.SESConfigured() {
			return nil, errors.New("ses channel selected but SES_REGION and SES_SENDER are required")
		}
		return sesFromConfig(ctx, cfg)

	case config.ChannelFileSystem:
		slog.Info("using filesystem channel", "dir", cfg.FileSystem.Dir)
		return UseFileSystem(cfg.FileSystem.Dir)

	case config.ChannelConsole:
		slog.Info("using console channel")
		return UseConsole(), nil

	case "":
		if cfg.SMTPConfigured() {
			return smtpFromConfig(cfg)
		}
		if cfg.SESConfigured() {
			return sesFromConfig(ctx, cfg)
		}
		slog.Info("no channel configured, using console channel")
		return UseConsole(), nil

	default:
		return nil, fmt.Errorf("unknown channel %q", cfg.Channel)
	}
}

func smtpFromConfig(cfg *Config) (Channel, error) {
	opts := []SMTPOption{WithTimeout(cfg.SMTP.Timeout)}
	if cfg.AuthEnabled() {
		opts = append(opts, WithCredentials(cfg.SMTP.Username, cfg.SMTP.Password))
	}
	if cfg.CertificateConfigured() {
		cert, err := tlsutil.LoadClientCertificate(cfg.SMTP.CertFile, cfg.SMTP.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		opts = append(opts, WithCertificate(cert))
	}

	slog.Info("using smtp channel",
		"host", cfg.SMTP.Host,
		"port", cfg.SMTP.Port,
		"auth_enabled", cfg.AuthEnabled(),
		"client_certificate", cfg.CertificateConfigured(),
	)
	return UseSMTP(cfg.SMTP.Host, cfg.SMTP.Port, opts...)
}

func sesFromConfig(ctx context.Context, cfg *Config) (Channel, error) {
	slog.Info("using AWS SES channel",
		"region", cfg.SES.Region,
		"sender", cfg.SES.Sender,
	)
	ch, err := UseSES(ctx, SESConfig{
		Region:          cfg.SES.Region,
		AccessKeyID:     cfg.SES.AccessKeyID,
		SecretAccessKey: cfg.SES.SecretAccessKey,
		Sender:          cfg.SES.Sender,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create SES channel: %w", err)
	}
	return ch, nil
}
