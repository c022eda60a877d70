// Package config provides environment-variable-first configuration loading
// with optional YAML file fallback for the mail channels.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Channel names accepted by the channel setting.
const (
	ChannelConsole    = "console"
	ChannelFileSystem = "filesystem"
	ChannelSMTP       = "smtp"
	ChannelSES        = "ses"
)

const (
	defaultSMTPPort    = 25
	defaultSMTPTimeout = 100 * time.Second
	defaultOutputDir   = "mail"
)

// Config holds the complete application configuration.
type Config struct {
	// Channel selects the delivery channel. Empty means auto-detect.
	Channel    string           `yaml:"channel"`
	Sender     SenderConfig     `yaml:"sender"`
	FileSystem FileSystemConfig `yaml:"filesystem"`
	SMTP       SMTPConfig       `yaml:"smtp"`
	SES        SESConfig        `yaml:"ses"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// SenderConfig holds the default From address stamped on new messages.
type SenderConfig struct {
	Address string `yaml:"address"`
	Name    string `yaml:"name"`
}

// FileSystemConfig holds the capture directory of the filesystem channel.
type FileSystemConfig struct {
	Dir string `yaml:"dir"`
}

// SMTPConfig holds the upstream SMTP server configuration.
type SMTPConfig struct {
	Host     string        `yaml:"host"`
	Port     int           `yaml:"port"`
	Username string        `yaml:"username"`
	Password string        `yaml:"password"`
	CertFile string        `yaml:"cert_file"`
	KeyFile  string        `yaml:"key_file"`
	Timeout  time.Duration `yaml:"timeout"`
}

// SESConfig holds AWS SES v2 configuration.
type SESConfig struct {
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Sender          string `yaml:"sender"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load loads configuration from environment variables with sensible defaults.
// Environment variables always take precedence.
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.applyEnvVars()
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file as the base layer,
// then overrides with environment variables. Returns an error if the
// specified file path does not exist.
func LoadFromFile(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Environment variables always override YAML values
	cfg.applyEnvVars()
	cfg.Channel = strings.ToLower(cfg.Channel)

	return cfg, nil
}

// SMTPConfigured returns true if an upstream SMTP host is set.
func (c *Config) SMTPConfigured() bool {
	return c.SMTP.Host != ""
}

// SESConfigured returns true if the SES region and sender are set.
// Credentials are optional because the AWS default chain may provide them.
func (c *Config) SESConfigured() bool {
	return c.SES.Region != "" && c.SES.Sender != ""
}

// AuthEnabled returns true if both SMTP username and password are set.
func (c *Config) AuthEnabled() bool {
	return c.SMTP.Username != "" && c.SMTP.Password != ""
}

// CertificateConfigured returns true if both client certificate files are set.
func (c *Config) CertificateConfigured() bool {
	return c.SMTP.CertFile != "" && c.SMTP.KeyFile != ""
}

// applyDefaults sets sensible default values for all configuration fields.
func (c *Config) applyDefaults() {
	c.FileSystem.Dir = defaultOutputDir
	c.SMTP.Port = defaultSMTPPort
	c.SMTP.Timeout = defaultSMTPTimeout
	c.Logging.Level = "info"
}

// applyEnvVars overrides configuration with environment variable values.
// Only non-empty environment variables override existing values.
func (c *Config) applyEnvVars() {
	if v := os.Getenv("CHANNEL"); v != "" {
		c.Channel = strings.ToLower(v)
	}

	if v := os.Getenv("MAIL_FROM"); v != "" {
		c.Sender.Address = v
	}
	if v := os.Getenv("MAIL_FROM_NAME"); v != "" {
		c.Sender.Name = v
	}

	if v := os.Getenv("OUTPUT_DIR"); v != "" {
		c.FileSystem.Dir = v
	}

	if v := os.Getenv("SMTP_HOST"); v != "" {
		c.SMTP.Host = v
	}
	if v := os.Getenv("SMTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.SMTP.Port = port
		}
	}
	if v := os.Getenv("SMTP_USERNAME"); v != "" {
		c.SMTP.Username = v
	}
	if v := os.Getenv("SMTP_PASSWORD"); v != "" {
		c.SMTP.Password = v
	}
	if v := os.Getenv("SMTP_CERT_FILE"); v != "" {
		c.SMTP.CertFile = v
	}
	if v := os.Getenv("SMTP_KEY_FILE"); v != "" {
		c.SMTP.KeyFile = v
	}
	if v := os.Getenv("SMTP_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.SMTP.Timeout = d
		}
	}

	if v := os.Getenv("SES_REGION"); v != "" {
		c.SES.Region = v
	}
	if v := os.Getenv("SES_ACCESS_KEY_ID"); v != "" {
		c.SES.AccessKeyID = v
	}
	if v := os.Getenv("SES_SECRET_ACCESS_KEY"); v != "" {
		c.SES.SecretAccessKey = v
	}
	if v := os.Getenv("SES_SENDER"); v != "" {
		c.SES.Sender = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
}
