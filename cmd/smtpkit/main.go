// Package main is the command line entry point for composing and sending a
// single email through a configured channel.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/shineum/smtpkit"
	"github.com/shineum/smtpkit/internal/parser"
)

type options struct {
	configPath   string
	from         string
	fromName     string
	to           []string
	cc           []string
	bcc          []string
	replyTo      []string
	subject      string
	text         string
	textTemplate string
	html         string
	htmlTemplate string
	vars         []string
	attach       []string
	eml          string
	timeout      time.Duration
}

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stderr))
}

// run executes the command and returns the process exit code.
func run(ctx context.Context, args []string, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		return 1
	}

	// Setup structured logging
	setupLogger(stderr, cfg.Logging.Level)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()
	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	ch, err := smtpkit.ChannelFromConfig(ctx, cfg)
	if err != nil {
		slog.Error("failed to create channel", "error", err)
		return 1
	}

	model, err := parseVars(opts.vars)
	if err != nil {
		slog.Error("failed to parse template variables", "error", err)
		return 1
	}

	var res smtpkit.SendResult
	if opts.eml != "" {
		res, err = sendRaw(ctx, ch, opts.eml)
	} else {
		from := opts.from
		if from == "" {
			from = cfg.Sender.Address
		}
		name := opts.fromName
		if name == "" {
			name = cfg.Sender.Name
		}
		res, err = compose(smtpkit.New(smtpkit.Address{Email: from, Name: name}, ch), opts, model).Send(ctx)
	}
	if err != nil {
		slog.Error("failed to send message", "channel", ch.Name(), "error", err)
		return 1
	}
	if !res.OK() {
		for _, e := range res.Errors {
			slog.Error("delivery failed", "channel", ch.Name(), "error", e)
		}
		return 1
	}

	slog.Info("message sent", "channel", ch.Name())
	return 0
}

func parseFlags(args []string, output io.Writer) (*options, error) {
	opts := &options{}
	fs := flag.NewFlagSet("smtpkit", flag.ContinueOnError)
	fs.SetOutput(output)

	fs.StringVar(&opts.configPath, "config", "", "path to YAML configuration file (optional)")
	fs.StringVar(&opts.from, "from", "", "sender address (defaults to the configured sender)")
	fs.StringVar(&opts.fromName, "from-name", "", "sender display name")
	fs.StringArrayVar(&opts.to, "to", nil, "recipient address, repeatable")
	fs.StringArrayVar(&opts.cc, "cc", nil, "carbon copy address, repeatable")
	fs.StringArrayVar(&opts.bcc, "bcc", nil, "blind carbon copy address, repeatable")
	fs.StringArrayVar(&opts.replyTo, "reply-to", nil, "reply address, repeatable")
	fs.StringVar(&opts.subject, "subject", "", "message subject")
	fs.StringVar(&opts.text, "text", "", "plain text body")
	fs.StringVar(&opts.textTemplate, "text-template", "", "plain text body template file")
	fs.StringVar(&opts.html, "html", "", "HTML body")
	fs.StringVar(&opts.htmlTemplate, "html-template", "", "HTML body template file")
	fs.StringArrayVar(&opts.vars, "var", nil, "template field as key=value, repeatable")
	fs.StringArrayVar(&opts.attach, "attach", nil, "file to attach, repeatable")
	fs.StringVar(&opts.eml, "eml", "", "send a raw RFC 5322 message file as is")
	fs.DurationVar(&opts.timeout, "timeout", 0, "overall deadline for the send (0 means none)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	return opts, nil
}

// parseVars turns key=value pairs into a template model. The value may
// itself contain "=".
func parseVars(pairs []string) (smtpkit.Model, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	model := smtpkit.Model{}
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid template variable %q, want key=value", p)
		}
		model[k] = v
	}
	return model, nil
}

// compose applies the message flags to e. Build errors surface from Send.
func compose(e *smtpkit.Email, opts *options, model smtpkit.Fields) *smtpkit.Email {
	for _, a := range opts.to {
		e.To(a, "")
	}
	for _, a := range opts.cc {
		e.Cc(a, "")
	}
	for _, a := range opts.bcc {
		e.Bcc(a, "")
	}
	for _, a := range opts.replyTo {
		e.ReplyTo(a, "")
	}
	e.Subject(opts.subject)

	switch {
	case opts.textTemplate != "":
		e.PlainBodyFile(opts.textTemplate, model)
	case opts.text != "":
		e.PlainBody(opts.text)
	}
	switch {
	case opts.htmlTemplate != "":
		e.HTMLBodyFile(opts.htmlTemplate, model)
	case opts.html != "":
		e.HTMLBody(opts.html)
	}

	for _, path := range opts.attach {
		e.Attach(path, "", "")
	}
	return e
}

// sendRaw parses the RFC 5322 file at path and hands it to ch unchanged.
func sendRaw(ctx context.Context, ch smtpkit.Channel, path string) (smtpkit.SendResult, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return smtpkit.SendResult{}, fmt.Errorf("failed to read message file: %w", err)
	}
	msg, err := parser.Parse(raw)
	if err != nil {
		return smtpkit.SendResult{}, err
	}
	defer msg.Close()

	slog.Debug("parsed message file",
		"path", path,
		"recipients", len(msg.Recipients()),
		"attachments", len(msg.Attachments),
	)
	return ch.Send(ctx, msg)
}

// loadConfig loads configuration from the specified path (YAML + env override)
// or from environment variables only if no path is given.
func loadConfig(path string) (*smtpkit.Config, error) {
	return smtpkit.LoadConfig(path)
}

// setupLogger configures the global slog logger with JSON output on w and
// the specified log level. Standard output is left to the console channel.
func setupLogger(w io.Writer, level string) {
	var logLevel slog.Level

	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}
