// Package filecapture implements a Channel that writes every message to its
// own text file in a capture directory.
package filecapture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shineum/smtpkit/internal/email"
)

const (
	timestampLayout = "2006-01-02_15-04-05"
	fileExt         = ".txt"
	maxNameAttempts = 16
)

// Channel writes each message to <dir>/<timestamp>_<token>.txt.
type Channel struct {
	dir string
	now func() time.Time
}

// New creates a file capture Channel rooted at dir, creating the directory
// if it does not exist.
func New(dir string) (*Channel, error) {
	return NewWithClock(dir, time.Now)
}

// NewWithClock creates a file capture Channel that stamps file names using
// the given clock. This is useful for testing.
func NewWithClock(dir string, now func() time.Time) (*Channel, error) {
	if dir == "" {
		return nil, errors.New("capture directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create capture directory %s: %w", dir, err)
	}
	return &Channel{dir: dir, now: now}, nil
}

// Dir returns the capture directory.
func (c *Channel) Dir() string {
	return c.dir
}

// Send writes msg to a freshly named file. Any filesystem failure is fatal.
func (c *Channel) Send(ctx context.Context, msg *email.Message) (email.SendResult, error) {
	f, err := c.create()
	if err != nil {
		return email.SendResult{}, err
	}

	_, werr := f.WriteString(email.Format(msg))
	cerr := f.Close()
	if err := errors.Join(werr, cerr); err != nil {
		return email.SendResult{}, fmt.Errorf("failed to write capture file %s: %w", f.Name(), err)
	}

	slog.InfoContext(ctx, "message captured to file",
		"path", f.Name(),
		"subject", msg.Subject,
	)
	return email.SendResult{}, nil
}

// create opens a new capture file, retrying with a fresh token when the
// chosen name already exists.
func (c *Channel) create() (*os.File, error) {
	stamp := c.now().Format(timestampLayout)
	for i := 0; i < maxNameAttempts; i++ {
		path := filepath.Join(c.dir, stamp+"_"+token()+fileExt)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("failed to create capture file: %w", err)
		}
	}
	return nil, fmt.Errorf("failed to create capture file in %s: no free name after %d attempts", c.dir, maxNameAttempts)
}

// token returns eight random hex characters.
func token() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// Name returns the channel name.
func (c *Channel) Name() string {
	return "filecapture"
}
