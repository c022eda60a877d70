package smtpkit

import (
	"errors"

	"github.com/shineum/smtpkit/internal/email"
)

// Build errors. Match them with errors.Is.
var (
	ErrInvalidAddress = email.ErrInvalidAddress
	ErrTemplateRead   = errors.New("template is not readable")
	ErrAttachmentRead = email.ErrAttachmentRead
)

// ErrAlreadySent is returned by a second Send or SendAsync on the same Email.
var ErrAlreadySent = errors.New("message has already been sent")

// BuildError records the first builder call that failed.
type BuildError struct {
	// Op is the builder method that failed, e.g. "To" or "Attach".
	Op  string
	Err error
}

func (e *BuildError) Error() string {
	return "smtpkit: " + e.Op + ": " + e.Err.Error()
}

func (e *BuildError) Unwrap() error {
	return e.Err
}
