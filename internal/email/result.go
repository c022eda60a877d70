package email

import (
	"errors"
	"fmt"
	"strings"
)

// SendResult is the outcome of one delivery attempt. An empty Errors slice
// means the message was handed to the transport successfully.
type SendResult struct {
	Errors []string
}

// OK reports whether the delivery produced no errors.
func (r SendResult) OK() bool {
	return len(r.Errors) == 0
}

// Add appends a formatted error entry.
func (r *SendResult) Add(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// Err collapses the entries into a single error, or nil when OK.
func (r SendResult) Err() error {
	if r.OK() {
		return nil
	}
	return errors.New(strings.Join(r.Errors, "; "))
}
