// Package smtpkit builds email messages with a fluent API and delivers them
// through a pluggable channel: the console, a capture directory, an SMTP
// server or AWS SES.
//
//	res, err := smtpkit.New(from, smtpkit.UseConsole()).
//		To("ada@example.com", "Ada").
//		Subject("Hello").
//		PlainBody("Hi Ada").
//		Send(ctx)
//
// Builder calls fail fast: the first invalid call is recorded as a
// *BuildError, exposed by Err, and every later call is a no-op. Send then
// returns that error without touching the channel. Delivery failures are
// not errors; they are entries of the returned SendResult.
package smtpkit

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/atomic"

	"github.com/shineum/smtpkit/internal/channel"
	"github.com/shineum/smtpkit/internal/email"
	"github.com/shineum/smtpkit/internal/mimetype"
	"github.com/shineum/smtpkit/internal/render"
)

type (
	// Address is an email address with a display name.
	Address = email.Address
	// Attachment is a file or stream attached to a message.
	Attachment = email.Attachment
	// SendResult lists the delivery errors of one send. Empty means success.
	SendResult = email.SendResult
	// Channel delivers finished messages.
	Channel = channel.Channel
	// Outcome is the value delivered by SendAsync.
	Outcome = channel.Outcome
	// Fields is implemented by template models.
	Fields = render.Fields
	// Model is a ready-made template model.
	Model = render.Map
)

// NewAddress validates addr. An empty name defaults to addr.
func NewAddress(addr, name string) (Address, error) {
	return email.NewAddress(addr, name)
}

// Email is a message under construction bound to a delivery channel.
// An Email is not safe for concurrent use and is sent at most once.
type Email struct {
	msg  *email.Message
	ch   Channel
	err  error
	sent atomic.Bool
	now  func() time.Time
}

// New starts a message from the given sender, delivered through ch.
func New(from Address, ch Channel) *Email {
	e := &Email{
		msg: email.NewMessage(Address{}),
		ch:  ch,
		now: time.Now,
	}
	return e.FromAddress(from)
}

// Err returns the first build error, if any.
func (e *Email) Err() error {
	return e.err
}

func (e *Email) fail(op string, err error) *Email {
	e.err = &BuildError{Op: op, Err: err}
	slog.Debug("email build failed", "op", op, "error", err)
	return e
}

// normalize validates a and fills in the default display name.
func normalize(a Address) (Address, error) {
	return email.NewAddress(a.Email, a.Name)
}

// From replaces the sender.
func (e *Email) From(addr, name string) *Email {
	return e.FromAddress(Address{Email: addr, Name: name})
}

// FromAddress replaces the sender.
func (e *Email) FromAddress(a Address) *Email {
	if e.err != nil {
		return e
	}
	a, err := normalize(a)
	if err != nil {
		return e.fail("From", err)
	}
	e.msg.From = a
	return e
}

// appendAddresses validates every address before touching dst so a
// failing call leaves the field unchanged.
func (e *Email) appendAddresses(op string, dst *[]Address, list []Address) *Email {
	if e.err != nil {
		return e
	}
	valid := make([]Address, 0, len(list))
	for _, a := range list {
		a, err := normalize(a)
		if err != nil {
			return e.fail(op, err)
		}
		valid = append(valid, a)
	}
	*dst = append(*dst, valid...)
	return e
}

// To appends a recipient.
func (e *Email) To(addr, name string) *Email {
	return e.appendAddresses("To", &e.msg.To, []Address{{Email: addr, Name: name}})
}

// ToAddress appends a recipient.
func (e *Email) ToAddress(a Address) *Email {
	return e.appendAddresses("To", &e.msg.To, []Address{a})
}

// ToAddresses appends every address in order.
func (e *Email) ToAddresses(list []Address) *Email {
	return e.appendAddresses("To", &e.msg.To, list)
}

// Cc appends a carbon copy recipient.
func (e *Email) Cc(addr, name string) *Email {
	return e.appendAddresses("Cc", &e.msg.Cc, []Address{{Email: addr, Name: name}})
}

// CcAddress appends a carbon copy recipient.
func (e *Email) CcAddress(a Address) *Email {
	return e.appendAddresses("Cc", &e.msg.Cc, []Address{a})
}

// CcAddresses appends every address in order.
func (e *Email) CcAddresses(list []Address) *Email {
	return e.appendAddresses("Cc", &e.msg.Cc, list)
}

// Bcc appends a blind carbon copy recipient.
func (e *Email) Bcc(addr, name string) *Email {
	return e.appendAddresses("Bcc", &e.msg.Bcc, []Address{{Email: addr, Name: name}})
}

// BccAddress appends a blind carbon copy recipient.
func (e *Email) BccAddress(a Address) *Email {
	return e.appendAddresses("Bcc", &e.msg.Bcc, []Address{a})
}

// BccAddresses appends every address in order.
func (e *Email) BccAddresses(list []Address) *Email {
	return e.appendAddresses("Bcc", &e.msg.Bcc, list)
}

// ReplyTo appends a reply address.
func (e *Email) ReplyTo(addr, name string) *Email {
	return e.appendAddresses("ReplyTo", &e.msg.ReplyTo, []Address{{Email: addr, Name: name}})
}

// ReplyToAddress appends a reply address.
func (e *Email) ReplyToAddress(a Address) *Email {
	return e.appendAddresses("ReplyTo", &e.msg.ReplyTo, []Address{a})
}

// ReplyToAddresses appends every address in order.
func (e *Email) ReplyToAddresses(list []Address) *Email {
	return e.appendAddresses("ReplyTo", &e.msg.ReplyTo, list)
}

// Subject replaces the subject.
func (e *Email) Subject(subject string) *Email {
	if e.err != nil {
		return e
	}
	e.msg.Subject = subject
	return e
}

// HTMLBody replaces the HTML alternate body.
func (e *Email) HTMLBody(body string) *Email {
	if e.err != nil {
		return e
	}
	e.msg.SetHTML(body)
	return e
}

// HTMLBodyFile reads an HTML template from path, renders it with model and
// uses the result as the HTML body. A nil model leaves the template as is.
func (e *Email) HTMLBodyFile(path string, model Fields) *Email {
	if e.err != nil {
		return e
	}
	body, err := readTemplate(path, model)
	if err != nil {
		return e.fail("HTMLBodyFile", err)
	}
	e.msg.SetHTML(body)
	return e
}

// PlainBody replaces the plain text body.
func (e *Email) PlainBody(body string) *Email {
	if e.err != nil {
		return e
	}
	e.msg.PlainBody = body
	return e
}

// PlainBodyFile reads a text template from path, renders it with model and
// uses the result as the plain text body.
func (e *Email) PlainBodyFile(path string, model Fields) *Email {
	if e.err != nil {
		return e
	}
	body, err := readTemplate(path, model)
	if err != nil {
		return e.fail("PlainBodyFile", err)
	}
	e.msg.PlainBody = body
	return e
}

func readTemplate(path string, model Fields) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrTemplateRead, err)
	}
	return render.Render(string(data), model), nil
}

// Attach attaches the file at path. An empty name defaults to the file's
// base name and an empty mediaType is resolved from the extension.
func (e *Email) Attach(path, name, mediaType string) *Email {
	if e.err != nil {
		return e
	}
	if name == "" {
		name = filepath.Base(path)
	}
	if mediaType == "" {
		mediaType = mimetype.Lookup(filepath.Ext(path))
	}
	att, err := email.NewFileAttachment(path, name, mediaType)
	if err != nil {
		return e.fail("Attach", err)
	}
	e.msg.Attachments = append(e.msg.Attachments, att)
	return e
}

// AttachReader attaches the content of r under name. The Email takes
// ownership of r and closes it after sending when it is an io.Closer. An
// empty mediaType is resolved from the extension of name.
func (e *Email) AttachReader(r io.Reader, name, mediaType string) *Email {
	if e.err != nil {
		return e
	}
	if mediaType == "" {
		mediaType = mimetype.Lookup(filepath.Ext(name))
	}
	e.msg.Attachments = append(e.msg.Attachments, email.NewReaderAttachment(r, name, mediaType, e.now()))
	return e
}

// AttachFile appends a pre-built attachment.
func (e *Email) AttachFile(att Attachment) *Email {
	if e.err != nil {
		return e
	}
	if att.Content == nil && att.Path == "" {
		return e.fail("AttachFile", fmt.Errorf("%w: attachment has no content", ErrAttachmentRead))
	}
	if att.ContentType == "" {
		att.ContentType = mimetype.Lookup(filepath.Ext(att.Name))
	}
	e.msg.Attachments = append(e.msg.Attachments, att)
	return e
}

// SendAsync delivers the message on its own goroutine. The returned channel
// receives exactly one Outcome.
func (e *Email) SendAsync(ctx context.Context) <-chan Outcome {
	if err := e.claim(); err != nil {
		out := make(chan Outcome, 1)
		out <- Outcome{Err: err}
		return out
	}

	out := make(chan Outcome, 1)
	go func() {
		o := <-channel.Go(ctx, e.ch, e.msg)
		if err := e.msg.Close(); err != nil {
			slog.Warn("failed to release message resources", "channel", e.ch.Name(), "error", err)
		}
		out <- o
	}()
	return out
}

// Send delivers the message and waits for the result. The error is a build
// error, ErrAlreadySent, or a fault of the channel's output sink.
func (e *Email) Send(ctx context.Context) (SendResult, error) {
	o := <-e.SendAsync(ctx)
	return o.Result, o.Err
}

// claim marks the message as sent, or reports why it cannot be.
func (e *Email) claim() error {
	if e.err != nil {
		return e.err
	}
	if !e.sent.CompareAndSwap(false, true) {
		return ErrAlreadySent
	}
	return nil
}

// String renders the message for debugging.
func (e *Email) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "FROM: %s\n", e.msg.From)
	fmt.Fprintf(&b, "TO: %s\n", email.JoinAddresses(e.msg.To))
	fmt.Fprintf(&b, "CC: %s\n", email.JoinAddresses(e.msg.Cc))
	fmt.Fprintf(&b, "BCC: %s\n", email.JoinAddresses(e.msg.Bcc))
	fmt.Fprintf(&b, "REPLY_TO: %s\n", email.JoinAddresses(e.msg.ReplyTo))
	b.WriteString("\n")
	fmt.Fprintf(&b, "SUBJECT: %s\n", e.msg.Subject)
	b.WriteString("\n")
	b.WriteString(e.msg.PlainBody + "\n")
	b.WriteString("\n")
	b.WriteString(e.msg.HTMLBody())
	return b.String()
}
