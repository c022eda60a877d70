// Package compose assembles MIME messages from the message model.
package compose

import (
	"bytes"
	"fmt"
	"net/mail"

	"github.com/samber/lo"
	gomail "github.com/wneessen/go-mail"

	"github.com/shineum/smtpkit/internal/email"
)

// Header renders a for use in a MIME header. Non-ASCII display names are
// RFC 2047 encoded.
func Header(a email.Address) string {
	h := mail.Address{Name: a.Name, Address: a.Email}
	return h.String()
}

// Msg converts the message model into a go-mail message. Attachment
// streams are opened here and read while the message is assembled.
func Msg(msg *email.Message) (*gomail.Msg, error) {
	m := gomail.NewMsg()

	if err := m.FromFormat(msg.From.Name, msg.From.Email); err != nil {
		return nil, fmt.Errorf("failed to set sender: %w", err)
	}
	for _, a := range msg.To {
		if err := m.AddToFormat(a.Name, a.Email); err != nil {
			return nil, fmt.Errorf("failed to add recipient %s: %w", a.Email, err)
		}
	}
	for _, a := range msg.Cc {
		if err := m.AddCcFormat(a.Name, a.Email); err != nil {
			return nil, fmt.Errorf("failed to add cc recipient %s: %w", a.Email, err)
		}
	}
	for _, a := range msg.Bcc {
		if err := m.AddBccFormat(a.Name, a.Email); err != nil {
			return nil, fmt.Errorf("failed to add bcc recipient %s: %w", a.Email, err)
		}
	}
	if len(msg.ReplyTo) > 0 {
		m.SetGenHeader(gomail.HeaderReplyTo, lo.Map(msg.ReplyTo, func(a email.Address, _ int) string {
			return Header(a)
		})...)
	}

	m.Subject(msg.Subject)
	m.SetDate()
	m.SetMessageID()

	m.SetBodyString(gomail.TypeTextPlain, msg.PlainBody)
	if msg.HasHTML() {
		m.AddAlternativeString(gomail.TypeTextHTML, msg.HTMLBody())
	}

	for i := range msg.Attachments {
		att := &msg.Attachments[i]
		r, err := att.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open attachment %s: %w", att.Name, err)
		}
		err = m.AttachReader(att.Name, r, gomail.WithFileContentType(gomail.ContentType(att.ContentType)))
		r.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to attach %s: %w", att.Name, err)
		}
	}

	return m, nil
}

// Raw renders msg as an RFC 5322 message.
func Raw(msg *email.Message) ([]byte, error) {
	m, err := Msg(msg)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if _, err := m.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to render message: %w", err)
	}
	return buf.Bytes(), nil
}
