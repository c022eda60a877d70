// Package email defines the message model handed to delivery channels.
package email

import (
	"errors"
)

// Message holds every field of an email under construction. It is mutated
// by the builder and becomes read-only once handed to a channel.
type Message struct {
	From        Address
	To          []Address
	Cc          []Address
	Bcc         []Address
	ReplyTo     []Address
	Subject     string
	PlainBody   string
	HTML        *View
	Attachments []Attachment
}

// View is an alternate body attached to a message.
type View struct {
	ContentType string
	Body        string
	closed      bool
}

// Close releases the view. A closed view renders as empty.
func (v *View) Close() {
	v.Body = ""
	v.closed = true
}

// Closed reports whether Close has been called.
func (v *View) Closed() bool {
	return v.closed
}

// NewMessage returns an empty message sent from the given address.
func NewMessage(from Address) *Message {
	return &Message{From: from}
}

// SetHTML replaces the HTML view. The previous view, if any, is closed
// before the new one is attached so at most one view exists at a time.
func (m *Message) SetHTML(body string) {
	if m.HTML != nil {
		m.HTML.Close()
		m.HTML = nil
	}
	m.HTML = &View{
		ContentType: "text/html; charset=UTF-8",
		Body:        body,
	}
}

// HasHTML reports whether an HTML view is attached.
func (m *Message) HasHTML() bool {
	return m.HTML != nil
}

// HTMLBody returns the HTML view body, or "" when none is attached.
func (m *Message) HTMLBody() string {
	if m.HTML == nil {
		return ""
	}
	return m.HTML.Body
}

// Recipients returns To, Cc and Bcc in that order.
func (m *Message) Recipients() []Address {
	out := make([]Address, 0, len(m.To)+len(m.Cc)+len(m.Bcc))
	out = append(out, m.To...)
	out = append(out, m.Cc...)
	out = append(out, m.Bcc...)
	return out
}

// Close releases the HTML view and any attachment streams owned by the
// message.
func (m *Message) Close() error {
	if m.HTML != nil {
		m.HTML.Close()
	}
	var errs []error
	for i := range m.Attachments {
		if err := m.Attachments[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
