package parser

import (
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/shineum/smtpkit/internal/email"
)

func attachmentContent(t *testing.T, att *email.Attachment) string {
	t.Helper()
	r, err := att.Open()
	if err != nil {
		t.Fatalf("failed to open attachment: %v", err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("failed to read attachment: %v", err)
	}
	return string(data)
}

func TestParsePlainTextEmail(t *testing.T) {
	t.Parallel()

	raw := []byte(strings.Join([]string{
		"From: Sender <sender@example.com>",
		"To: recipient@example.com",
		"Subject: Test Subject",
		"Message-Id: <test123@example.com>",
		"Content-Type: text/plain",
		"",
		"Hello, this is a plain text email.",
	}, "\r\n"))

	msg, err := Parse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if diff := cmp.Diff(email.Address{Email: "sender@example.com", Name: "Sender"}, msg.From); diff != "" {
		t.Errorf("From mismatch (-want +got):\n%s", diff)
	}
	want := []email.Address{{Email: "recipient@example.com", Name: "recipient@example.com"}}
	if diff := cmp.Diff(want, msg.To); diff != "" {
		t.Errorf("To mismatch (-want +got):\n%s", diff)
	}
	if msg.Subject != "Test Subject" {
		t.Errorf("Subject: got %q, want %q", msg.Subject, "Test Subject")
	}
	if msg.PlainBody != "Hello, this is a plain text email." {
		t.Errorf("PlainBody: got %q, want %q", msg.PlainBody, "Hello, this is a plain text email.")
	}
	if msg.HasHTML() {
		t.Errorf("HTML: got %q, want none", msg.HTMLBody())
	}
	if len(msg.Attachments) != 0 {
		t.Errorf("Attachments: got %d, want 0", len(msg.Attachments))
	}
}

func TestParseEncodedSubject(t *testing.T) {
	t.Parallel()

	raw := []byte(strings.Join([]string{
		"From: sender@example.com",
		"Subject: =?UTF-8?Q?Caf=C3=A9_menu?=",
		"",
		"Body",
	}, "\r\n"))

	msg, err := Parse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Subject != "Café menu" {
		t.Errorf("Subject: got %q, want %q", msg.Subject, "Café menu")
	}
}

func TestParseQuotedPrintableBody(t *testing.T) {
	t.Parallel()

	raw := []byte(strings.Join([]string{
		"From: sender@example.com",
		"Content-Type: text/plain; charset=UTF-8",
		"Content-Transfer-Encoding: quoted-printable",
		"",
		"Caf=C3=A9 opens at nine.",
	}, "\r\n"))

	msg, err := Parse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.PlainBody != "Café opens at nine." {
		t.Errorf("PlainBody: got %q, want %q", msg.PlainBody, "Café opens at nine.")
	}
}

func TestParseMultipartTextAndHTML(t *testing.T) {
	t.Parallel()

	raw := []byte(strings.Join([]string{
		"From: sender@example.com",
		"To: alice@example.com, bob@example.com",
		"Cc: carol@example.com",
		"Reply-To: replies@example.com",
		"Subject: Multipart Test",
		"Content-Type: multipart/alternative; boundary=boundary123",
		"",
		"--boundary123",
		"Content-Type: text/plain",
		"",
		"Plain text body",
		"--boundary123",
		"Content-Type: text/html",
		"",
		"<html><body><p>HTML body</p></body></html>",
		"--boundary123--",
	}, "\r\n"))

	msg, err := Parse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := email.Emails(msg.To); !cmp.Equal(got, []string{"alice@example.com", "bob@example.com"}) {
		t.Errorf("To: got %v, want [alice@example.com bob@example.com]", got)
	}
	if got := email.Emails(msg.Cc); !cmp.Equal(got, []string{"carol@example.com"}) {
		t.Errorf("Cc: got %v, want [carol@example.com]", got)
	}
	if got := email.Emails(msg.ReplyTo); !cmp.Equal(got, []string{"replies@example.com"}) {
		t.Errorf("ReplyTo: got %v, want [replies@example.com]", got)
	}
	if msg.PlainBody != "Plain text body" {
		t.Errorf("PlainBody: got %q, want %q", msg.PlainBody, "Plain text body")
	}
	if msg.HTMLBody() != "<html><body><p>HTML body</p></body></html>" {
		t.Errorf("HTMLBody: got %q, want %q", msg.HTMLBody(), "<html><body><p>HTML body</p></body></html>")
	}
}

func TestParseEmailWithAttachments(t *testing.T) {
	t.Parallel()

	raw := []byte(strings.Join([]string{
		"From: sender@example.com",
		"To: recipient@example.com",
		"Date: Mon, 02 Jan 2006 15:04:05 +0000",
		"Subject: With Attachment",
		"Content-Type: multipart/mixed; boundary=mixedboundary",
		"",
		"--mixedboundary",
		"Content-Type: text/plain",
		"",
		"Email body text",
		"--mixedboundary",
		"Content-Type: application/pdf; name=\"report.pdf\"",
		"Content-Disposition: attachment; filename=\"report.pdf\"",
		"Content-Transfer-Encoding: base64",
		"",
		"SGVsbG8gV29ybGQ=",
		"--mixedboundary--",
	}, "\r\n"))

	msg, err := Parse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if msg.PlainBody != "Email body text" {
		t.Errorf("PlainBody: got %q, want %q", msg.PlainBody, "Email body text")
	}
	if len(msg.Attachments) != 1 {
		t.Fatalf("Attachments: got %d, want 1", len(msg.Attachments))
	}

	att := &msg.Attachments[0]
	if att.Name != "report.pdf" {
		t.Errorf("Attachment Name: got %q, want %q", att.Name, "report.pdf")
	}
	if att.ContentType != "application/pdf" {
		t.Errorf("Attachment ContentType: got %q, want %q", att.ContentType, "application/pdf")
	}
	if got := attachmentContent(t, att); got != "Hello World" {
		t.Errorf("Attachment Content: got %q, want %q", got, "Hello World")
	}
	wantStamp := time.Date(2006, 1, 2, 15, 4, 5, 0, time.UTC)
	if !att.Disposition.Created.Equal(wantStamp) {
		t.Errorf("Attachment Created: got %v, want %v", att.Disposition.Created, wantStamp)
	}
}

func TestParseMalformedMIME(t *testing.T) {
	t.Parallel()

	t.Run("completely invalid message", func(t *testing.T) {
		t.Parallel()
		raw := []byte("not a valid email at all\x00\x01\x02")
		_, err := Parse(raw)
		if err == nil {
			t.Error("expected error for completely invalid message, got nil")
		}
	})

	t.Run("missing content type defaults to text/plain", func(t *testing.T) {
		t.Parallel()
		raw := []byte(strings.Join([]string{
			"From: sender@example.com",
			"To: recipient@example.com",
			"Subject: No Content Type",
			"",
			"Body without content type header",
		}, "\r\n"))

		msg, err := Parse(raw)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if msg.PlainBody != "Body without content type header" {
			t.Errorf("PlainBody: got %q, want %q", msg.PlainBody, "Body without content type header")
		}
	})

	t.Run("multipart missing boundary", func(t *testing.T) {
		t.Parallel()
		raw := []byte(strings.Join([]string{
			"From: sender@example.com",
			"To: recipient@example.com",
			"Content-Type: multipart/mixed",
			"",
			"some body",
		}, "\r\n"))

		_, err := Parse(raw)
		if err == nil {
			t.Error("expected error for multipart missing boundary, got nil")
		}
	})

	t.Run("missing sender", func(t *testing.T) {
		t.Parallel()
		raw := []byte(strings.Join([]string{
			"To: recipient@example.com",
			"",
			"Body",
		}, "\r\n"))

		if _, err := Parse(raw); err == nil {
			t.Error("expected error for missing From header, got nil")
		}
	})

	t.Run("invalid recipient", func(t *testing.T) {
		t.Parallel()
		raw := []byte(strings.Join([]string{
			"From: sender@example.com",
			"To: not an address",
			"",
			"Body",
		}, "\r\n"))

		if _, err := Parse(raw); err == nil {
			t.Error("expected error for invalid To header, got nil")
		}
	})
}

func TestParseMultipleRecipients(t *testing.T) {
	t.Parallel()

	raw := []byte(strings.Join([]string{
		"From: sender@example.com",
		"To: alice@example.com, bob@example.com, carol@example.com",
		"Bcc: secret@example.com",
		"Subject: Multiple Recipients",
		"Content-Type: text/plain",
		"",
		"Hello everyone",
	}, "\r\n"))

	msg, err := Parse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(msg.To) != 3 {
		t.Fatalf("To: got %d recipients, want 3", len(msg.To))
	}
	if got := email.Emails(msg.Bcc); !cmp.Equal(got, []string{"secret@example.com"}) {
		t.Errorf("Bcc: got %v, want [secret@example.com]", got)
	}
}

func TestParseEmptyAddressFields(t *testing.T) {
	t.Parallel()

	raw := []byte(strings.Join([]string{
		"From: sender@example.com",
		"Subject: No To",
		"Content-Type: text/plain",
		"",
		"Body",
	}, "\r\n"))

	msg, err := Parse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if msg.To != nil {
		t.Errorf("To: got %v, want nil", msg.To)
	}
	if msg.Cc != nil {
		t.Errorf("Cc: got %v, want nil", msg.Cc)
	}
	if msg.Bcc != nil {
		t.Errorf("Bcc: got %v, want nil", msg.Bcc)
	}
}

func TestParseBase64AttachmentWithCRLF(t *testing.T) {
	t.Parallel()

	raw := []byte("From: sender@example.com\r\n" +
		"To: recipient@example.com\r\n" +
		"Subject: CRLF Base64\r\n" +
		"Content-Type: multipart/mixed; boundary=bound\r\n" +
		"\r\n" +
		"--bound\r\n" +
		"Content-Type: text/plain\r\n" +
		"\r\n" +
		"body\r\n" +
		"--bound\r\n" +
		"Content-Type: application/pdf; name=\"file.pdf\"\r\n" +
		"Content-Disposition: attachment; filename=\"file.pdf\"\r\n" +
		"Content-Transfer-Encoding: base64\r\n" +
		"\r\n" +
		"SGVs\r\n" +
		"bG8g\r\n" +
		"V29y\r\n" +
		"bGQ=\r\n" +
		"--bound--\r\n")

	msg, err := Parse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(msg.Attachments) != 1 {
		t.Fatalf("Attachments: got %d, want 1", len(msg.Attachments))
	}

	att := &msg.Attachments[0]
	if att.Name != "file.pdf" {
		t.Errorf("Name: got %q, want %q", att.Name, "file.pdf")
	}
	if got := attachmentContent(t, att); got != "Hello World" {
		t.Errorf("Content: got %q, want %q", got, "Hello World")
	}
}

func TestParseAttachmentWithoutFilename(t *testing.T) {
	t.Parallel()

	raw := []byte(strings.Join([]string{
		"From: sender@example.com",
		"To: recipient@example.com",
		"Subject: No Filename",
		"Content-Type: multipart/mixed; boundary=bound",
		"",
		"--bound",
		"Content-Type: text/plain",
		"",
		"body",
		"--bound",
		"Content-Type: application/pdf",
		"Content-Disposition: attachment",
		"Content-Transfer-Encoding: base64",
		"",
		"SGVsbG8gV29ybGQ=",
		"--bound--",
	}, "\r\n"))

	msg, err := Parse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(msg.Attachments) != 1 {
		t.Fatalf("Attachments: got %d, want 1", len(msg.Attachments))
	}

	att := &msg.Attachments[0]
	if att.Name != "attachment.pdf" {
		t.Errorf("Name: got %q, want %q", att.Name, "attachment.pdf")
	}
	if got := attachmentContent(t, att); got != "Hello World" {
		t.Errorf("Content: got %q, want %q", got, "Hello World")
	}
}

func TestParseNestedMultipart(t *testing.T) {
	t.Parallel()

	raw := []byte(strings.Join([]string{
		"From: sender@example.com",
		"To: recipient@example.com",
		"Subject: Nested Multipart",
		"Content-Type: multipart/mixed; boundary=outer",
		"",
		"--outer",
		"Content-Type: multipart/alternative; boundary=inner",
		"",
		"--inner",
		"Content-Type: text/plain",
		"",
		"Plain text part",
		"--inner",
		"Content-Type: text/html",
		"",
		"<p>HTML part</p>",
		"--inner--",
		"--outer",
		"Content-Type: application/octet-stream; name=\"data.bin\"",
		"Content-Disposition: attachment; filename=\"data.bin\"",
		"",
		"binarydata",
		"--outer--",
	}, "\r\n"))

	msg, err := Parse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if msg.PlainBody != "Plain text part" {
		t.Errorf("PlainBody: got %q, want %q", msg.PlainBody, "Plain text part")
	}
	if msg.HTMLBody() != "<p>HTML part</p>" {
		t.Errorf("HTMLBody: got %q, want %q", msg.HTMLBody(), "<p>HTML part</p>")
	}
	if len(msg.Attachments) != 1 {
		t.Fatalf("Attachments: got %d, want 1", len(msg.Attachments))
	}
	if msg.Attachments[0].Name != "data.bin" {
		t.Errorf("Attachment Name: got %q, want %q", msg.Attachments[0].Name, "data.bin")
	}
}
