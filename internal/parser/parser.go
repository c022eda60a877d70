// Package parser turns raw RFC 5322 messages into the message model, with
// MIME multipart support.
package parser

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"strings"
	"time"

	"github.com/shineum/smtpkit/internal/email"
)

var wordDecoder = new(mime.WordDecoder)

// Parse parses a raw RFC 5322 message into a Message.
// It handles plain text messages, multipart messages with text/html bodies,
// and attachments. Unrecognized MIME parts are logged as warnings.
// Attachments are stamped with the message Date, or the current time when
// the header is missing.
func Parse(raw []byte) (*email.Message, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}

	from, err := parseAddress(msg.Header.Get("From"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse From header: %w", err)
	}
	result := email.NewMessage(from)

	for _, h := range []struct {
		name string
		dst  *[]email.Address
	}{
		{"To", &result.To},
		{"Cc", &result.Cc},
		{"Bcc", &result.Bcc},
		{"Reply-To", &result.ReplyTo},
	} {
		list, err := parseAddressList(msg.Header.Get(h.name))
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s header: %w", h.name, err)
		}
		*h.dst = list
	}

	result.Subject = decodeHeader(msg.Header.Get("Subject"))

	stamp, err := msg.Header.Date()
	if err != nil {
		stamp = time.Now()
	}
	p := &partParser{msg: result, stamp: stamp}

	contentType := msg.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "text/plain"
	}

	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		// If content type is unparseable, treat as plain text
		slog.Warn("failed to parse content type, treating as plain text",
			"content_type", contentType,
			"error", err,
		)
		body, readErr := io.ReadAll(msg.Body)
		if readErr != nil {
			return nil, fmt.Errorf("failed to read message body: %w", readErr)
		}
		result.PlainBody = string(body)
		return result, nil
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		boundary := params["boundary"]
		if boundary == "" {
			return nil, fmt.Errorf("multipart message missing boundary")
		}
		if err := p.parseMultipart(msg.Body, boundary); err != nil {
			return nil, fmt.Errorf("failed to parse multipart message: %w", err)
		}
		return result, nil
	}

	body, err := decodeContent(msg.Body, msg.Header.Get("Content-Transfer-Encoding"))
	if err != nil {
		return nil, fmt.Errorf("failed to read message body: %w", err)
	}
	switch mediaType {
	case "text/plain":
		result.PlainBody = string(body)
	case "text/html":
		result.SetHTML(string(body))
	default:
		slog.Warn("unrecognized top-level content type",
			"content_type", mediaType,
		)
		result.PlainBody = string(body)
	}

	return result, nil
}

type partParser struct {
	msg   *email.Message
	stamp time.Time
}

// parseMultipart processes a multipart MIME message body, extracting text/plain,
// text/html parts and attachments.
func (p *partParser) parseMultipart(body io.Reader, boundary string) error {
	reader := multipart.NewReader(body, boundary)

	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read next part: %w", err)
		}

		partContentType := part.Header.Get("Content-Type")
		if partContentType == "" {
			partContentType = "text/plain"
		}

		mediaType, params, err := mime.ParseMediaType(partContentType)
		if err != nil {
			slog.Warn("failed to parse part content type, skipping",
				"content_type", partContentType,
				"error", err,
			)
			continue
		}

		contentDisposition := part.Header.Get("Content-Disposition")
		isAttachment := strings.HasPrefix(contentDisposition, "attachment")

		// Check for nested multipart
		if strings.HasPrefix(mediaType, "multipart/") {
			nestedBoundary := params["boundary"]
			if nestedBoundary == "" {
				slog.Warn("nested multipart missing boundary, skipping")
				continue
			}
			if err := p.parseMultipart(part, nestedBoundary); err != nil {
				slog.Warn("failed to parse nested multipart",
					"error", err,
				)
			}
			continue
		}

		content, err := decodeContent(part, part.Header.Get("Content-Transfer-Encoding"))
		if err != nil {
			slog.Warn("failed to read part content",
				"content_type", mediaType,
				"error", err,
			)
			continue
		}

		if isAttachment {
			p.attach(content, extractFilename(part, params), mediaType)
			continue
		}

		switch mediaType {
		case "text/plain":
			if p.msg.PlainBody == "" {
				p.msg.PlainBody = string(content)
			}
		case "text/html":
			if !p.msg.HasHTML() {
				p.msg.SetHTML(string(content))
			}
		default:
			// Check if it has a filename even without attachment disposition
			if part.FileName() != "" || params["name"] != "" {
				p.attach(content, extractFilename(part, params), mediaType)
			} else {
				slog.Warn("unrecognized MIME part, skipping",
					"content_type", mediaType,
					"disposition", contentDisposition,
				)
			}
		}
	}

	return nil
}

func (p *partParser) attach(content []byte, name, mediaType string) {
	p.msg.Attachments = append(p.msg.Attachments,
		email.NewReaderAttachment(bytes.NewReader(content), name, mediaType, p.stamp))
}

// decodeContent reads r fully, undoing the Content-Transfer-Encoding.
// The multipart reader already decodes quoted-printable parts and drops
// the header, so the switch only sees it for top-level bodies.
func decodeContent(r io.Reader, encoding string) ([]byte, error) {
	encoding = strings.ToLower(strings.TrimSpace(encoding))

	if encoding == "quoted-printable" {
		return io.ReadAll(quotedprintable.NewReader(r))
	}

	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	if encoding != "base64" {
		// "7bit", "8bit", "binary" or empty
		return raw, nil
	}

	cleaned := strings.NewReplacer("\r", "", "\n", "").Replace(string(raw))
	decoded, err := base64.StdEncoding.DecodeString(cleaned)
	if err != nil {
		// Try with RawStdEncoding for unpadded base64
		decoded, err = base64.RawStdEncoding.DecodeString(cleaned)
		if err != nil {
			return nil, fmt.Errorf("failed to decode base64 content: %w", err)
		}
	}
	return decoded, nil
}

// extractFilename extracts the filename from a MIME part, checking both
// Content-Disposition and Content-Type parameters.
func extractFilename(part *multipart.Part, params map[string]string) string {
	// Try Content-Disposition filename first (via multipart.Part)
	if fn := part.FileName(); fn != "" {
		return fn
	}
	// Fall back to Content-Type "name" parameter
	if name, ok := params["name"]; ok && name != "" {
		return decodeHeader(name)
	}
	// Generate fallback name from media type
	if mediaType, _, err := mime.ParseMediaType(part.Header.Get("Content-Type")); err == nil {
		parts := strings.SplitN(mediaType, "/", 2)
		if len(parts) == 2 {
			return "attachment." + parts[1]
		}
	}
	return "attachment"
}

func decodeHeader(v string) string {
	decoded, err := wordDecoder.DecodeHeader(v)
	if err != nil {
		return v
	}
	return decoded
}

func parseAddress(raw string) (email.Address, error) {
	addr, err := mail.ParseAddress(raw)
	if err != nil {
		return email.Address{}, err
	}
	return email.NewAddress(addr.Address, addr.Name)
}

// parseAddressList parses a comma-separated address list. An empty header
// yields a nil list.
func parseAddressList(raw string) ([]email.Address, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	addresses, err := mail.ParseAddressList(raw)
	if err != nil {
		return nil, err
	}

	result := make([]email.Address, 0, len(addresses))
	for _, a := range addresses {
		addr, err := email.NewAddress(a.Address, a.Name)
		if err != nil {
			return nil, err
		}
		result = append(result, addr)
	}
	return result, nil
}
