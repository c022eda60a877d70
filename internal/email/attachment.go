package email

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/djherbis/times"
)

// ErrAttachmentRead is returned when an attachment source cannot be read.
var ErrAttachmentRead = errors.New("attachment is not readable")

// Disposition carries the Content-Disposition metadata of an attachment.
type Disposition struct {
	Inline   bool
	Created  time.Time
	Modified time.Time
	Read     time.Time
}

// Attachment is a file attached to a message. Exactly one of Path and
// Content is set.
type Attachment struct {
	Name        string
	ContentType string
	Path        string
	Content     io.ReadCloser
	Disposition Disposition
}

// NewFileAttachment describes the file at path. The disposition timestamps
// are taken from the filesystem. name defaults to the file's base name.
func NewFileAttachment(path, name, contentType string) (Attachment, error) {
	f, err := os.Open(path)
	if err != nil {
		return Attachment{}, fmt.Errorf("%w: %w", ErrAttachmentRead, err)
	}
	info, err := f.Stat()
	f.Close()
	if err != nil {
		return Attachment{}, fmt.Errorf("%w: %w", ErrAttachmentRead, err)
	}
	if !info.Mode().IsRegular() {
		return Attachment{}, fmt.Errorf("%w: %q is not a regular file", ErrAttachmentRead, path)
	}

	ts, err := times.Stat(path)
	if err != nil {
		return Attachment{}, fmt.Errorf("%w: %w", ErrAttachmentRead, err)
	}

	if name == "" {
		name = filepath.Base(path)
	}

	created := ts.ModTime()
	switch {
	case ts.HasBirthTime():
		created = ts.BirthTime()
	case ts.HasChangeTime():
		created = ts.ChangeTime()
	}

	return Attachment{
		Name:        name,
		ContentType: contentType,
		Path:        path,
		Disposition: Disposition{
			Created:  created.UTC(),
			Modified: ts.ModTime().UTC(),
			Read:     ts.AccessTime().UTC(),
		},
	}, nil
}

// NewReaderAttachment takes ownership of r. All three disposition
// timestamps are set to now.
func NewReaderAttachment(r io.Reader, name, contentType string, now time.Time) Attachment {
	rc, ok := r.(io.ReadCloser)
	if !ok {
		rc = io.NopCloser(r)
	}
	now = now.UTC()
	return Attachment{
		Name:        name,
		ContentType: contentType,
		Content:     rc,
		Disposition: Disposition{
			Created:  now,
			Modified: now,
			Read:     now,
		},
	}
}

// Open returns a reader over the attachment content. Closing the returned
// reader does not close an owned stream; Close does.
func (a *Attachment) Open() (io.ReadCloser, error) {
	if a.Content != nil {
		return io.NopCloser(a.Content), nil
	}
	f, err := os.Open(a.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAttachmentRead, err)
	}
	return f, nil
}

// Close releases an owned content stream.
func (a *Attachment) Close() error {
	if a.Content == nil {
		return nil
	}
	return a.Content.Close()
}
