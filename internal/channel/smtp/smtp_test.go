package smtp

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/shineum/smtpkit/internal/completion"
	"github.com/shineum/smtpkit/internal/email"
)

// fakeSession is an in-memory session. With block set, the exchange only
// ends when Cancel is called.
type fakeSession struct {
	err      error
	startErr error
	block    bool

	mu       sync.Mutex
	handlers map[int]func(completion.Event)
	next     int
	sent     []*email.Message
	closed   int
	cancels  int
	started  chan struct{}
	cancelCh chan struct{}
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		handlers: make(map[int]func(completion.Event)),
		started:  make(chan struct{}, 1),
		cancelCh: make(chan struct{}),
	}
}

func (f *fakeSession) Subscribe(h func(completion.Event)) func() {
	f.mu.Lock()
	id := f.next
	f.next++
	f.handlers[id] = h
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		delete(f.handlers, id)
		f.mu.Unlock()
	}
}

func (f *fakeSession) SendAsync(msg *email.Message, tok completion.Token) error {
	f.mu.Lock()
	f.sent = append(f.sent, msg)
	f.mu.Unlock()
	f.started <- struct{}{}

	if f.startErr != nil {
		return f.startErr
	}
	go func() {
		if f.block {
			<-f.cancelCh
			f.emit(completion.Event{Token: tok, Cancelled: true})
			return
		}
		f.emit(completion.Event{Token: tok, Err: f.err})
	}()
	return nil
}

func (f *fakeSession) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels++
	if f.cancels == 1 {
		close(f.cancelCh)
	}
}

func (f *fakeSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeSession) emit(ev completion.Event) {
	f.mu.Lock()
	hs := make([]func(completion.Event), 0, len(f.handlers))
	for _, h := range f.handlers {
		hs = append(hs, h)
	}
	f.mu.Unlock()
	for _, h := range hs {
		h(ev)
	}
}

func (f *fakeSession) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func newChannel(t *testing.T, s *fakeSession) *Channel {
	t.Helper()
	c, err := newWithFactory(Config{Host: "mail.example.com"}, func(Config) (session, error) {
		return s, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return c
}

func newMessage() *email.Message {
	msg := email.NewMessage(email.Address{Email: "sender@example.com", Name: "Sender"})
	msg.To = []email.Address{{Email: "rcpt@example.com", Name: "Rcpt"}}
	msg.Subject = "Hello"
	msg.PlainBody = "Body"
	return msg
}

func TestNew_Defaults(t *testing.T) {
	t.Parallel()

	c, err := New(Config{Host: "mail.example.com"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.cfg.Port != DefaultPort {
		t.Errorf("Port: got %d, want %d", c.cfg.Port, DefaultPort)
	}
	if c.cfg.Timeout != DefaultTimeout {
		t.Errorf("Timeout: got %v, want %v", c.cfg.Timeout, DefaultTimeout)
	}
	if c.Name() != "smtp" {
		t.Errorf("Name: got %q, want %q", c.Name(), "smtp")
	}
}

func TestNew_MissingHost(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error for missing host")
	}
}

func TestSend_Success(t *testing.T) {
	t.Parallel()

	s := newFakeSession()
	c := newChannel(t, s)
	msg := newMessage()

	res, err := c.Send(context.Background(), msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.OK() {
		t.Fatalf("unexpected delivery errors: %v", res.Errors)
	}
	if len(s.sent) != 1 || s.sent[0] != msg {
		t.Errorf("session should have received the message exactly once")
	}
	if got := s.closeCount(); got != 1 {
		t.Errorf("session closes: got %d, want 1", got)
	}
}

func TestSend_TransportError(t *testing.T) {
	t.Parallel()

	s := newFakeSession()
	s.err = errors.New("550 mailbox unavailable")
	c := newChannel(t, s)

	res, err := c.Send(context.Background(), newMessage())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff([]string{"550 mailbox unavailable"}, res.Errors); diff != "" {
		t.Errorf("errors mismatch (-want +got):\n%s", diff)
	}
	if got := s.closeCount(); got != 1 {
		t.Errorf("session closes: got %d, want 1", got)
	}
}

func TestSend_StartError(t *testing.T) {
	t.Parallel()

	s := newFakeSession()
	s.startErr = errors.New("failed to set sender: invalid address")
	c := newChannel(t, s)

	res, err := c.Send(context.Background(), newMessage())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.OK() || !strings.Contains(res.Errors[0], "invalid address") {
		t.Errorf("errors: got %v, want the start error", res.Errors)
	}
	if got := s.closeCount(); got != 1 {
		t.Errorf("session closes: got %d, want 1", got)
	}
}

func TestSend_SessionOpenError(t *testing.T) {
	t.Parallel()

	c, err := newWithFactory(Config{Host: "mail.example.com"}, func(Config) (session, error) {
		return nil, errors.New("failed to create SMTP client: invalid port")
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	res, err := c.Send(context.Background(), newMessage())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff([]string{"failed to create SMTP client: invalid port"}, res.Errors); diff != "" {
		t.Errorf("errors mismatch (-want +got):\n%s", diff)
	}
}

func TestSend_CancelledDuringDelivery(t *testing.T) {
	t.Parallel()

	s := newFakeSession()
	s.block = true
	c := newChannel(t, s)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan email.SendResult, 1)
	go func() {
		res, _ := c.Send(ctx, newMessage())
		done <- res
	}()

	<-s.started
	cancel()

	select {
	case res := <-done:
		if diff := cmp.Diff([]string{"message delivery was cancelled"}, res.Errors); diff != "" {
			t.Errorf("errors mismatch (-want +got):\n%s", diff)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("send did not return after cancellation")
	}
	if got := s.closeCount(); got != 1 {
		t.Errorf("session closes: got %d, want 1", got)
	}
}

func TestSend_CancelledBeforeSending(t *testing.T) {
	t.Parallel()

	s := newFakeSession()
	c := newChannel(t, s)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := c.Send(ctx, newMessage())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff([]string{"message was cancelled before sending"}, res.Errors); diff != "" {
		t.Errorf("errors mismatch (-want +got):\n%s", diff)
	}
	if len(s.sent) != 1 {
		t.Errorf("the attempt should still be made, got %d sends", len(s.sent))
	}
}
