package smtp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/wneessen/go-mail"

	"github.com/shineum/smtpkit/internal/completion"
	"github.com/shineum/smtpkit/internal/compose"
	"github.com/shineum/smtpkit/internal/email"
	tlsutil "github.com/shineum/smtpkit/internal/tls"
)

// session is one transport session: a callback based network client that
// is opened for a single send and closed afterwards.
type session interface {
	completion.Client[*email.Message]
	Close() error
}

// sessionFactory opens a session for the given configuration.
type sessionFactory func(cfg Config) (session, error)

// mailSession drives a go-mail client in the background and reports the
// outcome to its subscribers.
type mailSession struct {
	client *mail.Client

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	handlers  map[int]func(completion.Event)
	nextID    int
	conn      net.Conn
	cancelled bool

	wg sync.WaitGroup
}

func newMailSession(cfg Config) (session, error) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &mailSession{
		ctx:      ctx,
		cancel:   cancel,
		handlers: make(map[int]func(completion.Event)),
	}

	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTimeout(cfg.Timeout),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
		mail.WithTLSConfig(tlsutil.ClientConfig(cfg.Host, cfg.Certificate)),
		mail.WithDialContextFunc(s.dial),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create SMTP client: %w", err)
	}
	s.client = client
	return s, nil
}

// dial opens the connection and keeps a handle to it so Cancel can abort
// an exchange that is already in flight.
func (s *mailSession) dial(ctx context.Context, network, address string) (net.Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, network, address)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelled {
		conn.Close()
		return nil, context.Canceled
	}
	s.conn = conn
	return conn, nil
}

func (s *mailSession) Subscribe(h func(completion.Event)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.handlers[id] = h
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.handlers, id)
		s.mu.Unlock()
	}
}

// SendAsync converts msg and starts the exchange. Conversion errors are
// returned synchronously; transport errors arrive as events.
func (s *mailSession) SendAsync(msg *email.Message, tok completion.Token) error {
	m, err := compose.Msg(msg)
	if err != nil {
		return err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		err := s.client.DialAndSendWithContext(s.ctx, m)

		s.mu.Lock()
		cancelled := s.cancelled && err != nil
		s.mu.Unlock()
		s.emit(completion.Event{Token: tok, Cancelled: cancelled, Err: err})
	}()
	return nil
}

// Cancel aborts the exchange. The outcome is still reported through the
// subscribed handlers.
func (s *mailSession) Cancel() {
	s.mu.Lock()
	s.cancelled = true
	conn := s.conn
	s.mu.Unlock()

	s.cancel()
	if conn != nil {
		conn.Close()
	}
}

func (s *mailSession) emit(ev completion.Event) {
	s.mu.Lock()
	hs := make([]func(completion.Event), 0, len(s.handlers))
	for _, h := range s.handlers {
		hs = append(hs, h)
	}
	s.mu.Unlock()

	for _, h := range hs {
		h(ev)
	}
}

// Close releases the session. It waits for a started exchange to finish.
func (s *mailSession) Close() error {
	s.cancel()
	s.wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		if err := s.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			return fmt.Errorf("failed to close SMTP connection: %w", err)
		}
	}
	return nil
}
