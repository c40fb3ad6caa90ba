// Package stream implements the request/response transport over a stanza
// stream. Every response handler runs on one event loop goroutine, so
// handlers may mutate shared client state without locking.
package stream

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/CuBnIcK/warfacebot/pkg/protocol"
)

// DefaultRequestTimeout is how long a tracked request waits for its answer.
const DefaultRequestTimeout = 30 * time.Second

var ErrClosed = errors.New("stream: closed")

// Handler receives the answer to a request. A nil IQ means the request was
// abandoned: it timed out or the stream closed before an answer arrived.
type Handler func(iq *protocol.IQ)

// Options configures a Stream.
type Options struct {
	RequestTimeout time.Duration // default DefaultRequestTimeout
	TLS            bool
}

type pending struct {
	handler Handler
	timer   *time.Timer
}

// Stream multiplexes IQ requests over one connection.
type Stream struct {
	conn    net.Conn
	wmu     sync.Mutex
	timeout time.Duration

	mu      sync.Mutex
	pending map[string]*pending
	owed    sync.WaitGroup // handlers taken from pending but not yet run

	events    chan func()
	closed    chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// Dial connects to a pre-authenticated stanza relay.
func Dial(ctx context.Context, addr string, opts Options) (*Stream, error) {
	var (
		conn net.Conn
		err  error
	)
	if opts.TLS {
		dialer := &tls.Dialer{Config: &tls.Config{MinVersion: tls.VersionTLS12}}
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	} else {
		var d net.Dialer
		conn, err = d.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("stream: dial: %w", err)
	}
	return New(conn, opts), nil
}

// New starts a Stream over an established connection.
func New(conn net.Conn, opts Options) *Stream {
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	s := &Stream{
		conn:    conn,
		timeout: timeout,
		pending: make(map[string]*pending),
		events:  make(chan func(), 256),
		closed:  make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go s.loop()
	go s.readLoop()
	return s
}

// SendIQ sends a get request carrying q to the given address. When handler
// is nil the request is fire-and-forget and its answer is dropped.
// Otherwise handler is invoked exactly once on the event loop, unless
// SendIQ returns an error, in which case it is never invoked. A write that
// fails while the stream shuts down is reported through handler(nil).
func (s *Stream) SendIQ(ctx context.Context, to string, q protocol.Query, handler Handler) error {
	id := uuid.NewString()

	s.mu.Lock()
	select {
	case <-s.closed:
		s.mu.Unlock()
		return ErrClosed
	default:
	}
	if handler != nil {
		p := &pending{handler: handler}
		s.pending[id] = p
		p.timer = time.AfterFunc(s.timeout, func() { s.expire(id) })
	}
	s.mu.Unlock()

	if err := s.write(ctx, id, to, q); err != nil {
		if handler != nil && !s.forget(id) {
			// Shutdown already abandoned the request; handler reports it.
			slog.Debug("write failed on a closing stream", "id", id, "err", err)
			return nil
		}
		return err
	}
	return nil
}

func (s *Stream) write(ctx context.Context, id, to string, q protocol.Query) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	if dl, ok := ctx.Deadline(); ok {
		_ = s.conn.SetWriteDeadline(dl)
		defer func() { _ = s.conn.SetWriteDeadline(time.Time{}) }()
	}
	if err := protocol.WriteIQ(s.conn, id, protocol.TypeGet, to, q); err != nil {
		return fmt.Errorf("stream: send %s: %w", id, err)
	}
	return nil
}

// Post runs fn on the event loop. It returns false once the loop stopped.
func (s *Stream) Post(fn func()) bool {
	select {
	case s.events <- fn:
		return true
	case <-s.stopped:
		return false
	}
}

// Pending returns the number of requests awaiting an answer.
func (s *Stream) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Close closes the connection. Requests still awaiting an answer are
// abandoned.
func (s *Stream) Close() error {
	s.shutdown(nil)
	return s.closeErr
}

// Done returns a channel that's closed when the connection is lost.
func (s *Stream) Done() <-chan struct{} {
	return s.closed
}

func (s *Stream) loop() {
	defer close(s.stopped)
	for fn := range s.events {
		if fn == nil {
			return
		}
		fn()
	}
}

func (s *Stream) readLoop() {
	dec := protocol.NewDecoder(s.conn)
	for {
		iq, err := dec.Next()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				slog.Debug("stream closed")
			} else {
				slog.Error("stream read error", "err", err)
			}
			s.shutdown(err)
			return
		}
		s.dispatch(iq)
	}
}

func (s *Stream) dispatch(iq *protocol.IQ) {
	if iq.Type != protocol.TypeResult && iq.Type != protocol.TypeError {
		slog.Debug("ignoring inbound request", "id", iq.ID, "from", iq.From)
		return
	}
	p := s.take(iq.ID)
	if p == nil {
		slog.Debug("answer for unknown request", "id", iq.ID, "from", iq.From)
		return
	}
	s.enqueue(func() {
		defer s.owed.Done()
		p.handler(iq)
	})
}

func (s *Stream) expire(id string) {
	p := s.take(id)
	if p == nil {
		return
	}
	slog.Debug("request timed out", "id", id)
	s.enqueue(func() {
		defer s.owed.Done()
		p.handler(nil)
	})
}

func (s *Stream) take(id string) *pending {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[id]
	if !ok {
		return nil
	}
	delete(s.pending, id)
	p.timer.Stop()
	s.owed.Add(1)
	return p
}

// forget drops a request whose write failed. It reports false when the
// request was already taken, e.g. abandoned by a concurrent shutdown.
func (s *Stream) forget(id string) bool {
	p := s.take(id)
	if p == nil {
		return false
	}
	s.owed.Done()
	return true
}

// enqueue schedules fn on the loop. Once the loop is gone fn runs inline
// so that no handler is ever dropped.
func (s *Stream) enqueue(fn func()) {
	if !s.Post(fn) {
		fn()
	}
}

func (s *Stream) shutdown(cause error) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		close(s.closed)
		abandoned := make([]*pending, 0, len(s.pending))
		for id, p := range s.pending {
			p.timer.Stop()
			abandoned = append(abandoned, p)
			delete(s.pending, id)
		}
		s.owed.Add(len(abandoned))
		s.mu.Unlock()

		s.closeErr = s.conn.Close()
		if cause != nil && !errors.Is(cause, io.EOF) {
			slog.Debug("stream shut down", "cause", cause)
		}

		// Queued from a goroutine: shutdown may itself run on the loop.
		// The loop stops only after every owed handler has run.
		go func() {
			s.events <- func() {
				for _, p := range abandoned {
					p.handler(nil)
					s.owed.Done()
				}
			}
			s.owed.Wait()
			s.events <- nil
		}()
	})
}
