// Package client wires the channel workflow to a live stanza stream.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"

	"github.com/CuBnIcK/warfacebot/pkg/crypto"
	"github.com/CuBnIcK/warfacebot/pkg/directory"
	"github.com/CuBnIcK/warfacebot/pkg/join"
	"github.com/CuBnIcK/warfacebot/pkg/model"
	"github.com/CuBnIcK/warfacebot/pkg/stream"
	"github.com/CuBnIcK/warfacebot/pkg/version"
)

// State represents the client's connection state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

var (
	ErrAlreadyConnected = errors.New("client: already connected")
	ErrNotConnected     = errors.New("client: not connected")
)

// Dependencies holds external dependencies for the engine.
// The engine assumes ownership of Directory and closes it in Close.
type Dependencies struct {
	Directory directory.Directory
}

// Engine owns the session and runs every channel operation on the
// stream's event loop.
type Engine struct {
	cfg     Config
	dir     directory.Directory
	metrics *join.Metrics

	mu         sync.Mutex
	state      State
	stream     *stream.Stream
	session    *model.Session
	dispatcher *join.Dispatcher

	// Callbacks, invoked off the event loop.
	OnStateChange func(state State)
	OnDisconnect  func()
}

// NewEngine creates an engine for cfg.
func NewEngine(cfg Config, deps Dependencies) *Engine {
	if deps.Directory == nil {
		deps.Directory = directory.NewMemory()
	}
	return &Engine{
		cfg:     cfg,
		dir:     deps.Directory,
		metrics: join.NewMetrics(),
		state:   StateDisconnected,
		session: model.NewSession(cfg.UserID, cfg.ProfileID, cfg.Token),
	}
}

// Connect dials the configured relay and attaches to it.
func (e *Engine) Connect(ctx context.Context) error {
	e.mu.Lock()
	if e.state != StateDisconnected {
		e.mu.Unlock()
		return ErrAlreadyConnected
	}
	e.state = StateConnecting
	e.mu.Unlock()
	e.notifyStateChange(StateConnecting)

	s, err := stream.Dial(ctx, e.cfg.ServerAddr, e.streamOptions())
	if err != nil {
		e.setState(StateDisconnected)
		return fmt.Errorf("client: connect: %w", err)
	}
	return e.attach(s)
}

// Attach runs the engine over an established, authenticated connection.
func (e *Engine) Attach(conn net.Conn) error {
	e.mu.Lock()
	if e.state != StateDisconnected {
		e.mu.Unlock()
		return ErrAlreadyConnected
	}
	e.state = StateConnecting
	e.mu.Unlock()

	return e.attach(stream.New(conn, e.streamOptions()))
}

func (e *Engine) streamOptions() stream.Options {
	return stream.Options{RequestTimeout: e.cfg.RequestTimeout, TLS: e.cfg.TLS}
}

func (e *Engine) attach(s *stream.Stream) error {
	buildType := version.BuildType()
	d, err := join.New(join.Params{
		Domain:      e.cfg.Domain,
		GameVersion: e.cfg.GameVersion,
		RegionID:    e.cfg.RegionID,
		HardwareID:  e.cfg.ResolveHardwareID(),
		BuildType:   buildType,
	}, join.Dependencies{
		Session:       e.session,
		Sender:        s,
		Directory:     e.dir,
		Collaborators: NewServices(s, e.session, e.cfg.Domain),
		Metrics:       e.metrics,
	})
	if err != nil {
		_ = s.Close()
		e.setState(StateDisconnected)
		return fmt.Errorf("client: %w", err)
	}

	e.mu.Lock()
	e.stream = s
	e.dispatcher = d
	e.state = StateConnected
	e.mu.Unlock()

	slog.Info("connected",
		"user", e.cfg.UserID,
		"profile", e.cfg.ProfileID,
		"token", crypto.Fingerprint(e.cfg.Token),
		"build_type", buildType,
	)
	e.notifyStateChange(StateConnected)

	go func() {
		<-s.Done()
		e.handleDisconnect(s)
	}()
	return nil
}

// JoinChannel enters channel. It returns once the request is written; done
// runs later on the event loop as described by join.Dispatcher.Join.
func (e *Engine) JoinChannel(ctx context.Context, channel string, done func(error)) error {
	s, d, err := e.connected()
	if err != nil {
		return err
	}

	errc := make(chan error, 1)
	if !s.Post(func() { errc <- d.Join(ctx, channel, done) }) {
		return stream.ErrClosed
	}
	select {
	case err := <-errc:
		return err
	case <-s.Done():
		select {
		case err := <-errc:
			return err
		default:
			return stream.ErrClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Session returns a snapshot of the session taken on the event loop.
// It must not be called from the loop itself, e.g. from a done callback.
func (e *Engine) Session() model.Session {
	e.mu.Lock()
	s := e.stream
	e.mu.Unlock()

	if s != nil {
		snap := make(chan model.Session, 1)
		if s.Post(func() { snap <- e.session.Snapshot() }) {
			select {
			case v := <-snap:
				return v
			case <-s.Done():
			}
		}
	}
	return e.session.Snapshot()
}

// Metrics returns the channel workflow counters.
func (e *Engine) Metrics() *join.Metrics {
	return e.metrics
}

// State returns the connection state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Done returns a channel closed when the connection is lost, or nil when
// not connected.
func (e *Engine) Done() <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stream == nil {
		return nil
	}
	return e.stream.Done()
}

// Close disconnects and releases the directory.
func (e *Engine) Close() error {
	e.mu.Lock()
	s := e.stream
	e.mu.Unlock()

	var errs []error
	if s != nil {
		errs = append(errs, s.Close())
	}
	errs = append(errs, e.dir.Close())
	return errors.Join(errs...)
}

func (e *Engine) connected() (*stream.Stream, *join.Dispatcher, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateConnected {
		return nil, nil, ErrNotConnected
	}
	return e.stream, e.dispatcher, nil
}

func (e *Engine) handleDisconnect(s *stream.Stream) {
	e.mu.Lock()
	if e.stream != s {
		e.mu.Unlock()
		return
	}
	e.state = StateDisconnected
	e.mu.Unlock()

	slog.Info("disconnected")
	e.metrics.LogSummary()
	e.notifyStateChange(StateDisconnected)
	if e.OnDisconnect != nil {
		e.OnDisconnect()
	}
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
	e.notifyStateChange(s)
}

func (e *Engine) notifyStateChange(s State) {
	if e.OnStateChange != nil {
		e.OnStateChange(s)
	}
}

// OpenDirectory opens the channel directory named by cfg and imports the
// configured server list into it.
func OpenDirectory(cfg Config) (directory.Directory, error) {
	var (
		dir directory.Directory
		err error
	)
	if cfg.DirectoryDB == "" {
		dir = directory.NewMemory()
	} else if dir, err = directory.OpenSQL(cfg.DirectoryDB); err != nil {
		return nil, fmt.Errorf("client: open directory: %w", err)
	}

	if cfg.ChannelsFile != "" {
		data, err := os.ReadFile(cfg.ChannelsFile) //nolint:gosec // path from config
		if err != nil {
			_ = dir.Close()
			return nil, fmt.Errorf("client: read channels file: %w", err)
		}
		if _, err := directory.ImportYAML(data, dir); err != nil {
			_ = dir.Close()
			return nil, fmt.Errorf("client: %w", err)
		}
	}
	return dir, nil
}
