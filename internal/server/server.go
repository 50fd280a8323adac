// Package server binds the TCP listener and feeds accepted connections to a
// worker pool. A Server is single-use: once shut down it cannot be started
// again, the supervisor creates a fresh instance for every restart.
package server

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"golang.org/x/net/netutil"

	"github.com/conneroisu/quill/internal/errors"
	"github.com/conneroisu/quill/internal/logging"
	"github.com/conneroisu/quill/internal/monitoring"
	"github.com/conneroisu/quill/internal/pool"
)

// DefaultHost is used when Options.Host is empty.
const DefaultHost = "127.0.0.1"

const (
	minAcceptDelay = 5 * time.Millisecond
	maxAcceptDelay = time.Second

	// drainGrace is how long a connection may still take once shutdown
	// has started.
	drainGrace = 100 * time.Millisecond
)

// Server errors.
var (
	ErrBindFailed     = errors.NewNetworkError(errors.ErrCodeBindFailed, "failed to bind listener", nil)
	ErrAlreadyStarted = errors.NewInternalError(errors.ErrCodeServerAlreadyActive, "server was already started", nil)
)

// Handler serves one connection. It must not close rw.
type Handler interface {
	Serve(ctx context.Context, rw io.ReadWriter) error
}

// State is the lifecycle state of a Server.
type State int

const (
	StateIdle State = iota
	StateBinding
	StateAccepting
	StateShuttingDown
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBinding:
		return "binding"
	case StateAccepting:
		return "accepting"
	case StateShuttingDown:
		return "shutting_down"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Options configures a Server.
type Options struct {
	Host string
	Port int
	// Workers is the pool size.
	Workers int
	// QueueSize bounds queued connections; 0 means unbounded.
	QueueSize int
	// MaxConnections caps connections held open at once; 0 means no cap.
	MaxConnections int
	// ReadTimeout is the per-connection read deadline; 0 disables it.
	ReadTimeout time.Duration
}

// Server accepts connections and runs the handler for each one on a pool.
type Server struct {
	opts    Options
	handler Handler
	base    logging.Logger
	logger  logging.Logger
	metrics *monitoring.Metrics

	mu       sync.Mutex
	state    State
	listener net.Listener
	pool     *pool.Pool

	// connCtx is handed to every handler call and cancelled on shutdown.
	connCtx    context.Context
	cancelConn context.CancelFunc

	closing    chan struct{}
	acceptDone chan struct{}
	done       chan struct{}

	shutdownOnce sync.Once
	shutdownErr  error
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger. The pool and its workers log through it
// as well.
func WithLogger(logger logging.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.base = logger
		}
	}
}

// WithMetrics records connection and pool activity in m.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// New creates an idle Server. Nothing is bound until Start.
func New(opts Options, handler Handler, options ...Option) *Server {
	if opts.Host == "" {
		opts.Host = DefaultHost
	}

	s := &Server{
		opts:       opts,
		handler:    handler,
		base:       logging.Discard(),
		closing:    make(chan struct{}),
		acceptDone: make(chan struct{}),
		done:       make(chan struct{}),
	}
	for _, opt := range options {
		opt(s)
	}
	s.logger = s.base.WithComponent("server")

	return s
}

// Start binds the listener, starts the worker pool and the accept loop, and
// returns. A bind failure is returned as ErrBindFailed. Cancelling ctx shuts
// the server down.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateIdle {
		return ErrAlreadyStarted.Wrap(nil).WithContext("state", s.state.String())
	}
	s.state = StateBinding

	p, err := pool.Build(s.opts.Workers,
		pool.WithLogger(s.base),
		pool.WithMetrics(s.metrics),
		pool.WithQueueLimit(s.opts.QueueSize),
	)
	if err != nil {
		s.state = StateIdle
		return err
	}

	addr := net.JoinHostPort(s.opts.Host, strconv.Itoa(s.opts.Port))
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		p.Close()
		s.state = StateIdle
		return ErrBindFailed.Wrap(err).WithContext("addr", addr)
	}
	if s.opts.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, s.opts.MaxConnections)
	}

	s.listener = ln
	s.pool = p
	s.connCtx, s.cancelConn = context.WithCancel(context.WithoutCancel(ctx))
	s.state = StateAccepting

	s.logger.Info(ctx, "Server listening",
		"addr", ln.Addr().String(),
		"workers", s.opts.Workers,
		"queue_size", s.opts.QueueSize,
		"max_connections", s.opts.MaxConnections,
	)

	go s.acceptLoop(ln)
	go func() {
		select {
		case <-ctx.Done():
			_ = s.Shutdown()
		case <-s.done:
		}
	}()

	return nil
}

// Shutdown closes the listener, waits for the accept loop to exit, then
// closes the pool, which serves every connection already queued and joins
// the workers. From then on each connection gets drainGrace to deliver its
// request, so idle clients cannot hold the shutdown open. When Shutdown returns the port is free and no goroutine of
// this server is left. It is safe to call more than once and before Start.
func (s *Server) Shutdown() error {
	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		ln := s.listener
		p := s.pool
		if ln == nil {
			s.state = StateStopped
			s.mu.Unlock()
			close(s.done)
			return
		}
		s.state = StateShuttingDown
		s.mu.Unlock()

		ctx := context.Background()
		s.logger.Info(ctx, "Shutting down server", "addr", ln.Addr().String())

		close(s.closing)
		if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			s.shutdownErr = fmt.Errorf("closing listener: %w", err)
		}
		<-s.acceptDone

		s.cancelConn()
		p.Close()

		s.mu.Lock()
		s.state = StateStopped
		s.mu.Unlock()
		close(s.done)

		stats := p.Stats()
		s.logger.Info(ctx, "Server stopped",
			"completed", stats.Completed,
			"panicked", stats.Panicked,
		)
	})

	return s.shutdownErr
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}

	return s.listener.Addr()
}

// Port returns the bound TCP port, or 0 before Start.
func (s *Server) Port() int {
	if addr, ok := s.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}

	return 0
}

// State returns the current lifecycle state.
func (s *Server) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

// Done is closed once the server has fully stopped.
func (s *Server) Done() <-chan struct{} {
	return s.done
}

// Stats returns the pool counters, or zero values before Start.
func (s *Server) Stats() pool.Stats {
	s.mu.Lock()
	p := s.pool
	s.mu.Unlock()
	if p == nil {
		return pool.Stats{}
	}

	return p.Stats()
}

func (s *Server) acceptLoop(ln net.Listener) {
	defer close(s.acceptDone)

	ctx := context.Background()
	var delay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.closing:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}

			if delay == 0 {
				delay = minAcceptDelay
			} else {
				delay *= 2
			}
			if delay > maxAcceptDelay {
				delay = maxAcceptDelay
			}
			s.logger.Warn(ctx, err, "Accept failed; retrying", "delay", delay)

			select {
			case <-time.After(delay):
			case <-s.closing:
				return
			}
			continue
		}
		delay = 0

		s.metrics.ConnectionAccepted()
		if err := s.pool.Execute(s.handle(conn)); err != nil {
			s.logger.Warn(ctx, err, "Dropping connection",
				"remote", conn.RemoteAddr().String(),
			)
			_ = conn.Close()
		}
	}
}

// handle wraps one connection in a pool job. The job owns conn and always
// closes it.
func (s *Server) handle(conn net.Conn) pool.Job {
	return func() {
		defer conn.Close()

		if s.opts.ReadTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout))
		}
		stop := context.AfterFunc(s.connCtx, func() {
			_ = conn.SetDeadline(time.Now().Add(drainGrace))
		})
		defer stop()

		err := s.handler.Serve(s.connCtx, conn)
		if err == nil {
			return
		}
		remote := conn.RemoteAddr().String()
		switch {
		case errors.IsType(err, errors.ErrorTypeProtocol), errors.IsType(err, errors.ErrorTypeSecurity):
			s.logger.Warn(s.connCtx, err, "Request rejected", "remote", remote)
		case errors.IsType(err, errors.ErrorTypeValidation):
			s.logger.Debug(s.connCtx, "Request not served", "remote", remote, "error", err.Error())
		default:
			s.logger.Error(s.connCtx, err, "Connection failed", "remote", remote)
		}
	}
}
