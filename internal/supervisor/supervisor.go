// Package supervisor runs the rebuild-and-restart loop behind `quill watch`.
//
// One goroutine, the one calling Run, owns the active server. Every change
// batch (or Trigger call) runs the site builder once and then replaces the
// server: the old instance is shut down completely, releasing its port,
// before the new one is started on the same port. No lock guards the active
// instance because nothing else touches it.
package supervisor

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/conneroisu/quill/internal/errors"
	"github.com/conneroisu/quill/internal/logging"
	"github.com/conneroisu/quill/internal/monitoring"
	"github.com/conneroisu/quill/internal/watcher"
)

// ErrEventChannelClosed is returned by Run when the change feed ends while
// the supervisor is still supposed to be watching.
var ErrEventChannelClosed = errors.NewInternalError(
	errors.ErrCodeEventChannelClosed, "file event channel closed unexpectedly", nil)

// Builder repopulates the output directory.
type Builder interface {
	Build(ctx context.Context) error
}

// BuilderFunc adapts a function to Builder.
type BuilderFunc func(ctx context.Context) error

// Build calls f(ctx).
func (f BuilderFunc) Build(ctx context.Context) error {
	return f(ctx)
}

// Instance is one server lifetime.
type Instance interface {
	Start(ctx context.Context) error
	Shutdown() error
	Port() int
}

// Factory creates a new, not yet started, server bound to port.
type Factory func(port int) Instance

// State is the supervisor lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateWatching
	StateRebuilding
	StateRestarting
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWatching:
		return "watching"
	case StateRebuilding:
		return "rebuilding"
	case StateRestarting:
		return "restarting"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Stats counts completed cycles.
type Stats struct {
	Builds        int64
	BuildFailures int64
	Restarts      int64
}

// Supervisor rebuilds the site and restarts the server on every change.
type Supervisor struct {
	builder Builder
	factory Factory
	events  <-chan []watcher.ChangeEvent
	control chan struct{}

	port         atomic.Int32
	buildOnStart bool
	logger       logging.Logger
	metrics      *monitoring.Metrics

	state    atomic.Int32
	running  atomic.Bool
	builds   atomic.Int64
	failures atomic.Int64
	restarts atomic.Int64
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithLogger sets the supervisor logger.
func WithLogger(logger logging.Logger) Option {
	return func(s *Supervisor) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics records builds and restarts in m.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(s *Supervisor) {
		s.metrics = m
	}
}

// WithPort sets the port handed to the factory. With 0 the first server
// picks a free port and every later server reuses it.
func WithPort(port int) Option {
	return func(s *Supervisor) {
		s.port.Store(int32(port))
	}
}

// WithBuildOnStart runs the builder once before the first server starts.
func WithBuildOnStart(enabled bool) Option {
	return func(s *Supervisor) {
		s.buildOnStart = enabled
	}
}

// New creates a Supervisor. events may be nil, in which case only Trigger
// causes restarts.
func New(builder Builder, factory Factory, events <-chan []watcher.ChangeEvent, opts ...Option) *Supervisor {
	s := &Supervisor{
		builder: builder,
		factory: factory,
		events:  events,
		control: make(chan struct{}, 1),
		logger:  logging.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithComponent("supervisor")

	return s
}

// Run starts the first server and then serves change batches until ctx is
// cancelled (returns nil), the event channel closes (returns
// ErrEventChannelClosed) or a server fails to start (returns that error). The
// active server is always shut down before Run returns.
func (s *Supervisor) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return fmt.Errorf("supervisor is already running")
	}
	defer s.setState(StateStopped)

	if s.buildOnStart {
		s.build(ctx)
	}

	current, err := s.start(ctx)
	if err != nil {
		return err
	}
	if s.port.Load() == 0 {
		s.port.Store(int32(current.Port()))
	}
	s.logger.Info(ctx, "Watching for changes", "port", s.Port())

	for {
		s.setState(StateWatching)

		select {
		case <-ctx.Done():
			s.stop(ctx, current)
			return nil

		case batch, ok := <-s.events:
			if !ok {
				s.stop(ctx, current)
				return ErrEventChannelClosed
			}
			s.logger.Info(ctx, "Change detected", "files", len(batch), "first", firstPath(batch))

		case <-s.control:
			s.logger.Info(ctx, "Rebuild triggered")
		}

		s.build(ctx)
		if ctx.Err() != nil {
			s.stop(ctx, current)
			return nil
		}

		s.setState(StateRestarting)
		s.stop(ctx, current)
		current, err = s.start(ctx)
		if err != nil {
			return err
		}
		s.restarts.Add(1)
		s.metrics.ServerRestarted()
	}
}

// Trigger requests one rebuild and restart. Requests made while one is
// already pending are coalesced. It never blocks.
func (s *Supervisor) Trigger() {
	select {
	case s.control <- struct{}{}:
	default:
	}
}

// State returns the current state.
func (s *Supervisor) State() State {
	return State(s.state.Load())
}

// Stats returns build and restart counters.
func (s *Supervisor) Stats() Stats {
	return Stats{
		Builds:        s.builds.Load(),
		BuildFailures: s.failures.Load(),
		Restarts:      s.restarts.Load(),
	}
}

// Port returns the port servers are started on. Before the first server
// started with port 0 configured it is 0.
func (s *Supervisor) Port() int {
	return int(s.port.Load())
}

func (s *Supervisor) setState(state State) {
	s.state.Store(int32(state))
}

// build runs the builder. A failure is logged and counted, never returned:
// the server restarts with whatever output is on disk.
func (s *Supervisor) build(ctx context.Context) {
	s.setState(StateRebuilding)
	start := time.Now()

	err := s.builder.Build(ctx)
	s.builds.Add(1)
	s.metrics.BuildFinished(err)
	if err != nil {
		s.failures.Add(1)
		s.logger.Error(ctx, err, "Site build failed; restarting with existing output")
		return
	}
	s.logger.Info(ctx, "Site rebuilt", "duration", time.Since(start).String())
}

func (s *Supervisor) start(ctx context.Context) (Instance, error) {
	port := s.Port()
	inst := s.factory(port)
	if err := inst.Start(ctx); err != nil {
		s.logger.Error(ctx, err, "Failed to start server", "port", port)
		return nil, err
	}

	return inst, nil
}

func (s *Supervisor) stop(ctx context.Context, inst Instance) {
	if err := inst.Shutdown(); err != nil {
		s.logger.Warn(ctx, err, "Server shutdown reported an error")
	}
}

func firstPath(batch []watcher.ChangeEvent) string {
	if len(batch) == 0 {
		return ""
	}

	return batch[0].Path
}
