// Package pool implements the fixed-size worker pool that runs accepted
// connections.
//
// A Pool owns N workers and one FIFO queue. Execute is the only producer
// path; Close is the shutdown signal. Close marks the queue closed first and
// only then joins the workers, so a worker blocked waiting for work always
// wakes up and observes closure. Jobs queued before Close still run: a worker
// only sees closure once the queue is empty.
package pool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"

	"github.com/conneroisu/quill/internal/errors"
	"github.com/conneroisu/quill/internal/logging"
	"github.com/conneroisu/quill/internal/monitoring"
)

// Job is a single unit of work. It takes no arguments, returns nothing and
// runs exactly once on exactly one worker.
type Job func()

// Pool errors.
var (
	ErrInvalidSize = errors.NewValidationError(errors.ErrCodeInvalidPoolSize, "pool size must be greater than 0")
	ErrPoolClosed  = errors.NewInternalError(errors.ErrCodePoolClosed, "worker pool has been closed", nil)
	ErrQueueFull   = &errors.QuillError{
		Type:        errors.ErrorTypeInternal,
		Code:        errors.ErrCodeQueueFull,
		Message:     "worker pool queue is full",
		Recoverable: true,
	}
	ErrNilJob = errors.NewValidationError(errors.ErrCodeNilJob, "job must not be nil")
)

// Pool is a fixed-size set of workers sharing one work queue.
type Pool struct {
	size int

	// mu guards queue, closed and workers. cond is signalled on every
	// enqueue and broadcast once on Close.
	mu      sync.Mutex
	cond    *sync.Cond
	queue   *queue.Queue
	limit   int
	closed  bool
	workers []*worker

	wg        sync.WaitGroup
	closeOnce sync.Once

	logger  logging.Logger
	metrics *monitoring.Metrics

	submitted atomic.Int64
	completed atomic.Int64
	panicked  atomic.Int64
	respawned atomic.Int64
	active    atomic.Int32
}

// Option configures a Pool.
type Option func(*Pool)

// WithLogger sets the logger used by the pool and its workers.
func WithLogger(logger logging.Logger) Option {
	return func(p *Pool) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithMetrics records pool activity in m.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(p *Pool) {
		p.metrics = m
	}
}

// WithQueueLimit bounds the number of queued jobs. Execute returns
// ErrQueueFull once the limit is reached. Zero, the default, means unbounded.
func WithQueueLimit(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.limit = n
		}
	}
}

// New creates a pool with size workers.
//
// New panics if size is not positive. Use Build to get an error instead.
func New(size int, opts ...Option) *Pool {
	p, err := Build(size, opts...)
	if err != nil {
		panic(fmt.Sprintf("pool.New(%d): %v", size, err))
	}

	return p
}

// Build creates a pool with size workers, returning ErrInvalidSize when size
// is not positive. No workers are started in that case.
func Build(size int, opts ...Option) (*Pool, error) {
	if size <= 0 {
		return nil, ErrInvalidSize
	}

	p := &Pool{
		size:    size,
		queue:   queue.New(),
		workers: make([]*worker, size),
		logger:  logging.Discard(),
	}
	p.cond = sync.NewCond(&p.mu)
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.WithComponent("pool")

	for id := 0; id < size; id++ {
		p.spawn(id)
	}

	return p, nil
}

// Execute enqueues job for the next free worker. It never waits for a worker.
func (p *Pool) Execute(job Job) error {
	if job == nil {
		return ErrNilJob
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	if p.limit > 0 && p.queue.Length() >= p.limit {
		p.mu.Unlock()
		return ErrQueueFull
	}
	p.queue.Add(job)
	depth := p.queue.Length()
	p.mu.Unlock()

	p.cond.Signal()
	p.submitted.Add(1)
	p.metrics.JobSubmitted(depth)

	return nil
}

// Close stops accepting jobs, lets the workers drain the queue and waits for
// every worker to exit. It is safe to call more than once.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()
		p.cond.Broadcast()
	})

	p.wg.Wait()
	p.logger.Debug(context.Background(), "Worker pool stopped", "workers", p.size)
}

// Size returns the configured number of workers.
func (p *Pool) Size() int {
	return p.size
}

// Stats is a snapshot of pool activity.
type Stats struct {
	Workers   int
	Queued    int
	Active    int
	Submitted int64
	Completed int64
	Panicked  int64
	Respawned int64
	Closed    bool
}

// Stats returns current pool statistics.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	queued := p.queue.Length()
	closed := p.closed
	p.mu.Unlock()

	return Stats{
		Workers:   p.size,
		Queued:    queued,
		Active:    int(p.active.Load()),
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Panicked:  p.panicked.Load(),
		Respawned: p.respawned.Load(),
		Closed:    closed,
	}
}

// next blocks until a job is available or the queue is closed and empty.
// The lock is released before the job is returned.
func (p *Pool) next() (Job, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for p.queue.Length() == 0 && !p.closed {
		p.cond.Wait()
	}
	if p.queue.Length() == 0 {
		return nil, false
	}

	job := p.queue.Remove().(Job)
	p.metrics.JobDequeued(p.queue.Length())

	return job, true
}

func (p *Pool) spawn(id int) {
	w := newWorker(id, p)

	p.mu.Lock()
	p.workers[id] = w
	p.mu.Unlock()

	p.wg.Add(1)
	go w.run()
}

// respawn replaces a worker that died running a job. It is called from the
// dying worker before it calls wg.Done, so Close cannot miss the new one.
func (p *Pool) respawn(id int) {
	p.respawned.Add(1)
	p.metrics.WorkerRespawned()
	p.spawn(id)
}
