package pool

import (
	"context"
	"fmt"
	"time"

	"github.com/sourcegraph/conc/panics"

	"github.com/conneroisu/quill/internal/logging"
)

// worker pulls one job at a time from the pool queue.
type worker struct {
	id     int
	pool   *Pool
	logger logging.Logger
}

func newWorker(id int, p *Pool) *worker {
	return &worker{
		id:     id,
		pool:   p,
		logger: p.logger.WithComponent("worker").With("worker", id),
	}
}

func (w *worker) run() {
	defer w.pool.wg.Done()
	ctx := context.Background()

	for {
		job, ok := w.pool.next()
		if !ok {
			w.logger.Debug(ctx, "Worker disconnected; shutting down")
			return
		}

		w.logger.Debug(ctx, "Worker got a job; executing")
		if r := w.execute(job); r != nil {
			// The worker is considered lost; a fresh one takes its id.
			w.logger.Error(ctx, fmt.Errorf("panic: %v", r.Value), "Job panicked; replacing worker",
				"stack", string(r.Stack))
			w.pool.respawn(w.id)
			return
		}
	}
}

// execute runs job to completion and returns the recovered panic, if any.
func (w *worker) execute(job Job) *panics.Recovered {
	p := w.pool
	p.active.Add(1)
	defer p.active.Add(-1)

	start := time.Now()
	var pc panics.Catcher
	pc.Try(job)

	if r := pc.Recovered(); r != nil {
		p.panicked.Add(1)
		p.metrics.JobPanicked()
		return r
	}

	p.completed.Add(1)
	p.metrics.JobFinished(time.Since(start))

	return nil
}
