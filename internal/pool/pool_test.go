package pool

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/quill/internal/monitoring"
)

func TestBuildInvalidSize(t *testing.T) {
	for _, size := range []int{0, -1} {
		baseline := runtime.NumGoroutine()

		p, err := Build(size)

		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidSize))
		assert.Nil(t, p)
		assert.LessOrEqual(t, runtime.NumGoroutine(), baseline, "no workers may be started")
	}
}

func TestNewPanicsOnZeroSize(t *testing.T) {
	assert.Panics(t, func() { New(0) })
}

func TestExecuteRunsEveryJobExactlyOnce(t *testing.T) {
	const workers, jobs = 4, 200

	p := New(workers)
	defer p.Close()

	var counts [jobs]atomic.Int32
	var wg sync.WaitGroup
	wg.Add(jobs)
	for i := 0; i < jobs; i++ {
		i := i
		require.NoError(t, p.Execute(func() {
			defer wg.Done()
			counts[i].Add(1)
		}))
	}
	wg.Wait()

	for i := range counts {
		assert.Equal(t, int32(1), counts[i].Load(), "job %d", i)
	}
	assert.Equal(t, int64(jobs), p.Stats().Submitted)
}

func TestAtMostSizeJobsRunConcurrently(t *testing.T) {
	const workers, jobs = 3, 12

	p := New(workers)
	defer p.Close()

	var current, peak atomic.Int32
	var wg sync.WaitGroup
	wg.Add(jobs)
	for i := 0; i < jobs; i++ {
		require.NoError(t, p.Execute(func() {
			defer wg.Done()
			n := current.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			current.Add(-1)
		}))
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(workers))
	assert.Greater(t, peak.Load(), int32(0))
}

func TestSingleWorkerRunsInSubmissionOrder(t *testing.T) {
	p := New(1)

	var mu sync.Mutex
	var order []int
	for i := 0; i < 20; i++ {
		i := i
		require.NoError(t, p.Execute(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}))
	}
	p.Close()

	require.Len(t, order, 20)
	for i, v := range order {
		assert.Equal(t, i, v)
	}
}

func TestCloseDrainsQueuedJobs(t *testing.T) {
	p := New(1)

	release := make(chan struct{})
	started := make(chan struct{})
	var ran atomic.Int32

	require.NoError(t, p.Execute(func() {
		close(started)
		<-release
		ran.Add(1)
	}))
	<-started
	for i := 0; i < 5; i++ {
		require.NoError(t, p.Execute(func() { ran.Add(1) }))
	}

	closed := make(chan struct{})
	go func() {
		p.Close()
		close(closed)
	}()

	select {
	case <-closed:
		t.Fatal("Close returned while a job was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	<-closed

	assert.Equal(t, int32(6), ran.Load())
	assert.True(t, errors.Is(p.Execute(func() {}), ErrPoolClosed))
}

func TestCloseJoinsAllWorkers(t *testing.T) {
	baseline := runtime.NumGoroutine()

	p := New(8)
	assert.GreaterOrEqual(t, runtime.NumGoroutine(), baseline+8)

	p.Close()

	require.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= baseline
	}, time.Second, 10*time.Millisecond)
}

func TestCloseIsIdempotent(t *testing.T) {
	p := New(2)
	p.Close()
	assert.NotPanics(t, p.Close)
	assert.True(t, p.Stats().Closed)
}

func TestQueueLimit(t *testing.T) {
	p := New(1, WithQueueLimit(2))
	defer p.Close()

	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, p.Execute(func() {
		close(started)
		<-release
	}))
	<-started

	require.NoError(t, p.Execute(func() {}))
	require.NoError(t, p.Execute(func() {}))

	err := p.Execute(func() {})
	assert.True(t, errors.Is(err, ErrQueueFull))
	assert.Equal(t, 2, p.Stats().Queued)

	close(release)
}

func TestNilJob(t *testing.T) {
	p := New(1)
	defer p.Close()

	assert.True(t, errors.Is(p.Execute(nil), ErrNilJob))
}

func TestPanickingJobRespawnsWorker(t *testing.T) {
	baseline := runtime.NumGoroutine()
	metrics := monitoring.NewMetrics(nil)
	p := New(2, WithMetrics(metrics))

	require.NoError(t, p.Execute(func() { panic("bad connection") }))

	require.Eventually(t, func() bool {
		return p.Stats().Respawned == 1
	}, time.Second, 5*time.Millisecond)

	var wg sync.WaitGroup
	var ran atomic.Int32
	wg.Add(10)
	for i := 0; i < 10; i++ {
		require.NoError(t, p.Execute(func() {
			defer wg.Done()
			ran.Add(1)
		}))
	}
	wg.Wait()

	stats := p.Stats()
	assert.Equal(t, int32(10), ran.Load())
	assert.Equal(t, int64(1), stats.Panicked)
	assert.Equal(t, int64(10), stats.Completed)
	assert.Equal(t, 2, stats.Workers)

	p.Close()
	require.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= baseline
	}, time.Second, 10*time.Millisecond)
}
