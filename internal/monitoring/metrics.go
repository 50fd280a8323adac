// Package monitoring exposes quill's Prometheus metrics. Every recording
// method is safe to call on a nil *Metrics so components can run without
// instrumentation.
package monitoring

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "quill"

// Metrics holds the Prometheus collectors for the pool, server, responder and
// supervisor.
type Metrics struct {
	JobsSubmitted    prometheus.Counter
	JobsCompleted    prometheus.Counter
	JobsPanicked     prometheus.Counter
	WorkersRespawned prometheus.Counter
	QueueDepth       prometheus.Gauge
	JobDuration      prometheus.Histogram

	Connections prometheus.Counter
	Responses   *prometheus.CounterVec
	Restarts    prometheus.Counter
	Builds      *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered, which is what tests usually want.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		JobsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "jobs_submitted_total",
			Help:      "Total number of jobs submitted to the worker pool",
		}),
		JobsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "jobs_completed_total",
			Help:      "Total number of jobs that ran to completion",
		}),
		JobsPanicked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "jobs_panicked_total",
			Help:      "Total number of jobs that panicked",
		}),
		WorkersRespawned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "workers_respawned_total",
			Help:      "Total number of workers replaced after a panic",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "queue_depth",
			Help:      "Jobs waiting for a free worker",
		}),
		JobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "job_duration_seconds",
			Help:      "Histogram of job execution time",
			Buckets:   prometheus.DefBuckets,
		}),
		Connections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "connections_total",
			Help:      "Total number of accepted connections",
		}),
		Responses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "responses_total",
			Help:      "Responses written, by status code",
		}, []string{"code"}),
		Restarts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "restarts_total",
			Help:      "Total number of server restarts performed by the supervisor",
		}),
		Builds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "site",
			Name:      "builds_total",
			Help:      "Site builds, by result",
		}, []string{"result"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.JobsSubmitted,
			m.JobsCompleted,
			m.JobsPanicked,
			m.WorkersRespawned,
			m.QueueDepth,
			m.JobDuration,
			m.Connections,
			m.Responses,
			m.Restarts,
			m.Builds,
		)
	}

	return m
}

// JobSubmitted records an accepted Execute call and the resulting queue depth.
func (m *Metrics) JobSubmitted(depth int) {
	if m == nil {
		return
	}
	m.JobsSubmitted.Inc()
	m.QueueDepth.Set(float64(depth))
}

// JobDequeued records the queue depth after a worker took a job.
func (m *Metrics) JobDequeued(depth int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(depth))
}

// JobFinished records a job that returned normally.
func (m *Metrics) JobFinished(d time.Duration) {
	if m == nil {
		return
	}
	m.JobsCompleted.Inc()
	m.JobDuration.Observe(d.Seconds())
}

// JobPanicked records a job that panicked.
func (m *Metrics) JobPanicked() {
	if m == nil {
		return
	}
	m.JobsPanicked.Inc()
}

// WorkerRespawned records a replacement worker.
func (m *Metrics) WorkerRespawned() {
	if m == nil {
		return
	}
	m.WorkersRespawned.Inc()
}

// ConnectionAccepted records one accepted TCP connection.
func (m *Metrics) ConnectionAccepted() {
	if m == nil {
		return
	}
	m.Connections.Inc()
}

// ResponseWritten records a response with the given status code.
func (m *Metrics) ResponseWritten(code int) {
	if m == nil {
		return
	}
	m.Responses.WithLabelValues(strconv.Itoa(code)).Inc()
}

// BuildFinished records a site build outcome.
func (m *Metrics) BuildFinished(err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.Builds.WithLabelValues(result).Inc()
}

// ServerRestarted records one supervisor restart.
func (m *Metrics) ServerRestarted() {
	if m == nil {
		return
	}
	m.Restarts.Inc()
}
