package monitoring

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.JobSubmitted(1)
		m.JobDequeued(0)
		m.JobFinished(time.Millisecond)
		m.JobPanicked()
		m.WorkerRespawned()
		m.ConnectionAccepted()
		m.ResponseWritten(200)
		m.BuildFinished(nil)
		m.ServerRestarted()
	})
}

func TestMetricsRecord(t *testing.T) {
	m := NewMetrics(nil)

	m.JobSubmitted(3)
	m.JobSubmitted(4)
	m.JobDequeued(2)
	m.JobFinished(10 * time.Millisecond)
	m.JobPanicked()
	m.ResponseWritten(200)
	m.ResponseWritten(404)
	m.ResponseWritten(404)
	m.BuildFinished(nil)
	m.BuildFinished(errors.New("bad front matter"))
	m.ServerRestarted()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.JobsSubmitted))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.QueueDepth))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobsCompleted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobsPanicked))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Responses.WithLabelValues("404")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Builds.WithLabelValues("failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Restarts))
}

func TestExporterServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.ConnectionAccepted()

	exp, err := NewExporter("127.0.0.1:0", reg, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- exp.Serve(ctx) }()

	var body string
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + exp.Addr().String() + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return false
		}
		body = string(b)
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	assert.Contains(t, body, "quill_server_connections_total 1")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("exporter did not stop")
	}
}
