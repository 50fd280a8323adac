package monitoring

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/conneroisu/quill/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Exporter serves /metrics, and /healthz when a HealthMonitor is attached,
// on its own net/http server separate from the static-file responder.
type Exporter struct {
	srv      *http.Server
	listener net.Listener
	logger   logging.Logger
}

// ExporterOption configures an Exporter.
type ExporterOption func(mux *http.ServeMux)

// WithHealth serves hm on /healthz.
func WithHealth(hm *HealthMonitor) ExporterOption {
	return func(mux *http.ServeMux) {
		mux.Handle("/healthz", hm.HTTPHandler())
	}
}

// NewExporter binds addr immediately so a bad address fails fast.
func NewExporter(addr string, gatherer prometheus.Gatherer, logger logging.Logger, opts ...ExporterOption) (*Exporter, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	for _, opt := range opts {
		opt(mux)
	}

	return &Exporter{
		srv: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		listener: ln,
		logger:   logger.WithComponent("metrics"),
	}, nil
}

// Addr returns the bound address.
func (e *Exporter) Addr() net.Addr {
	return e.listener.Addr()
}

// Serve blocks until ctx is done, then shuts the HTTP server down.
func (e *Exporter) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- e.srv.Serve(e.listener)
	}()
	e.logger.Info(ctx, "Metrics exporter listening", "addr", e.listener.Addr().String())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	<-errCh

	return nil
}
