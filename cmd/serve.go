package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/conneroisu/quill/internal/config"
	"github.com/conneroisu/quill/internal/httpd"
	"github.com/conneroisu/quill/internal/logging"
	"github.com/conneroisu/quill/internal/monitoring"
	"github.com/conneroisu/quill/internal/server"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"s"},
	Short:   "Serve the output directory",
	Long: `Serve the output directory over a minimal HTTP/1.1 responder until
SIGINT or SIGTERM. Each connection gets exactly one response and is closed.

Examples:
  quill serve                          # Serve output/ on 127.0.0.1:8080
  quill serve --port 0                 # Let the system pick a port
  quill serve --workers 8 --queue-size 64
  quill serve --metrics-addr 127.0.0.1:9090`,
	PreRunE: bindFlags,
	RunE:    runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	addServerFlags(serveCmd)
	serveCmd.Flags().StringP("output", "o", config.Default().Site.OutputDir, "Directory to serve")
}

// addServerFlags registers the flags shared by serve and watch.
func addServerFlags(cmd *cobra.Command) {
	d := config.Default()
	cmd.Flags().String("host", d.Server.Host, "Host to bind to")
	cmd.Flags().IntP("port", "p", d.Server.Port, "Port to serve on (0 picks a free port)")
	cmd.Flags().IntP("workers", "n", d.Server.Workers, "Number of pool workers")
	cmd.Flags().Int("queue-size", d.Server.QueueSize, "Maximum queued connections (0 is unbounded)")
	cmd.Flags().Int("max-connections", d.Server.MaxConnections, "Maximum open connections (0 is no cap)")
	cmd.Flags().Duration("cache-ttl", d.Server.CacheTTL, "File cache lifetime (0 disables the cache)")
	cmd.Flags().String("metrics-addr", d.Metrics.Addr, "Expose Prometheus metrics on this address")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics, health, err := startMetrics(ctx, cfg, logger)
	if err != nil {
		return err
	}

	srv := newServer(cfg, cfg.Server.Port, logger, metrics)
	health.RegisterCheck("server", true, func(context.Context) error {
		if state := srv.State(); state != server.StateAccepting {
			return fmt.Errorf("server is %s", state)
		}
		return nil
	})
	if err := srv.Start(ctx); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Serving %s at http://%s\n", cfg.Site.OutputDir, srv.Addr())

	select {
	case <-ctx.Done():
		logger.Info(ctx, "Shutting down server")
	case <-srv.Done():
	}

	return srv.Shutdown()
}

// newServer assembles a server over the output directory. It is not
// started.
func newServer(cfg *config.Config, port int, logger logging.Logger, metrics *monitoring.Metrics) *server.Server {
	responder := httpd.New(httpd.Options{
		Root:          cfg.Site.OutputDir,
		HomeDocument:  cfg.Server.HomeDocument,
		CacheTTL:      cfg.Server.CacheTTL,
		SleepRoute:    cfg.Server.SleepRoute,
		SleepDuration: cfg.Server.SleepDuration,
	}, httpd.WithLogger(logger), httpd.WithMetrics(metrics))

	return server.New(server.Options{
		Host:           cfg.Server.Host,
		Port:           port,
		Workers:        cfg.Server.Workers,
		QueueSize:      cfg.Server.QueueSize,
		MaxConnections: cfg.Server.MaxConnections,
		ReadTimeout:    cfg.Server.ReadTimeout,
	}, responder, server.WithLogger(logger), server.WithMetrics(metrics))
}

// startMetrics serves the collectors and health checks on metrics.addr
// until ctx is done. Without an address it returns nil metrics, which every
// component accepts, and a health monitor nothing exposes.
func startMetrics(ctx context.Context, cfg *config.Config, logger logging.Logger) (*monitoring.Metrics, *monitoring.HealthMonitor, error) {
	health := monitoring.NewHealthMonitor(logger)
	health.RegisterCheck("output_dir", true, monitoring.DirectoryCheck(cfg.Site.OutputDir))
	health.RegisterCheck("goroutines", false, monitoring.GoroutineCheck(10000))
	if cfg.Metrics.Addr == "" {
		return nil, health, nil
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := monitoring.NewMetrics(reg)

	exporter, err := monitoring.NewExporter(cfg.Metrics.Addr, reg, logger, monitoring.WithHealth(health))
	if err != nil {
		return nil, nil, fmt.Errorf("starting metrics exporter on %s: %w", cfg.Metrics.Addr, err)
	}
	go func() {
		if err := exporter.Serve(ctx); err != nil {
			logger.Error(ctx, err, "Metrics exporter stopped")
		}
	}()

	return metrics, health, nil
}
