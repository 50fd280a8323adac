package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/conneroisu/quill/internal/config"
	"github.com/conneroisu/quill/internal/logging"
	"github.com/conneroisu/quill/internal/supervisor"
	"github.com/conneroisu/quill/internal/watcher"
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	Aliases: []string{"w"},
	Short:   "Serve the site and rebuild it on every change",
	Long: `Build the site, serve it, and watch the content directory. Every batch of
changes rebuilds the site once and restarts the server on the same port. A
failed build is logged and the server is restarted with whatever the output
directory holds.

Send SIGHUP to rebuild without touching a file.

Examples:
  quill watch                          # Watch content/ and serve on :8080
  quill watch --debounce 1s            # Wait longer for editors to settle
  quill watch --build-on-start=false   # Serve the existing output first`,
	PreRunE: bindFlags,
	RunE:    runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
	addServerFlags(watchCmd)
	addSiteFlags(watchCmd)

	d := config.Default()
	watchCmd.Flags().Duration("debounce", d.Watch.Debounce, "Quiet period before a batch of changes is handled")
	watchCmd.Flags().Bool("build-on-start", d.Watch.BuildOnStart, "Build once before the first server starts")
}

func runWatch(cmd *cobra.Command, args []string) error {
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

	// The content directory must exist before it can be watched.
	if err := os.MkdirAll(cfg.Site.ContentDir, 0o755); err != nil {
		return fmt.Errorf("creating content directory: %w", err)
	}

	fileWatcher, err := newContentWatcher(cfg, logger)
	if err != nil {
		return err
	}
	defer fileWatcher.Stop()

	builder := newSiteBuilder(cfg, logger)
	sup := supervisor.New(
		supervisor.BuilderFunc(func(ctx context.Context) error {
			_, err := builder.Build(ctx)
			return err
		}),
		func(port int) supervisor.Instance {
			return newServer(cfg, port, logger, metrics)
		},
		fileWatcher.Events(),
		supervisor.WithLogger(logger),
		supervisor.WithMetrics(metrics),
		supervisor.WithPort(cfg.Server.Port),
		supervisor.WithBuildOnStart(cfg.Watch.BuildOnStart),
	)

	health.RegisterCheck("supervisor", true, func(context.Context) error {
		if state := sup.State(); state == supervisor.StateStopped {
			return fmt.Errorf("supervisor is %s", state)
		}
		return nil
	})

	if err := fileWatcher.Start(ctx); err != nil {
		return err
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go forwardHangups(ctx, hup, sup)

	fmt.Fprintf(cmd.OutOrStdout(), "Watching %s, serving %s on %s\n",
		cfg.Site.ContentDir, cfg.Site.OutputDir, cfg.Server.Host)

	return sup.Run(ctx)
}

func newContentWatcher(cfg *config.Config, logger logging.Logger) (*watcher.FileWatcher, error) {
	fileWatcher, err := watcher.NewFileWatcher(cfg.Watch.Debounce, watcher.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	fileWatcher.AddFilter(watcher.NoHiddenFilter(cfg.Site.ContentDir))
	fileWatcher.AddFilter(watcher.NoTempFilter)
	if len(cfg.Watch.Ignore) > 0 {
		fileWatcher.AddFilter(watcher.IgnorePatterns(cfg.Watch.Ignore))
	}

	if err := fileWatcher.AddRecursive(cfg.Site.ContentDir); err != nil {
		fileWatcher.Stop()
		return nil, fmt.Errorf("failed to watch %s: %w", cfg.Site.ContentDir, err)
	}

	return fileWatcher, nil
}

func forwardHangups(ctx context.Context, hup <-chan os.Signal, sup *supervisor.Supervisor) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			sup.Trigger()
		}
	}
}
