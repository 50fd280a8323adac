// Package internal contains the implementation packages behind the quill
// CLI.
//
// # Package Organization
//
//   - pool: fixed-size worker pool with an unbounded FIFO queue
//   - httpd: one-shot HTTP/1.1 static-file responder
//   - server: TCP accept loop feeding connections to the pool
//   - watcher: recursive fsnotify watcher with debounced batches
//   - supervisor: rebuild-and-restart loop driven by the watcher
//   - site: markdown to static HTML site builder
//   - config: viper-backed configuration with validation
//   - logging: slog-backed structured logger
//   - errors: typed errors compared by type and code
//   - monitoring: Prometheus metrics, health checks and the exporter
//   - version: build information
//
// # Ownership
//
// The supervisor goroutine owns the active server; everything else reaches
// it through the supervisor's Trigger method or the change feed. A server
// owns its listener and pool and releases both, in that order, on Shutdown.
package internal
