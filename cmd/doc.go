// Package cmd provides the command-line interface for quill.
//
// # Available Commands
//
//   - build (b): render the content directory into the output directory once
//   - serve (s): serve the output directory until interrupted
//   - watch (w): build, serve, and rebuild plus restart on every change
//   - version: print build information
//
// # Command Examples
//
//	// Render posts and print a summary table
//	quill build
//
//	// Serve on all interfaces with eight workers
//	quill serve --host 0.0.0.0 --workers 8
//
//	// Develop with live rebuilds and Prometheus metrics
//	quill watch --metrics-addr 127.0.0.1:9090
//
// Send SIGHUP to a running `quill watch` to force a rebuild without touching
// any file.
package cmd
