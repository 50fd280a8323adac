package httpd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/conneroisu/quill/internal/errors"
	"github.com/conneroisu/quill/internal/logging"
	"github.com/conneroisu/quill/internal/monitoring"
)

// MethodGet is the only method that produces a file response.
const MethodGet = "GET"

// Options configures a Responder.
type Options struct {
	// Root is the output directory files are served from.
	Root string
	// HomeDocument is served for "/" and for directory targets.
	HomeDocument string
	// CacheTTL enables an in-memory body cache when positive.
	CacheTTL time.Duration
	// SleepRoute, when set, holds the worker for SleepDuration before
	// serving the home document.
	SleepRoute    string
	SleepDuration time.Duration
}

// Responder answers one request per connection.
type Responder struct {
	fs            afero.Fs
	// root is set when fs is the OS filesystem under Options.Root; reads are
	// then checked against symlinks leading out of it.
	root          string
	home          string
	cache         *fileCache
	sleepRoute    string
	sleepDuration time.Duration
	logger        logging.Logger
	metrics       *monitoring.Metrics
}

// Option configures a Responder.
type Option func(*Responder)

// WithFs replaces the root filesystem. The default jails the OS filesystem
// under Options.Root with afero.NewBasePathFs.
func WithFs(fs afero.Fs) Option {
	return func(r *Responder) {
		r.fs = fs
	}
}

// WithLogger sets the responder logger.
func WithLogger(logger logging.Logger) Option {
	return func(r *Responder) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics records response codes in m.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(r *Responder) {
		r.metrics = m
	}
}

// New creates a Responder.
func New(opts Options, options ...Option) *Responder {
	home := opts.HomeDocument
	if home == "" {
		home = "index.html"
	}

	r := &Responder{
		home:          home,
		cache:         newFileCache(opts.CacheTTL),
		sleepRoute:    opts.SleepRoute,
		sleepDuration: opts.SleepDuration,
		logger:        logging.Discard(),
	}
	for _, opt := range options {
		opt(r)
	}
	if r.fs == nil {
		root, err := filepath.Abs(opts.Root)
		if err != nil {
			root = opts.Root
		}
		r.fs = afero.NewBasePathFs(afero.NewOsFs(), root)
		r.root = root
	}
	r.logger = r.logger.WithComponent("httpd")

	return r
}

// Serve reads a single request from rw and writes one response. A malformed
// request gets no response; the error is returned so the caller can log it
// and drop the connection. Closing the connection is left to the caller.
func (r *Responder) Serve(ctx context.Context, rw io.ReadWriter) error {
	req, err := ReadRequest(bufio.NewReader(rw))
	if err != nil {
		return err
	}

	status, contentType, body, respErr := r.Respond(ctx, req)
	if err := WriteResponse(rw, status, contentType, body); err != nil {
		return errors.Join(respErr, fmt.Errorf("writing response: %w", err))
	}
	r.metrics.ResponseWritten(status.Code)
	r.logger.Debug(ctx, "Request served",
		"method", req.Method,
		"target", req.Target,
		"status", status.Code,
		"bytes", len(body),
	)

	return respErr
}

// Respond maps a parsed request to a status, content type and body. The
// returned error describes a rejected request and is informational: the
// status and body are always usable.
func (r *Responder) Respond(ctx context.Context, req *Request) (Status, string, []byte, error) {
	if req.Method != MethodGet {
		r.logger.Warn(ctx, nil, "Invalid request method", "method", req.Method, "target", req.Target)
		return StatusMethodNotAllowed, MIMEHTML, MethodNotAllowedBody,
			ErrUnsupportedMethod.Wrap(fmt.Errorf("method %q", req.Method))
	}

	target := req.Target
	if r.sleepRoute != "" && target == r.sleepRoute {
		select {
		case <-time.After(r.sleepDuration):
		case <-ctx.Done():
		}
		target = "/"
	}

	name, err := Resolve(target, r.home)
	if err != nil {
		if errors.Is(err, ErrPathEscape) {
			r.logger.Warn(ctx, err, "Rejected path escape attempt", "target", req.Target)
			return StatusForbidden, MIMEHTML, ForbiddenBody, err
		}
		return StatusNotFound, MIMEHTML, NotFoundBody, err
	}

	body, err := r.readFile(name)
	if errors.Is(err, ErrPathEscape) {
		r.logger.Warn(ctx, err, "Rejected symlink out of the output root", "target", req.Target)
		return StatusForbidden, MIMEHTML, ForbiddenBody, err
	}
	if err != nil {
		r.logger.Debug(ctx, "File not readable", "file", name, "error", err.Error())
		return StatusNotFound, MIMEHTML, NotFoundBody, nil
	}

	return StatusOK, ContentType(name), body, nil
}

func (r *Responder) readFile(name string) ([]byte, error) {
	if body, ok := r.cache.get(name); ok {
		return body, nil
	}

	if err := r.checkContained(name); err != nil {
		return nil, err
	}

	info, err := r.fs.Stat(name)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", name)
	}

	body, err := afero.ReadFile(r.fs, name)
	if err != nil {
		return nil, err
	}
	r.cache.set(name, body)

	return body, nil
}

// checkContained fails with ErrPathEscape when name, after following
// symlinks, lands outside the output root.
func (r *Responder) checkContained(name string) error {
	if r.root == "" {
		return nil
	}

	root, err := filepath.EvalSymlinks(r.root)
	if err != nil {
		return err
	}
	real, err := filepath.EvalSymlinks(filepath.Join(r.root, filepath.FromSlash(name)))
	if err != nil {
		return err
	}

	rel, err := filepath.Rel(root, real)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return ErrPathEscape.Wrap(fmt.Errorf("%s resolves outside the output root", name))
	}

	return nil
}
