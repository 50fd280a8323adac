// Package site renders the content directory into the static output tree
// served by quill: one HTML page per markdown post, a home document listing
// all posts, posts.json for the search bar and a copy of the assets.
package site

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/afero"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"

	"github.com/conneroisu/quill/internal/errors"
	"github.com/conneroisu/quill/internal/logging"
)

const (
	// IndexFile is the search data consumed by assets/searchbar.js.
	IndexFile = "posts.json"
	// AssetsDir is copied verbatim from the content root to the output root.
	AssetsDir = "assets"
)

// ErrBuildFailed reports a build that could not produce output at all.
var ErrBuildFailed = errors.NewBuildError(errors.ErrCodeBuildFailed, "site build failed", nil)

// Options configures a Builder.
type Options struct {
	Title        string
	ContentDir   string
	OutputDir    string
	HomeDocument string
}

// Skipped records a content file that produced no page.
type Skipped struct {
	File   string
	Reason string
}

// Report summarizes one build.
type Report struct {
	Posts    []Preview
	Written  []string
	Skipped  []Skipped
	Tags     []string
	Duration time.Duration
}

// Builder renders a content directory into an output directory.
type Builder struct {
	opts   Options
	fs     afero.Fs
	md     goldmark.Markdown
	logger logging.Logger
}

// Option configures a Builder.
type Option func(*Builder)

// WithFs sets the filesystem both directories live on. The default is the
// OS filesystem.
func WithFs(fs afero.Fs) Option {
	return func(b *Builder) {
		b.fs = fs
	}
}

// WithLogger sets the builder logger.
func WithLogger(logger logging.Logger) Option {
	return func(b *Builder) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// New creates a Builder.
func New(opts Options, options ...Option) *Builder {
	if opts.Title == "" {
		opts.Title = "My Blog"
	}
	if opts.HomeDocument == "" {
		opts.HomeDocument = "index.html"
	}

	b := &Builder{
		opts:   opts,
		fs:     afero.NewOsFs(),
		logger: logging.Discard(),
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(gmhtml.WithUnsafe()),
		),
	}
	for _, opt := range options {
		opt(b)
	}
	b.logger = b.logger.WithComponent("site")

	return b
}

// Build renders every top-level markdown file of the content directory.
// Files with missing or invalid front matter are skipped and listed in the
// report. Only failures affecting the whole build, such as an unreadable
// content directory, are returned as errors. Cancelling ctx stops the build
// between files.
func (b *Builder) Build(ctx context.Context) (*Report, error) {
	start := time.Now()
	report := &Report{}

	for _, dir := range []string{b.opts.ContentDir, b.opts.OutputDir} {
		if err := b.fs.MkdirAll(dir, 0o755); err != nil {
			return report, ErrBuildFailed.Wrap(fmt.Errorf("creating %s: %w", dir, err))
		}
	}

	posts, err := b.readPosts(ctx, report)
	if err != nil {
		return report, err
	}

	previews := make([]Preview, 0, len(posts))
	for _, p := range posts {
		previews = append(previews, p.Preview())
	}
	tags := TagSet(previews)
	report.Tags = tags

	for _, p := range posts {
		if err := ctx.Err(); err != nil {
			return report, ErrBuildFailed.Wrap(err)
		}
		name := p.Stem + ".html"
		if err := b.renderPost(ctx, p, name, previews, tags); err != nil {
			b.logger.Warn(ctx, err, "Failed to write post", "file", p.Name)
			report.Skipped = append(report.Skipped, Skipped{File: p.Name, Reason: err.Error()})
			continue
		}
		report.Written = append(report.Written, name)
	}

	newest := append([]Preview(nil), previews...)
	SortNewestFirst(newest)
	report.Posts = newest

	var home bytes.Buffer
	if err := IndexPage(b.opts.Title, newest, tags).Render(ctx, &home); err != nil {
		return report, ErrBuildFailed.Wrap(fmt.Errorf("rendering home document: %w", err))
	}
	if err := b.write(b.opts.HomeDocument, home.Bytes()); err != nil {
		return report, ErrBuildFailed.Wrap(err)
	}
	report.Written = append(report.Written, b.opts.HomeDocument)

	index, err := json.MarshalIndent(previews, "", "  ")
	if err != nil {
		return report, ErrBuildFailed.Wrap(err)
	}
	if err := b.write(IndexFile, index); err != nil {
		return report, ErrBuildFailed.Wrap(err)
	}
	report.Written = append(report.Written, IndexFile)

	copied, err := b.copyAssets(ctx)
	if err != nil {
		return report, ErrBuildFailed.Wrap(err)
	}
	report.Written = append(report.Written, copied...)

	report.Duration = time.Since(start)
	b.logger.Info(ctx, "Site built",
		"posts", len(posts),
		"skipped", len(report.Skipped),
		"written", len(report.Written),
		"duration", report.Duration.String(),
	)

	return report, nil
}

// readPosts parses the top-level markdown files in name order and assigns
// ids from 1.
func (b *Builder) readPosts(ctx context.Context, report *Report) ([]*Post, error) {
	entries, err := afero.ReadDir(b.fs, b.opts.ContentDir)
	if err != nil {
		return nil, ErrBuildFailed.Wrap(fmt.Errorf("reading %s: %w", b.opts.ContentDir, err))
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	posts := make([]*Post, 0, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, ErrBuildFailed.Wrap(err)
		}
		name := entry.Name()
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(name)
		if ext != ".md" {
			b.logger.Debug(ctx, "Skipping non-markdown file", "file", name)
			continue
		}

		stem := strings.TrimSuffix(name, ext)
		if stem+".html" == b.opts.HomeDocument {
			report.Skipped = append(report.Skipped, Skipped{File: name, Reason: "page name conflicts with the home document"})
			continue
		}

		src, err := afero.ReadFile(b.fs, filepath.Join(b.opts.ContentDir, name))
		if err != nil {
			report.Skipped = append(report.Skipped, Skipped{File: name, Reason: err.Error()})
			b.logger.Warn(ctx, err, "Failed to read post", "file", name)
			continue
		}
		data, body, err := ParseFrontMatter(src)
		if err != nil {
			report.Skipped = append(report.Skipped, Skipped{File: name, Reason: err.Error()})
			b.logger.Warn(ctx, err, "Skipping post", "file", name)
			continue
		}

		posts = append(posts, &Post{
			ID:   len(posts) + 1,
			Name: name,
			Stem: stem,
			Data: data,
			Body: body,
		})
	}

	return posts, nil
}

func (b *Builder) renderPost(ctx context.Context, p *Post, name string, previews []Preview, tags []string) error {
	var content bytes.Buffer
	if err := b.md.Convert(p.Body, &content); err != nil {
		return fmt.Errorf("rendering markdown: %w", err)
	}

	var out bytes.Buffer
	if err := PostPage(b.opts.Title, p, content.String(), previews, tags).Render(ctx, &out); err != nil {
		return fmt.Errorf("rendering page: %w", err)
	}

	return b.write(name, out.Bytes())
}

func (b *Builder) write(name string, data []byte) error {
	target := filepath.Join(b.opts.OutputDir, filepath.FromSlash(name))
	if err := b.fs.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", name, err)
	}
	if err := afero.WriteFile(b.fs, target, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}

	return nil
}

// copyAssets mirrors <content>/assets into <output>/assets and returns the
// copied paths relative to the output root. A missing assets directory is
// not an error.
func (b *Builder) copyAssets(ctx context.Context) ([]string, error) {
	src := filepath.Join(b.opts.ContentDir, AssetsDir)
	if ok, err := afero.DirExists(b.fs, src); err != nil || !ok {
		return nil, nil
	}

	var copied []string
	err := afero.Walk(b.fs, src, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(b.opts.ContentDir, p)
		if err != nil {
			return err
		}
		data, err := afero.ReadFile(b.fs, p)
		if err != nil {
			return fmt.Errorf("reading asset %s: %w", rel, err)
		}
		relSlash := filepath.ToSlash(rel)
		if err := b.write(relSlash, data); err != nil {
			return err
		}
		copied = append(copied, path.Clean(relSlash))

		return nil
	})
	if err != nil {
		return copied, fmt.Errorf("copying assets: %w", err)
	}

	return copied, nil
}
