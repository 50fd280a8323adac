package site

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePost = `---
author: Ada
title: Hello <World>
tags: [go, concurrency]
date: 2024-03-01
description: A first post
---
# Heading

Some *markdown* text.
`

const olderPost = `---
author: Ada
title: Older
tags: [go, web]
date: 2023-12-24
description: An older post
---
Old body.
`

func newContent(t *testing.T) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	files := map[string]string{
		"content/a-older.md":          olderPost,
		"content/b-sample.md":         samplePost,
		"content/broken.md":           "no front matter here",
		"content/missing.md":          "---\ntitle: Only a title\n---\nbody",
		"content/notes.txt":           "ignored",
		"content/assets/styles.css":   "body{}",
		"content/assets/js/search.js": "console.log(1)",
		"content/drafts/nested.md":    samplePost,
	}
	for name, body := range files {
		require.NoError(t, afero.WriteFile(fs, name, []byte(body), 0o644))
	}

	return fs
}

func newBuilder(fs afero.Fs) *Builder {
	return New(Options{Title: "Test Blog", ContentDir: "content", OutputDir: "output"}, WithFs(fs))
}

func TestBuildWritesSite(t *testing.T) {
	fs := newContent(t)

	report, err := newBuilder(fs).Build(context.Background())
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{
		"a-older.html", "b-sample.html", "index.html", "posts.json",
		"assets/styles.css", "assets/js/search.js",
	}, report.Written)
	assert.Equal(t, []string{"concurrency", "go", "web"}, report.Tags)

	require.Len(t, report.Posts, 2)
	assert.Equal(t, "Hello <World>", report.Posts[0].Title, "newest first")
	assert.Equal(t, "Older", report.Posts[1].Title)

	skipped := make([]string, 0, len(report.Skipped))
	for _, s := range report.Skipped {
		skipped = append(skipped, s.File)
	}
	assert.ElementsMatch(t, []string{"broken.md", "missing.md"}, skipped)

	for _, name := range report.Written {
		ok, err := afero.Exists(fs, "output/"+name)
		require.NoError(t, err)
		assert.True(t, ok, name)
	}
	ok, _ := afero.Exists(fs, "output/nested.html")
	assert.False(t, ok, "only top-level posts are rendered")
}

func TestBuildAssignsIDsInNameOrder(t *testing.T) {
	fs := newContent(t)

	_, err := newBuilder(fs).Build(context.Background())
	require.NoError(t, err)

	raw, err := afero.ReadFile(fs, "output/posts.json")
	require.NoError(t, err)

	var previews []Preview
	require.NoError(t, json.Unmarshal(raw, &previews))
	require.Len(t, previews, 2)
	assert.Equal(t, Preview{
		ID: 1, Resource: "a-older.html", Title: "Older", Description: "An older post",
		Tags: []string{"go", "web"}, Date: "2023-12-24",
	}, previews[0])
	assert.Equal(t, 2, previews[1].ID)
	assert.Equal(t, "b-sample.html", previews[1].Resource)
}

func TestBuildRendersPostPage(t *testing.T) {
	fs := newContent(t)

	_, err := newBuilder(fs).Build(context.Background())
	require.NoError(t, err)

	raw, err := afero.ReadFile(fs, "output/b-sample.html")
	require.NoError(t, err)
	page := string(raw)

	assert.True(t, strings.HasPrefix(page, "<!DOCTYPE html>"))
	assert.Contains(t, page, "<title>Hello &lt;World&gt;</title>")
	assert.Contains(t, page, `<meta name="author" content="Ada">`)
	assert.Contains(t, page, "<h1>Heading</h1>")
	assert.Contains(t, page, "<em>markdown</em>")
	assert.Contains(t, page, "Published on: 2024-03-01")
	assert.Contains(t, page, `value="concurrency">Concurrency</label>`)
	assert.Contains(t, page, "const previews = ")
	assert.NotContains(t, page, "<World>")
}

func TestBuildHomeDocument(t *testing.T) {
	fs := newContent(t)

	_, err := newBuilder(fs).Build(context.Background())
	require.NoError(t, err)

	raw, err := afero.ReadFile(fs, "output/index.html")
	require.NoError(t, err)
	page := string(raw)

	newer := strings.Index(page, `href="/b-sample.html"`)
	older := strings.Index(page, `href="/a-older.html"`)
	require.NotEqual(t, -1, newer)
	require.NotEqual(t, -1, older)
	assert.Less(t, newer, older, "home document lists newest first")
	assert.Contains(t, page, "<title>Test Blog</title>")
}

func TestBuildEmptyContentCreatesDirectories(t *testing.T) {
	fs := afero.NewMemMapFs()

	report, err := newBuilder(fs).Build(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Posts)
	assert.ElementsMatch(t, []string{"index.html", "posts.json"}, report.Written)

	for _, dir := range []string{"content", "output"} {
		ok, err := afero.DirExists(fs, dir)
		require.NoError(t, err)
		assert.True(t, ok, dir)
	}

	raw, err := afero.ReadFile(fs, "output/posts.json")
	require.NoError(t, err)
	assert.JSONEq(t, "[]", string(raw))
}

func TestBuildSkipsHomeDocumentConflict(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "content/index.md", []byte(samplePost), 0o644))

	report, err := newBuilder(fs).Build(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Skipped, 1)
	assert.Equal(t, "index.md", report.Skipped[0].File)
	assert.Empty(t, report.Posts)
}

func TestBuildUnreadableContentDir(t *testing.T) {
	fs := afero.NewMemMapFs()
	// A file where the content directory should be.
	require.NoError(t, afero.WriteFile(fs, "content", []byte("x"), 0o644))

	_, err := newBuilder(afero.NewReadOnlyFs(fs)).Build(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBuildFailed))
}

func TestBuildCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newBuilder(newContent(t)).Build(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBuildFailed))
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestIndexPageEscapes(t *testing.T) {
	previews := []Preview{{ID: 1, Resource: "x.html", Title: `<script>alert(1)</script>`, Tags: []string{}}}

	var buf bytes.Buffer
	require.NoError(t, IndexPage("Blog", previews, nil).Render(context.Background(), &buf))

	out := buf.String()
	assert.NotContains(t, out, "<script>alert(1)</script>")
	assert.Contains(t, out, "&lt;script&gt;")
}
