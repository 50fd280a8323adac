package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventTypeString(t *testing.T) {
	testCases := []struct {
		eventType EventType
		expected  string
	}{
		{EventTypeCreated, "created"},
		{EventTypeModified, "modified"},
		{EventTypeDeleted, "deleted"},
		{EventTypeRenamed, "renamed"},
		{EventType(42), "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.eventType.String())
		})
	}
}

func TestNewFileWatcher(t *testing.T) {
	watcher, err := NewFileWatcher(100 * time.Millisecond)
	require.NoError(t, err)
	defer watcher.Stop()

	assert.NotNil(t, watcher.watcher)
	assert.NotNil(t, watcher.debouncer)
	assert.Empty(t, watcher.filters)
	assert.NotNil(t, watcher.Events())
}

func TestFileWatcherAddFilter(t *testing.T) {
	watcher, err := NewFileWatcher(100 * time.Millisecond)
	require.NoError(t, err)
	defer watcher.Stop()

	watcher.AddFilter(NoHiddenFilter("content"))
	assert.Len(t, watcher.filters, 1)

	watcher.AddFilter(NoTempFilter)
	assert.Len(t, watcher.filters, 2)
}

func TestFileWatcherAddPath(t *testing.T) {
	watcher, err := NewFileWatcher(100 * time.Millisecond)
	require.NoError(t, err)
	defer watcher.Stop()

	assert.NoError(t, watcher.AddPath(t.TempDir()))
	assert.Error(t, watcher.AddPath("/non/existent/path"))
}

func TestAddRecursive(t *testing.T) {
	watcher, err := NewFileWatcher(100 * time.Millisecond)
	require.NoError(t, err)
	defer watcher.Stop()

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "assets", "img"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".git", "objects"), 0o755))

	require.NoError(t, watcher.AddRecursive(root))

	watched := watcher.watcher.WatchList()
	assert.Contains(t, watched, root)
	assert.Contains(t, watched, filepath.Join(root, "assets"))
	assert.Contains(t, watched, filepath.Join(root, "assets", "img"))
	assert.NotContains(t, watched, filepath.Join(root, ".git"))

	assert.Error(t, watcher.AddRecursive(filepath.Join(root, "missing")))
}

func TestFileWatcherDeliversBatch(t *testing.T) {
	root := t.TempDir()

	watcher, err := NewFileWatcher(50 * time.Millisecond)
	require.NoError(t, err)
	defer watcher.Stop()

	watcher.AddFilter(NoTempFilter)
	require.NoError(t, watcher.AddRecursive(root))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, watcher.Start(ctx))

	post := filepath.Join(root, "hello.md")
	require.NoError(t, os.WriteFile(post, []byte("---\ntitle: hi\n---\nbody"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "hello.md.swp"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(post, []byte("---\ntitle: hi\n---\nbody 2"), 0o644))

	select {
	case batch := <-watcher.Events():
		require.NotEmpty(t, batch)
		paths := make([]string, 0, len(batch))
		for _, ev := range batch {
			paths = append(paths, ev.Path)
		}
		assert.Contains(t, paths, post)
		assert.NotContains(t, paths, filepath.Join(root, "hello.md.swp"))
	case <-time.After(3 * time.Second):
		t.Fatal("no batch received")
	}
}

func TestFileWatcherUnderHiddenAncestor(t *testing.T) {
	root := filepath.Join(t.TempDir(), ".blog", "content")
	require.NoError(t, os.MkdirAll(root, 0o755))

	watcher, err := NewFileWatcher(50 * time.Millisecond)
	require.NoError(t, err)
	defer watcher.Stop()

	watcher.AddFilter(NoHiddenFilter(root))
	require.NoError(t, watcher.AddRecursive(root))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, watcher.Start(ctx))

	post := filepath.Join(root, "post.md")
	require.NoError(t, os.WriteFile(filepath.Join(root, ".draft.md"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(post, []byte("body"), 0o644))

	select {
	case batch := <-watcher.Events():
		paths := make([]string, 0, len(batch))
		for _, ev := range batch {
			paths = append(paths, ev.Path)
		}
		assert.Contains(t, paths, post)
		assert.NotContains(t, paths, filepath.Join(root, ".draft.md"))
	case <-time.After(3 * time.Second):
		t.Fatalf("no batch delivered for %s", post)
	}
}

func TestFileWatcherWatchesNewDirectories(t *testing.T) {
	root := t.TempDir()

	watcher, err := NewFileWatcher(30 * time.Millisecond)
	require.NoError(t, err)
	defer watcher.Stop()
	require.NoError(t, watcher.AddRecursive(root))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, watcher.Start(ctx))

	dir := filepath.Join(root, "assets")
	require.NoError(t, os.Mkdir(dir, 0o755))

	require.Eventually(t, func() bool {
		for _, p := range watcher.watcher.WatchList() {
			if p == dir {
				return true
			}
		}
		return false
	}, 3*time.Second, 10*time.Millisecond)

	// Drain the batch for the mkdir itself.
	select {
	case <-watcher.Events():
	case <-time.After(3 * time.Second):
		t.Fatal("no batch for new directory")
	}

	nested := filepath.Join(dir, "styles.css")
	require.NoError(t, os.WriteFile(nested, []byte("body{}"), 0o644))

	require.Eventually(t, func() bool {
		select {
		case batch := <-watcher.Events():
			for _, ev := range batch {
				if ev.Path == nested {
					return true
				}
			}
		default:
		}
		return false
	}, 3*time.Second, 10*time.Millisecond)
}

func TestFileWatcherStopClosesEvents(t *testing.T) {
	watcher, err := NewFileWatcher(50 * time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, watcher.AddPath(t.TempDir()))
	require.NoError(t, watcher.Start(context.Background()))

	require.NoError(t, watcher.Stop())
	require.NoError(t, watcher.Stop())

	select {
	case _, ok := <-watcher.Events():
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Events must be closed after Stop")
	}
}

func TestFileWatcherStopWithoutStart(t *testing.T) {
	watcher, err := NewFileWatcher(50 * time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, watcher.Stop())

	_, ok := <-watcher.Events()
	assert.False(t, ok)
}

func TestFileWatcherStartTwice(t *testing.T) {
	watcher, err := NewFileWatcher(50 * time.Millisecond)
	require.NoError(t, err)
	defer watcher.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, watcher.Start(ctx))
	assert.Error(t, watcher.Start(ctx))
}

func TestDebouncer(t *testing.T) {
	d := newDebouncer(50 * time.Millisecond)
	defer d.close()

	d.add(ChangeEvent{Path: "b.md", Type: EventTypeModified})
	d.add(ChangeEvent{Path: "a.md", Type: EventTypeCreated})
	d.add(ChangeEvent{Path: "b.md", Type: EventTypeDeleted})

	select {
	case batch := <-d.output:
		require.Len(t, batch, 2)
		assert.Equal(t, "a.md", batch[0].Path)
		assert.Equal(t, "b.md", batch[1].Path)
		assert.Equal(t, EventTypeDeleted, batch[1].Type)
	case <-time.After(time.Second):
		t.Fatal("no batch received")
	}
}

func TestDebouncerKeepsBatchWhenConsumerIsBehind(t *testing.T) {
	d := newDebouncer(10 * time.Millisecond)
	defer d.close()

	// Fill the output buffer so the next flush cannot deliver.
	for i := 0; i < cap(d.output); i++ {
		d.output <- nil
	}
	d.add(ChangeEvent{Path: "late.md"})
	time.Sleep(40 * time.Millisecond)

	deadline := time.After(time.Second)
	for {
		select {
		case batch := <-d.output:
			if batch == nil {
				continue
			}
			require.Len(t, batch, 1)
			assert.Equal(t, "late.md", batch[0].Path)
			return
		case <-deadline:
			t.Fatal("pending batch was lost")
		}
	}
}

func TestDebouncerIgnoresEventsAfterClose(t *testing.T) {
	d := newDebouncer(10 * time.Millisecond)
	d.close()
	d.close()

	assert.NotPanics(t, func() {
		d.add(ChangeEvent{Path: "x.md"})
		d.flush()
	})
}

func TestIgnorePatterns(t *testing.T) {
	filter := IgnorePatterns([]string{"*.swp", "*~", ".#*"})

	testCases := []struct {
		path     string
		expected bool
	}{
		{"content/post.md", true},
		{"content/.post.md.swp", false},
		{"content/post.md~", false},
		{"content/.#post.md", false},
		{"content/assets/styles.css", true},
	}

	for _, tc := range testCases {
		t.Run(tc.path, func(t *testing.T) {
			assert.Equal(t, tc.expected, filter(tc.path))
		})
	}
}

func TestNoHiddenFilter(t *testing.T) {
	testCases := []struct {
		root     string
		path     string
		expected bool
	}{
		{"content", "content/post.md", true},
		{"./content", "content/post.md", true},
		{"../content", "../content/post.md", true},
		{"content", "content/.hidden.md", false},
		{"content", "content/.git/HEAD", false},
		{".posts", ".posts/post.md", true},
		{".posts", ".posts/.draft.md", false},
		{"/home/me/.blog/content", "/home/me/.blog/content/post.md", true},
		{"/home/me/.blog/content", "/home/me/.blog/content/drafts/.wip/post.md", false},
		{"/home/me/.blog/content", "/elsewhere/.post.md", false},
		{".", "post.md", true},
		{".", ".env", false},
	}

	for _, tc := range testCases {
		t.Run(tc.path, func(t *testing.T) {
			assert.Equal(t, tc.expected, NoHiddenFilter(tc.root)(tc.path))
		})
	}
}

func TestNoTempFilter(t *testing.T) {
	testCases := []struct {
		path     string
		expected bool
	}{
		{"post.md", true},
		{"post.md~", false},
		{"post.md.swp", false},
		{"post.md.swx", false},
		{"post.tmp", false},
		{"#post.md#", false},
	}

	for _, tc := range testCases {
		t.Run(tc.path, func(t *testing.T) {
			assert.Equal(t, tc.expected, NoTempFilter(tc.path))
		})
	}
}
