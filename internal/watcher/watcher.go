// Package watcher turns fsnotify events under the content root into
// debounced batches delivered on a channel.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/conneroisu/quill/internal/logging"
)

// FileWatcher watches directories and emits debounced change batches.
type FileWatcher struct {
	watcher   *fsnotify.Watcher
	debouncer *debouncer
	filters   []FileFilter
	logger    logging.Logger
	mutex     sync.RWMutex

	loopDone chan struct{}
	started  bool
	stopOnce sync.Once
	stopErr  error
}

// ChangeEvent represents a file change event
type ChangeEvent struct {
	Type    EventType
	Path    string
	ModTime time.Time
	Size    int64
}

// EventType represents the type of file change
type EventType int

const (
	EventTypeCreated EventType = iota
	EventTypeModified
	EventTypeDeleted
	EventTypeRenamed
)

// String returns the string representation of the EventType
func (e EventType) String() string {
	switch e {
	case EventTypeCreated:
		return "created"
	case EventTypeModified:
		return "modified"
	case EventTypeDeleted:
		return "deleted"
	case EventTypeRenamed:
		return "renamed"
	default:
		return "unknown"
	}
}

// FileFilter reports whether a path should produce events.
type FileFilter func(path string) bool

// Option configures a FileWatcher.
type Option func(*FileWatcher)

// WithLogger sets the watcher logger.
func WithLogger(logger logging.Logger) Option {
	return func(fw *FileWatcher) {
		if logger != nil {
			fw.logger = logger
		}
	}
}

// NewFileWatcher creates a watcher whose batches are delayed until no event
// arrived for debounceDelay.
func NewFileWatcher(debounceDelay time.Duration, opts ...Option) (*FileWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}

	fw := &FileWatcher{
		watcher:   w,
		debouncer: newDebouncer(debounceDelay),
		filters:   make([]FileFilter, 0),
		logger:    logging.Discard(),
		loopDone:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(fw)
	}
	fw.logger = fw.logger.WithComponent("watcher")

	return fw, nil
}

// AddFilter adds a file filter. An event is kept only if every filter
// returns true.
func (fw *FileWatcher) AddFilter(filter FileFilter) {
	fw.mutex.Lock()
	defer fw.mutex.Unlock()
	fw.filters = append(fw.filters, filter)
}

// AddPath watches a single directory.
func (fw *FileWatcher) AddPath(path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("watching %s: %w", path, err)
	}

	return fw.watcher.Add(filepath.Clean(path))
}

// AddRecursive watches root and every directory below it. Hidden
// directories are skipped.
func (fw *FileWatcher) AddRecursive(root string) error {
	root = filepath.Clean(root)

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}

		return fw.watcher.Add(path)
	})
}

// Events returns the channel of debounced batches. It is closed by Stop.
func (fw *FileWatcher) Events() <-chan []ChangeEvent {
	return fw.debouncer.output
}

// Start starts the event loop. It runs until ctx is done or Stop is called.
func (fw *FileWatcher) Start(ctx context.Context) error {
	fw.mutex.Lock()
	if fw.started {
		fw.mutex.Unlock()
		return fmt.Errorf("watcher already started")
	}
	fw.started = true
	fw.mutex.Unlock()

	go fw.watchLoop(ctx)

	return nil
}

// Stop closes the fsnotify watcher, waits for the event loop and closes the
// Events channel. Pending events that were not flushed yet are dropped. It is
// safe to call more than once.
func (fw *FileWatcher) Stop() error {
	fw.stopOnce.Do(func() {
		fw.stopErr = fw.watcher.Close()

		fw.mutex.RLock()
		started := fw.started
		fw.mutex.RUnlock()
		if started {
			<-fw.loopDone
		}

		fw.debouncer.close()
	})

	return fw.stopErr
}

func (fw *FileWatcher) watchLoop(ctx context.Context) {
	defer close(fw.loopDone)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			fw.handleFsnotifyEvent(ctx, event)
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.logger.Warn(ctx, err, "File watcher error")
		}
	}
}

func (fw *FileWatcher) handleFsnotifyEvent(ctx context.Context, event fsnotify.Event) {
	// Attribute changes alone do not change content.
	if event.Op == fsnotify.Chmod {
		return
	}

	fw.mutex.RLock()
	filters := fw.filters
	fw.mutex.RUnlock()

	for _, filter := range filters {
		if !filter(event.Name) {
			return
		}
	}

	info, err := os.Stat(event.Name)
	var modTime time.Time
	var size int64
	if err == nil {
		modTime = info.ModTime()
		size = info.Size()
	}

	var eventType EventType
	switch {
	case event.Op.Has(fsnotify.Create):
		eventType = EventTypeCreated
		if err == nil && info.IsDir() {
			if err := fw.AddRecursive(event.Name); err != nil {
				fw.logger.Warn(ctx, err, "Failed to watch new directory", "path", event.Name)
			}
		}
	case event.Op.Has(fsnotify.Write):
		eventType = EventTypeModified
	case event.Op.Has(fsnotify.Remove):
		eventType = EventTypeDeleted
	case event.Op.Has(fsnotify.Rename):
		eventType = EventTypeRenamed
	default:
		eventType = EventTypeModified
	}

	fw.logger.Debug(ctx, "File changed", "path", event.Name, "type", eventType.String())
	fw.debouncer.add(ChangeEvent{
		Type:    eventType,
		Path:    event.Name,
		ModTime: modTime,
		Size:    size,
	})
}

// debouncer groups rapid changes into one batch per quiet period.
type debouncer struct {
	delay   time.Duration
	output  chan []ChangeEvent
	timer   *time.Timer
	pending map[string]ChangeEvent
	closed  bool
	mutex   sync.Mutex
}

func newDebouncer(delay time.Duration) *debouncer {
	return &debouncer{
		delay:   delay,
		output:  make(chan []ChangeEvent, 10),
		pending: make(map[string]ChangeEvent),
	}
}

func (d *debouncer) add(event ChangeEvent) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.closed {
		return
	}

	// Later events for the same path replace earlier ones.
	d.pending[event.Path] = event
	d.arm()
}

// arm (re)starts the quiet-period timer. Callers hold the mutex.
func (d *debouncer) arm() {
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.flush)
}

func (d *debouncer) flush() {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.closed || len(d.pending) == 0 {
		return
	}

	events := make([]ChangeEvent, 0, len(d.pending))
	for _, event := range d.pending {
		events = append(events, event)
	}
	sort.Slice(events, func(i, j int) bool {
		return events[i].Path < events[j].Path
	})

	select {
	case d.output <- events:
		d.pending = make(map[string]ChangeEvent)
	default:
		// Consumer is behind; keep the batch and try again later.
		d.arm()
	}
}

func (d *debouncer) close() {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	if d.timer != nil {
		d.timer.Stop()
	}
	close(d.output)
}

// IgnorePatterns drops paths whose base name matches any of the glob
// patterns.
func IgnorePatterns(patterns []string) FileFilter {
	return func(path string) bool {
		base := filepath.Base(path)
		for _, pattern := range patterns {
			if matched, _ := filepath.Match(pattern, base); matched {
				return false
			}
		}

		return true
	}
}

// NoHiddenFilter drops dotfiles and anything inside a hidden directory
// below root. Hidden directories above root do not count. A path outside
// root is judged by its base name only.
func NoHiddenFilter(root string) FileFilter {
	root = filepath.Clean(root)

	return func(path string) bool {
		rel, err := filepath.Rel(root, filepath.Clean(path))
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return !isHidden(filepath.Base(path))
		}
		for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
			if isHidden(part) {
				return false
			}
		}

		return true
	}
}

func isHidden(name string) bool {
	return len(name) > 1 && strings.HasPrefix(name, ".") && name != ".."
}

// NoTempFilter drops editor swap and backup files.
func NoTempFilter(path string) bool {
	base := filepath.Base(path)
	switch {
	case strings.HasSuffix(base, "~"),
		strings.HasSuffix(base, ".swp"),
		strings.HasSuffix(base, ".swx"),
		strings.HasSuffix(base, ".tmp"),
		strings.HasPrefix(base, "#") && strings.HasSuffix(base, "#"):
		return false
	}

	return true
}
