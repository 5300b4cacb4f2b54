// Package watch turns fsnotify filesystem notifications into batched
// change events for walk-enumerated roots. Journal-backed volumes do
// not need it; they refresh from the change journal instead.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// EventType classifies a filesystem notification.
type EventType int

const (
	EventCreate EventType = iota
	EventWrite
	EventRemove
	EventRename
)

func (t EventType) String() string {
	switch t {
	case EventCreate:
		return "create"
	case EventWrite:
		return "write"
	case EventRemove:
		return "remove"
	case EventRename:
		return "rename"
	}
	return "unknown"
}

// Event is one observed change, with the path already normalized to
// forward slashes so it matches index entries directly.
type Event struct {
	Type EventType
	Path string
}

// Config controls batching and channel sizing.
type Config struct {
	// BatchDelay is how long the watcher accumulates events before
	// flushing a batch. Zero disables batching and flushes immediately.
	BatchDelay time.Duration
	// QueueCapacity bounds the batch channel. Full channels drop
	// batches rather than block the notification loop.
	QueueCapacity int
}

// DefaultConfig matches interactive use: short coalescing window,
// modest queue.
func DefaultConfig() Config {
	return Config{BatchDelay: 250 * time.Millisecond, QueueCapacity: 64}
}

// Watcher follows a set of directory trees and emits batched events.
type Watcher struct {
	fsw     *fsnotify.Watcher
	log     *slog.Logger
	config  Config
	batches chan []Event
	errs    chan error

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	watched map[string]bool
}

// NewWatcher creates a watcher without starting it.
func NewWatcher(config Config, log *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	if config.QueueCapacity <= 0 {
		config.QueueCapacity = DefaultConfig().QueueCapacity
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		fsw:     fsw,
		log:     log,
		config:  config,
		batches: make(chan []Event, config.QueueCapacity),
		errs:    make(chan error, 10),
		ctx:     ctx,
		cancel:  cancel,
		watched: make(map[string]bool),
	}, nil
}

// Start registers the roots and begins delivering batches. Roots that
// fail to register are logged and skipped so one bad root does not take
// down the rest.
func (w *Watcher) Start(roots []string) error {
	w.mu.Lock()
	for _, root := range roots {
		if err := w.addRecursive(root); err != nil {
			w.log.Warn("failed to watch root", "root", root, "error", err)
			continue
		}
		w.watched[root] = true
	}
	w.mu.Unlock()

	w.wg.Add(1)
	go w.loop()

	w.log.Info("watcher started", "roots", len(roots))
	return nil
}

// Batches returns the channel of coalesced event batches.
func (w *Watcher) Batches() <-chan []Event { return w.batches }

// Errors returns the watcher error channel.
func (w *Watcher) Errors() <-chan error { return w.errs }

// Add starts watching additional directory trees.
func (w *Watcher) Add(paths ...string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, path := range paths {
		if err := w.addRecursive(path); err != nil {
			return fmt.Errorf("failed to add path %s: %w", path, err)
		}
		w.watched[path] = true
	}
	return nil
}

// Close stops the watcher and closes the output channels.
func (w *Watcher) Close() error {
	w.cancel()
	err := w.fsw.Close()
	w.wg.Wait()
	close(w.batches)
	close(w.errs)
	w.log.Info("watcher closed")
	return err
}

// addRecursive registers a root and all its subdirectories. fsnotify
// watches are not recursive on most platforms.
func (w *Watcher) addRecursive(root string) error {
	if err := w.fsw.Add(root); err != nil {
		return fmt.Errorf("failed to add root path %s: %w", root, err)
	}

	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			// Unreadable subtree; keep what we have.
			return filepath.SkipDir
		}
		if info.IsDir() && path != root {
			if err := w.fsw.Add(path); err != nil {
				w.log.Warn("failed to watch subdirectory", "path", path, "error", err)
			}
		}
		return nil
	})
}

func (w *Watcher) loop() {
	defer w.wg.Done()

	var pending []Event
	var timer *time.Timer
	var timerC <-chan time.Time

	flush := func() {
		if len(pending) == 0 {
			return
		}
		select {
		case w.batches <- pending:
		default:
			w.log.Warn("batch channel full, dropping events", "count", len(pending))
		}
		pending = nil
	}

	for {
		select {
		case <-w.ctx.Done():
			flush()
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				flush()
				return
			}
			converted, ok := convert(ev)
			if !ok {
				continue
			}
			// New directories must themselves be watched for the
			// subtree to keep reporting.
			if converted.Type == EventCreate {
				if info, err := os.Lstat(ev.Name); err == nil && info.IsDir() {
					if err := w.fsw.Add(ev.Name); err != nil {
						w.log.Warn("failed to watch new directory", "path", ev.Name, "error", err)
					}
				}
			}
			pending = append(pending, converted)
			if w.config.BatchDelay <= 0 {
				flush()
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.config.BatchDelay)
				timerC = timer.C
			}

		case <-timerC:
			timer = nil
			timerC = nil
			flush()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				flush()
				return
			}
			select {
			case w.errs <- err:
			default:
				w.log.Warn("error channel full, dropping error", "error", err)
			}
		}
	}
}

// convert maps an fsnotify event to a watch event. Chmod-only changes
// carry nothing the index stores, so they are dropped.
func convert(ev fsnotify.Event) (Event, bool) {
	var t EventType
	switch {
	case ev.Has(fsnotify.Create):
		t = EventCreate
	case ev.Has(fsnotify.Write):
		t = EventWrite
	case ev.Has(fsnotify.Remove):
		t = EventRemove
	case ev.Has(fsnotify.Rename):
		t = EventRename
	default:
		return Event{}, false
	}
	return Event{Type: t, Path: filepath.ToSlash(ev.Name)}, true
}
