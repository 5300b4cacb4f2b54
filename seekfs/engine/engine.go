// Package engine is the embeddable front of the index: it owns the
// entry store, schedules rebuilds and incremental refreshes, and
// answers queries against whichever snapshot is current.
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"

	ignore "github.com/sabhiram/go-gitignore"

	"github.com/ZanzyTHEbar/seekfs/seekfs/enumerate"
	"github.com/ZanzyTHEbar/seekfs/seekfs/index"
	"github.com/ZanzyTHEbar/seekfs/seekfs/journal"
	"github.com/ZanzyTHEbar/seekfs/seekfs/search"
	"github.com/ZanzyTHEbar/seekfs/seekfs/watch"
)

// ErrNoJournalVolumes reports a Refresh call when nothing in the index
// came from a change journal.
var ErrNoJournalVolumes = errors.New("engine: no journal-backed volumes to refresh")

// Engine coordinates enumeration, sync, persistence, and search over a
// single shared store. All methods are safe for concurrent use.
type Engine struct {
	log           *slog.Logger
	store         *index.Store
	enumerator    *enumerate.Enumerator
	ignoreMatcher *ignore.GitIgnore
	cachePath     string

	// buildGen and searchGen implement last-request-wins: a finished
	// background pass publishes only when its generation is still the
	// newest one issued.
	buildGen  atomic.Uint64
	searchGen atomic.Uint64

	// applyMu serializes every snapshot publication: the
	// read-copy-publish cycles of refresh and watch batches, and the
	// wholesale replace of a finished rebuild. Without it a batch built
	// from a pre-rebuild snapshot could land after the rebuild and
	// overwrite it.
	applyMu sync.Mutex

	// readEvents is the incremental journal read, replaceable in tests.
	readEvents func(state *journal.VolumeState, ctrl journal.Control) ([]journal.Event, error)

	statsMu   sync.Mutex
	lastStats enumerate.BuildStats

	watcher *watch.Watcher
	watchWG sync.WaitGroup
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the structured logger.
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithCachePath sets where snapshots persist. Empty disables caching.
func WithCachePath(path string) Option {
	return func(e *Engine) { e.cachePath = path }
}

// WithIgnore sets the matcher used to skip paths during walks.
func WithIgnore(matcher *ignore.GitIgnore) Option {
	return func(e *Engine) { e.ignoreMatcher = matcher }
}

// New constructs an Engine with an empty index.
func New(opts ...Option) *Engine {
	e := &Engine{
		log:        slog.Default(),
		store:      index.NewStore(),
		readEvents: journal.ReadEvents,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.enumerator = enumerate.New(e.log, e.ignoreMatcher)
	return e
}

// Rebuild starts a full enumeration of roots in the background and
// returns immediately. A newer Rebuild supersedes an older one: the
// older pass keeps running but its result is discarded, and the
// shared indexing flag tells it to stop early.
func (e *Engine) Rebuild(roots []string) {
	gen := e.buildGen.Add(1)
	handles := e.store.Handles()
	handles.Begin()

	go func() {
		entries, volumes, stats := e.enumerator.Run(roots, handles)

		e.applyMu.Lock()
		if e.buildGen.Load() != gen {
			e.applyMu.Unlock()
			e.log.Debug("rebuild superseded, discarding result",
				"generation", gen, "entries", len(entries))
			return
		}
		e.store.Replace(entries, volumes)
		e.applyMu.Unlock()

		e.statsMu.Lock()
		e.lastStats = stats
		e.statsMu.Unlock()

		e.log.Info("rebuild finished",
			"generation", gen,
			"entries", stats.TotalEntries,
			"roots", len(stats.Roots),
			"duration", stats.Duration)

		if e.cachePath != "" {
			if err := index.SaveCache(e.cachePath, entries); err != nil {
				e.log.Warn("failed to persist index cache", "path", e.cachePath, "error", err)
			}
		}
	}()
}

// CancelRebuild asks any in-flight enumeration to stop.
func (e *Engine) CancelRebuild() {
	e.buildGen.Add(1)
	e.store.Handles().Cancel()
}

// IsIndexing reports whether a rebuild is running.
func (e *Engine) IsIndexing() bool { return e.store.Handles().IsIndexing() }

// Progress returns entries processed so far and the total from the
// previous build, which serves as the progress denominator.
func (e *Engine) Progress() (done, total uint64) { return e.store.Handles().Counts() }

// EntryCount returns the size of the current snapshot.
func (e *Engine) EntryCount() int { return e.store.EntryCount() }

// Stats returns the diagnostics of the most recent completed build.
func (e *Engine) Stats() enumerate.BuildStats {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	return e.lastStats
}

// Search runs a query synchronously against the current snapshot.
func (e *Engine) Search(query string, opts search.Options) []search.Result {
	s := &search.Searcher{Options: opts}
	return s.Search(e.store.Snapshot().Entries, query)
}

// SearchAsync runs the query on a fresh goroutine and invokes deliver
// with the results, unless a newer SearchAsync was issued meanwhile,
// in which case the stale results are dropped and deliver is not
// called. Typing in a UI issues one of these per keystroke.
func (e *Engine) SearchAsync(query string, opts search.Options, deliver func([]search.Result)) {
	gen := e.searchGen.Add(1)
	snapshot := e.store.Snapshot()

	go func() {
		s := &search.Searcher{Options: opts}
		results := s.Search(snapshot.Entries, query)
		if e.searchGen.Load() != gen {
			return
		}
		deliver(results)
	}()
}

// Refresh applies pending change-journal events to every journal-backed
// volume. A volume whose journal was invalidated or overflowed is fully
// re-enumerated instead. Walk-only indexes return ErrNoJournalVolumes.
func (e *Engine) Refresh() error {
	volumes := e.store.Volumes()
	if len(volumes) == 0 {
		return ErrNoJournalVolumes
	}

	e.applyMu.Lock()
	defer e.applyMu.Unlock()

	var firstErr error
	updated := make([]journal.VolumeState, 0, len(volumes))
	for _, state := range volumes {
		events, err := e.readEvents(&state, journal.NopControl)
		if err != nil {
			// Any read failure leaves the cursor untrustworthy: pages
			// consumed before the error already advanced it past events
			// that were never applied. The volume is rebuilt from
			// scratch; if even that fails, the cursor is dropped so the
			// gap cannot be papered over.
			e.log.Warn("incremental read failed, re-enumerating volume",
				"drive", string(rune(state.Drive)), "reason", err)
			newState, reErr := e.reenumerateVolume(state.Drive)
			if reErr != nil {
				firstErr = orFirst(firstErr, fmt.Errorf("refresh drive %c: %w", state.Drive, reErr))
				continue
			}
			updated = append(updated, newState)
			continue
		}

		if len(events) > 0 {
			snap := e.store.Snapshot()
			entries, applyErr := index.Apply(snap, state, state.JournalID, events)
			if applyErr != nil {
				firstErr = orFirst(firstErr, applyErr)
				updated = append(updated, state)
				continue
			}
			e.store.PublishEntries(entries)
			e.log.Info("volume refreshed",
				"drive", string(rune(state.Drive)), "events", len(events))
		}
		updated = append(updated, state)
	}

	e.store.SetVolumes(updated)
	return firstErr
}

// reenumerateVolume rebuilds one volume in place: its old entries are
// dropped and the fresh enumeration appended, entries on other volumes
// untouched.
func (e *Engine) reenumerateVolume(drive byte) (journal.VolumeState, error) {
	root := journal.RootPath(drive)
	handles := e.store.Handles()
	handles.Begin()
	entries, volumes, _ := e.enumerator.Run([]string{root}, handles)
	if len(volumes) != 1 {
		handles.Cancel()
		return journal.VolumeState{}, fmt.Errorf("re-enumeration of %s did not produce a journal volume", root)
	}

	snap := e.store.Snapshot()
	kept := make([]index.Entry, 0, len(snap.Entries)+len(entries))
	for i := range snap.Entries {
		if snap.Entries[i].Drive != drive {
			kept = append(kept, snap.Entries[i])
		}
	}
	kept = append(kept, entries...)
	e.store.PublishEntries(kept)
	handles.Finish(len(kept))
	return volumes[0], nil
}

// LoadCache warm-starts the index from the persisted snapshot. Cached
// entries carry no journal identity, so a Refresh is not possible until
// the next Rebuild.
func (e *Engine) LoadCache() (int, error) {
	if e.cachePath == "" {
		return 0, errors.New("engine: no cache path configured")
	}
	entries, err := index.LoadCache(e.cachePath)
	if err != nil {
		return 0, err
	}
	e.store.Replace(entries, nil)
	e.log.Info("index loaded from cache", "path", e.cachePath, "entries", len(entries))
	return len(entries), nil
}

// SaveCache persists the current snapshot.
func (e *Engine) SaveCache() error {
	if e.cachePath == "" {
		return errors.New("engine: no cache path configured")
	}
	return index.SaveCache(e.cachePath, e.store.Snapshot().Entries)
}

// StartWatch begins following the given roots with fsnotify and applies
// each coalesced batch to the snapshot. Meant for walk-enumerated
// roots; journal volumes should use Refresh.
func (e *Engine) StartWatch(roots []string) error {
	if e.watcher != nil {
		return errors.New("engine: watcher already running")
	}
	w, err := watch.NewWatcher(watch.DefaultConfig(), e.log)
	if err != nil {
		return err
	}
	if err := w.Start(roots); err != nil {
		w.Close()
		return err
	}
	e.watcher = w

	e.watchWG.Add(1)
	go func() {
		defer e.watchWG.Done()
		for batch := range w.Batches() {
			e.applyWatchBatch(batch)
		}
	}()
	e.watchWG.Add(1)
	go func() {
		defer e.watchWG.Done()
		for err := range w.Errors() {
			e.log.Warn("watcher error", "error", err)
		}
	}()
	return nil
}

// StopWatch shuts the watcher down, if one is running.
func (e *Engine) StopWatch() error {
	if e.watcher == nil {
		return nil
	}
	err := e.watcher.Close()
	e.watchWG.Wait()
	e.watcher = nil
	return err
}

// applyWatchBatch folds one batch of filesystem notifications into the
// snapshot. Removes and renames cascade through subtrees; creates and
// writes stat the path and upsert it.
func (e *Engine) applyWatchBatch(batch []watch.Event) {
	if len(batch) == 0 {
		return
	}

	e.applyMu.Lock()
	defer e.applyMu.Unlock()

	snap := e.store.Snapshot()
	entries := append([]index.Entry(nil), snap.Entries...)

	byPath := make(map[string]int, len(entries))
	for i := range entries {
		byPath[entries[i].Path] = i
	}

	removePrefix := func(path string) {
		prefix := path + "/"
		kept := entries[:0]
		for i := range entries {
			if entries[i].Path == path || len(entries[i].Path) > len(prefix) && entries[i].Path[:len(prefix)] == prefix {
				continue
			}
			kept = append(kept, entries[i])
		}
		entries = kept
		byPath = make(map[string]int, len(entries))
		for i := range entries {
			byPath[entries[i].Path] = i
		}
	}

	for _, ev := range batch {
		switch ev.Type {
		case watch.EventRemove, watch.EventRename:
			// fsnotify reports a rename against the old path; the new
			// path arrives as a separate create.
			removePrefix(ev.Path)

		case watch.EventCreate, watch.EventWrite:
			info, err := os.Lstat(filepath.FromSlash(ev.Path))
			if err != nil {
				// Raced with a delete; the remove event will follow.
				continue
			}
			entry := index.Entry{
				Drive: index.DriveOf(ev.Path),
				Size:  uint64(info.Size()),
				IsDir: info.IsDir(),
			}
			if info.IsDir() {
				entry.Size = index.SizeUnknown
			}
			if ms := info.ModTime().UnixMilli(); ms > 0 {
				entry.ModifiedMS = uint64(ms)
			}
			entry.SetName(filepath.Base(ev.Path))
			entry.SetPath(ev.Path)
			entry.IsHidden = len(entry.Name) > 0 && entry.Name[0] == '.'

			if i, ok := byPath[ev.Path]; ok {
				keepHidden := entries[i].IsHidden
				entries[i].Size = entry.Size
				entries[i].ModifiedMS = entry.ModifiedMS
				entries[i].IsHidden = keepHidden || entry.IsHidden
			} else {
				byPath[ev.Path] = len(entries)
				entries = append(entries, entry)
			}
		}
	}

	e.store.PublishEntries(entries)
	e.log.Debug("watch batch applied", "events", len(batch), "entries", len(entries))
}

// SortResultsByPath reorders results lexicographically by path, for
// presentation modes that want stable listings over relevance order.
func SortResultsByPath(results []search.Result) {
	sort.Slice(results, func(i, j int) bool {
		return results[i].Entry.PathLower < results[j].Entry.PathLower
	})
}

func orFirst(first, next error) error {
	if first != nil {
		return first
	}
	return next
}
