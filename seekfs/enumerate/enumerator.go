package enumerate

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"syscall"
	"time"

	"github.com/google/uuid"
	ignore "github.com/sabhiram/go-gitignore"

	"github.com/ZanzyTHEbar/seekfs/seekfs/index"
	"github.com/ZanzyTHEbar/seekfs/seekfs/journal"
)

// Enumerator runs full scans over a set of root paths, choosing the
// journal strategy for bare volume roots and falling back to a
// directory walk for everything else and for every journal failure.
type Enumerator struct {
	log    *slog.Logger
	ignore *ignore.GitIgnore
}

// New returns an Enumerator. ignoreMatcher may be nil; when set, walk
// enumeration skips matching paths.
func New(log *slog.Logger, ignoreMatcher *ignore.GitIgnore) *Enumerator {
	if log == nil {
		log = slog.Default()
	}
	return &Enumerator{log: log, ignore: ignoreMatcher}
}

// Run enumerates every root and returns the collected entries, the
// per-volume sync cursors created by successful journal enumerations,
// and per-root diagnostics. Cancellation through handles returns
// whatever has been collected so far.
func (e *Enumerator) Run(roots []string, handles *index.Handles) ([]index.Entry, []journal.VolumeState, BuildStats) {
	stats := BuildStats{ID: uuid.New()}
	start := time.Now()

	var all []index.Entry
	var volumes []journal.VolumeState

	for _, root := range roots {
		if handles.Cancelled() {
			break
		}
		rootStart := time.Now()
		rs := RootStats{Root: root, Source: SourceWalk}

		if drive, ok := journal.VolumeRoot(root); ok {
			entries, state, err := e.enumerateVolume(drive, handles, uint64(len(all)))
			if err == nil {
				rs.Source = SourceJournal
				rs.Entries = len(entries)
				rs.Duration = time.Since(rootStart)
				all = append(all, entries...)
				volumes = append(volumes, state)
				stats.Roots = append(stats.Roots, rs)
				e.log.Info("journal enumeration finished",
					"root", root, "entries", rs.Entries, "duration", rs.Duration)
				continue
			}
			rs.Note = journalFailureNote(err)
			e.log.Warn("journal enumeration failed, falling back to walk",
				"root", root, "error", err)
		}

		if _, err := os.Lstat(root); err != nil {
			note := fmt.Sprintf("root not accessible: %v", err)
			if rs.Note != "" {
				rs.Note += "; " + note
			} else {
				rs.Note = note
			}
			rs.Duration = time.Since(rootStart)
			stats.Roots = append(stats.Roots, rs)
			continue
		}

		entries := newWalker(e.ignore, handles, uint64(len(all))).run(root)
		rs.Entries = len(entries)
		rs.Duration = time.Since(rootStart)
		all = append(all, entries...)
		stats.Roots = append(stats.Roots, rs)
		e.log.Info("walk enumeration finished",
			"root", root, "entries", rs.Entries, "duration", rs.Duration, "note", rs.Note)
	}

	stats.TotalEntries = len(all)
	stats.Duration = time.Since(start)
	return all, volumes, stats
}

// enumerateVolume runs the journal bulk read for one volume and
// converts the raw node map into index entries with resolved paths.
func (e *Enumerator) enumerateVolume(drive byte, handles *index.Handles, progressBase uint64) ([]index.Entry, journal.VolumeState, error) {
	nodes, state, err := journal.EnumerateVolume(drive, &offsetControl{inner: handles, base: progressBase})
	if err != nil {
		return nil, journal.VolumeState{}, err
	}

	paths := journal.ResolvePaths(nodes, state.RootFRN, drive)
	entries := make([]index.Entry, 0, len(nodes))
	for frn, node := range nodes {
		if frn == state.RootFRN {
			continue
		}
		path, ok := paths[frn]
		if !ok {
			// Broken or cyclic parent chain; dropped, not crashed on.
			continue
		}
		entry := index.Entry{
			Drive:      drive,
			FRN:        frn,
			ParentFRN:  node.ParentFRN,
			Size:       index.SizeUnknown,
			ModifiedMS: 0,
			IsDir:      node.Attributes&journal.AttrDirectory != 0,
			IsHidden:   node.Attributes&(journal.AttrHidden|journal.AttrSystem) != 0,
		}
		entry.SetName(node.Name)
		entry.SetPath(path)
		entries = append(entries, entry)
	}
	handles.Progress(int(progressBase) + len(entries))
	return entries, state, nil
}

// journalFailureNote renders a diagnostic note for the per-root stats,
// keeping the platform error code visible so embedders can tell an
// access-denied (elevation would help) from anything else.
func journalFailureNote(err error) string {
	if errors.Is(err, journal.ErrUnsupported) {
		return "journal unavailable on this platform; used walk"
	}
	if errors.Is(err, journal.ErrPermissionDenied) {
		return fmt.Sprintf("journal access denied, elevation would enable it: %v; used walk", err)
	}
	if code, ok := osErrorCode(err); ok {
		return fmt.Sprintf("journal enumeration failed (code=%d): %v; used walk", code, err)
	}
	return fmt.Sprintf("journal enumeration failed: %v; used walk", err)
}

func osErrorCode(err error) (int, bool) {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return int(errno), true
	}
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		if e, ok := pathErr.Err.(syscall.Errno); ok {
			return int(e), true
		}
	}
	return 0, false
}

// offsetControl shifts progress reports by the number of entries the
// pass already produced for earlier roots.
type offsetControl struct {
	inner *index.Handles
	base  uint64
}

func (c *offsetControl) Cancelled() bool { return c.inner.Cancelled() }
func (c *offsetControl) Progress(done int) {
	c.inner.Progress(int(c.base) + done)
}
