package enumerate

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"

	ignore "github.com/sabhiram/go-gitignore"
	"github.com/sourcegraph/conc/pool"

	"github.com/ZanzyTHEbar/seekfs/seekfs/index"
)

// walkProgressBatch is how many processed items pass between progress
// counter stores; storing per item would serialize the workers.
const walkProgressBatch = 1000

// walker is the directory-walk fallback enumerator. It processes one
// BFS level of directories at a time on a bounded worker pool, does not
// follow symbolic links, and does not cross filesystem boundaries.
type walker struct {
	maxWorkers int
	ignore     *ignore.GitIgnore
	handles    cancelProgress

	mu      sync.Mutex
	entries []index.Entry
	count   atomic.Uint64
	base    uint64
}

// cancelProgress is the subset of the shared handles the walker needs.
type cancelProgress interface {
	Cancelled() bool
	Progress(done int)
}

func newWalker(ignoreMatcher *ignore.GitIgnore, handles cancelProgress, progressBase uint64) *walker {
	maxWorkers := runtime.NumCPU() * 2
	if maxWorkers < 4 {
		maxWorkers = 4
	}
	if maxWorkers > 32 {
		maxWorkers = 32
	}
	return &walker{
		maxWorkers: maxWorkers,
		ignore:     ignoreMatcher,
		handles:    handles,
		base:       progressBase,
	}
}

// run walks root breadth-first and returns every reachable entry,
// including root itself. Cancellation returns whatever was collected.
func (w *walker) run(root string) []index.Entry {
	abs, err := filepath.Abs(root)
	if err != nil {
		slog.Warn("walk root not resolvable", "root", root, "error", err)
		return nil
	}
	rootInfo, err := os.Lstat(abs)
	if err != nil {
		slog.Warn("walk root not accessible", "root", abs, "error", err)
		return nil
	}
	rootDev := deviceID(rootInfo)

	w.appendEntry(abs, rootInfo)
	if !rootInfo.IsDir() {
		return w.entries
	}

	level := []string{abs}
	for len(level) > 0 && !w.handles.Cancelled() {
		var nextMu sync.Mutex
		var next []string

		p := pool.New().WithMaxGoroutines(w.maxWorkers)
		for _, dir := range level {
			p.Go(func() {
				children := w.processDir(dir, rootDev)
				if len(children) == 0 {
					return
				}
				nextMu.Lock()
				next = append(next, children...)
				nextMu.Unlock()
			})
		}
		p.Wait()
		level = next
	}

	w.handles.Progress(int(w.base + w.count.Load()))
	return w.entries
}

// processDir reads one directory, records its entries, and returns the
// subdirectories to descend into.
func (w *walker) processDir(dir string, rootDev uint64) []string {
	if w.handles.Cancelled() {
		return nil
	}
	dirents, err := os.ReadDir(dir)
	if err != nil {
		slog.Debug("skipping unreadable directory", "path", dir, "error", err)
		return nil
	}

	var subdirs []string
	for _, d := range dirents {
		childPath := filepath.Join(dir, d.Name())
		if w.ignore != nil && w.ignore.MatchesPath(childPath) {
			continue
		}
		// Lstat keeps symlinks as links; they are indexed but never
		// descended into.
		info, err := os.Lstat(childPath)
		if err != nil {
			continue
		}
		w.appendEntry(childPath, info)

		if info.IsDir() && info.Mode()&fs.ModeSymlink == 0 {
			if dev := deviceID(info); dev == rootDev {
				subdirs = append(subdirs, childPath)
			}
		}
	}
	return subdirs
}

func (w *walker) appendEntry(path string, info fs.FileInfo) {
	normalized := filepath.ToSlash(path)
	name := info.Name()
	if name == "" || name == "." || name == "/" {
		name = index.BaseName(normalized)
	}

	modified := info.ModTime().UnixMilli()
	if modified < 0 {
		modified = 0
	}

	e := index.Entry{
		Drive:      index.DriveOf(normalized),
		Size:       uint64(info.Size()),
		ModifiedMS: uint64(modified),
		IsDir:      info.IsDir(),
		IsHidden:   isHidden(normalized, name, info),
	}
	e.SetName(name)
	e.SetPath(normalized)

	w.mu.Lock()
	w.entries = append(w.entries, e)
	w.mu.Unlock()

	if n := w.count.Add(1); n%walkProgressBatch == 0 {
		w.handles.Progress(int(w.base + n))
	}
}
