package engine

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/seekfs/seekfs/index"
	"github.com/ZanzyTHEbar/seekfs/seekfs/journal"
	"github.com/ZanzyTHEbar/seekfs/seekfs/search"
	"github.com/ZanzyTHEbar/seekfs/seekfs/watch"
)

func seedTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		full := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
	return root
}

func waitIdle(t *testing.T, eng *Engine) {
	t.Helper()
	require.Eventually(t, func() bool { return !eng.IsIndexing() },
		10*time.Second, 10*time.Millisecond, "rebuild did not finish")
}

func defaultFiles() map[string]string {
	return map[string]string{
		"readme.md":            "hello",
		"docs/design notes.md": "d",
		"src/main.go":          "package main",
		"src/util/helper.go":   "package util",
	}
}

func TestEngineRebuildAndSearch(t *testing.T) {
	root := seedTree(t, defaultFiles())
	eng := New()

	eng.Rebuild([]string{root})
	waitIdle(t, eng)

	// Root + docs + src + src/util + 4 files.
	assert.Equal(t, 8, eng.EntryCount())

	results := eng.Search("readme", search.DefaultOptions())
	require.NotEmpty(t, results)
	assert.Equal(t, "readme.md", results[0].Entry.Name)

	stats := eng.Stats()
	assert.Equal(t, 8, stats.TotalEntries)
	require.Len(t, stats.Roots, 1)
}

func TestEngineRebuildLastRequestWins(t *testing.T) {
	small := seedTree(t, map[string]string{"one.txt": "1"})
	large := seedTree(t, defaultFiles())
	eng := New()

	eng.Rebuild([]string{large})
	eng.Rebuild([]string{small})
	waitIdle(t, eng)

	require.Eventually(t, func() bool { return eng.EntryCount() == 2 },
		10*time.Second, 10*time.Millisecond,
		"only the newest rebuild publishes")

	results := eng.Search("one", search.DefaultOptions())
	require.NotEmpty(t, results)
	assert.Equal(t, "one.txt", results[0].Entry.Name)
}

func TestEngineCancelRebuild(t *testing.T) {
	root := seedTree(t, defaultFiles())
	eng := New()

	eng.Rebuild([]string{root})
	eng.CancelRebuild()

	assert.False(t, eng.IsIndexing())
	// The cancelled pass must never publish, no matter when it ends.
	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, eng.EntryCount())
}

func TestEngineSearchAsync(t *testing.T) {
	root := seedTree(t, defaultFiles())
	eng := New()
	eng.Rebuild([]string{root})
	waitIdle(t, eng)

	delivered := make(chan []search.Result, 1)
	eng.SearchAsync("helper", search.DefaultOptions(), func(r []search.Result) {
		delivered <- r
	})

	select {
	case results := <-delivered:
		require.NotEmpty(t, results)
		assert.Equal(t, "helper.go", results[0].Entry.Name)
	case <-time.After(5 * time.Second):
		t.Fatal("async search never delivered")
	}
}

func TestEngineCachePersistence(t *testing.T) {
	root := seedTree(t, defaultFiles())
	cachePath := filepath.Join(t.TempDir(), "index.skfs")

	first := New(WithCachePath(cachePath))
	first.Rebuild([]string{root})
	waitIdle(t, first)
	require.NoError(t, first.SaveCache())

	second := New(WithCachePath(cachePath))
	n, err := second.LoadCache()
	require.NoError(t, err)
	assert.Equal(t, 8, n)
	assert.Equal(t, 8, second.EntryCount())

	results := second.Search("design notes", search.DefaultOptions())
	require.NotEmpty(t, results)
	assert.Equal(t, "design notes.md", results[0].Entry.Name)
}

func TestEngineLoadCacheMissing(t *testing.T) {
	eng := New(WithCachePath(filepath.Join(t.TempDir(), "absent.skfs")))
	_, err := eng.LoadCache()
	assert.Error(t, err)

	noPath := New()
	_, err = noPath.LoadCache()
	assert.Error(t, err)
}

func TestEngineRefreshWithoutJournalVolumes(t *testing.T) {
	root := seedTree(t, defaultFiles())
	eng := New()
	eng.Rebuild([]string{root})
	waitIdle(t, eng)

	assert.ErrorIs(t, eng.Refresh(), ErrNoJournalVolumes)
}

// seedJournalVolume loads the store with journal-enumerated entries and
// a sync cursor, the state Refresh operates on.
func seedJournalVolume(eng *Engine) journal.VolumeState {
	mk := func(frn, parent uint64, path string, dir bool) index.Entry {
		e := index.Entry{Drive: 'C', FRN: frn, ParentFRN: parent, Size: index.SizeUnknown, IsDir: dir}
		e.SetName(index.BaseName(path))
		e.SetPath(path)
		return e
	}
	state := journal.VolumeState{Drive: 'C', JournalID: 7, RootFRN: 5, LastUSN: 100}
	eng.store.Replace([]index.Entry{
		mk(10, 5, "C:/data", true),
		mk(11, 10, "C:/data/a.txt", false),
		mk(12, 10, "C:/data/b.txt", false),
	}, []journal.VolumeState{state})
	return state
}

func TestEngineRefreshAppliesJournalEvents(t *testing.T) {
	eng := New()
	seedJournalVolume(eng)

	eng.readEvents = func(state *journal.VolumeState, _ journal.Control) ([]journal.Event, error) {
		state.LastUSN = 200
		return []journal.Event{
			{FRN: 11, ParentFRN: 10, Reason: journal.ReasonFileDelete, Name: "a.txt"},
		}, nil
	}

	require.NoError(t, eng.Refresh())
	assert.Equal(t, 2, eng.EntryCount())
	paths := make(map[string]bool)
	for _, e := range eng.store.Snapshot().Entries {
		paths[e.Path] = true
	}
	assert.NotContains(t, paths, "C:/data/a.txt")
	assert.Contains(t, paths, "C:/data/b.txt")

	volumes := eng.store.Volumes()
	require.Len(t, volumes, 1)
	assert.Equal(t, int64(200), volumes[0].LastUSN, "cursor advances with the applied batch")
}

func TestEngineRefreshDropsCursorOnReadFailure(t *testing.T) {
	// A failed journal read may already have advanced the cursor past
	// events that were never applied. The cursor must not survive unless
	// a full re-enumeration of the volume succeeds.
	eng := New()
	seedJournalVolume(eng)

	eng.readEvents = func(state *journal.VolumeState, _ journal.Control) ([]journal.Event, error) {
		state.LastUSN = 999
		return nil, errors.New("device error")
	}

	err := eng.Refresh()
	require.Error(t, err)
	assert.Empty(t, eng.store.Volumes(), "advanced cursor is not persisted")
	assert.Equal(t, 3, eng.EntryCount(), "entries stay as they were")
	assert.False(t, eng.IsIndexing())
}

func TestEngineRebuildSurvivesConcurrentWatchBatches(t *testing.T) {
	// Batches derived from a pre-rebuild snapshot must not land after the
	// rebuild publishes and roll the index back.
	root := seedTree(t, defaultFiles())
	loose := filepath.Join(root, "loose.txt")
	require.NoError(t, os.WriteFile(loose, []byte("x"), 0o644))

	abs, err := filepath.Abs(root)
	require.NoError(t, err)
	prefix := filepath.ToSlash(abs)

	eng := New()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			eng.applyWatchBatch([]watch.Event{
				{Type: watch.EventWrite, Path: prefix + "/loose.txt"},
			})
		}
	}()

	eng.Rebuild([]string{root})
	waitIdle(t, eng)
	<-done

	// Every publication after the rebuild's derives from its snapshot,
	// so the walked tree is intact no matter how the batches interleaved.
	assert.Equal(t, 9, eng.EntryCount())
	results := eng.Search("readme", search.DefaultOptions())
	require.NotEmpty(t, results)
	assert.Equal(t, "readme.md", results[0].Entry.Name)
}

func TestEngineApplyWatchBatch(t *testing.T) {
	root := seedTree(t, defaultFiles())
	eng := New()
	eng.Rebuild([]string{root})
	waitIdle(t, eng)
	require.Equal(t, 8, eng.EntryCount())

	abs, err := filepath.Abs(root)
	require.NoError(t, err)
	prefix := filepath.ToSlash(abs)

	// Create lands as an upsert backed by a stat.
	newFile := filepath.Join(root, "late.txt")
	require.NoError(t, os.WriteFile(newFile, []byte("late"), 0o644))
	eng.applyWatchBatch([]watch.Event{
		{Type: watch.EventCreate, Path: prefix + "/late.txt"},
	})
	assert.Equal(t, 9, eng.EntryCount())
	results := eng.Search("late", search.DefaultOptions())
	require.NotEmpty(t, results)
	assert.Equal(t, uint64(4), results[0].Entry.Size)

	// Write on a known path updates in place.
	require.NoError(t, os.WriteFile(newFile, []byte("late but longer"), 0o644))
	eng.applyWatchBatch([]watch.Event{
		{Type: watch.EventWrite, Path: prefix + "/late.txt"},
	})
	assert.Equal(t, 9, eng.EntryCount())
	results = eng.Search("late", search.DefaultOptions())
	require.NotEmpty(t, results)
	assert.Equal(t, uint64(15), results[0].Entry.Size)

	// Removing a directory path cascades to everything under it.
	eng.applyWatchBatch([]watch.Event{
		{Type: watch.EventRemove, Path: prefix + "/src"},
	})
	assert.Equal(t, 5, eng.EntryCount())
	assert.Empty(t, eng.Search("helper", search.DefaultOptions()))

	// Stat racing a delete drops the event rather than inserting junk.
	eng.applyWatchBatch([]watch.Event{
		{Type: watch.EventCreate, Path: prefix + "/ghost.txt"},
	})
	assert.Equal(t, 5, eng.EntryCount())
}

func TestSortResultsByPath(t *testing.T) {
	mk := func(path string) search.Result {
		var e index.Entry
		e.SetPath(path)
		e.SetName(index.BaseName(path))
		return search.Result{Entry: e}
	}
	results := []search.Result{mk("/b/z.txt"), mk("/a/y.txt"), mk("/a/b.txt")}

	SortResultsByPath(results)

	assert.Equal(t, "/a/b.txt", results[0].Entry.Path)
	assert.Equal(t, "/a/y.txt", results[1].Entry.Path)
	assert.Equal(t, "/b/z.txt", results[2].Entry.Path)
}
