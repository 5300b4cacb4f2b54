// Package index holds the in-memory entry table, its incremental
// mutation logic, and the on-disk cache codec. The entry table is
// exposed as an immutable snapshot that a rebuild replaces atomically,
// so readers never observe a partially built index.
package index

import (
	"sync"
	"sync/atomic"

	roaring "github.com/RoaringBitmap/roaring"

	"github.com/ZanzyTHEbar/seekfs/seekfs/journal"
)

// Handles are the shared atomic counters through which the owner of a
// background build observes progress and requests cooperative
// cancellation. Checked between batches, never mid-syscall.
type Handles struct {
	indexing atomic.Bool
	progress atomic.Uint64
	total    atomic.Uint64
}

// Begin marks an indexing pass as running and zeroes the progress
// counter. The total from the previous pass is kept as the progress
// denominator until the new pass finishes.
func (h *Handles) Begin() {
	h.indexing.Store(true)
	h.progress.Store(0)
}

// Cancel requests cooperative cancellation of the running pass.
func (h *Handles) Cancel() { h.indexing.Store(false) }

// IsIndexing reports whether a pass is running.
func (h *Handles) IsIndexing() bool { return h.indexing.Load() }

// Cancelled implements journal.Control.
func (h *Handles) Cancelled() bool { return !h.indexing.Load() }

// Progress implements journal.Control.
func (h *Handles) Progress(done int) { h.progress.Store(uint64(done)) }

// Counts returns the current (done, total) counters.
func (h *Handles) Counts() (uint64, uint64) {
	return h.progress.Load(), h.total.Load()
}

// Finish settles both counters at total and marks the pass done.
func (h *Handles) Finish(total int) {
	h.total.Store(uint64(total))
	h.progress.Store(uint64(total))
	h.indexing.Store(false)
}

var _ journal.Control = (*Handles)(nil)

// Snapshot is an immutable view of the entry table plus per-volume
// position bitmaps. It must never be mutated after publication; the
// syncer copies before applying events.
type Snapshot struct {
	Entries []Entry

	// byVolume maps a drive to the bitmap of entry positions on it.
	// Positions are indices into Entries and only valid for this
	// snapshot.
	byVolume map[byte]*roaring.Bitmap
}

// NewSnapshot builds the volume bitmaps for a finished entry slice.
func NewSnapshot(entries []Entry) *Snapshot {
	byVolume := make(map[byte]*roaring.Bitmap)
	for i := range entries {
		d := entries[i].Drive
		if d == 0 {
			continue
		}
		bm, ok := byVolume[d]
		if !ok {
			bm = roaring.New()
			byVolume[d] = bm
		}
		bm.Add(uint32(i))
	}
	return &Snapshot{Entries: entries, byVolume: byVolume}
}

// VolumePositions returns the positions of all entries on drive, or nil
// when the snapshot has none.
func (s *Snapshot) VolumePositions(drive byte) *roaring.Bitmap {
	return s.byVolume[drive]
}

// Store owns the shared snapshot handle and the per-volume sync
// cursors. Swapping the snapshot holds the lock only for the pointer
// exchange; building happens off to the side.
type Store struct {
	mu       sync.Mutex
	snapshot atomic.Pointer[Snapshot]
	volumes  []journal.VolumeState
	handles  Handles
}

// NewStore returns a store with an empty published snapshot.
func NewStore() *Store {
	s := &Store{}
	s.snapshot.Store(NewSnapshot(nil))
	return s
}

// Handles exposes the shared progress/cancellation counters.
func (s *Store) Handles() *Handles { return &s.handles }

// Snapshot returns the currently published snapshot.
func (s *Store) Snapshot() *Snapshot { return s.snapshot.Load() }

// EntryCount reports the size of the published snapshot.
func (s *Store) EntryCount() int { return len(s.Snapshot().Entries) }

// Replace publishes a freshly built snapshot and its volume cursors,
// and settles the progress counters.
func (s *Store) Replace(entries []Entry, volumes []journal.VolumeState) {
	snap := NewSnapshot(entries)
	s.mu.Lock()
	s.snapshot.Store(snap)
	s.volumes = volumes
	s.mu.Unlock()
	s.handles.Finish(len(entries))
}

// PublishEntries swaps in a new snapshot while leaving the volume
// cursors and the indexing counters alone. Incremental passes use
// this; touching the counters here would cancel a rebuild running
// alongside. Full rebuilds go through Replace.
func (s *Store) PublishEntries(entries []Entry) {
	snap := NewSnapshot(entries)
	s.mu.Lock()
	s.snapshot.Store(snap)
	s.mu.Unlock()
}

// Volumes returns a copy of the per-volume sync cursors.
func (s *Store) Volumes() []journal.VolumeState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]journal.VolumeState, len(s.volumes))
	copy(out, s.volumes)
	return out
}

// SetVolumes replaces the sync cursors, typically after an incremental
// pass advanced them.
func (s *Store) SetVolumes(volumes []journal.VolumeState) {
	s.mu.Lock()
	s.volumes = volumes
	s.mu.Unlock()
}
