package index

import (
	"log/slog"
	"strings"

	radix "github.com/armon/go-radix"

	"github.com/ZanzyTHEbar/seekfs/seekfs/journal"
)

// volumeView is the mutable working set for one volume during event
// application: a frn -> position lookup and a radix tree keyed by path
// for subtree cascades. The tree stores frns, not positions, so it
// stays valid across swap-removals.
type volumeView struct {
	entries  []Entry
	drive    byte
	rootFRN  uint64
	rootPath string
	frnToIdx map[uint64]int
	paths    *radix.Tree
}

// Apply converts a batch of change-journal events into mutations of a
// copy of the snapshot's entries and returns the mutated slice. The
// snapshot itself is never touched. Events must be applied in the
// order the journal delivered them.
//
// currentJournalID is the volume's live journal id; a mismatch against
// the saved cursor returns journal.ErrInvalidated with the entries
// unchanged, and the caller must fully re-enumerate the volume.
func Apply(snap *Snapshot, state journal.VolumeState, currentJournalID uint64, events []journal.Event) ([]Entry, error) {
	if currentJournalID != state.JournalID {
		return snap.Entries, journal.ErrInvalidated
	}
	entries := make([]Entry, len(snap.Entries))
	copy(entries, snap.Entries)
	if len(events) == 0 {
		return entries, nil
	}

	view := &volumeView{
		entries:  entries,
		drive:    state.Drive,
		rootFRN:  state.RootFRN,
		rootPath: journal.RootPath(state.Drive),
		frnToIdx: make(map[uint64]int),
		paths:    radix.New(),
	}
	if positions := snap.VolumePositions(state.Drive); positions != nil {
		it := positions.Iterator()
		for it.HasNext() {
			i := int(it.Next())
			e := &view.entries[i]
			if e.FRN != 0 {
				view.frnToIdx[e.FRN] = i
			}
			view.paths.Insert(e.Path, e.FRN)
		}
	}

	for _, ev := range events {
		switch {
		case ev.Reason&journal.ReasonFileDelete != 0:
			view.applyDelete(ev)
		case ev.Reason&journal.ReasonRenameNewName != 0:
			view.applyRename(ev)
		case ev.Reason&journal.ReasonFileCreate != 0:
			view.applyCreate(ev)
		}
	}
	return view.entries, nil
}

func (v *volumeView) applyDelete(ev journal.Event) {
	idx, ok := v.frnToIdx[ev.FRN]
	if !ok {
		return
	}
	wasDir := v.entries[idx].IsDir
	oldPath := v.entries[idx].Path
	v.removeAt(idx)
	if wasDir && oldPath != "" {
		v.removeSubtree(DirPrefix(oldPath))
	}
}

func (v *volumeView) applyRename(ev journal.Event) {
	newPath, ok := v.composePath(ev.ParentFRN, ev.Name)
	if !ok {
		// Parent unknown; the entry keeps its stale path until the next
		// full enumeration. Accepted staleness bound.
		slog.Debug("rename target parent unresolved, skipping", "frn", ev.FRN, "name", ev.Name)
		return
	}

	idx, known := v.frnToIdx[ev.FRN]
	if !known {
		// The create for this object was missed or reordered; synthesize.
		v.insert(ev, newPath)
		return
	}

	e := &v.entries[idx]
	oldPath := e.Path
	wasDir := e.IsDir

	v.paths.Delete(oldPath)
	e.SetName(ev.Name)
	e.SetPath(newPath)
	e.ParentFRN = ev.ParentFRN
	e.IsDir = ev.IsDir()
	e.IsHidden = ev.IsHidden()
	v.paths.Insert(newPath, e.FRN)

	if wasDir && oldPath != "" && oldPath != newPath {
		v.moveSubtree(DirPrefix(oldPath), DirPrefix(newPath))
	}
}

func (v *volumeView) applyCreate(ev journal.Event) {
	if _, exists := v.frnToIdx[ev.FRN]; exists {
		return
	}
	path, ok := v.composePath(ev.ParentFRN, ev.Name)
	if !ok {
		slog.Debug("create parent unresolved, dropping event", "frn", ev.FRN, "name", ev.Name)
		return
	}
	v.insert(ev, path)
}

func (v *volumeView) insert(ev journal.Event, path string) {
	e := Entry{
		Drive:      v.drive,
		FRN:        ev.FRN,
		ParentFRN:  ev.ParentFRN,
		Size:       SizeUnknown,
		ModifiedMS: 0,
		IsDir:      ev.IsDir(),
		IsHidden:   ev.IsHidden(),
	}
	e.SetName(ev.Name)
	e.SetPath(path)
	v.entries = append(v.entries, e)
	v.frnToIdx[ev.FRN] = len(v.entries) - 1
	v.paths.Insert(path, ev.FRN)
}

func (v *volumeView) composePath(parentFRN uint64, name string) (string, bool) {
	if parentFRN == v.rootFRN {
		return journal.ComposePath(v.rootPath, name), true
	}
	idx, ok := v.frnToIdx[parentFRN]
	if !ok {
		return "", false
	}
	return journal.ComposePath(v.entries[idx].Path, name), true
}

// removeAt removes the entry at idx by swapping in the last element,
// then repairs the frn lookup for the moved entry.
func (v *volumeView) removeAt(idx int) {
	removed := v.entries[idx]
	if removed.FRN != 0 {
		delete(v.frnToIdx, removed.FRN)
	}
	v.paths.Delete(removed.Path)

	last := len(v.entries) - 1
	v.entries[idx] = v.entries[last]
	v.entries = v.entries[:last]
	if idx < len(v.entries) {
		moved := &v.entries[idx]
		if moved.Drive == v.drive && moved.FRN != 0 {
			v.frnToIdx[moved.FRN] = idx
		}
	}
}

func (v *volumeView) removeSubtree(prefix string) {
	type hit struct {
		path string
		frn  uint64
	}
	var hits []hit
	v.paths.WalkPrefix(prefix, func(path string, value interface{}) bool {
		hits = append(hits, hit{path: path, frn: value.(uint64)})
		return false
	})
	for _, h := range hits {
		if idx := v.indexOf(h.frn, h.path); idx >= 0 {
			v.removeAt(idx)
		}
	}
}

// indexOf locates an entry by frn, falling back to a path scan for
// walk-sourced entries that carry no frn (overlapping roots can put
// such entries on a journal volume).
func (v *volumeView) indexOf(frn uint64, path string) int {
	if frn != 0 {
		if idx, ok := v.frnToIdx[frn]; ok {
			return idx
		}
		return -1
	}
	for i := range v.entries {
		if v.entries[i].Drive == v.drive && v.entries[i].FRN == 0 && v.entries[i].Path == path {
			return i
		}
	}
	return -1
}

// moveSubtree rewrites the path prefix of every descendant without
// re-deriving full paths from parent chains.
func (v *volumeView) moveSubtree(oldPrefix, newPrefix string) {
	type moved struct {
		path string
		frn  uint64
	}
	var descendants []moved
	v.paths.WalkPrefix(oldPrefix, func(path string, value interface{}) bool {
		descendants = append(descendants, moved{path: path, frn: value.(uint64)})
		return false
	})
	for _, d := range descendants {
		idx := v.indexOf(d.frn, d.path)
		if idx < 0 {
			continue
		}
		rest := strings.TrimPrefix(d.path, oldPrefix)
		v.paths.Delete(d.path)
		v.entries[idx].SetPath(newPrefix + rest)
		v.paths.Insert(v.entries[idx].Path, d.frn)
	}
}
