// Package journal drives the NTFS change journal: bulk MFT enumeration
// for full-volume indexing and paged change reads for incremental sync.
// Record decoding is portable and bounds-checked; the ioctl driver is
// Windows-only, other platforms report ErrUnsupported and callers fall
// back to a directory walk.
package journal

import "errors"

var (
	// ErrUnsupported is returned on platforms without a change journal.
	ErrUnsupported = errors.New("journal: not supported on this platform")

	// ErrInvalidated signals that the volume's journal id no longer
	// matches the saved cursor (journal recreated, e.g. reformat). The
	// volume must be fully re-enumerated.
	ErrInvalidated = errors.New("journal: journal id changed, full re-enumeration required")

	// ErrChangeVolumeExceeded signals that more change records
	// accumulated than the engine is willing to replay. The volume must
	// be fully re-enumerated.
	ErrChangeVolumeExceeded = errors.New("journal: too many pending changes, full re-enumeration required")

	// ErrNotVolumeRoot is returned when a path is not a bare volume root
	// and therefore cannot be journal-enumerated.
	ErrNotVolumeRoot = errors.New("journal: path is not a volume root")

	// ErrPermissionDenied is returned when the volume handle cannot be
	// opened with the needed rights. Elevation would help; until then
	// callers fall back to a walk.
	ErrPermissionDenied = errors.New("journal: access to volume denied")
)

// Reason bits carried by change records, as defined by the journal
// record format.
const (
	ReasonFileCreate    uint32 = 0x0000_0100
	ReasonFileDelete    uint32 = 0x0000_0200
	ReasonRenameOldName uint32 = 0x0000_1000
	ReasonRenameNewName uint32 = 0x0000_2000
)

// File attribute bits present on enumeration and change records.
const (
	AttrDirectory uint32 = 0x10
	AttrHidden    uint32 = 0x02
	AttrSystem    uint32 = 0x04
)

// VolumeState is the per-volume incremental-sync cursor, captured at
// the end of a successful full enumeration.
type VolumeState struct {
	Drive     byte
	JournalID uint64
	RootFRN   uint64
	LastUSN   int64
}

// Event is one decoded change record relevant to the index:
// create, delete, or rename (new-name side).
type Event struct {
	FRN        uint64
	ParentFRN  uint64
	Attributes uint32
	Reason     uint32
	Name       string
}

// IsDir reports whether the event's attributes mark a directory.
func (e Event) IsDir() bool { return e.Attributes&AttrDirectory != 0 }

// IsHidden reports whether the event's attributes mark a hidden or
// system object.
func (e Event) IsHidden() bool { return e.Attributes&(AttrHidden|AttrSystem) != 0 }

// Node is one raw MFT enumeration record before path resolution.
type Node struct {
	ParentFRN  uint64
	Name       string
	Attributes uint32
}
