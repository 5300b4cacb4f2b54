//go:build windows

package journal

import (
	"encoding/binary"
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

// winioctl.h control codes for the change journal.
const (
	fsctlQueryUSNJournal = 0x000900F4
	fsctlEnumUSNData     = 0x000900B3
	fsctlReadUSNJournal  = 0x000900BB
)

// usnJournalData mirrors USN_JOURNAL_DATA_V0.
type usnJournalData struct {
	JournalID       uint64
	FirstUSN        int64
	NextUSN         int64
	LowestValidUSN  int64
	MaxUSN          int64
	MaxSize         uint64
	AllocationDelta uint64
}

// mftEnumData mirrors MFT_ENUM_DATA_V0.
type mftEnumData struct {
	StartFileReferenceNumber uint64
	LowUSN                   int64
	HighUSN                  int64
}

// readUSNJournalData mirrors READ_USN_JOURNAL_DATA_V0.
type readUSNJournalData struct {
	StartUSN          int64
	ReasonMask        uint32
	ReturnOnlyOnClose uint32
	Timeout           uint64
	BytesToWaitFor    uint64
	JournalID         uint64
}

func openVolume(drive byte) (windows.Handle, error) {
	path, err := windows.UTF16PtrFromString(fmt.Sprintf(`\\.\%c:`, drive))
	if err != nil {
		return windows.InvalidHandle, err
	}
	h, err := windows.CreateFile(path,
		windows.GENERIC_READ,
		windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE|windows.FILE_SHARE_DELETE,
		nil, windows.OPEN_EXISTING, 0, 0)
	if err != nil {
		if err == windows.ERROR_ACCESS_DENIED {
			return windows.InvalidHandle, fmt.Errorf("%w: volume %c (code=%d)", ErrPermissionDenied, drive, uint32(windows.ERROR_ACCESS_DENIED))
		}
		return windows.InvalidHandle, fmt.Errorf("journal: open volume %c: %w", drive, err)
	}
	return h, nil
}

func queryJournal(volume windows.Handle) (usnJournalData, error) {
	var data usnJournalData
	var returned uint32
	err := windows.DeviceIoControl(volume, fsctlQueryUSNJournal,
		nil, 0,
		(*byte)(unsafe.Pointer(&data)), uint32(unsafe.Sizeof(data)),
		&returned, nil)
	if err != nil {
		return usnJournalData{}, fmt.Errorf("journal: query journal: %w", err)
	}
	return data, nil
}

func queryRootFRN(drive byte) (uint64, error) {
	path, err := windows.UTF16PtrFromString(fmt.Sprintf(`%c:\`, drive))
	if err != nil {
		return 0, err
	}
	h, err := windows.CreateFile(path, 0,
		windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE|windows.FILE_SHARE_DELETE,
		nil, windows.OPEN_EXISTING, windows.FILE_FLAG_BACKUP_SEMANTICS, 0)
	if err != nil {
		return 0, fmt.Errorf("journal: open root %c: %w", drive, err)
	}
	defer windows.CloseHandle(h)

	var info windows.ByHandleFileInformation
	if err := windows.GetFileInformationByHandle(h, &info); err != nil {
		return 0, fmt.Errorf("journal: root file information: %w", err)
	}
	return uint64(info.FileIndexHigh)<<32 | uint64(info.FileIndexLow), nil
}

// EnumerateVolume performs a journal-ordered bulk read of the volume's
// MFT records, accumulating a frn -> node map, and captures the journal
// cursor baseline for future incremental reads. Cancellation leaves the
// map partially filled; callers discard it.
func EnumerateVolume(drive byte, ctrl Control) (map[uint64]Node, VolumeState, error) {
	if ctrl == nil {
		ctrl = NopControl
	}

	volume, err := openVolume(drive)
	if err != nil {
		return nil, VolumeState{}, err
	}
	defer windows.CloseHandle(volume)

	rootFRN, err := queryRootFRN(drive)
	if err != nil {
		return nil, VolumeState{}, err
	}
	data, err := queryJournal(volume)
	if err != nil {
		return nil, VolumeState{}, err
	}
	state := VolumeState{
		Drive:     drive,
		JournalID: data.JournalID,
		RootFRN:   rootFRN,
		LastUSN:   data.NextUSN,
	}

	input := mftEnumData{HighUSN: data.NextUSN}
	buffer := make([]byte, readBufferSize)
	nodes := make(map[uint64]Node, 1<<16)
	seen := 0

	for {
		if ctrl.Cancelled() {
			return nodes, state, nil
		}

		var returned uint32
		err := windows.DeviceIoControl(volume, fsctlEnumUSNData,
			(*byte)(unsafe.Pointer(&input)), uint32(unsafe.Sizeof(input)),
			&buffer[0], uint32(len(buffer)),
			&returned, nil)
		if err != nil {
			if err == windows.ERROR_HANDLE_EOF {
				break
			}
			return nil, VolumeState{}, fmt.Errorf("journal: enumerate volume %c: %w", drive, err)
		}
		if int(returned) <= 8 {
			break
		}

		// The page starts with the next start FRN.
		input.StartFileReferenceNumber = binary.LittleEndian.Uint64(buffer[:8])
		DecodePage(buffer[8:returned], func(rec Record) {
			nodes[rec.FRN] = Node{
				ParentFRN:  rec.ParentFRN,
				Name:       rec.Name,
				Attributes: rec.Attributes,
			}
			seen++
			if seen%enumProgressBatch == 0 {
				ctrl.Progress(seen)
			}
		})
	}

	ctrl.Progress(seen)
	return nodes, state, nil
}

// ReadEvents reads change records from the saved cursor until the
// journal reports end-of-data, decoding create/delete/rename events.
// state.LastUSN advances as pages are consumed. A journal-id mismatch
// returns ErrInvalidated; exceeding the event cap returns
// ErrChangeVolumeExceeded. Both force a full re-enumeration.
func ReadEvents(state *VolumeState, ctrl Control) ([]Event, error) {
	if ctrl == nil {
		ctrl = NopControl
	}

	volume, err := openVolume(state.Drive)
	if err != nil {
		return nil, err
	}
	defer windows.CloseHandle(volume)

	data, err := queryJournal(volume)
	if err != nil {
		return nil, err
	}
	if data.JournalID != state.JournalID {
		return nil, ErrInvalidated
	}

	input := readUSNJournalData{
		StartUSN:   state.LastUSN,
		ReasonMask: 0xFFFFFFFF,
		JournalID:  state.JournalID,
	}
	buffer := make([]byte, readBufferSize)
	var events []Event
	capExceeded := false

	for {
		if ctrl.Cancelled() {
			return nil, nil
		}

		var returned uint32
		err := windows.DeviceIoControl(volume, fsctlReadUSNJournal,
			(*byte)(unsafe.Pointer(&input)), uint32(unsafe.Sizeof(input)),
			&buffer[0], uint32(len(buffer)),
			&returned, nil)
		if err != nil {
			if err == windows.ERROR_HANDLE_EOF {
				break
			}
			return nil, fmt.Errorf("journal: read volume %c: %w", state.Drive, err)
		}
		if int(returned) < 8 {
			break
		}

		nextUSN := int64(binary.LittleEndian.Uint64(buffer[:8]))
		input.StartUSN = nextUSN
		state.LastUSN = nextUSN
		if int(returned) == 8 {
			break
		}

		DecodePage(buffer[8:returned], func(rec Record) {
			if capExceeded {
				return
			}
			interest := ReasonFileCreate | ReasonFileDelete | ReasonRenameOldName | ReasonRenameNewName
			if rec.Reason&interest == 0 {
				return
			}
			// The old-name half of a rename carries no destination; only
			// the new-name record can relocate the entry.
			if rec.Reason&ReasonRenameOldName != 0 && rec.Reason&ReasonRenameNewName == 0 {
				return
			}
			if rec.FRN == state.RootFRN {
				return
			}
			events = append(events, Event{
				FRN:        rec.FRN,
				ParentFRN:  rec.ParentFRN,
				Attributes: rec.Attributes,
				Reason:     rec.Reason,
				Name:       rec.Name,
			})
			if len(events)%eventProgressBatch == 0 {
				ctrl.Progress(len(events))
			}
			if len(events) > maxPendingEvents {
				capExceeded = true
			}
		})
		if capExceeded {
			return nil, ErrChangeVolumeExceeded
		}
	}

	return events, nil
}
