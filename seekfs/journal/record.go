package journal

import (
	"encoding/binary"
	"unicode/utf16"
)

// USN_RECORD_V2 wire layout, little-endian. The variable-length UTF-16
// file name trails the fixed header at FileNameOffset.
const (
	recRecordLength   = 0  // u32
	recMajorVersion   = 4  // u16
	recMinorVersion   = 6  // u16
	recFileRefNum     = 8  // u64
	recParentRefNum   = 16 // u64
	recUSN            = 24 // i64
	recTimeStamp      = 32 // i64
	recReason         = 40 // u32
	recSourceInfo     = 44 // u32
	recSecurityID     = 48 // u32
	recFileAttributes = 52 // u32
	recFileNameLength = 56 // u16
	recFileNameOffset = 58 // u16

	recHeaderSize = 60
)

// Record is one decoded journal record. USN and Timestamp are carried
// for cursor bookkeeping and diagnostics; identity and naming fields
// drive the index.
type Record struct {
	FRN        uint64
	ParentFRN  uint64
	USN        int64
	Timestamp  int64
	Reason     uint32
	Attributes uint32
	Name       string
}

func readU16(b []byte, off int) uint16 { return binary.LittleEndian.Uint16(b[off : off+2]) }
func readU32(b []byte, off int) uint32 { return binary.LittleEndian.Uint32(b[off : off+4]) }
func readU64(b []byte, off int) uint64 { return binary.LittleEndian.Uint64(b[off : off+8]) }

// DecodeRecord decodes the record at the start of b. It returns the
// record, the number of bytes it occupies, and whether it was valid.
// consumed is non-zero whenever the caller can safely skip ahead;
// ok is false for records that must be ignored (wrong version,
// truncated or out-of-range name fields). A zero consumed means the
// buffer is exhausted or corrupt and the caller must stop scanning.
func DecodeRecord(b []byte) (rec Record, consumed int, ok bool) {
	if len(b) < recHeaderSize {
		return Record{}, 0, false
	}
	recLen := int(readU32(b, recRecordLength))
	if recLen < recHeaderSize || recLen > len(b) {
		return Record{}, 0, false
	}
	if readU16(b, recMajorVersion) != 2 {
		return Record{}, recLen, false
	}

	nameLen := int(readU16(b, recFileNameLength))
	nameOff := int(readU16(b, recFileNameOffset))
	if nameLen == 0 || nameLen%2 != 0 || nameOff < recHeaderSize || nameOff+nameLen > recLen {
		return Record{}, recLen, false
	}

	rec = Record{
		FRN:        readU64(b, recFileRefNum),
		ParentFRN:  readU64(b, recParentRefNum),
		USN:        int64(readU64(b, recUSN)),
		Timestamp:  int64(readU64(b, recTimeStamp)),
		Reason:     readU32(b, recReason),
		Attributes: readU32(b, recFileAttributes),
		Name:       decodeUTF16LE(b[nameOff : nameOff+nameLen]),
	}
	if rec.Name == "" {
		return Record{}, recLen, false
	}
	return rec, recLen, true
}

// DecodePage walks a buffer of consecutive records, skipping malformed
// ones, and calls fn for each valid record. The caller strips the
// leading cursor value before handing the buffer over.
func DecodePage(b []byte, fn func(Record)) {
	for len(b) >= recHeaderSize {
		rec, n, ok := DecodeRecord(b)
		if n == 0 {
			return
		}
		if ok {
			fn(rec)
		}
		b = b[n:]
	}
}

func decodeUTF16LE(b []byte) string {
	u := make([]uint16, len(b)/2)
	for i := range u {
		u[i] = binary.LittleEndian.Uint16(b[i*2:])
	}
	return string(utf16.Decode(u))
}
