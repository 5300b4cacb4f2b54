package index

import (
	"math"
	"strings"
)

// SizeUnknown marks entries whose size was never read. Journal
// enumeration yields names and attributes only, so every journal-sourced
// entry carries this sentinel until something stats the file.
const SizeUnknown = math.MaxUint64

// Entry is one indexed filesystem object. NameLower/PathLower are the
// lowercase projections of Name/Path and must be recomputed whenever
// either changes; SetName and SetPath maintain that.
type Entry struct {
	Name      string
	NameLower string
	Path      string
	PathLower string

	// Volume identity. FRN is the file reference number, unique within a
	// volume; 0 when the source cannot provide one (directory walk).
	Drive     byte
	FRN       uint64
	ParentFRN uint64

	Size       uint64
	ModifiedMS uint64
	IsDir      bool
	IsHidden   bool
}

// SetName updates Name and its lowercase key.
func (e *Entry) SetName(name string) {
	e.Name = name
	e.NameLower = LowercaseKey(name)
}

// SetPath updates Path and its lowercase key.
func (e *Entry) SetPath(path string) {
	e.Path = path
	e.PathLower = LowercaseKey(path)
}

// LowercaseKey lowercases a search key with an ASCII fast path.
func LowercaseKey(s string) string {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 0x80 || ('A' <= c && c <= 'Z') {
			return strings.ToLower(s)
		}
	}
	return s
}

// BaseName extracts the final path component of a forward-slash path.
func BaseName(path string) string {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}
	return path
}

// DirPrefix returns the path with a trailing slash, for subtree
// prefix comparisons.
func DirPrefix(path string) string {
	if strings.HasSuffix(path, "/") {
		return path
	}
	return path + "/"
}

// DriveOf extracts the uppercase volume letter from a "X:/..." path,
// or 0 when the path has no drive prefix.
func DriveOf(path string) byte {
	if len(path) >= 2 && path[1] == ':' {
		c := path[0]
		if c >= 'a' && c <= 'z' {
			return c - ('a' - 'A')
		}
		if c >= 'A' && c <= 'Z' {
			return c
		}
	}
	return 0
}
