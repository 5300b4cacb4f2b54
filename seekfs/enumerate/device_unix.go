//go:build !windows

package enumerate

import (
	"io/fs"
	"syscall"
)

// deviceID identifies the filesystem an object lives on, so the walk
// can refuse to cross mount points.
func deviceID(info fs.FileInfo) uint64 {
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		return uint64(st.Dev)
	}
	return 0
}
