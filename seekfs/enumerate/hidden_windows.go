//go:build windows

package enumerate

import (
	"io/fs"
	"syscall"
)

// isHidden checks the hidden/system attribute bits.
func isHidden(path, name string, info fs.FileInfo) bool {
	if d, ok := info.Sys().(*syscall.Win32FileAttributeData); ok {
		return d.FileAttributes&(syscall.FILE_ATTRIBUTE_HIDDEN|syscall.FILE_ATTRIBUTE_SYSTEM) != 0
	}
	return false
}
