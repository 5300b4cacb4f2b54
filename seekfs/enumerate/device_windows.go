//go:build windows

package enumerate

import "io/fs"

// deviceID is a no-op on Windows: walks are rooted per volume, and a
// junction to another volume changes the drive prefix anyway.
func deviceID(info fs.FileInfo) uint64 { return 0 }
