//go:build !windows

package enumerate

import (
	"io/fs"
	"strings"
)

// isHidden uses the leading-dot convention on platforms without a
// hidden attribute bit.
func isHidden(path, name string, info fs.FileInfo) bool {
	return strings.HasPrefix(name, ".")
}
