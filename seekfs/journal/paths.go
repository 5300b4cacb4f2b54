package journal

import "strings"

// maxChainDepth bounds parent-chain walks during path resolution.
// Corrupt enumeration data can contain cycles; entries past the bound
// are dropped rather than looped on.
const maxChainDepth = 4096

// VolumeRoot reports whether path is a bare volume root ("C:", "C:/",
// "C:\") and returns the uppercase drive letter.
func VolumeRoot(path string) (byte, bool) {
	if len(path) < 2 {
		return 0, false
	}
	drive := path[0]
	switch {
	case drive >= 'a' && drive <= 'z':
		drive -= 'a' - 'A'
	case drive >= 'A' && drive <= 'Z':
	default:
		return 0, false
	}
	if path[1] != ':' {
		return 0, false
	}
	rest := path[2:]
	for i := 0; i < len(rest); i++ {
		if rest[i] != '/' && rest[i] != '\\' {
			return 0, false
		}
	}
	return drive, true
}

// RootPath returns the normalized root path for a drive, e.g. "C:/".
func RootPath(drive byte) string {
	return string([]byte{drive, ':', '/'})
}

// ResolvePaths reconstructs each node's absolute forward-slash path by
// walking ParentFRN chains to the volume root, memoizing resolved
// prefixes. Nodes whose chain is broken, cyclic, or deeper than
// maxChainDepth are absent from the result.
func ResolvePaths(nodes map[uint64]Node, rootFRN uint64, drive byte) map[uint64]string {
	root := RootPath(drive)
	resolved := make(map[uint64]string, len(nodes)+1)
	resolved[rootFRN] = root

	chain := make([]uint64, 0, 64)
	for frn := range nodes {
		if frn == rootFRN {
			continue
		}
		if _, ok := resolved[frn]; ok {
			continue
		}

		chain = chain[:0]
		cur := frn
		base := ""
		for {
			if p, ok := resolved[cur]; ok {
				base = p
				break
			}
			node, ok := nodes[cur]
			if !ok {
				break
			}
			chain = append(chain, cur)
			if node.ParentFRN == 0 || node.ParentFRN == cur {
				base = root
				break
			}
			if len(chain) > maxChainDepth {
				break
			}
			cur = node.ParentFRN
		}
		if base == "" {
			continue
		}

		// Unwind from the resolved prefix down to frn, memoizing each hop.
		path := base
		for i := len(chain) - 1; i >= 0; i-- {
			id := chain[i]
			node := nodes[id]
			if !strings.HasSuffix(path, "/") {
				path += "/"
			}
			path += node.Name
			resolved[id] = path
		}
	}
	return resolved
}

// ComposePath joins a resolved parent path and a name, normalizing the
// separator.
func ComposePath(parent, name string) string {
	if strings.HasSuffix(parent, "/") {
		return parent + name
	}
	return parent + "/" + name
}
