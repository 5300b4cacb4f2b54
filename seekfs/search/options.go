// Package search implements fuzzy multi-token matching and ranking over
// the entry table. Searches are read-only over an immutable snapshot;
// options are copied per invocation so mutating them never affects an
// in-flight search.
package search

// MatchKind reports which field of an entry a result matched on.
type MatchKind int

const (
	// KindName is a match against the entry's file name.
	KindName MatchKind = iota
	// KindPath is a match against the entry's full path.
	KindPath
	// KindExtension is reserved for extension-only matches; it ranks
	// lowest among the kinds.
	KindExtension
)

// Options controls one search invocation.
type Options struct {
	// CaseSensitive matches against the original name/path instead of
	// the lowercase keys.
	CaseSensitive bool

	// PathSearch matches tokens against the full path only, skipping
	// the name-first pass.
	PathSearch bool

	// Fuzzy enables subsequence matching per token; otherwise tokens
	// must appear as substrings.
	Fuzzy bool

	// MaxResults bounds the result set. Top-K selection is exact, not a
	// prefix truncation.
	MaxResults int
}

// DefaultOptions mirrors the engine defaults: fuzzy matching, case
// folding, 500 results.
func DefaultOptions() Options {
	return Options{Fuzzy: true, MaxResults: 500}
}
