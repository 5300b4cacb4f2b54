// Package enumerate performs full-volume scans: journal-based bulk
// enumeration where the platform and privileges allow it, and a
// concurrent directory walk everywhere else. Each root reports which
// strategy served it and why.
package enumerate

import (
	"time"

	"github.com/google/uuid"
)

// RootSource identifies which strategy enumerated a root.
type RootSource string

const (
	// SourceJournal is the change-journal/MFT bulk read.
	SourceJournal RootSource = "journal"
	// SourceWalk is the recursive directory walk fallback.
	SourceWalk RootSource = "walk"
)

// RootStats is the per-root diagnostic record surfaced to embedders.
type RootStats struct {
	Root     string
	Source   RootSource
	Entries  int
	Duration time.Duration

	// Note carries failure context, e.g. why the journal read fell back
	// to a walk, including the platform error code.
	Note string
}

// BuildStats aggregates one enumeration pass.
type BuildStats struct {
	ID           uuid.UUID
	Roots        []RootStats
	TotalEntries int
	Duration     time.Duration
}
