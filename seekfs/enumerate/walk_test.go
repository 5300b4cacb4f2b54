package enumerate

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	ignore "github.com/sabhiram/go-gitignore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/seekfs/seekfs/index"
)

type testControl struct {
	cancelled bool
	reports   int
}

func (c *testControl) Cancelled() bool { return c.cancelled }
func (c *testControl) Progress(int)    { c.reports++ }

// seedTree writes a small fixture tree and returns its root.
func seedTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	require.NoError(t, os.MkdirAll(filepath.Join(root, "docs", "archive"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "build"), 0o755))
	files := map[string]string{
		"readme.md":                 "hello",
		"docs/notes.txt":            "notes",
		"docs/archive/old.txt":      "old",
		"build/output.bin":          "bin",
		".hidden-rc":                "cfg",
		"docs/archive/.hidden.toml": "t",
	}
	for rel, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(root, rel), []byte(content), 0o644))
	}
	return root
}

func pathsOf(entries []index.Entry) map[string]index.Entry {
	m := make(map[string]index.Entry, len(entries))
	for _, e := range entries {
		m[e.Path] = e
	}
	return m
}

func TestWalker(t *testing.T) {
	tests := []struct {
		name string
		test func(t *testing.T)
	}{
		{"CollectsWholeTree", testWalkerCollectsTree},
		{"HiddenConvention", testWalkerHidden},
		{"IgnoreMatcher", testWalkerIgnore},
		{"Cancellation", testWalkerCancellation},
		{"SingleFileRoot", testWalkerSingleFile},
		{"MissingRoot", testWalkerMissingRoot},
	}

	for _, tt := range tests {
		t.Run(tt.name, tt.test)
	}
}

func testWalkerCollectsTree(t *testing.T) {
	root := seedTree(t)
	abs, err := filepath.Abs(root)
	require.NoError(t, err)
	prefix := filepath.ToSlash(abs)

	entries := newWalker(nil, &testControl{}, 0).run(root)

	byPath := pathsOf(entries)
	// Root, 3 directories, 6 files.
	assert.Len(t, entries, 10)
	require.Contains(t, byPath, prefix+"/docs/archive/old.txt")
	require.Contains(t, byPath, prefix+"/build/output.bin")

	f := byPath[prefix+"/readme.md"]
	assert.Equal(t, "readme.md", f.Name)
	assert.Equal(t, uint64(5), f.Size)
	assert.NotZero(t, f.ModifiedMS)
	assert.False(t, f.IsDir)
	assert.Zero(t, f.FRN, "walked entries carry no volume identity")

	d := byPath[prefix+"/docs"]
	assert.True(t, d.IsDir)
}

func testWalkerHidden(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("dot-prefix hidden convention is not the Windows rule")
	}
	root := seedTree(t)
	abs, _ := filepath.Abs(root)
	prefix := filepath.ToSlash(abs)

	entries := newWalker(nil, &testControl{}, 0).run(root)
	byPath := pathsOf(entries)

	assert.True(t, byPath[prefix+"/.hidden-rc"].IsHidden)
	assert.True(t, byPath[prefix+"/docs/archive/.hidden.toml"].IsHidden)
	assert.False(t, byPath[prefix+"/readme.md"].IsHidden)
}

func testWalkerIgnore(t *testing.T) {
	root := seedTree(t)
	matcher := ignore.CompileIgnoreLines("build/", "*.bin")

	entries := newWalker(matcher, &testControl{}, 0).run(root)

	for _, e := range entries {
		assert.NotContains(t, e.Path, "/build", "ignored subtree never enumerated")
	}
}

func testWalkerCancellation(t *testing.T) {
	root := seedTree(t)

	entries := newWalker(nil, &testControl{cancelled: true}, 0).run(root)

	// Cancellation lands between BFS levels; the root was already
	// recorded before the first level ran.
	assert.Len(t, entries, 1)
}

func testWalkerSingleFile(t *testing.T) {
	root := seedTree(t)
	file := filepath.Join(root, "readme.md")

	entries := newWalker(nil, &testControl{}, 0).run(file)

	require.Len(t, entries, 1)
	assert.Equal(t, "readme.md", entries[0].Name)
	assert.False(t, entries[0].IsDir)
}

func testWalkerMissingRoot(t *testing.T) {
	entries := newWalker(nil, &testControl{}, 0).run(filepath.Join(t.TempDir(), "absent"))
	assert.Empty(t, entries)
}
