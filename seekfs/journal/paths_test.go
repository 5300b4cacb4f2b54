package journal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVolumeRoot(t *testing.T) {
	tests := []struct {
		path  string
		drive byte
		ok    bool
	}{
		{"C:", 'C', true},
		{"c:", 'C', true},
		{"C:/", 'C', true},
		{`C:\`, 'C', true},
		{`d:\\`, 'D', true},
		{"C:/Users", 0, false},
		{"C:file", 0, false},
		{"/home/user", 0, false},
		{"", 0, false},
		{"C", 0, false},
		{"1:", 0, false},
	}

	for _, tt := range tests {
		drive, ok := VolumeRoot(tt.path)
		assert.Equal(t, tt.ok, ok, "path %q", tt.path)
		assert.Equal(t, tt.drive, drive, "path %q", tt.path)
	}
}

func TestRootPath(t *testing.T) {
	assert.Equal(t, "C:/", RootPath('C'))
	assert.Equal(t, "Z:/", RootPath('Z'))
}

func TestComposePath(t *testing.T) {
	assert.Equal(t, "C:/Users", ComposePath("C:/", "Users"))
	assert.Equal(t, "C:/Users/docs", ComposePath("C:/Users", "docs"))
}

func TestResolvePaths(t *testing.T) {
	tests := []struct {
		name string
		test func(t *testing.T)
	}{
		{"LinearChains", testResolveLinearChains},
		{"SharedPrefixMemoized", testResolveSharedPrefix},
		{"BrokenChainDropped", testResolveBrokenChain},
		{"CycleDropped", testResolveCycle},
		{"SelfParentAnchorsAtRoot", testResolveSelfParent},
	}

	for _, tt := range tests {
		t.Run(tt.name, tt.test)
	}
}

func testResolveLinearChains(t *testing.T) {
	const root = uint64(5)
	nodes := map[uint64]Node{
		10: {ParentFRN: root, Name: "Users", Attributes: AttrDirectory},
		11: {ParentFRN: 10, Name: "alice", Attributes: AttrDirectory},
		12: {ParentFRN: 11, Name: "notes.txt"},
	}

	paths := ResolvePaths(nodes, root, 'C')

	require.Len(t, paths, 4, "root plus every node")
	assert.Equal(t, "C:/", paths[root])
	assert.Equal(t, "C:/Users", paths[10])
	assert.Equal(t, "C:/Users/alice", paths[11])
	assert.Equal(t, "C:/Users/alice/notes.txt", paths[12])
}

func testResolveSharedPrefix(t *testing.T) {
	const root = uint64(5)
	nodes := map[uint64]Node{
		10: {ParentFRN: root, Name: "deep", Attributes: AttrDirectory},
	}
	// A wide fan-out under one parent; every child resolves through the
	// memoized prefix regardless of map iteration order.
	for i := uint64(100); i < 200; i++ {
		nodes[i] = Node{ParentFRN: 10, Name: "f" + string(rune('0'+i%10))}
	}

	paths := ResolvePaths(nodes, root, 'D')

	require.Len(t, paths, len(nodes)+1)
	assert.Equal(t, "D:/deep", paths[10])
	assert.Equal(t, "D:/deep/f7", paths[107])
}

func testResolveBrokenChain(t *testing.T) {
	const root = uint64(5)
	nodes := map[uint64]Node{
		10: {ParentFRN: root, Name: "ok"},
		20: {ParentFRN: 999, Name: "orphan"}, // parent never enumerated
	}

	paths := ResolvePaths(nodes, root, 'C')

	assert.Contains(t, paths, uint64(10))
	assert.NotContains(t, paths, uint64(20), "unresolvable parent drops the node")
}

func testResolveCycle(t *testing.T) {
	const root = uint64(5)
	nodes := map[uint64]Node{
		10: {ParentFRN: 11, Name: "a"},
		11: {ParentFRN: 10, Name: "b"},
		20: {ParentFRN: root, Name: "sane"},
	}

	paths := ResolvePaths(nodes, root, 'C')

	assert.NotContains(t, paths, uint64(10))
	assert.NotContains(t, paths, uint64(11))
	assert.Equal(t, "C:/sane", paths[20], "cycle elsewhere does not poison healthy nodes")
}

func testResolveSelfParent(t *testing.T) {
	const root = uint64(5)
	nodes := map[uint64]Node{
		10: {ParentFRN: 10, Name: "self"},
	}

	paths := ResolvePaths(nodes, root, 'C')

	assert.Equal(t, "C:/self", paths[10], "self-parent anchors at the volume root")
}
