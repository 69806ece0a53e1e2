package clipmap

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/nickgildea/leven/terrain/chunk"
	"github.com/nickgildea/leven/terrain/cube"
	"github.com/stretchr/testify/require"
)

var testLayout = chunk.Layout{VoxelsPerChunk: 8, CollisionVoxelsPerChunk: 8}

func newTestTree(t *testing.T) *Tree {
	t.Helper()
	tree, err := NewTree(cube.Box(cube.Pos{-128, -128, -128}, cube.Pos{128, 128, 128}), testLayout)
	require.NoError(t, err)
	return tree
}

func TestNewTree(t *testing.T) {
	tree := newTestTree(t)
	require.Equal(t, cube.Pos{-128, -128, -128}, tree.RootMin())
	require.Equal(t, 256, tree.RootSize())
	// 256, 128, 64 and 32 sized levels.
	require.Equal(t, 1+8+64+512, tree.Len())

	for i := range tree.nodes {
		n := &tree.nodes[i]
		require.True(t, testLayout.ValidSize(n.size), "size %v", n.size)
		if n.children[0] == noChild {
			require.Equal(t, 32, n.size)
			continue
		}
		for c, child := range n.children {
			require.Equal(t, cube.ChildMin(n.min, n.size, c), tree.nodes[child].min)
			require.Equal(t, n.size/2, tree.nodes[child].size)
		}
	}
}

func TestNewTreeUnevenBounds(t *testing.T) {
	tree, err := NewTree(cube.Box(cube.Pos{0, 0, 0}, cube.Pos{100, 10, 10}), testLayout)
	require.NoError(t, err)
	require.Equal(t, 128, tree.RootSize())
	box := cube.NodeBox(tree.RootMin(), tree.RootSize())
	require.True(t, box.Contains(cube.Pos{0, 0, 0}))
	require.True(t, box.Contains(cube.Pos{99, 9, 9}))

	_, err = NewTree(cube.Box(cube.Pos{}, cube.Pos{}), testLayout)
	require.Error(t, err)
	_, err = NewTree(cube.Box(cube.Pos{}, cube.Pos{64, 64, 64}), chunk.Layout{VoxelsPerChunk: 6, CollisionVoxelsPerChunk: 8})
	require.Error(t, err)
}

func TestFindNode(t *testing.T) {
	tree := newTestTree(t)
	h, ok := tree.FindNode(cube.Pos{32, -32, 0}, 32)
	require.True(t, ok)
	info, ok := tree.Info(h)
	require.True(t, ok)
	require.Equal(t, cube.Pos{32, -32, 0}, info.Min)
	require.Equal(t, 32, info.Size)

	h, ok = tree.FindNode(cube.Pos{-128, -128, -128}, 256)
	require.True(t, ok)
	require.Equal(t, int32(0), h.Index)

	_, ok = tree.FindNode(cube.Pos{16, 0, 0}, 32)
	require.False(t, ok, "misaligned")
	_, ok = tree.FindNode(cube.Pos{256, 0, 0}, 32)
	require.False(t, ok, "outside")
	_, ok = tree.FindNode(cube.Pos{0, 0, 0}, 16)
	require.False(t, ok, "below leaf size")
}

func TestFindActiveNodes(t *testing.T) {
	tree := newTestTree(t)
	parent, _ := tree.FindNode(cube.Pos{0, 0, 0}, 64)
	leaf, _ := tree.FindNode(cube.Pos{32, 0, 0}, 32)
	other, _ := tree.FindNode(cube.Pos{0, 32, 0}, 32)

	// An active ancestor is found from a descendant.
	tree.nodes[parent.Index].active = true
	require.Equal(t, []Handle{tree.handle(parent.Index)}, tree.FindActiveNodes(leaf))

	// Active descendants are found from an ancestor.
	tree.nodes[parent.Index].active = false
	tree.nodes[leaf.Index].active = true
	tree.nodes[other.Index].active = true
	require.ElementsMatch(t, []Handle{tree.handle(leaf.Index), tree.handle(other.Index)}, tree.FindActiveNodes(parent))

	root, _ := tree.FindNode(tree.RootMin(), 256)
	require.Len(t, tree.FindActiveNodes(root), 2)
	require.Len(t, tree.ActiveNodes(), 2)

	far, _ := tree.FindNode(cube.Pos{-128, -128, -128}, 64)
	require.Empty(t, tree.FindActiveNodes(far))
}

func TestFindNodesInside(t *testing.T) {
	tree := newTestTree(t)
	nodes := tree.FindNodesInside(cube.Box(cube.Pos{6, 6, 6}, cube.Pos{26, 26, 26}))
	var sizes []int
	for _, h := range nodes {
		info, _ := tree.Info(h)
		require.Equal(t, cube.Pos{}, info.Min.Sub(tree.RootMin()).Mod(info.Size))
		sizes = append(sizes, info.Size)
	}
	// One node per level, children before parents.
	require.Equal(t, []int{32, 64, 128, 256}, sizes)
}

func TestFindNodeContainingChunk(t *testing.T) {
	tree := newTestTree(t)
	_, ok := tree.FindNodeContainingChunk(cube.Pos{32, 32, 32})
	require.False(t, ok)

	h, _ := tree.FindNode(cube.Pos{0, 0, 0}, 128)
	tree.nodes[h.Index].active = true
	found, ok := tree.FindNodeContainingChunk(cube.Pos{32, 32, 32})
	require.True(t, ok)
	require.Equal(t, h, found)
}

func TestFindNodesOnPath(t *testing.T) {
	tree := newTestTree(t)
	path := tree.FindNodesOnPath(cube.Pos{32, 0, 0}, 32)
	require.Len(t, path, 4)
	var prev *NodeInfo
	for _, h := range path {
		info, ok := tree.Info(h)
		require.True(t, ok)
		require.True(t, info.Box().Contains(cube.Pos{32, 0, 0}))
		if prev != nil {
			require.Equal(t, prev.Size/2, info.Size)
		}
		prev = &info
	}
	require.Empty(t, tree.FindNodesOnPath(cube.Pos{512, 0, 0}, 32))
}

func TestFindCollisionVolumes(t *testing.T) {
	tree := newTestTree(t)
	hits := tree.FindCollisionVolumes(mgl64.Vec3{16, 16, -300}, mgl64.Vec3{0, 0, 1})
	var mins []cube.Pos
	for _, hit := range hits {
		mins = append(mins, hit.Min)
		require.InDelta(t, float64(hit.Min[2]), hit.Point[2], 1e-9)
	}
	require.ElementsMatch(t, []cube.Pos{{0, 0, -128}, {0, 0, -64}, {0, 0, 0}, {0, 0, 64}}, mins)
	require.Len(t, tree.CollisionNodes(), 64)
}

func TestEmptyPropagation(t *testing.T) {
	tree := newTestTree(t)
	for i := range tree.nodes {
		if tree.nodes[i].size == 64 && tree.nodes[i].min != (cube.Pos{0, 0, 0}) {
			tree.markEmpty(int32(i))
		}
	}
	require.False(t, tree.propagateEmptyUpward(0, 64))

	h, _ := tree.FindNode(cube.Pos{-128, -128, -128}, 128)
	info, _ := tree.Info(h)
	require.True(t, info.Empty)
	h, _ = tree.FindNode(cube.Pos{0, 0, 0}, 128)
	info, _ = tree.Info(h)
	require.False(t, info.Empty)
	h, _ = tree.FindNode(cube.Pos{-32, -32, -32}, 32)
	info, _ = tree.Info(h)
	require.True(t, info.Empty, "descendants of empty nodes are empty")
}

func TestReleaseMakesHandlesStale(t *testing.T) {
	tree := newTestTree(t)
	h, _ := tree.FindNode(cube.Pos{0, 0, 0}, 32)
	tree.nodes[h.Index].active = true
	require.True(t, tree.Valid(h))

	invalidated := tree.release(h.Index, nil)
	require.Empty(t, invalidated)
	require.False(t, tree.Valid(h))
	_, ok := tree.Info(h)
	require.False(t, ok)
	require.Empty(t, tree.FindActiveNodes(h))

	fresh, ok := tree.FindNode(cube.Pos{0, 0, 0}, 32)
	require.True(t, ok)
	require.Equal(t, h.Gen+1, fresh.Gen)
}
