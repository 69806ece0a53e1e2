package clipmap

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/nickgildea/leven/terrain/chunk"
	"github.com/nickgildea/leven/terrain/contour"
	"github.com/nickgildea/leven/terrain/cube"
	"github.com/nickgildea/leven/terrain/mesh"
)

// noChild marks the children of leaf sized nodes.
const noChild = -1

// Handle refers to a node of a Tree. A Handle goes stale once the content of its node is released, which Tree.Valid
// detects.
type Handle struct {
	Index int32
	Gen   uint32
}

// node is a node of the clipmap octree. The shape of the tree never changes after construction; only the content
// of nodes does.
type node struct {
	min      cube.Pos
	size     int
	children [8]int32
	// gen is bumped every time the content of the node is released.
	gen uint32

	active, empty, invalidated bool

	mainMesh, seamMesh mesh.Handle
	leaves             []contour.Leaf
}

// Tree is the clipmap octree covering the bounds of the terrain volume. A Tree is not safe for concurrent use.
type Tree struct {
	layout chunk.Layout
	nodes  []node
}

// NewTree creates a Tree with a root of the smallest leaf size multiplied by a power of two that encloses bounds,
// subdivided down to the leaf size.
func NewTree(bounds cube.BBox, layout chunk.Layout) (*Tree, error) {
	if err := layout.Validate(); err != nil {
		return nil, fmt.Errorf("new tree: %w", err)
	}
	ext := bounds.Size()
	maxSize := max(ext[0], ext[1], ext[2])
	if maxSize <= 0 {
		return nil, fmt.Errorf("new tree: empty bounds %v-%v", bounds.Min(), bounds.Max())
	}
	leaf := layout.LeafSize()
	factor := 1
	for factor*leaf < maxSize {
		factor *= 2
	}
	size := factor * leaf
	centre := bounds.Min().Add(ext.Div(2))
	min := centre.Sub(cube.Pos{size / 2, size / 2, size / 2})
	for i := range min {
		min[i] &^= factor - 1
	}

	count, n := 0, 1
	for s := size; s >= leaf; s /= 2 {
		count += n
		n *= 8
	}
	t := &Tree{layout: layout, nodes: make([]node, 0, count)}
	t.construct(min, size)
	return t, nil
}

// construct appends the node at min with the size passed and all of its descendants, returning its index.
func (t *Tree) construct(min cube.Pos, size int) int32 {
	i := int32(len(t.nodes))
	t.nodes = append(t.nodes, node{min: min, size: size, children: [8]int32{noChild, noChild, noChild, noChild, noChild, noChild, noChild, noChild}})
	if size == t.layout.LeafSize() {
		return i
	}
	for c := 0; c < 8; c++ {
		child := t.construct(cube.ChildMin(min, size, c), size/2)
		t.nodes[i].children[c] = child
	}
	return i
}

// Layout returns the chunk layout of the tree.
func (t *Tree) Layout() chunk.Layout {
	return t.layout
}

// RootMin returns the minimum corner of the root node.
func (t *Tree) RootMin() cube.Pos {
	return t.nodes[0].min
}

// RootSize returns the edge length of the root node.
func (t *Tree) RootSize() int {
	return t.nodes[0].size
}

// Len returns the number of nodes in the tree.
func (t *Tree) Len() int {
	return len(t.nodes)
}

func (t *Tree) handle(i int32) Handle {
	return Handle{Index: i, Gen: t.nodes[i].gen}
}

// Valid reports if h refers to a node whose content has not been released since h was obtained.
func (t *Tree) Valid(h Handle) bool {
	return h.Index >= 0 && int(h.Index) < len(t.nodes) && t.nodes[h.Index].gen == h.Gen
}

// NodeInfo is a copy of the state of a node.
type NodeInfo struct {
	Handle             Handle
	Min                cube.Pos
	Size               int
	Active             bool
	Empty              bool
	Invalidated        bool
	MainMesh, SeamMesh mesh.Handle
	SeamLeaves         int
}

// Box returns the bounds of the node.
func (n NodeInfo) Box() cube.BBox {
	return cube.NodeBox(n.Min, n.Size)
}

// Info returns the state of the node h refers to. false is returned if h is stale.
func (t *Tree) Info(h Handle) (NodeInfo, bool) {
	if !t.Valid(h) {
		return NodeInfo{}, false
	}
	n := &t.nodes[h.Index]
	return NodeInfo{
		Handle:      h,
		Min:         n.min,
		Size:        n.size,
		Active:      n.active,
		Empty:       n.empty,
		Invalidated: n.invalidated,
		MainMesh:    n.mainMesh,
		SeamMesh:    n.seamMesh,
		SeamLeaves:  len(n.leaves),
	}, true
}

func (t *Tree) box(i int32) cube.BBox {
	return cube.NodeBox(t.nodes[i].min, t.nodes[i].size)
}

// FindNode returns the node with its minimum corner at min and the size passed.
func (t *Tree) FindNode(min cube.Pos, size int) (Handle, bool) {
	i := int32(0)
	for {
		n := &t.nodes[i]
		if !t.box(i).Contains(min) || n.size < size {
			return Handle{}, false
		}
		if n.size == size {
			if n.min != min {
				return Handle{}, false
			}
			return t.handle(i), true
		}
		if n.children[0] == noChild {
			return Handle{}, false
		}
		i = n.children[cube.ChildIndex(n.min, chunk.ChunkMin(n.min, min, n.size/2), n.size/2)]
	}
}

// FindActiveNodes returns the active nodes overlapping the node ref refers to: either active descendants of ref
// or the active ancestor containing it.
func (t *Tree) FindActiveNodes(ref Handle) []Handle {
	if !t.Valid(ref) {
		return nil
	}
	var out []Handle
	refBox := t.box(ref.Index)
	refMin := t.nodes[ref.Index].min
	var find func(i int32)
	find = func(i int32) {
		n := &t.nodes[i]
		if !t.box(i).Contains(refMin) && !refBox.Contains(n.min) {
			return
		}
		if n.active {
			out = append(out, t.handle(i))
			return
		}
		if n.children[0] == noChild {
			return
		}
		for _, c := range n.children {
			find(c)
		}
	}
	find(0)
	return out
}

// FindNodesInside returns every node of a renderable size overlapping box.
func (t *Tree) FindNodesInside(box cube.BBox) []Handle {
	var out []Handle
	t.overlapping(box, func(i int32) {
		if t.nodes[i].size <= t.layout.MaxRenderableSize() {
			out = append(out, t.handle(i))
		}
	})
	return out
}

// overlapping calls fn for every node overlapping box, children before their parents.
func (t *Tree) overlapping(box cube.BBox, fn func(i int32)) {
	var visit func(i int32)
	visit = func(i int32) {
		if !box.Overlaps(t.box(i)) {
			return
		}
		if t.nodes[i].children[0] != noChild {
			for _, c := range t.nodes[i].children {
				visit(c)
			}
		}
		fn(i)
	}
	visit(0)
}

// FindNodeContainingChunk returns the active node responsible for drawing the chunk with its minimum corner at min.
func (t *Tree) FindNodeContainingChunk(min cube.Pos) (Handle, bool) {
	i := int32(0)
	for {
		n := &t.nodes[i]
		if !t.box(i).Contains(min) {
			return Handle{}, false
		}
		if n.active {
			return t.handle(i), true
		}
		if n.children[0] == noChild {
			return Handle{}, false
		}
		i = n.children[cube.ChildIndex(n.min, chunk.ChunkMin(n.min, min, n.size/2), n.size/2)]
	}
}

// FindNodesOnPath returns the chain of nodes from the root down to the node of size endSize containing endMin.
func (t *Tree) FindNodesOnPath(endMin cube.Pos, endSize int) []Handle {
	var out []Handle
	i := int32(0)
	for t.box(i).Contains(endMin) {
		n := &t.nodes[i]
		out = append(out, t.handle(i))
		if n.size <= endSize || n.children[0] == noChild {
			break
		}
		i = n.children[cube.ChildIndex(n.min, chunk.ChunkMin(n.min, endMin, n.size/2), n.size/2)]
	}
	return out
}

// RayHit is a collision node hit by a ray.
type RayHit struct {
	// Min is the minimum corner of the collision node.
	Min cube.Pos
	// Point is the point the ray enters the node at.
	Point mgl64.Vec3
}

// FindCollisionVolumes returns the collision sized nodes intersected by the ray starting at origin travelling along
// dir.
func (t *Tree) FindCollisionVolumes(origin, dir mgl64.Vec3) []RayHit {
	var out []RayHit
	size := t.layout.CollisionNodeSize()
	var visit func(i int32)
	visit = func(i int32) {
		n := &t.nodes[i]
		dist, ok := t.box(i).IntersectRay(origin, dir)
		if !ok {
			return
		}
		if n.size == size {
			out = append(out, RayHit{Min: n.min, Point: origin.Add(dir.Mul(dist))})
			return
		}
		if n.size < size || n.children[0] == noChild {
			return
		}
		for _, c := range n.children {
			visit(c)
		}
	}
	visit(0)
	return out
}

// CollisionNodes returns the minimum corners of every node of collision size.
func (t *Tree) CollisionNodes() []cube.Pos {
	var out []cube.Pos
	size := t.layout.CollisionNodeSize()
	for i := range t.nodes {
		if t.nodes[i].size == size {
			out = append(out, t.nodes[i].min)
		}
	}
	return out
}

// ActiveNodes returns every active node.
func (t *Tree) ActiveNodes() []Handle {
	var out []Handle
	for i := range t.nodes {
		if t.nodes[i].active {
			out = append(out, t.handle(int32(i)))
		}
	}
	return out
}

// markEmpty marks the node at i and all of its descendants empty.
func (t *Tree) markEmpty(i int32) {
	n := &t.nodes[i]
	n.empty = true
	if n.children[0] == noChild {
		return
	}
	for _, c := range n.children {
		t.markEmpty(c)
	}
}

// propagateEmptyUpward marks nodes larger than size empty if all of their children are, returning if the node at i
// is empty.
func (t *Tree) propagateEmptyUpward(i int32, size int) bool {
	n := &t.nodes[i]
	if n.size <= size || n.children[0] == noChild {
		return n.empty
	}
	empty := true
	for _, c := range n.children {
		if !t.propagateEmptyUpward(c, size) {
			empty = false
		}
	}
	n.empty = empty
	return empty
}

// release drops the content of the node at i, appending its meshes to invalidated, and makes existing handles to
// it stale.
func (t *Tree) release(i int32, invalidated []mesh.Handle) []mesh.Handle {
	n := &t.nodes[i]
	n.active = false
	if n.mainMesh.Valid() {
		invalidated = append(invalidated, n.mainMesh)
		n.mainMesh = mesh.NoHandle
	}
	if n.seamMesh.Valid() {
		invalidated = append(invalidated, n.seamMesh)
		n.seamMesh = mesh.NoHandle
	}
	n.leaves = nil
	n.gen++
	return invalidated
}
