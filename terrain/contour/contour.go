package contour

import (
	"fmt"

	"github.com/nickgildea/leven/terrain/cube"
	"github.com/nickgildea/leven/terrain/mesh"
	"github.com/nickgildea/leven/terrain/octree"
)

// mixedSource is the source of an internal node whose leaves come from more than one chunk.
const mixedSource = -1

type node struct {
	min      cube.Pos
	size     int
	children [8]*node
	leaf     *Leaf
	source   int
	index    int32
}

func (n *node) branch() bool {
	return n.leaf == nil
}

var builder = octree.Builder[*node]{
	Min:  func(n *node) cube.Pos { return n.min },
	Size: func(n *node) int { return n.size },
	NewParent: func(min cube.Pos, size int) *node {
		return &node{min: min, size: size, index: -1}
	},
	SetChild: func(parent *node, i int, child *node) {
		parent.children[i] = child
	},
}

// Stitch contours the leaves passed into a seam mesh. Leaves are placed in an octree with its minimum corner at
// rootMin and an edge length of rootSize. Leaves that do not fit that octree, and repeated leaves with the same
// bounds, are ignored. A nil buffer is returned if no triangles were produced. If the mesh exceeds the capacity
// of a buffer, the triangles that fit are returned together with an error wrapping mesh.ErrCapacity.
func Stitch(leaves []Leaf, rootMin cube.Pos, rootSize int) (*mesh.Buffer, error) {
	return StitchWithLimits(leaves, rootMin, rootSize, mesh.MaxVertices, mesh.MaxTriangles)
}

// StitchWithLimits is like Stitch but limits the output buffer to the capacity passed.
func StitchWithLimits(leaves []Leaf, rootMin cube.Pos, rootSize, maxVertices, maxTriangles int) (*mesh.Buffer, error) {
	nodes := make([]*node, 0, len(leaves))
	seen := make(map[cube.BBox]struct{}, len(leaves))
	rootBox := cube.NodeBox(rootMin, rootSize)
	for i := range leaves {
		l := &leaves[i]
		if l.Size <= 0 || l.Size >= rootSize || l.Min.Sub(rootMin).Mod(l.Size) != (cube.Pos{}) || !rootBox.Contains(l.Min) {
			continue
		}
		key := cube.NodeBox(l.Min, l.Size)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		nodes = append(nodes, &node{min: l.Min, size: l.Size, leaf: l, source: l.Source, index: -1})
	}

	root, ok, err := octree.ConstructUpwards(nodes, rootMin, rootSize, builder)
	if err != nil {
		return nil, fmt.Errorf("stitch: %w", err)
	}
	if !ok {
		return nil, nil
	}
	assignSources(root)

	c := &contourer{buf: mesh.NewBufferWithLimits(maxVertices, maxTriangles)}
	c.cellProc(root)
	if c.buf.TriangleCount() == 0 {
		return nil, c.err
	}
	return c.buf, c.err
}

// assignSources sets the source of every internal node to the source shared by all of its leaves, or to
// mixedSource if they differ.
func assignSources(n *node) int {
	if !n.branch() {
		return n.source
	}
	n.source = 0
	first := true
	for _, c := range n.children {
		if c == nil {
			continue
		}
		s := assignSources(c)
		switch {
		case first:
			n.source, first = s, false
		case s != n.source:
			n.source = mixedSource
		}
	}
	return n.source
}

// contourer holds the output of a single contouring pass. Once an error has been recorded no further geometry is
// emitted.
type contourer struct {
	buf *mesh.Buffer
	err error
}

func sameSource(nodes ...*node) bool {
	s := nodes[0].source
	if s == mixedSource {
		return false
	}
	for _, n := range nodes[1:] {
		if n.source != s {
			return false
		}
	}
	return true
}

func (c *contourer) cellProc(n *node) {
	if n == nil || !n.branch() {
		return
	}
	for _, child := range n.children {
		c.cellProc(child)
	}
	for _, f := range cellFaces {
		c.faceProc([2]*node{n.children[f[0]], n.children[f[1]]}, f[2])
	}
	for _, e := range cellEdges {
		c.edgeProc([4]*node{n.children[e[0]], n.children[e[1]], n.children[e[2]], n.children[e[3]]}, e[4])
	}
}

// descend returns the child of n at index i, or n itself if it is a leaf.
func descend(n *node, i int) *node {
	if n.branch() {
		return n.children[i]
	}
	return n
}

func (c *contourer) faceProc(nodes [2]*node, dir int) {
	if nodes[0] == nil || nodes[1] == nil {
		return
	}
	if sameSource(nodes[0], nodes[1]) {
		return
	}
	if !nodes[0].branch() && !nodes[1].branch() {
		return
	}
	for _, f := range faceFaces[dir] {
		c.faceProc([2]*node{descend(nodes[0], f[0]), descend(nodes[1], f[1])}, f[2])
	}
	for _, e := range faceEdges[dir] {
		order := faceEdgeOrders[e[0]]
		var edge [4]*node
		for j := range edge {
			edge[j] = descend(nodes[order[j]], e[j+1])
		}
		c.edgeProc(edge, e[5])
	}
}

func (c *contourer) edgeProc(nodes [4]*node, dir int) {
	for _, n := range nodes {
		if n == nil {
			return
		}
	}
	if sameSource(nodes[:]...) {
		return
	}
	if !nodes[0].branch() && !nodes[1].branch() && !nodes[2].branch() && !nodes[3].branch() {
		c.processEdge(nodes, dir)
		return
	}
	for _, e := range edgeEdges[dir] {
		var edge [4]*node
		for j := range edge {
			edge[j] = descend(nodes[j], e[j])
		}
		c.edgeProc(edge, e[4])
	}
}

// processEdge emits a quad around the edge shared by the 4 leaves passed if the surface crosses it. The smallest
// leaf decides whether the surface crosses and which way the quad faces.
func (c *contourer) processEdge(nodes [4]*node, dir int) {
	if c.err != nil {
		return
	}
	minSize, minIndex, flip := int(^uint(0)>>1), 0, false
	var crossed [4]bool
	for i, n := range nodes {
		edge := EdgeCorners[edgeOfNode[dir][i]]
		corners := n.leaf.Corners()
		m0, m1 := (corners>>edge[0])&1, (corners>>edge[1])&1
		if n.size < minSize {
			minSize, minIndex, flip = n.size, i, m1 != 1
		}
		crossed[i] = m0 != m1
	}
	if !crossed[minIndex] {
		return
	}

	var idx [4]uint32
	for i, n := range nodes {
		index, err := c.vertex(n)
		if err != nil {
			c.err = fmt.Errorf("process edge: %w", err)
			return
		}
		idx[i] = index
	}
	tris := [2]mesh.Triangle{{idx[0], idx[1], idx[3]}, {idx[0], idx[3], idx[2]}}
	if flip {
		tris = [2]mesh.Triangle{{idx[0], idx[3], idx[1]}, {idx[0], idx[2], idx[3]}}
	}
	for _, t := range tris {
		if t[0] == t[1] || t[1] == t[2] || t[0] == t[2] {
			continue
		}
		if err := c.buf.AddTriangle(t); err != nil {
			c.err = fmt.Errorf("process edge: %w", err)
			return
		}
	}
}

// vertex returns the index of the vertex of leaf n in the output buffer, adding it if it has not been used yet.
func (c *contourer) vertex(n *node) (uint32, error) {
	if n.index >= 0 {
		return uint32(n.index), nil
	}
	l := n.leaf
	index, err := c.buf.AddVertex(mesh.Vertex{Pos: l.Pos, Normal: l.Normal, Material: int32(l.Info >> 8)})
	if err != nil {
		return 0, err
	}
	n.index = int32(index)
	return index, nil
}
