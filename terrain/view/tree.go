// Package view holds the lightweight, immutable trees of active terrain nodes handed from the update goroutine to
// the goroutine that draws or queries the terrain.
package view

import (
	"fmt"
	"sync/atomic"

	"github.com/nickgildea/leven/terrain/cube"
	"github.com/nickgildea/leven/terrain/mesh"
	"github.com/nickgildea/leven/terrain/octree"
)

// Node is a node of a view Tree. Nodes are never modified once the Tree holding them has been published.
type Node struct {
	Min  cube.Pos
	Size int
	// MainMesh and SeamMesh are the meshes drawn for the node. Either may be mesh.NoHandle.
	MainMesh, SeamMesh mesh.Handle
	// Active is true for nodes mirroring an active terrain node and false for the nodes connecting them.
	Active   bool
	Children [8]*Node
}

// Box returns the bounds of the node.
func (n *Node) Box() cube.BBox {
	return cube.NodeBox(n.Min, n.Size)
}

// Tree is a snapshot of the active nodes of the terrain at the end of an update pass.
type Tree struct {
	// Root is the root of the tree. It is nil if no node was active.
	Root *Node
	// Seq is the number of trees built before this one.
	Seq uint64
}

// Walk calls fn for every node of the tree, parents before children. Walking stops at the children of a node if
// fn returns false for it.
func (t Tree) Walk(fn func(n *Node) bool) {
	var walk func(n *Node)
	walk = func(n *Node) {
		if n == nil || !fn(n) {
			return
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(t.Root)
}

// Entry describes an active terrain node to include in a Tree.
type Entry struct {
	Min                cube.Pos
	Size               int
	MainMesh, SeamMesh mesh.Handle
}

const slabSize = 256

// arena hands out Nodes from fixed size slabs, so that handed out Nodes never move. Resetting the arena makes
// every Node it handed out available again.
type arena struct {
	slabs [][]Node
	used  int
}

func (a *arena) alloc() *Node {
	slab, i := a.used/slabSize, a.used%slabSize
	if slab == len(a.slabs) {
		a.slabs = append(a.slabs, make([]Node, slabSize))
	}
	a.used++
	n := &a.slabs[slab][i]
	*n = Node{}
	return n
}

func (a *arena) reset() {
	a.used = 0
}

// Builder builds Trees into two arenas used in turn. A Tree built by a Builder stays valid until the second call
// to Build after it, so a consumer must have moved on to a newer Tree before that happens.
type Builder struct {
	arenas  [2]arena
	counter atomic.Uint64
}

// Built returns the number of Trees built so far. It may be called from any goroutine.
func (b *Builder) Built() uint64 {
	return b.counter.Load()
}

// Build builds a Tree from the entries passed. rootMin and rootSize describe the root of the terrain octree that
// every entry lies in.
func (b *Builder) Build(entries []Entry, rootMin cube.Pos, rootSize int) (Tree, error) {
	seq := b.counter.Load()
	a := &b.arenas[seq&1]
	a.reset()
	t := Tree{Seq: seq}

	if len(entries) == 0 {
		b.counter.Add(1)
		return t, nil
	}
	nodes := make([]*Node, len(entries))
	for i, e := range entries {
		n := a.alloc()
		n.Min, n.Size, n.MainMesh, n.SeamMesh, n.Active = e.Min, e.Size, e.MainMesh, e.SeamMesh, true
		nodes[i] = n
	}
	root, _, err := octree.ConstructUpwards(nodes, rootMin, rootSize, octree.Builder[*Node]{
		Min:  func(n *Node) cube.Pos { return n.Min },
		Size: func(n *Node) int { return n.Size },
		NewParent: func(min cube.Pos, size int) *Node {
			n := a.alloc()
			n.Min, n.Size = min, size
			return n
		},
		SetChild: func(parent *Node, i int, child *Node) {
			parent.Children[i] = child
		},
	})
	if err != nil {
		// The next Build reuses the same arena.
		return Tree{}, fmt.Errorf("build view tree: %w", err)
	}
	b.counter.Add(1)
	t.Root = root
	return t, nil
}
