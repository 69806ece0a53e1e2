// Package octree builds sparse octrees bottom-up from a flat set of nodes. It is used both for the transient
// trees that seams are contoured over and for the view trees published to the consumer.
package octree

import (
	"errors"
	"fmt"
	"sort"

	"github.com/brentp/intintmap"
	"github.com/nickgildea/leven/terrain/chunk"
	"github.com/nickgildea/leven/terrain/cube"
)

var (
	// ErrOverlap is returned when two nodes would occupy the same child slot of a parent.
	ErrOverlap = errors.New("octree: nodes overlap")
	// ErrOutside is returned when a node does not lie inside the root passed.
	ErrOutside = errors.New("octree: node outside of root")
)

// Builder describes how ConstructUpwards reads and creates nodes of type N. N is usually a pointer type.
type Builder[N any] struct {
	// Min and Size return the bounds of a node.
	Min  func(n N) cube.Pos
	Size func(n N) int
	// NewParent creates an internal node with no children.
	NewParent func(min cube.Pos, size int) N
	// SetChild stores child in slot i of parent. Slots are indexed like cube.ChildOffsets.
	SetChild func(parent N, i int, child N)
}

// ConstructUpwards synthesises the internal nodes needed to connect nodes to a single root with its minimum at
// rootMin and an edge length of rootSize. Nodes may have different sizes, as long as every size is rootSize
// divided by a power of two and no two nodes overlap. ok is false if nodes is empty.
func ConstructUpwards[N any](nodes []N, rootMin cube.Pos, rootSize int, b Builder[N]) (root N, ok bool, err error) {
	if len(nodes) == 0 {
		return root, false, nil
	}
	rootBox := cube.NodeBox(rootMin, rootSize)
	for _, n := range nodes {
		min, size := b.Min(n), b.Size(n)
		if size <= 0 || size > rootSize || min.Sub(rootMin).Mod(size) != (cube.Pos{}) ||
			!rootBox.Contains(min) || !rootBox.Contains(min.Add(cube.Pos{size - 1, size - 1, size - 1})) {
			return root, false, fmt.Errorf("construct upwards: node %v size %v: %w", min, size, ErrOutside)
		}
	}

	level := append([]N(nil), nodes...)
	sort.SliceStable(level, func(i, j int) bool {
		return b.Size(level[i]) < b.Size(level[j])
	})

	// Nodes are consumed one size class at a time: the smallest nodes are joined into parents, which are then
	// merged with the remaining nodes of the parent size.
	for b.Size(level[0]) < rootSize {
		size := b.Size(level[0])
		end := 1
		for end < len(level) && b.Size(level[end]) == size {
			end++
		}
		parents, err := constructParents(level[:end], size*2, rootMin, b)
		if err != nil {
			return root, false, err
		}
		level = append(parents, level[end:]...)
	}

	if len(level) != 1 {
		return root, false, fmt.Errorf("construct upwards: %v nodes of root size: %w", len(level), ErrOverlap)
	}
	return level[0], true, nil
}

func constructParents[N any](nodes []N, parentSize int, rootMin cube.Pos, b Builder[N]) ([]N, error) {
	index := intintmap.New(len(nodes), 0.6)
	parents := make([]N, 0, len(nodes)/4+1)
	filled := make([]uint8, 0, cap(parents))

	for _, n := range nodes {
		min := b.Min(n)
		local := min.Sub(rootMin)
		parentMin := min.Sub(local.Mod(parentSize))
		key := int64(chunk.KeyOf(parentMin.Sub(rootMin), parentSize))

		i, ok := index.Get(key)
		if !ok {
			i = int64(len(parents))
			index.Put(key, i)
			parents = append(parents, b.NewParent(parentMin, parentSize))
			filled = append(filled, 0)
		}
		slot := cube.ChildIndex(parentMin, min, parentSize/2)
		if filled[i]&(1<<slot) != 0 {
			return nil, fmt.Errorf("construct parents: node %v size %v: %w", min, parentSize/2, ErrOverlap)
		}
		filled[i] |= 1 << slot
		b.SetChild(parents[i], slot, n)
	}
	return parents, nil
}
