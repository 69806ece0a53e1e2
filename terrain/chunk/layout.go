// Package chunk describes how the terrain volume is divided into chunks: the number of voxels sampled per chunk,
// the world size of a leaf chunk and the level-of-detail tables derived from it.
package chunk

import (
	"fmt"
	"math/bits"

	"github.com/nickgildea/leven/terrain/cube"
)

const (
	// DefaultVoxelsPerChunk is the number of voxels along each axis of a clipmap chunk.
	DefaultVoxelsPerChunk = 64
	// DefaultCollisionVoxelsPerChunk is the number of voxels along each axis of a collision chunk.
	DefaultCollisionVoxelsPerChunk = 64
	// LeafSizeScale is the size of a single voxel of a leaf chunk in world units.
	LeafSizeScale = 4
	// LODCount is the number of levels of detail that may be rendered.
	LODCount = 6
)

// activeDistances holds the minimum camera distance, in leaf sizes, at which a node of each LOD may be selected.
var activeDistances = [LODCount]float64{0, 1.5, 3.5, 5.5, 7.5, 13.5}

// Layout describes the chunk granularity of a terrain volume. The zero value is not valid; use DefaultLayout or
// fill out VoxelsPerChunk.
type Layout struct {
	// VoxelsPerChunk is the number of voxels along each axis of a clipmap chunk. It must be a power of two.
	VoxelsPerChunk int
	// CollisionVoxelsPerChunk is the number of voxels along each axis of a collision chunk.
	CollisionVoxelsPerChunk int
}

// DefaultLayout returns the layout used by default: 64 voxels per chunk for both the clipmap and collision.
func DefaultLayout() Layout {
	return Layout{VoxelsPerChunk: DefaultVoxelsPerChunk, CollisionVoxelsPerChunk: DefaultCollisionVoxelsPerChunk}
}

// Validate checks if the layout describes a usable chunk granularity.
func (l Layout) Validate() error {
	if l.VoxelsPerChunk < 2 || bits.OnesCount(uint(l.VoxelsPerChunk)) != 1 {
		return fmt.Errorf("voxels per chunk must be a power of two >= 2, got %v", l.VoxelsPerChunk)
	}
	if l.CollisionVoxelsPerChunk < 2 || bits.OnesCount(uint(l.CollisionVoxelsPerChunk)) != 1 {
		return fmt.Errorf("collision voxels per chunk must be a power of two >= 2, got %v", l.CollisionVoxelsPerChunk)
	}
	return nil
}

// LeafSize returns the world size of the smallest clipmap node.
func (l Layout) LeafSize() int {
	return l.VoxelsPerChunk * LeafSizeScale
}

// CollisionNodeSize returns the world size of a collision node, which is twice the leaf size.
func (l Layout) CollisionNodeSize() int {
	return l.LeafSize() * 2
}

// MaxRenderableSize returns the size of the coarsest node that may be selected for rendering.
func (l Layout) MaxRenderableSize() int {
	return l.LeafSize() << (LODCount - 1)
}

// Level returns the LOD level of a node of the size passed: 0 for leaves, 1 for twice the leaf size and so on.
func (l Layout) Level(size int) int {
	return bits.Len(uint(size/l.LeafSize())) - 1
}

// ActiveDistance returns the minimum distance between the camera and a node of the size passed for the node to
// be selected. Sizes above the maximum renderable size return the distance of the coarsest level.
func (l Layout) ActiveDistance(size int) float64 {
	level := min(max(l.Level(size), 0), LODCount-1)
	return activeDistances[level] * float64(l.LeafSize())
}

// ValidSize reports if size is the leaf size multiplied by a power of two.
func (l Layout) ValidSize(size int) bool {
	leaf := l.LeafSize()
	return size >= leaf && size%leaf == 0 && bits.OnesCount(uint(size/leaf)) == 1
}

// SeamFragmentSize returns the world size of a single seam fragment produced for a node of the size passed by a
// backend sampling voxelsPerChunk voxels per chunk.
func SeamFragmentSize(nodeSize, voxelsPerChunk int) int {
	return nodeSize / voxelsPerChunk
}

// ChunkMin returns the minimum corner of the chunk of the size passed containing p, relative to origin.
func ChunkMin(origin, p cube.Pos, size int) cube.Pos {
	var out cube.Pos
	for i := 0; i < 3; i++ {
		d := p[i] - origin[i]
		q := d / size
		if d < 0 && d%size != 0 {
			q--
		}
		out[i] = origin[i] + q*size
	}
	return out
}
