// Package backend defines the contract between the terrain volume and the mesh backend that samples density
// fields and extracts surfaces from them.
package backend

import (
	"context"
	"errors"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/nickgildea/leven/terrain/csg"
	"github.com/nickgildea/leven/terrain/cube"
	"github.com/nickgildea/leven/terrain/mesh"
)

// ErrUnavailable is returned by a Backend that can temporarily not serve requests. Callers retry later.
var ErrUnavailable = errors.New("backend: unavailable")

// Fragment is a leaf cell on the boundary of a chunk that contains part of the surface. Fragments of neighbouring
// chunks are joined by dual contouring to build seams.
type Fragment struct {
	// LocalMin is the position of the cell within the chunk, in voxels.
	LocalMin [3]int32
	// Pos and Normal are the world space position and normal of the cell's surface vertex.
	Pos, Normal mgl32.Vec3
	// Info packs the solid state of the 8 cell corners in the low 8 bits, indexed like cube.ChildOffsets, and the
	// material of the cell above them.
	Info uint32
}

// Corners returns the corner sign bits of the fragment.
func (f Fragment) Corners() uint8 {
	return uint8(f.Info & 0xff)
}

// Material returns the material of the fragment.
func (f Fragment) Material() int32 {
	return int32(f.Info >> 8)
}

// PackInfo packs corner sign bits and a material into the Info field layout.
func PackInfo(corners uint8, material int32) uint32 {
	return uint32(corners) | uint32(material)<<8
}

// Result is the output of generating a chunk.
type Result struct {
	// Mesh is the main mesh of the chunk. It is nil if the chunk's interior holds no triangles.
	Mesh *mesh.Buffer
	// Fragments are the boundary cells of the chunk crossed by the surface.
	Fragments []Fragment
}

// Empty reports if the result holds no geometry at all.
func (r Result) Empty() bool {
	return r.Mesh.Empty() && len(r.Fragments) == 0
}

// Backend generates geometry for chunks of the volume. Every method is a blocking call from the point of view of
// the caller. Implementations must be safe for concurrent use with distinct chunks.
type Backend interface {
	// VoxelsPerChunk returns the number of voxels sampled along each axis of a chunk.
	VoxelsPerChunk() int
	// GenerateMesh builds the main mesh and boundary fragments of the chunk at min with the size passed.
	GenerateMesh(ctx context.Context, min cube.Pos, size int) (Result, error)
	// IsEmpty reports if the chunk at min with the size passed contains no surface.
	IsEmpty(ctx context.Context, min cube.Pos, size int) (bool, error)
	// ApplyEdits applies ops to the state the backend keeps for the chunk at min. The ops are about to be added
	// to the shared edit log and must not be replayed a second time from it.
	ApplyEdits(ctx context.Context, ops []csg.Op, min cube.Pos, size int) error
	// EvictCache drops any state derived from the density field of the chunk, forcing it to be rebuilt.
	EvictCache(min cube.Pos, size int)
}
