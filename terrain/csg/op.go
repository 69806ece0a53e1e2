// Package csg holds the constructive solid geometry edits applied to the terrain volume: the queue edits are
// submitted to and the global log that density fields replay edits from.
package csg

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/nickgildea/leven/terrain/chunk"
	"github.com/nickgildea/leven/terrain/cube"
)

// Shape is the shape of the brush used by an Op.
type Shape uint8

const (
	ShapeCube Shape = iota
	ShapeSphere
)

// String ...
func (s Shape) String() string {
	switch s {
	case ShapeCube:
		return "cube"
	case ShapeSphere:
		return "sphere"
	}
	return fmt.Sprintf("Shape(%d)", uint8(s))
}

// MaterialAir is the material of empty space. Subtracting always leaves MaterialAir behind.
const MaterialAir int32 = 0

const (
	// voxelOffset is added to the voxel space origin of every Op.
	voxelOffset = 0.5
	// boundsPadding is added to the half size of an Op when computing the nodes it touches.
	boundsPadding = 2
)

// Op is a single CSG edit. Its origin and half size are held in voxel space of a leaf chunk, so that it may be
// evaluated independent of when it is applied. An Op is never modified once created.
type Op struct {
	Shape Shape
	// Origin is the centre of the brush in voxel space, offset by half a voxel.
	Origin mgl64.Vec3
	// HalfSize is half the size of the brush in voxel space.
	HalfSize mgl64.Vec3
	// Material is the material written by the Op. It is MaterialAir for subtracting edits.
	Material int32
	// Add is true for edits that add material and false for edits that remove it.
	Add bool
}

// NewOp creates an Op from a brush in world space. origin is the centre of the brush and size its full extent.
func NewOp(shape Shape, origin, size mgl64.Vec3, material int32, add bool) Op {
	op := Op{
		Shape:    shape,
		Origin:   origin.Mul(1.0 / chunk.LeafSizeScale).Add(mgl64.Vec3{voxelOffset, voxelOffset, voxelOffset}),
		HalfSize: size.Mul(0.5 / chunk.LeafSizeScale),
		Material: material,
		Add:      add,
	}
	if !add {
		op.Material = MaterialAir
	}
	return op
}

// Centre returns the centre of the brush in voxel space.
func (op Op) Centre() mgl64.Vec3 {
	return op.Origin.Sub(mgl64.Vec3{voxelOffset, voxelOffset, voxelOffset})
}

// Bounds returns the world space box of nodes that may be affected by the Op. The box is padded so that nodes
// right next to the brush are rebuilt as well.
func (op Op) Bounds() cube.BBox {
	var half, origin cube.Pos
	for i := 0; i < 3; i++ {
		half[i] = int(op.HalfSize[i]*chunk.LeafSizeScale) + boundsPadding
		origin[i] = int((op.Origin[i] - voxelOffset) * chunk.LeafSizeScale)
	}
	return cube.Box(origin.Sub(half), origin.Add(half))
}

// Distance returns the signed distance from the voxel space point p to the surface of the brush. Points inside the
// brush have a negative distance.
func (op Op) Distance(p mgl64.Vec3) float64 {
	d := p.Sub(op.Centre())
	switch op.Shape {
	case ShapeSphere:
		return d.Len() - op.HalfSize[0]
	default:
		q := mgl64.Vec3{math.Abs(d[0]) - op.HalfSize[0], math.Abs(d[1]) - op.HalfSize[1], math.Abs(d[2]) - op.HalfSize[2]}
		outside := mgl64.Vec3{math.Max(q[0], 0), math.Max(q[1], 0), math.Max(q[2], 0)}.Len()
		inside := math.Min(math.Max(q[0], math.Max(q[1], q[2])), 0)
		return outside + inside
	}
}

// Apply combines a density value d, sampled at voxel space point p, with the Op. Negative densities are solid.
func (op Op) Apply(d float64, p mgl64.Vec3) float64 {
	if op.Add {
		return math.Min(d, op.Distance(p))
	}
	return math.Max(d, -op.Distance(p))
}
