// Package contour joins the boundary fragments of neighbouring chunks into seam meshes using dual contouring over
// a sparse octree built from the fragments.
package contour

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/nickgildea/leven/terrain/backend"
	"github.com/nickgildea/leven/terrain/chunk"
	"github.com/nickgildea/leven/terrain/cube"
)

// Leaf is a seam fragment placed in world space.
type Leaf struct {
	// Min and Size are the world space bounds of the cell the fragment was extracted from.
	Min  cube.Pos
	Size int
	// Pos and Normal are the position and normal of the fragment's surface vertex.
	Pos, Normal mgl32.Vec3
	// Info packs corner signs and material like backend.Fragment.Info.
	Info uint32
	// Source identifies the chunk the fragment came from. Edges whose leaves all share a source are part of the
	// source chunk's main mesh and are never contoured into seams.
	Source int
}

// Max returns the maximum corner of the leaf.
func (l Leaf) Max() cube.Pos {
	return l.Min.Add(cube.Pos{l.Size, l.Size, l.Size})
}

// Corners returns the corner sign bits of the leaf.
func (l Leaf) Corners() uint8 {
	return uint8(l.Info & 0xff)
}

// Leaves converts the fragments produced for the chunk at min with the size passed into world space leaves tagged
// with source.
func Leaves(frags []backend.Fragment, min cube.Pos, size, voxelsPerChunk, source int) []Leaf {
	if len(frags) == 0 {
		return nil
	}
	step := chunk.SeamFragmentSize(size, voxelsPerChunk)
	out := make([]Leaf, len(frags))
	for i, f := range frags {
		local := cube.Pos{int(f.LocalMin[0]), int(f.LocalMin[1]), int(f.LocalMin[2])}
		out[i] = Leaf{
			Min:    min.Add(local.Mul(step)),
			Size:   step,
			Pos:    f.Pos,
			Normal: f.Normal,
			Info:   f.Info,
			Source: source,
		}
	}
	return out
}

// onSeam reports if a leaf with the bounds passed, belonging to the neighbour of a host node in direction dir, lies
// on the boundary between the host and that neighbour. seam is the maximum corner of the host. Direction 0 is the
// host itself, whose leaves are only of interest on its maximum faces.
func onSeam(dir int, seam, min, max cube.Pos) bool {
	switch dir {
	case 0:
		return max[0] == seam[0] || max[1] == seam[1] || max[2] == seam[2]
	case 1:
		return min[2] == seam[2]
	case 2:
		return min[1] == seam[1]
	case 3:
		return min[1] == seam[1] || min[2] == seam[2]
	case 4:
		return min[0] == seam[0]
	case 5:
		return min[0] == seam[0] || min[2] == seam[2]
	case 6:
		return min[0] == seam[0] || min[1] == seam[1]
	case 7:
		return min == seam
	}
	return false
}

// SelectSeamLeaves appends to dst the leaves of the neighbour of a host node in direction dir that take part in
// the seam of the host. The host has its minimum corner at hostMin and an edge length of hostSize. Directions are
// indexed like cube.ChildOffsets, with the neighbour at hostMin + ChildOffsets[dir]*hostSize.
func SelectSeamLeaves(dst []Leaf, hostMin cube.Pos, hostSize, dir int, leaves []Leaf) []Leaf {
	seam := hostMin.Add(cube.Pos{hostSize, hostSize, hostSize})
	region := cube.NodeBox(hostMin, hostSize*2)
	for _, l := range leaves {
		if !onSeam(dir, seam, l.Min, l.Max()) || !region.Contains(l.Min) {
			continue
		}
		dst = append(dst, l)
	}
	return dst
}
