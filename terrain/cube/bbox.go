package cube

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// BBox is an axis-aligned box with integer corners. The maximum corner is exclusive for containment checks but
// inclusive for overlap checks, so that boxes sharing a face count as overlapping.
type BBox struct {
	min, max Pos
}

// Box creates a BBox from a minimum and maximum corner.
func Box(min, max Pos) BBox {
	return BBox{min: min, max: max}
}

// NodeBox creates the BBox of a cubic node with its minimum corner at min and an edge length of size.
func NodeBox(min Pos, size int) BBox {
	return BBox{min: min, max: min.Add(Pos{size, size, size})}
}

// Min returns the minimum corner of the box.
func (box BBox) Min() Pos {
	return box.min
}

// Max returns the maximum corner of the box.
func (box BBox) Max() Pos {
	return box.max
}

// Size returns the extent of the box on every axis.
func (box BBox) Size() Pos {
	return box.max.Sub(box.min)
}

// Centre returns the integer centre of the box.
func (box BBox) Centre() Pos {
	return box.min.Add(box.Size().Div(2))
}

// Grow returns a box extended by n on every side.
func (box BBox) Grow(n int) BBox {
	return BBox{min: box.min.Sub(Pos{n, n, n}), max: box.max.Add(Pos{n, n, n})}
}

// Overlaps checks if box overlaps with other. Touching faces count as an overlap.
func (box BBox) Overlaps(other BBox) bool {
	return !(box.max[0] < other.min[0] || box.max[1] < other.min[1] || box.max[2] < other.min[2] ||
		box.min[0] > other.max[0] || box.min[1] > other.max[1] || box.min[2] > other.max[2])
}

// Contains checks if the point passed lies inside the box. The minimum corner is inside, the maximum corner is
// not.
func (box BBox) Contains(p Pos) bool {
	return p[0] >= box.min[0] && p[0] < box.max[0] &&
		p[1] >= box.min[1] && p[1] < box.max[1] &&
		p[2] >= box.min[2] && p[2] < box.max[2]
}

// Distance returns the distance from the point passed to the closest point of the box. Points inside the box have
// a distance of 0.
func (box BBox) Distance(p mgl64.Vec3) float64 {
	var d mgl64.Vec3
	for i := 0; i < 3; i++ {
		lo, hi := float64(box.min[i]), float64(box.max[i])
		switch {
		case p[i] < lo:
			d[i] = lo - p[i]
		case p[i] > hi:
			d[i] = p[i] - hi
		}
	}
	return d.Len()
}

// IntersectRay intersects a ray starting at origin and travelling along dir with the box. If the ray hits, the
// distance along dir to the entry point is returned together with true. Rays starting inside the box hit at a
// distance of 0.
func (box BBox) IntersectRay(origin, dir mgl64.Vec3) (float64, bool) {
	tMin, tMax := 0.0, math.MaxFloat64
	for i := 0; i < 3; i++ {
		lo, hi := float64(box.min[i]), float64(box.max[i])
		if math.Abs(dir[i]) < mgl64.Epsilon {
			if origin[i] < lo || origin[i] >= hi {
				return 0, false
			}
			continue
		}
		ood := 1 / dir[i]
		t1, t2 := (lo-origin[i])*ood, (hi-origin[i])*ood
		tMin = math.Max(tMin, math.Min(t1, t2))
		tMax = math.Min(tMax, math.Max(t1, t2))
		if tMin > tMax {
			return 0, false
		}
	}
	return tMin, true
}
