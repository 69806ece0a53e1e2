package cube

import (
	"github.com/go-gl/mathgl/mgl64"
)

// Frustum is a set of 6 planes bounding the volume visible to a camera. Each plane is stored as (normal, d) with
// points on the inside producing a positive dot product.
type Frustum [6]mgl64.Vec4

// FrustumFromMatrix extracts the frustum planes from a combined model-view-projection matrix.
func FrustumFromMatrix(mvp mgl64.Mat4) Frustum {
	row := func(r int) mgl64.Vec4 {
		return mgl64.Vec4{mvp.At(r, 0), mvp.At(r, 1), mvp.At(r, 2), mvp.At(r, 3)}
	}
	r0, r1, r2, r3 := row(0), row(1), row(2), row(3)
	f := Frustum{
		r3.Sub(r0), r3.Add(r0),
		r3.Add(r1), r3.Sub(r1),
		r3.Sub(r2), r3.Add(r2),
	}
	for i := range f {
		f[i] = f[i].Normalize()
	}
	return f
}

// OpenFrustum returns a frustum that every box lies inside of. It is used where culling is not wanted, such as
// when updating without a camera.
func OpenFrustum() Frustum {
	var f Frustum
	for i := range f {
		f[i] = mgl64.Vec4{0, 0, 0, 1}
	}
	return f
}

// ContainsBBox reports if any part of box might be visible. A box is only rejected if all 8 of its corners lie
// behind the same plane.
func (f Frustum) ContainsBBox(box BBox) bool {
	lo, hi := box.min.Vec3(), box.max.Vec3()
	for _, p := range f {
		outside := 0
		for i := 0; i < 8; i++ {
			c := lo
			if i&4 != 0 {
				c[0] = hi[0]
			}
			if i&2 != 0 {
				c[1] = hi[1]
			}
			if i&1 != 0 {
				c[2] = hi[2]
			}
			if p.Dot(mgl64.Vec4{c[0], c[1], c[2], 1}) < 0 {
				outside++
			}
		}
		if outside == 8 {
			return false
		}
	}
	return true
}
