package cube

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

func TestBBoxOverlapsTouchingFaces(t *testing.T) {
	a := NodeBox(Pos{0, 0, 0}, 32)
	b := NodeBox(Pos{32, 0, 0}, 32)
	if !a.Overlaps(b) {
		t.Fatalf("boxes sharing a face should overlap")
	}
	c := NodeBox(Pos{33, 0, 0}, 32)
	if a.Overlaps(c) {
		t.Fatalf("separated boxes should not overlap")
	}
}

func TestBBoxContainsIsHalfOpen(t *testing.T) {
	box := NodeBox(Pos{-16, -16, -16}, 32)
	if !box.Contains(Pos{-16, -16, -16}) {
		t.Fatalf("minimum corner should be inside")
	}
	if box.Contains(Pos{16, 0, 0}) {
		t.Fatalf("maximum corner should be outside")
	}
}

func TestBBoxDistance(t *testing.T) {
	box := NodeBox(Pos{0, 0, 0}, 10)
	if d := box.Distance(mgl64.Vec3{5, 5, 5}); d != 0 {
		t.Fatalf("expected 0 distance inside box, got %v", d)
	}
	if d := box.Distance(mgl64.Vec3{13, 14, 5}); d != 5 {
		t.Fatalf("expected distance 5, got %v", d)
	}
}

func TestBBoxIntersectRay(t *testing.T) {
	box := NodeBox(Pos{10, 0, 0}, 10)
	dist, ok := box.IntersectRay(mgl64.Vec3{0, 5, 5}, mgl64.Vec3{1, 0, 0})
	if !ok || dist != 10 {
		t.Fatalf("expected hit at distance 10, got %v (hit=%v)", dist, ok)
	}
	if _, ok := box.IntersectRay(mgl64.Vec3{0, 15, 5}, mgl64.Vec3{1, 0, 0}); ok {
		t.Fatalf("ray passing above the box should miss")
	}
	if _, ok := box.IntersectRay(mgl64.Vec3{0, 5, 5}, mgl64.Vec3{-1, 0, 0}); ok {
		t.Fatalf("ray pointing away from the box should miss")
	}
}

func TestChildIndexMatchesOffsets(t *testing.T) {
	parent := Pos{-64, 0, 64}
	for i := range ChildOffsets {
		min := ChildMin(parent, 64, i)
		if got := ChildIndex(parent, min, 32); got != i {
			t.Fatalf("child %v: got index %v", i, got)
		}
	}
}

func TestFrustumCulling(t *testing.T) {
	proj := mgl64.Perspective(mgl64.DegToRad(60), 1, 0.1, 1000)
	view := mgl64.LookAtV(mgl64.Vec3{0, 0, 0}, mgl64.Vec3{0, 0, -1}, mgl64.Vec3{0, 1, 0})
	f := FrustumFromMatrix(proj.Mul4(view))

	if !f.ContainsBBox(NodeBox(Pos{-5, -5, -50}, 10)) {
		t.Fatalf("box in front of the camera should be visible")
	}
	if f.ContainsBBox(NodeBox(Pos{-5, -5, 50}, 10)) {
		t.Fatalf("box behind the camera should be culled")
	}
	if !OpenFrustum().ContainsBBox(NodeBox(Pos{-5, -5, 50}, 10)) {
		t.Fatalf("open frustum should contain every box")
	}
}
