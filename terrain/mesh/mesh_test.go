package mesh

import (
	"errors"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/nickgildea/leven/terrain/internal/guard"
)

// grid builds a flat n*n quad grid in the XZ plane facing +Y.
func grid(n int, spacing float32) *Buffer {
	b := NewBuffer()
	for x := 0; x <= n; x++ {
		for z := 0; z <= n; z++ {
			_, _ = b.AddVertex(Vertex{Pos: mgl32.Vec3{float32(x) * spacing, 0, float32(z) * spacing}, Normal: mgl32.Vec3{0, 1, 0}})
		}
	}
	idx := func(x, z int) uint32 { return uint32(x*(n+1) + z) }
	for x := 0; x < n; x++ {
		for z := 0; z < n; z++ {
			_ = b.AddTriangle(Triangle{idx(x, z), idx(x, z+1), idx(x+1, z+1)})
			_ = b.AddTriangle(Triangle{idx(x, z), idx(x+1, z+1), idx(x+1, z)})
		}
	}
	return b
}

func TestBufferCapacity(t *testing.T) {
	b := NewBufferWithLimits(2, 1)
	for i := 0; i < 2; i++ {
		if _, err := b.AddVertex(Vertex{}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if _, err := b.AddVertex(Vertex{}); !errors.Is(err, ErrCapacity) {
		t.Fatalf("expected ErrCapacity, got %v", err)
	}
	if err := b.AddTriangle(Triangle{0, 1, 0}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := b.AddTriangle(Triangle{0, 1, 0}); !errors.Is(err, ErrCapacity) {
		t.Fatalf("expected ErrCapacity, got %v", err)
	}
}

func TestSimplifyFlatGrid(t *testing.T) {
	b := grid(8, 1)
	before := len(b.Triangles)
	removed := Simplify(b, mgl32.Vec3{4, 0, 4}, DefaultSimplifyOptions())
	if removed <= 0 {
		t.Fatalf("expected triangles to be removed from a flat grid")
	}
	if len(b.Triangles) != before-removed {
		t.Fatalf("removed count %v does not match triangle count %v -> %v", removed, before, len(b.Triangles))
	}
	for _, tri := range b.Triangles {
		a, c, d := b.Vertices[tri[0]].Pos, b.Vertices[tri[1]].Pos, b.Vertices[tri[2]].Pos
		if n := c.Sub(a).Cross(d.Sub(a)); n[1] <= 0 {
			t.Fatalf("triangle %v flipped or degenerate after simplification: normal %v", tri, n)
		}
	}
}

func TestSimplifyKeepsBorder(t *testing.T) {
	b := grid(6, 1)
	corners := map[mgl32.Vec3]bool{}
	for _, v := range b.Vertices {
		if v.Pos[0] == 0 || v.Pos[0] == 6 || v.Pos[2] == 0 || v.Pos[2] == 6 {
			corners[v.Pos] = true
		}
	}
	Simplify(b, mgl32.Vec3{}, DefaultSimplifyOptions())
	for _, v := range b.Vertices {
		delete(corners, v.Pos)
	}
	if len(corners) != 0 {
		t.Fatalf("border vertices moved or removed: %v", corners)
	}
}

func TestSimplifyRespectsEdgeSize(t *testing.T) {
	b := grid(6, 10)
	before := len(b.Triangles)
	if removed := Simplify(b, mgl32.Vec3{}, DefaultSimplifyOptions()); removed != 0 {
		t.Fatalf("edges longer than the maximum edge size were collapsed: %v of %v", removed, before)
	}
	if removed := Simplify(b, mgl32.Vec3{}, DefaultSimplifyOptions().Scaled(8)); removed == 0 {
		t.Fatalf("scaled options should allow collapsing longer edges")
	}
}

func TestRegistryDoubleDestroy(t *testing.T) {
	r := NewRegistry()
	h, err := r.CreateMesh(grid(1, 1), mgl32.Vec3{})
	if err != nil {
		t.Fatalf("create mesh: %v", err)
	}
	if !h.Valid() {
		t.Fatalf("expected valid handle")
	}
	r.DestroyMesh(h)
	if _, ok := guard.Run(func() { r.DestroyMesh(h) }); ok {
		t.Fatalf("expected double destroy to be reported")
	}
	if created, destroyed := r.Counts(); created != 1 || destroyed != 1 {
		t.Fatalf("unexpected counts %v/%v", created, destroyed)
	}
}

func TestRegistryRejectsEmpty(t *testing.T) {
	if _, err := NewRegistry().CreateMesh(NewBuffer(), mgl32.Vec3{}); !errors.Is(err, ErrEmptyMesh) {
		t.Fatalf("expected ErrEmptyMesh, got %v", err)
	}
}
