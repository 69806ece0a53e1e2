package chunk

import (
	"testing"

	"github.com/nickgildea/leven/terrain/cube"
)

func TestDefaultLayoutConstants(t *testing.T) {
	l := DefaultLayout()
	if l.LeafSize() != 256 {
		t.Fatalf("expected leaf size 256, got %v", l.LeafSize())
	}
	if l.CollisionNodeSize() != 512 {
		t.Fatalf("expected collision node size 512, got %v", l.CollisionNodeSize())
	}
	if l.MaxRenderableSize() != 256*32 {
		t.Fatalf("expected max renderable size %v, got %v", 256*32, l.MaxRenderableSize())
	}
	want := []float64{0, 1.5 * 256, 3.5 * 256, 5.5 * 256, 7.5 * 256, 13.5 * 256}
	for level, w := range want {
		if got := l.ActiveDistance(256 << level); got != w {
			t.Fatalf("level %v: expected distance %v, got %v", level, w, got)
		}
	}
}

func TestLayoutValidate(t *testing.T) {
	if err := (Layout{VoxelsPerChunk: 12, CollisionVoxelsPerChunk: 8}).Validate(); err == nil {
		t.Fatalf("expected error for non power of two voxel count")
	}
	if err := (Layout{VoxelsPerChunk: 8, CollisionVoxelsPerChunk: 8}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidSize(t *testing.T) {
	l := Layout{VoxelsPerChunk: 8, CollisionVoxelsPerChunk: 8}
	for _, size := range []int{32, 64, 128, 1024} {
		if !l.ValidSize(size) {
			t.Fatalf("expected %v to be valid", size)
		}
	}
	for _, size := range []int{16, 48, 96, 0} {
		if l.ValidSize(size) {
			t.Fatalf("expected %v to be invalid", size)
		}
	}
}

func TestChunkMinNegative(t *testing.T) {
	origin := cube.Pos{-128, -128, -128}
	if got := ChunkMin(origin, cube.Pos{-1, 0, 31}, 32); got != (cube.Pos{-32, 0, 0}) {
		t.Fatalf("unexpected chunk min %v", got)
	}
}

func TestKeyOfDistinct(t *testing.T) {
	seen := map[Key]cube.Pos{}
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			for z := 0; z < 4; z++ {
				p := cube.Pos{x * 32, y * 32, z * 32}
				k := KeyOf(p, 32)
				if other, ok := seen[k]; ok {
					t.Fatalf("key collision between %v and %v", p, other)
				}
				seen[k] = p
			}
		}
	}
}
