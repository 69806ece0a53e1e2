package csg

import (
	"sync"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/nickgildea/leven/terrain/cube"
	"github.com/stretchr/testify/require"
)

func TestNewOpNormalisesIntoVoxelSpace(t *testing.T) {
	op := NewOp(ShapeSphere, mgl64.Vec3{8, 16, -4}, mgl64.Vec3{8, 8, 8}, 3, true)
	require.InDelta(t, 2.5, op.Origin[0], 1e-9)
	require.InDelta(t, 4.5, op.Origin[1], 1e-9)
	require.InDelta(t, -0.5, op.Origin[2], 1e-9)
	require.InDelta(t, 1, op.HalfSize[0], 1e-9)
	require.Equal(t, int32(3), op.Material)

	sub := NewOp(ShapeCube, mgl64.Vec3{}, mgl64.Vec3{4, 4, 4}, 3, false)
	require.Equal(t, MaterialAir, sub.Material)
	require.False(t, sub.Add)
}

func TestOpBoundsArePadded(t *testing.T) {
	op := NewOp(ShapeCube, mgl64.Vec3{100, 0, 0}, mgl64.Vec3{20, 20, 20}, 1, true)
	box := op.Bounds()
	require.Equal(t, cube.Pos{88, -12, -12}, box.Min())
	require.Equal(t, cube.Pos{112, 12, 12}, box.Max())
}

func TestOpDistance(t *testing.T) {
	sphere := NewOp(ShapeSphere, mgl64.Vec3{}, mgl64.Vec3{16, 16, 16}, 1, true)
	require.InDelta(t, -2, sphere.Distance(sphere.Centre()), 1e-9)
	require.InDelta(t, 1, sphere.Distance(sphere.Centre().Add(mgl64.Vec3{3, 0, 0})), 1e-9)

	box := NewOp(ShapeCube, mgl64.Vec3{}, mgl64.Vec3{16, 16, 16}, 1, true)
	require.InDelta(t, -2, box.Distance(box.Centre()), 1e-9)
	require.InDelta(t, 1, box.Distance(box.Centre().Add(mgl64.Vec3{0, 3, 0})), 1e-9)
}

func TestApplyAddIsIdempotent(t *testing.T) {
	op := NewOp(ShapeSphere, mgl64.Vec3{}, mgl64.Vec3{16, 16, 16}, 1, true)
	p := mgl64.Vec3{1, 0.5, 0}
	once := op.Apply(3, p)
	require.Equal(t, once, op.Apply(once, p))
}

func TestQueueDrainOrder(t *testing.T) {
	var q Queue
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			q.Enqueue(NewOp(ShapeCube, mgl64.Vec3{float64(i), 0, 0}, mgl64.Vec3{1, 1, 1}, 1, true))
		}(i)
	}
	wg.Wait()
	require.Equal(t, 8, q.Len())
	require.Len(t, q.Drain(), 8)
	require.Empty(t, q.Drain())

	q.Enqueue(NewOp(ShapeCube, mgl64.Vec3{1, 0, 0}, mgl64.Vec3{1, 1, 1}, 1, true))
	q.Enqueue(NewOp(ShapeCube, mgl64.Vec3{2, 0, 0}, mgl64.Vec3{1, 1, 1}, 1, true))
	ops := q.Drain()
	require.Less(t, ops[0].Origin[0], ops[1].Origin[0])
}

func TestLogSinceReplaysOverlappingSuffix(t *testing.T) {
	var l Log
	near := NewOp(ShapeSphere, mgl64.Vec3{10, 10, 10}, mgl64.Vec3{4, 4, 4}, 1, true)
	far := NewOp(ShapeSphere, mgl64.Vec3{1000, 10, 10}, mgl64.Vec3{4, 4, 4}, 1, true)
	l.Append(near, far)

	field := cube.NodeBox(cube.Pos{0, 0, 0}, 32)
	ops, idx := l.Since(0, field)
	require.Equal(t, []Op{near}, ops)
	require.Equal(t, 2, idx)

	ops, idx = l.Since(idx, field)
	require.Empty(t, ops)
	require.Equal(t, 2, idx)

	l.Append(near)
	ops, idx = l.Since(idx, field)
	require.Len(t, ops, 1)
	require.Equal(t, 3, idx)
}

func TestSubtractThenAddRestoresSolid(t *testing.T) {
	ground := func(p mgl64.Vec3) float64 { return p[1] - 8 }
	sub := NewOp(ShapeSphere, mgl64.Vec3{0, 0, 0}, mgl64.Vec3{16, 16, 16}, 0, false)
	add := NewOp(ShapeSphere, mgl64.Vec3{0, 0, 0}, mgl64.Vec3{16, 16, 16}, 1, true)

	carved := 0
	// Samples are offset by a quarter voxel so that none lies exactly on the brush surface.
	for x := -5.75; x <= 6; x += 0.5 {
		for y := -5.75; y <= 12; y += 0.5 {
			for z := -5.75; z <= 6; z += 0.5 {
				p := mgl64.Vec3{x, y, z}
				d := ground(p)
				edited := sub.Apply(d, p)
				if edited > 0 && d < 0 {
					carved++
				}
				require.Equal(t, d < 0, add.Apply(edited, p) < 0, "solidity at %v", p)
			}
		}
	}
	require.NotZero(t, carved)
}
