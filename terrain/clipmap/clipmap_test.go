package clipmap

import (
	"context"
	"sync"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/nickgildea/leven/terrain/backend"
	"github.com/nickgildea/leven/terrain/backend/cpu"
	"github.com/nickgildea/leven/terrain/csg"
	"github.com/nickgildea/leven/terrain/cube"
	"github.com/nickgildea/leven/terrain/internal/guard"
	"github.com/nickgildea/leven/terrain/mesh"
	"github.com/nickgildea/leven/terrain/view"
	"github.com/stretchr/testify/require"
)

var testBounds = cube.Box(cube.Pos{-128, -128, -128}, cube.Pos{128, 128, 128})

type harness struct {
	c        *Clipmap
	backend  *cpu.Backend
	edits    *csg.Log
	registry *mesh.Registry
	consumer *view.Consumer
}

func newHarness(t *testing.T, d cpu.Density, collider Collider) *harness {
	t.Helper()
	h := &harness{edits: &csg.Log{}, registry: mesh.NewRegistry()}
	b, err := cpu.Config{VoxelsPerChunk: 8, Density: d, Edits: h.edits}.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	h.backend = b

	h.c, err = Config{
		Bounds:   testBounds,
		Layout:   testLayout,
		Backend:  b,
		Renderer: h.registry,
		Edits:    h.edits,
		Workers:  4,
		Collider: collider,
	}.New()
	require.NoError(t, err)
	h.consumer = view.NewConsumer(nil, h.c.Publisher(), h.registry)
	return h
}

// update runs an update pass and lets the consumer pick up its result.
func (h *harness) update(t *testing.T, camera mgl64.Vec3) Stats {
	t.Helper()
	stats, err := h.c.Update(context.Background(), camera, cube.OpenFrustum())
	require.NoError(t, err)
	require.Equal(t, stats.Published, h.consumer.Sync())
	return stats
}

func (h *harness) info(t *testing.T, min cube.Pos, size int) NodeInfo {
	t.Helper()
	hd, ok := h.c.Tree().FindNode(min, size)
	require.True(t, ok)
	info, ok := h.c.Tree().Info(hd)
	require.True(t, ok)
	return info
}

func sphereAt(centre mgl64.Vec3, size float64, add bool) csg.Op {
	return csg.NewOp(csg.ShapeSphere, centre, mgl64.Vec3{size, size, size}, 1, add)
}

func requireConsistent(t *testing.T, h *harness) {
	t.Helper()
	tree := h.c.Tree()
	var boxes []cube.BBox
	for _, hd := range tree.ActiveNodes() {
		info, _ := tree.Info(hd)
		require.True(t, tree.Layout().ValidSize(info.Size))
		require.LessOrEqual(t, info.Size, tree.Layout().MaxRenderableSize())
		require.Equal(t, cube.Pos{}, info.Min.Sub(tree.RootMin()).Mod(info.Size))
		boxes = append(boxes, info.Box())
	}
	for i := range boxes {
		for j := i + 1; j < len(boxes); j++ {
			require.False(t, intersects(boxes[i], boxes[j]), "%v and %v overlap", boxes[i], boxes[j])
		}
	}

	// The view tree handed to the consumer holds exactly the active nodes.
	published := make(map[cube.BBox]bool)
	h.consumer.Tree().Walk(func(n *view.Node) bool {
		if n.Active {
			published[n.Box()] = true
		}
		return true
	})
	want := make(map[cube.BBox]bool)
	for _, box := range boxes {
		want[box] = true
	}
	require.Equal(t, want, published)
}

func intersects(a, b cube.BBox) bool {
	for i := 0; i < 3; i++ {
		if a.Min()[i] >= b.Max()[i] || b.Min()[i] >= a.Max()[i] {
			return false
		}
	}
	return true
}

func TestNewRejectsMismatchedBackend(t *testing.T) {
	b, err := cpu.Config{VoxelsPerChunk: 16, Edits: &csg.Log{}}.New()
	require.NoError(t, err)
	defer b.Close()
	_, err = Config{Bounds: testBounds, Layout: testLayout, Backend: b, Renderer: mesh.NewRegistry(), Edits: &csg.Log{}}.New()
	require.Error(t, err)
}

func TestSphereInAir(t *testing.T) {
	h := newHarness(t, cpu.Air{}, nil)
	h.c.Edit(sphereAt(mgl64.Vec3{16, 16, 16}, 16, true))

	stats := h.update(t, mgl64.Vec3{})
	require.Equal(t, 1, stats.Edits)
	require.Equal(t, 1, stats.Constructed)
	require.Zero(t, stats.Failed)
	require.True(t, stats.Published)

	active := h.c.Tree().ActiveNodes()
	require.Len(t, active, 1)
	info, _ := h.c.Tree().Info(active[0])
	require.Equal(t, cube.Pos{0, 0, 0}, info.Min)
	require.Equal(t, 32, info.Size)
	require.True(t, info.MainMesh.Valid())
	require.False(t, info.SeamMesh.Valid(), "a sphere away from the chunk faces has no seam")

	buf, ok := h.registry.Mesh(info.MainMesh)
	require.True(t, ok)
	require.NotZero(t, buf.TriangleCount())
	require.Equal(t, []mesh.Handle{info.MainMesh}, h.consumer.Visible(cube.OpenFrustum()))
	requireConsistent(t, h)

	// A second pass without changes has nothing to do.
	stats = h.update(t, mgl64.Vec3{})
	require.False(t, stats.Published)
	require.Equal(t, 1, h.registry.Live())
}

func TestSphereAcrossNodeCorner(t *testing.T) {
	h := newHarness(t, cpu.Air{}, nil)
	h.c.Edit(sphereAt(mgl64.Vec3{}, 20, true))

	stats := h.update(t, mgl64.Vec3{})
	require.Equal(t, 1, stats.Edits)
	require.Equal(t, 8, stats.Constructed)
	require.Zero(t, stats.Failed)
	require.Equal(t, 8, stats.Seams, "every node around the corner owns a seam")
	require.True(t, stats.Published)

	active := h.c.Tree().ActiveNodes()
	require.Len(t, active, 8)
	for _, hd := range active {
		info, _ := h.c.Tree().Info(hd)
		require.Equal(t, 32, info.Size)
		for i := 0; i < 3; i++ {
			require.Contains(t, []int{-32, 0}, info.Min[i])
		}
		require.True(t, info.MainMesh.Valid(), "node %v", info.Min)
	}

	// The node at the negative corner joins all eight nodes.
	corner := h.info(t, cube.Pos{-32, -32, -32}, 32)
	require.True(t, corner.SeamMesh.Valid())
	seam, ok := h.registry.Mesh(corner.SeamMesh)
	require.True(t, ok)
	for i := 0; i < 3; i++ {
		var below, above bool
		for _, v := range seam.Vertices {
			below = below || v.Pos[i] < 0
			above = above || v.Pos[i] > 0
		}
		require.True(t, below && above, "seam does not cross the plane of axis %v", i)
	}
	requireConsistent(t, h)

	stats = h.update(t, mgl64.Vec3{})
	require.False(t, stats.Published)
}

func TestEditRegeneratesNeighbourSeam(t *testing.T) {
	h := newHarness(t, cpu.Ground{Height: 3.3, Material: 1}, nil)
	camera := mgl64.Vec3{16, 16, 16}
	stats := h.update(t, camera)
	require.NotZero(t, stats.Constructed)
	requireConsistent(t, h)

	a := h.info(t, cube.Pos{0, 0, 0}, 32)
	b := h.info(t, cube.Pos{32, 0, 0}, 32)
	require.True(t, a.Active)
	require.True(t, b.Active)
	require.True(t, a.MainMesh.Valid())
	require.True(t, a.SeamMesh.Valid())
	seam, ok := h.registry.Mesh(a.SeamMesh)
	require.True(t, ok)
	require.NotZero(t, seam.TriangleCount())

	// Carving into B rebuilds B and the seam of A, but leaves the main mesh of A alone.
	h.c.Edit(sphereAt(mgl64.Vec3{48, 13, 16}, 8, false))
	stats = h.update(t, camera)
	require.Equal(t, 1, stats.Edits)
	require.True(t, stats.Published)
	requireConsistent(t, h)

	a2 := h.info(t, cube.Pos{0, 0, 0}, 32)
	b2 := h.info(t, cube.Pos{32, 0, 0}, 32)
	require.True(t, b2.Active)
	require.NotEqual(t, b.Handle, b2.Handle)
	require.NotEqual(t, b.MainMesh, b2.MainMesh)
	require.Equal(t, a.Handle, a2.Handle)
	require.Equal(t, a.MainMesh, a2.MainMesh)
	require.True(t, a2.SeamMesh.Valid())
	require.NotEqual(t, a.SeamMesh, a2.SeamMesh)

	// The replaced meshes were released by the consumer.
	for _, old := range []mesh.Handle{a.SeamMesh, b.MainMesh} {
		_, ok := h.registry.Mesh(old)
		require.False(t, ok)
	}
	require.Equal(t, 1, h.edits.Len())
}

func TestSeamsAreRepeatable(t *testing.T) {
	h := newHarness(t, cpu.Ground{Height: 3.3, Material: 1}, nil)
	camera := mgl64.Vec3{16, 16, 16}
	h.update(t, camera)
	before := h.info(t, cube.Pos{}, 32)
	require.True(t, before.SeamMesh.Valid())
	first, ok := h.registry.Mesh(before.SeamMesh)
	require.True(t, ok)

	// The brush lies well below the ground surface, so the node is rebuilt without its geometry changing.
	h.c.Edit(sphereAt(mgl64.Vec3{16, 8, 16}, 4, true))
	stats := h.update(t, camera)
	require.Equal(t, 1, stats.Edits)
	require.NotZero(t, stats.Seams)

	after := h.info(t, cube.Pos{}, 32)
	require.NotEqual(t, before.SeamMesh, after.SeamMesh, "seam was not regenerated")
	second, ok := h.registry.Mesh(after.SeamMesh)
	require.True(t, ok)
	require.Equal(t, first.Triangles, second.Triangles)
	require.Equal(t, first.Vertices, second.Vertices)
}

func TestCheckEmptyAndEdit(t *testing.T) {
	h := newHarness(t, cpu.Air{}, nil)
	empty, solid, err := h.c.CheckEmpty(context.Background(), h.backend, testLayout.CollisionNodeSize())
	require.NoError(t, err)
	require.Len(t, empty, 64)
	require.Empty(t, solid)
	require.True(t, h.info(t, h.c.Tree().RootMin(), 256).Empty)

	h.c.Edit(sphereAt(mgl64.Vec3{16, 16, 16}, 16, true))
	h.update(t, mgl64.Vec3{})

	// Only the chain of nodes containing the edit is no longer empty.
	for _, hd := range h.c.Tree().FindNodesOnPath(cube.Pos{0, 0, 0}, 32) {
		info, _ := h.c.Tree().Info(hd)
		require.False(t, info.Empty, "node %v/%v", info.Min, info.Size)
	}
	require.True(t, h.info(t, cube.Pos{32, 0, 0}, 32).Empty)
	require.True(t, h.info(t, cube.Pos{64, 0, 0}, 64).Empty)
	require.True(t, h.info(t, cube.Pos{-128, -128, -128}, 128).Empty)
	require.True(t, h.info(t, cube.Pos{0, 0, 0}, 32).Active)
}

func TestUpdateWhilePending(t *testing.T) {
	h := newHarness(t, cpu.Air{}, nil)
	stats, err := h.c.Update(context.Background(), mgl64.Vec3{}, cube.OpenFrustum())
	require.NoError(t, err)
	require.True(t, stats.Published)

	_, err = h.c.Update(context.Background(), mgl64.Vec3{}, cube.OpenFrustum())
	require.ErrorIs(t, err, ErrPending)
	require.ErrorIs(t, h.c.Clear(), ErrPending)

	s, ok := h.c.Publisher().TryConsume()
	require.True(t, ok)
	require.Equal(t, uint64(0), s.Tree.Seq)
	_, ok = h.c.Publisher().TryConsume()
	require.False(t, ok)
}

func TestClearReleasesEverything(t *testing.T) {
	h := newHarness(t, cpu.Ground{Height: 3.3, Material: 1}, nil)
	h.update(t, mgl64.Vec3{16, 16, 16})
	require.NotZero(t, h.registry.Live())

	require.NoError(t, h.c.Clear())
	require.True(t, h.consumer.Sync())
	require.Zero(t, h.registry.Live())
	require.Empty(t, h.c.Tree().ActiveNodes())
	require.Nil(t, h.consumer.Tree().Root)

	// The volume is rebuilt by the next pass.
	stats := h.update(t, mgl64.Vec3{16, 16, 16})
	require.NotZero(t, stats.Constructed)
}

func TestCameraMoveReleasesNodes(t *testing.T) {
	h := newHarness(t, cpu.Ground{Height: 3.3, Material: 1}, nil)
	h.update(t, mgl64.Vec3{16, 16, 16})
	before := h.info(t, cube.Pos{0, 0, 0}, 32)
	require.True(t, before.Active)

	stats := h.update(t, mgl64.Vec3{-112, 16, -112})
	require.NotZero(t, stats.Invalidated)
	requireConsistent(t, h)
	_, ok := h.c.Tree().Info(before.Handle)
	require.False(t, ok, "handle of a deselected node goes stale")
	_, ok = h.registry.Mesh(before.MainMesh)
	require.False(t, ok)
}

type recordingCollider struct {
	mu      sync.Mutex
	edits   *csg.Log
	applied []cube.Pos
	logLen  []int
	nodes   []cube.Pos
	seams   []cube.Pos
}

func (r *recordingCollider) ApplyEdits(_ context.Context, _ []csg.Op, min cube.Pos) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.applied = append(r.applied, min)
	r.logLen = append(r.logLen, r.edits.Len())
	return nil
}

func (r *recordingCollider) Schedule(nodes, seams []cube.Pos) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nodes = append(r.nodes, nodes...)
	r.seams = append(r.seams, seams...)
}

func TestEditsReachCollider(t *testing.T) {
	rec := &recordingCollider{}
	h := newHarness(t, cpu.Air{}, rec)
	rec.edits = h.edits

	// The sphere straddles the collision nodes at x 0 and x 64.
	h.c.Edit(sphereAt(mgl64.Vec3{64, 16, 16}, 16, true))
	h.update(t, mgl64.Vec3{})

	require.ElementsMatch(t, []cube.Pos{{0, 0, 0}, {64, 0, 0}}, rec.applied)
	require.Equal(t, []int{0, 0}, rec.logLen, "collision edits are applied before the log grows")
	require.ElementsMatch(t, []cube.Pos{{0, 0, 0}, {64, 0, 0}}, rec.nodes)
	require.ElementsMatch(t, []cube.Pos{{0, 0, 0}, {64, 0, 0}}, rec.seams)
	require.Equal(t, 1, h.edits.Len())
}

// blockingBackend holds mesh generation until released.
type blockingBackend struct {
	*cpu.Backend
	entered chan struct{}
	once    sync.Once
	release chan struct{}
}

func (b *blockingBackend) GenerateMesh(ctx context.Context, min cube.Pos, size int) (backend.Result, error) {
	b.once.Do(func() { close(b.entered) })
	<-b.release
	return b.Backend.GenerateMesh(ctx, min, size)
}

func TestConcurrentUpdatePanics(t *testing.T) {
	edits := &csg.Log{}
	inner, err := cpu.Config{VoxelsPerChunk: 8, Edits: edits}.New()
	require.NoError(t, err)
	defer inner.Close()
	b := &blockingBackend{Backend: inner, entered: make(chan struct{}), release: make(chan struct{})}
	c, err := Config{Bounds: testBounds, Layout: testLayout, Backend: b, Renderer: mesh.NewRegistry(), Edits: edits}.New()
	require.NoError(t, err)

	done := make(chan error)
	go func() {
		_, err := c.Update(context.Background(), mgl64.Vec3{}, cube.OpenFrustum())
		done <- err
	}()
	<-b.entered

	_, ok := guard.Run(func() {
		_, _ = c.Update(context.Background(), mgl64.Vec3{}, cube.OpenFrustum())
	})
	require.False(t, ok)
	close(b.release)
	require.NoError(t, <-done)
}

func TestGenerateFailureIsRetried(t *testing.T) {
	edits := &csg.Log{}
	inner, err := cpu.Config{VoxelsPerChunk: 8, Density: cpu.Ground{Height: 3.3, Material: 1}, Edits: edits}.New()
	require.NoError(t, err)
	defer inner.Close()
	b := &failingBackend{Backend: inner, fail: map[cube.Pos]bool{{0, 0, 0}: true}}
	registry := mesh.NewRegistry()
	c, err := Config{Bounds: testBounds, Layout: testLayout, Backend: b, Renderer: registry, Edits: edits}.New()
	require.NoError(t, err)
	consumer := view.NewConsumer(nil, c.Publisher(), registry)

	stats, err := c.Update(context.Background(), mgl64.Vec3{16, 16, 16}, cube.OpenFrustum())
	require.NoError(t, err)
	require.Equal(t, 1, stats.Failed)
	require.True(t, consumer.Sync())
	hd, _ := c.Tree().FindNode(cube.Pos{}, 32)
	info, _ := c.Tree().Info(hd)
	require.False(t, info.Active)
	require.False(t, info.Empty)

	b.mu.Lock()
	b.fail = nil
	b.mu.Unlock()
	stats, err = c.Update(context.Background(), mgl64.Vec3{16, 16, 16}, cube.OpenFrustum())
	require.NoError(t, err)
	require.Equal(t, 1, stats.Constructed)
	info, _ = c.Tree().Info(hd)
	require.True(t, info.Active)
}

// failingBackend fails mesh generation for chunks at the minimum corners in fail. The first one panics instead.
type failingBackend struct {
	*cpu.Backend
	mu       sync.Mutex
	fail     map[cube.Pos]bool
	panicked bool
}

func (b *failingBackend) GenerateMesh(ctx context.Context, min cube.Pos, size int) (backend.Result, error) {
	b.mu.Lock()
	fail := b.fail[min] && size == 32
	first := fail && !b.panicked
	if first {
		b.panicked = true
	}
	b.mu.Unlock()
	if first {
		panic("generator crashed")
	}
	if fail {
		return backend.Result{}, backend.ErrUnavailable
	}
	return b.Backend.GenerateMesh(ctx, min, size)
}
