package clipmap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/nickgildea/leven/terrain/backend"
	"github.com/nickgildea/leven/terrain/chunk"
	"github.com/nickgildea/leven/terrain/contour"
	"github.com/nickgildea/leven/terrain/cube"
	"github.com/nickgildea/leven/terrain/internal/guard"
	"github.com/nickgildea/leven/terrain/mesh"
	"github.com/nickgildea/leven/terrain/view"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

func panicConcurrentUpdate(op string) {
	guard.Failf("clipmap: %v while another update is in progress", op)
}

// Stats describes the work done by an update pass.
type Stats struct {
	// Edits is the number of CSG edits applied.
	Edits int
	// Selected is the number of nodes selected for drawing.
	Selected int
	// Constructed, Empty and Failed count the nodes whose generation produced geometry, produced none or failed.
	Constructed, Empty, Failed int
	// Stale counts generated nodes whose result was discarded because the node was released in the meantime.
	Stale int
	// Seams is the number of seams regenerated.
	Seams int
	// Invalidated is the number of meshes handed to the consumer for release.
	Invalidated int
	// Published is true if a view tree was published.
	Published bool
}

// Update runs a single update pass for a camera at the position passed. Nodes inside the frustum are built before
// nodes outside of it. If the view tree published by the previous pass has not been consumed, ErrPending is
// returned and nothing is done. Update panics if called while another update is running.
func (c *Clipmap) Update(ctx context.Context, camera mgl64.Vec3, frustum cube.Frustum) (Stats, error) {
	defer c.begin("update")()
	if c.conf.Publisher.Pending() {
		updatePasses.WithLabelValues("pending").Inc()
		return Stats{}, ErrPending
	}

	start := time.Now()
	ctx, span := tracer.Start(ctx, "clipmap.Update", trace.WithAttributes(
		attribute.Float64("camera.x", camera[0]),
		attribute.Float64("camera.y", camera[1]),
		attribute.Float64("camera.z", camera[2]),
	))
	defer span.End()

	stats, err := c.update(ctx, camera, frustum)
	span.SetAttributes(
		attribute.Int("clipmap.selected", stats.Selected),
		attribute.Int("clipmap.constructed", stats.Constructed),
		attribute.Int("clipmap.seams", stats.Seams),
		attribute.Bool("clipmap.published", stats.Published),
	)
	switch {
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		updatePasses.WithLabelValues("error").Inc()
	case stats.Published:
		updateDuration.Observe(time.Since(start).Seconds())
		updatePasses.WithLabelValues("published").Inc()
	default:
		updatePasses.WithLabelValues("idle").Inc()
	}
	return stats, err
}

func (c *Clipmap) update(ctx context.Context, camera mgl64.Vec3, frustum cube.Frustum) (Stats, error) {
	var stats Stats
	t := c.tree

	stats.Edits = c.processEdits(ctx)

	_, span := tracer.Start(ctx, "clipmap.Select")
	selected := c.selectNodes(camera)
	var invalidated []mesh.Handle
	for i := range t.nodes {
		n := &t.nodes[i]
		if n.invalidated {
			invalidated = t.release(int32(i), invalidated)
			c.conf.Backend.EvictCache(n.min, n.size)
			n.invalidated = false
		}
	}
	span.End()
	stats.Selected = len(selected)

	var build, reserve, active []int32
	for _, i := range selected {
		n := &t.nodes[i]
		switch {
		case n.active || n.empty:
			if n.active {
				active = append(active, i)
			}
		case frustum.ContainsBBox(t.box(i)):
			build = append(build, i)
		default:
			reserve = append(reserve, i)
		}
	}
	if len(build) == 0 {
		build = reserve
	}
	if len(build) == 0 && len(invalidated) == 0 {
		return stats, nil
	}

	constructed, err := c.construct(ctx, build, &stats)
	if err != nil {
		return stats, err
	}
	active = append(active, constructed...)

	invalidated = c.regenerateSeams(ctx, constructed, invalidated, &stats)

	entries := make([]view.Entry, len(active))
	for k, i := range active {
		n := &t.nodes[i]
		entries[k] = view.Entry{Min: n.min, Size: n.size, MainMesh: n.mainMesh, SeamMesh: n.seamMesh}
	}
	if err := c.publish(entries, invalidated); err != nil {
		return stats, err
	}
	stats.Invalidated = len(invalidated)
	stats.Published = true
	return stats, nil
}

// selectNodes returns the nodes that should be drawn for a camera at the position passed. A node is selected if no
// ancestor was, it is not larger than the maximum renderable size and the camera is at least the activation
// distance of its level away. Active nodes that are not selected are marked invalidated.
func (c *Clipmap) selectNodes(camera mgl64.Vec3) []int32 {
	t := c.tree
	var selected []int32
	var visit func(i int32, parentSelected bool)
	visit = func(i int32, parentSelected bool) {
		n := &t.nodes[i]
		chosen := false
		if !parentSelected && n.size <= t.layout.MaxRenderableSize() {
			if t.box(i).Distance(camera) >= t.layout.ActiveDistance(n.size) {
				selected = append(selected, i)
				chosen = true
			}
		}
		if n.active && !chosen {
			n.invalidated = true
		}
		if n.children[0] == noChild {
			return
		}
		for _, child := range n.children {
			visit(child, parentSelected || chosen)
		}
	}
	visit(0, false)
	return selected
}

// generated is the result of generating a single node on a worker goroutine.
type generated struct {
	h      Handle
	res    backend.Result
	leaves []contour.Leaf
	err    error
}

// construct generates the nodes passed concurrently and commits the results, returning the nodes that became
// active.
func (c *Clipmap) construct(ctx context.Context, nodes []int32, stats *Stats) ([]int32, error) {
	if len(nodes) == 0 {
		return nil, nil
	}
	ctx, span := tracer.Start(ctx, "clipmap.Construct", trace.WithAttributes(attribute.Int("clipmap.nodes", len(nodes))))
	defer span.End()

	t := c.tree
	results := make([]generated, len(nodes))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.conf.Workers)
	for k, i := range nodes {
		i := i
		n := &t.nodes[i]
		results[k].h = t.handle(i)
		min, size, out := n.min, n.size, &results[k]
		g.Go(func() error {
			c.generate(gctx, min, size, int(i), out)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var constructed []int32
	for k := range results {
		r := &results[k]
		if !t.Valid(r.h) {
			stats.Stale++
			nodesConstructed.WithLabelValues("stale").Inc()
			continue
		}
		i := r.h.Index
		n := &t.nodes[i]
		if n.active || n.invalidated {
			stats.Stale++
			nodesConstructed.WithLabelValues("stale").Inc()
			continue
		}
		if r.err != nil {
			stats.Failed++
			nodesConstructed.WithLabelValues("error").Inc()
			backendErrors.WithLabelValues("generate_mesh").Inc()
			c.conf.Log.Warn("construct node: generate mesh failed", "min", n.min, "size", n.size, "err", r.err)
			continue
		}
		if r.res.Mesh.Empty() && len(r.leaves) == 0 {
			t.markEmpty(i)
			stats.Empty++
			nodesConstructed.WithLabelValues("empty").Inc()
			continue
		}
		if !r.res.Mesh.Empty() {
			h, err := c.conf.Renderer.CreateMesh(r.res.Mesh, nodeCentre(n.min, n.size))
			if err != nil {
				stats.Failed++
				nodesConstructed.WithLabelValues("error").Inc()
				c.conf.Log.Error("construct node: create mesh failed", "min", n.min, "size", n.size, "err", err)
				continue
			}
			n.mainMesh = h
		}
		n.leaves = r.leaves
		n.active = true
		constructed = append(constructed, i)
		stats.Constructed++
		nodesConstructed.WithLabelValues("mesh").Inc()
	}
	return constructed, nil
}

// generate calls the backend for the node at min and simplifies the resulting mesh. It runs on a worker goroutine
// and must not touch the tree.
func (c *Clipmap) generate(ctx context.Context, min cube.Pos, size, source int, out *generated) {
	defer func() {
		if r := recover(); r != nil {
			out.err = fmt.Errorf("generate node %v size %v: panic: %v", min, size, r)
			c.conf.Log.Error("construct node: panic", "min", min, "size", size, "error", fmt.Sprint(r))
		}
	}()
	res, err := c.conf.Backend.GenerateMesh(ctx, min, size)
	if err != nil {
		out.err = err
		return
	}
	if !res.Mesh.Empty() {
		scale := float64(chunk.LeafSizeScale*size) / float64(c.tree.layout.LeafSize())
		mesh.Simplify(res.Mesh, nodeCentre(min, size), c.conf.Simplify.Scaled(scale))
		if res.Mesh.Empty() {
			res.Mesh = nil
		}
	}
	out.res = res
	out.leaves = contour.Leaves(res.Fragments, min, size, c.conf.Backend.VoxelsPerChunk(), source)
}

func nodeCentre(min cube.Pos, size int) mgl32.Vec3 {
	h := float32(size) / 2
	return mgl32.Vec3{float32(min[0]) + h, float32(min[1]) + h, float32(min[2]) + h}
}

// seamJob is the seam of a single node being stitched on a worker goroutine.
type seamJob struct {
	i      int32
	leaves []contour.Leaf
	buf    *mesh.Buffer
	err    error
}

// regenerateSeams rebuilds the seams of every active node whose seam region contains one of the nodes passed. The
// replaced seam meshes are appended to invalidated.
func (c *Clipmap) regenerateSeams(ctx context.Context, constructed []int32, invalidated []mesh.Handle, stats *Stats) []mesh.Handle {
	if len(constructed) == 0 {
		return invalidated
	}
	ctx, span := tracer.Start(ctx, "clipmap.Seams")
	defer span.End()

	t := c.tree
	seen := make(map[int32]struct{})
	var hosts []int32
	for _, i := range constructed {
		n := &t.nodes[i]
		// The node itself is included, as offset 0 is the first of the child offsets.
		for _, off := range cube.ChildOffsets {
			h, ok := t.FindNode(n.min.Sub(off.Mul(n.size)), n.size)
			if !ok {
				continue
			}
			for _, a := range t.FindActiveNodes(h) {
				if _, ok := seen[a.Index]; !ok {
					seen[a.Index] = struct{}{}
					hosts = append(hosts, a.Index)
				}
			}
		}
	}

	jobs := make([]seamJob, len(hosts))
	for k, i := range hosts {
		jobs[k] = seamJob{i: i, leaves: c.seamLeaves(i)}
	}
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(c.conf.Workers)
	for k := range jobs {
		job := &jobs[k]
		n := &t.nodes[job.i]
		min, size := n.min, n.size
		g.Go(func() error {
			job.buf, job.err = contour.Stitch(job.leaves, min, size*2)
			return nil
		})
	}
	_ = g.Wait()

	for k := range jobs {
		job := &jobs[k]
		n := &t.nodes[job.i]
		if n.seamMesh.Valid() {
			invalidated = append(invalidated, n.seamMesh)
			n.seamMesh = mesh.NoHandle
		}
		if job.err != nil {
			if errors.Is(job.err, mesh.ErrCapacity) {
				meshOverflows.WithLabelValues("seam").Inc()
				c.conf.Log.Error("generate seam: mesh truncated", "min", n.min, "size", n.size, "err", job.err)
			} else {
				c.conf.Log.Warn("generate seam: stitch failed", "min", n.min, "size", n.size, "err", job.err)
				continue
			}
		}
		stats.Seams++
		if job.buf.Empty() {
			continue
		}
		seamTriangles.Observe(float64(job.buf.TriangleCount()))
		h, err := c.conf.Renderer.CreateMesh(job.buf, nodeCentre(n.min, n.size*2))
		if err != nil {
			c.conf.Log.Error("generate seam: create mesh failed", "min", n.min, "size", n.size, "err", err)
			continue
		}
		n.seamMesh = h
	}
	return invalidated
}

// seamLeaves gathers the leaves taking part in the seam of the node at i from the active nodes around it.
func (c *Clipmap) seamLeaves(i int32) []contour.Leaf {
	t := c.tree
	n := &t.nodes[i]
	var leaves []contour.Leaf
	for dir, off := range cube.ChildOffsets {
		h, ok := t.FindNode(n.min.Add(off.Mul(n.size)), n.size)
		if !ok {
			continue
		}
		for _, a := range t.FindActiveNodes(h) {
			leaves = contour.SelectSeamLeaves(leaves, n.min, n.size, dir, t.nodes[a.Index].leaves)
		}
	}
	return leaves
}
