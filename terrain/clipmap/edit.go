package clipmap

import (
	"context"

	"github.com/nickgildea/leven/terrain/cube"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// processEdits drains the edit queue and applies the edits to every node they touch. Touched nodes are
// invalidated so that they are rebuilt during the pass, and touched collision nodes are handed to the Collider. The
// number of edits drained is returned.
func (c *Clipmap) processEdits(ctx context.Context) int {
	ops := c.conf.Queue.Drain()
	if len(ops) == 0 {
		return 0
	}
	ctx, span := tracer.Start(ctx, "clipmap.ProcessEdits", trace.WithAttributes(attribute.Int("csg.ops", len(ops))))
	defer span.End()
	editsDrained.Add(float64(len(ops)))

	t := c.tree
	collSize := t.layout.CollisionNodeSize()
	touched := make(map[int32]struct{})
	var order []int32
	for _, op := range ops {
		box := op.Bounds()
		for _, h := range t.FindNodesInside(box) {
			if _, ok := touched[h.Index]; !ok {
				touched[h.Index] = struct{}{}
				order = append(order, h.Index)
			}
		}
		// Larger nodes are never generated themselves, but may no longer be empty.
		t.overlapping(box, func(i int32) {
			if t.nodes[i].size > t.layout.MaxRenderableSize() {
				t.nodes[i].empty = false
			}
		})
	}

	var collisionTouched []cube.Pos
	collisionSet := make(map[cube.Pos]struct{})
	for _, i := range order {
		n := &t.nodes[i]
		if n.size == collSize {
			collisionTouched = append(collisionTouched, n.min)
			collisionSet[n.min] = struct{}{}
			if c.conf.Collider != nil {
				if err := c.conf.Collider.ApplyEdits(ctx, ops, n.min); err != nil {
					backendErrors.WithLabelValues("collision_apply_edits").Inc()
					c.conf.Log.Warn("process edits: apply to collision node failed", "min", n.min, "err", err)
				}
			}
		}
		if n.active {
			if err := c.conf.Backend.ApplyEdits(ctx, ops, n.min, n.size); err != nil {
				backendErrors.WithLabelValues("apply_edits").Inc()
				c.conf.Log.Warn("process edits: apply to node failed", "min", n.min, "size", n.size, "err", err)
			}
		}
		c.conf.Backend.EvictCache(n.min, n.size)
		n.invalidated = true
		n.empty = false
	}
	c.conf.Edits.Append(ops...)

	if c.conf.Collider == nil || len(collisionTouched) == 0 {
		return len(ops)
	}
	// A collision seam is owned by the node at its minimum corner, so a touched node invalidates its own seam and
	// those of the nodes below it on each axis.
	var seams []cube.Pos
	seamSet := make(map[cube.Pos]struct{})
	for _, min := range collisionTouched {
		for _, off := range cube.ChildOffsets {
			owner := min.Sub(off.Mul(collSize))
			if _, ok := collisionSet[owner]; !ok {
				continue
			}
			if _, ok := seamSet[owner]; !ok {
				seamSet[owner] = struct{}{}
				seams = append(seams, owner)
			}
		}
	}
	c.conf.Collider.Schedule(collisionTouched, seams)
	return len(ops)
}
