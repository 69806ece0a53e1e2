// Package clipmap maintains the adaptive level-of-detail octree of the terrain volume. Every update pass selects the
// nodes to draw based on the distance to the camera, builds meshes for newly selected nodes, stitches seams between
// neighbouring nodes, applies queued CSG edits and publishes a view tree of the result.
package clipmap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync/atomic"

	"github.com/nickgildea/leven/terrain/backend"
	"github.com/nickgildea/leven/terrain/chunk"
	"github.com/nickgildea/leven/terrain/csg"
	"github.com/nickgildea/leven/terrain/cube"
	"github.com/nickgildea/leven/terrain/mesh"
	"github.com/nickgildea/leven/terrain/view"
)

// ErrPending is returned by Clipmap.Update when the view tree of the previous pass has not been consumed yet. The
// request is dropped and should be retried later.
var ErrPending = errors.New("clipmap: previous update not consumed")

// Collider receives the work an update pass produces at collision granularity.
type Collider interface {
	// ApplyEdits applies ops to the collision node at min before they are added to the edit log.
	ApplyEdits(ctx context.Context, ops []csg.Op, min cube.Pos) error
	// Schedule requests the collision nodes at nodes to be rebuilt and the seams of the nodes at seams to be
	// regenerated. It must not block the update pass.
	Schedule(nodes, seams []cube.Pos)
}

// Config holds the settings of a Clipmap.
type Config struct {
	// Log is the Logger used for reporting failed mesh generation and edits. If nil, slog.Default() is used.
	Log *slog.Logger
	// Bounds are the world bounds of the terrain. The octree is sized to enclose them.
	Bounds cube.BBox
	// Layout is the chunk layout of the clipmap. Its VoxelsPerChunk must match Backend.
	Layout chunk.Layout
	// Backend generates the meshes of clipmap nodes.
	Backend backend.Backend
	// Renderer receives the meshes of active nodes.
	Renderer mesh.Renderer
	// Simplify holds the simplification options for leaf sized nodes. Larger nodes scale them up.
	Simplify mesh.SimplifyOptions
	// Workers is the maximum number of nodes generated at the same time. If zero, runtime.NumCPU() is used.
	Workers int
	// Queue is the queue edits are submitted to. If nil, a new queue is created.
	Queue *csg.Queue
	// Edits is the edit log shared with the backends. It must not be nil.
	Edits *csg.Log
	// Publisher receives the view tree of every completed pass. If nil, a new Publisher is created.
	Publisher *view.Publisher
	// Collider receives collision work produced by edits. It may be nil.
	Collider Collider
}

// Clipmap is the clipmap octree together with the state of its update pass. All methods other than Edit must be
// called from a single update goroutine.
type Clipmap struct {
	conf Config
	tree *Tree

	views view.Builder

	updating atomic.Bool
}

// New creates a Clipmap using the Config.
func (conf Config) New() (*Clipmap, error) {
	if conf.Log == nil {
		conf.Log = slog.Default()
	}
	if conf.Layout == (chunk.Layout{}) {
		conf.Layout = chunk.DefaultLayout()
	}
	if conf.Backend == nil {
		return nil, errors.New("clipmap: backend must not be nil")
	}
	if conf.Backend.VoxelsPerChunk() != conf.Layout.VoxelsPerChunk {
		return nil, fmt.Errorf("clipmap: backend samples %v voxels per chunk, layout expects %v", conf.Backend.VoxelsPerChunk(), conf.Layout.VoxelsPerChunk)
	}
	if conf.Renderer == nil {
		return nil, errors.New("clipmap: renderer must not be nil")
	}
	if conf.Edits == nil {
		return nil, errors.New("clipmap: edit log must not be nil")
	}
	if conf.Simplify == (mesh.SimplifyOptions{}) {
		conf.Simplify = mesh.DefaultSimplifyOptions()
	}
	if conf.Workers <= 0 {
		conf.Workers = runtime.NumCPU()
	}
	if conf.Queue == nil {
		conf.Queue = &csg.Queue{}
	}
	if conf.Publisher == nil {
		conf.Publisher = view.NewPublisher()
	}
	t, err := NewTree(conf.Bounds, conf.Layout)
	if err != nil {
		return nil, err
	}
	return &Clipmap{conf: conf, tree: t}, nil
}

// Tree returns the octree of the clipmap. It must only be used from the update goroutine.
func (c *Clipmap) Tree() *Tree {
	return c.tree
}

// Publisher returns the Publisher view trees are handed to.
func (c *Clipmap) Publisher() *view.Publisher {
	return c.conf.Publisher
}

// Edit queues a CSG edit. It may be called from any goroutine. The edit is applied during the next update pass.
func (c *Clipmap) Edit(op csg.Op) {
	c.conf.Queue.Enqueue(op)
}

// begin marks the start of an operation of the update goroutine, panicking if another one is in progress.
func (c *Clipmap) begin(name string) (end func()) {
	if !c.updating.CompareAndSwap(false, true) {
		panicConcurrentUpdate(name)
	}
	return func() { c.updating.Store(false) }
}

// CheckEmpty asks b which nodes of the size passed hold no surface, marking them and all of their descendants
// empty. Larger nodes whose children are all empty are marked empty too. The minimum corners of the nodes found
// empty and not empty are returned. Nodes for which b fails are reported as neither.
func (c *Clipmap) CheckEmpty(ctx context.Context, b backend.Backend, size int) (empty, solid []cube.Pos, err error) {
	defer c.begin("check empty")()
	t := c.tree
	for i := range t.nodes {
		n := &t.nodes[i]
		if n.size != size {
			continue
		}
		isEmpty, err := b.IsEmpty(ctx, n.min, n.size)
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil, ctx.Err()
			}
			c.conf.Log.Warn("check empty: backend failed", "min", n.min, "size", n.size, "err", err)
			backendErrors.WithLabelValues("is_empty").Inc()
			continue
		}
		if isEmpty {
			t.markEmpty(int32(i))
			empty = append(empty, n.min)
			continue
		}
		solid = append(solid, n.min)
	}
	t.propagateEmptyUpward(0, size)
	return empty, solid, nil
}

// Clear releases the content of every node and publishes an empty view tree. The edit log is kept. ErrPending is
// returned if the previous view tree has not been consumed.
func (c *Clipmap) Clear() error {
	defer c.begin("clear")()
	if c.conf.Publisher.Pending() {
		return ErrPending
	}
	var invalidated []mesh.Handle
	for i := range c.tree.nodes {
		n := &c.tree.nodes[i]
		if n.active || n.mainMesh.Valid() || n.seamMesh.Valid() || len(n.leaves) > 0 {
			invalidated = c.tree.release(int32(i), invalidated)
			c.conf.Backend.EvictCache(n.min, n.size)
		}
		n.empty, n.invalidated = false, false
	}
	return c.publish(nil, invalidated)
}

// publish builds a view tree of the entries passed and hands it to the consumer together with the meshes
// invalidated during the pass.
func (c *Clipmap) publish(entries []view.Entry, invalidated []mesh.Handle) error {
	tree, err := c.views.Build(entries, c.tree.RootMin(), c.tree.RootSize())
	if err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	if !c.conf.Publisher.TryPublish(view.Snapshot{Tree: tree, Invalidated: invalidated}) {
		panicConcurrentUpdate("publish")
	}
	activeNodes.Set(float64(len(entries)))
	return nil
}
