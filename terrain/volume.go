// Package terrain implements an editable terrain volume rendered with an adaptive level-of-detail clipmap. A
// Volume is driven by two goroutines: an update goroutine calling Update, which builds meshes for the area around
// the camera, and a consumer goroutine calling Sync and Visible, which picks up the result of completed updates.
// Edits may be submitted from any goroutine.
package terrain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/nickgildea/leven/terrain/backend/cpu"
	"github.com/nickgildea/leven/terrain/chunk"
	"github.com/nickgildea/leven/terrain/clipmap"
	"github.com/nickgildea/leven/terrain/collision"
	"github.com/nickgildea/leven/terrain/csg"
	"github.com/nickgildea/leven/terrain/cube"
	"github.com/nickgildea/leven/terrain/mesh"
	"github.com/nickgildea/leven/terrain/view"
)

// Volume is an editable terrain volume.
type Volume struct {
	conf Config

	edits    *csg.Log
	clipmap  *clipmap.Clipmap
	cache    *collision.Cache
	consumer *view.Consumer

	closers []io.Closer
}

// New creates a Volume using the Config. If collision is enabled, the collision nodes of the volume are loaded
// before New returns.
func (conf Config) New(ctx context.Context) (*Volume, error) {
	if conf.Log == nil {
		conf.Log = slog.Default()
	}
	if conf.Layout == (chunk.Layout{}) {
		conf.Layout = chunk.DefaultLayout()
	}
	if conf.Density == nil {
		conf.Density = cpu.Air{}
	}
	if conf.Renderer == nil {
		conf.Renderer = mesh.NewRegistry()
	}
	v := &Volume{edits: &csg.Log{}}
	if err := v.init(ctx, &conf); err != nil {
		_ = v.Close()
		return nil, err
	}
	v.conf = conf
	return v, nil
}

func (v *Volume) init(ctx context.Context, conf *Config) error {
	if conf.Backend == nil {
		b, err := cpu.Config{Log: conf.Log, VoxelsPerChunk: conf.Layout.VoxelsPerChunk, Density: conf.Density, Edits: v.edits}.New()
		if err != nil {
			return fmt.Errorf("create backend: %w", err)
		}
		conf.Backend = b
		v.closers = append(v.closers, b)
	}
	var collider clipmap.Collider
	if !conf.DisableCollision {
		if conf.CollisionBackend == nil {
			b, err := cpu.Config{Log: conf.Log, VoxelsPerChunk: conf.Layout.CollisionVoxelsPerChunk, Density: conf.Density, Edits: v.edits}.New()
			if err != nil {
				return fmt.Errorf("create collision backend: %w", err)
			}
			conf.CollisionBackend = b
			v.closers = append(v.closers, b)
		}
		cache, err := collision.Config{
			Log:       conf.Log,
			Layout:    conf.Layout,
			Backend:   conf.CollisionBackend,
			Physics:   conf.Physics,
			Simplify:  conf.Simplify,
			PoolSize:  conf.CollisionPoolSize,
			QueueSize: conf.CollisionQueueSize,
		}.New()
		if err != nil {
			return fmt.Errorf("create collision cache: %w", err)
		}
		v.cache = cache
		// The cache must stop before the backends it uses are closed.
		v.closers = append([]io.Closer{cache}, v.closers...)
		collider = cache
	}

	c, err := clipmap.Config{
		Log:      conf.Log,
		Bounds:   conf.Bounds,
		Layout:   conf.Layout,
		Backend:  conf.Backend,
		Renderer: conf.Renderer,
		Simplify: conf.Simplify,
		Workers:  conf.Workers,
		Edits:    v.edits,
		Collider: collider,
	}.New()
	if err != nil {
		return fmt.Errorf("create clipmap: %w", err)
	}
	v.clipmap = c
	v.consumer = view.NewConsumer(conf.Log, c.Publisher(), conf.Renderer)

	if v.cache == nil {
		return nil
	}
	empty, solid, err := c.CheckEmpty(ctx, conf.CollisionBackend, conf.Layout.CollisionNodeSize())
	if err != nil {
		return fmt.Errorf("check empty nodes: %w", err)
	}
	conf.Log.Debug("terrain: checked collision nodes", "empty", len(empty), "solid", len(solid))
	if err := v.cache.Init(ctx, empty, solid); err != nil {
		return fmt.Errorf("load collision nodes: %w", err)
	}
	return nil
}

// Edit queues a CSG edit of a brush with the shape passed, centred on origin with the full extent passed. If add
// is true, material is added, otherwise it is removed. Edit may be called from any goroutine; the edit is applied
// during the next update.
func (v *Volume) Edit(shape csg.Shape, origin, size mgl64.Vec3, material int32, add bool) {
	v.clipmap.Edit(csg.NewOp(shape, origin, size, material, add))
}

// Update runs a single update pass for a camera at the position passed. clipmap.ErrPending is returned if the
// result of the previous pass has not been picked up by Sync yet. Update must only be called from the update
// goroutine.
func (v *Volume) Update(ctx context.Context, camera mgl64.Vec3, frustum cube.Frustum) (clipmap.Stats, error) {
	return v.clipmap.Update(ctx, camera, frustum)
}

// Clear drops all meshes of the volume. Edits are kept and are part of the meshes built by later updates. Clear
// must only be called from the update goroutine.
func (v *Volume) Clear() error {
	return v.clipmap.Clear()
}

// CollisionVolumes returns the collision nodes hit by a ray starting at origin travelling along dir. It must only
// be called from the update goroutine.
func (v *Volume) CollisionVolumes(origin, dir mgl64.Vec3) []clipmap.RayHit {
	return v.clipmap.Tree().FindCollisionVolumes(origin, dir)
}

// Sync picks up the result of the last completed update, if any, and releases the meshes it replaced. true is
// returned if a new result was picked up. Sync must only be called from the consumer goroutine.
func (v *Volume) Sync() bool {
	return v.consumer.Sync()
}

// Visible returns the meshes of the last result picked up by Sync that are inside the frustum. It must only be
// called from the consumer goroutine.
func (v *Volume) Visible(f cube.Frustum) []mesh.Handle {
	return v.consumer.Visible(f)
}

// Renderer returns the Renderer meshes are created with.
func (v *Volume) Renderer() mesh.Renderer {
	return v.conf.Renderer
}

// Collision returns the collision cache of the volume. It is nil if collision is disabled.
func (v *Volume) Collision() *collision.Cache {
	return v.cache
}

// Edits returns the number of edits applied to the volume.
func (v *Volume) Edits() int {
	return v.edits.Len()
}

// Close stops the collision cache and closes the backends created for the volume.
func (v *Volume) Close() error {
	var errs []error
	for _, c := range v.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	v.closers = nil
	return errors.Join(errs...)
}
