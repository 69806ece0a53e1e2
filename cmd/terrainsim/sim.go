package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/nickgildea/leven/terrain"
	"github.com/nickgildea/leven/terrain/clipmap"
	"github.com/nickgildea/leven/terrain/collision"
	"github.com/nickgildea/leven/terrain/csg"
	"github.com/nickgildea/leven/terrain/cube"
	"github.com/nickgildea/leven/terrain/mesh"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// simulation flies a camera in a circle over a volume. The update loop owns every field except those marked
// otherwise.
type simulation struct {
	log    *slog.Logger
	v      *terrain.Volume
	radius float64
	height float64

	published, pending, constructed, seams, editsQueued int

	// pass and maxVisible are shared with the consumer loop.
	pass       atomic.Int64
	maxVisible atomic.Int64
	synced     atomic.Int64
}

func runSimulation(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	uc, err := terrain.LoadUserConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	conf, err := uc.Config(log)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	registry := mesh.NewRegistry()
	physics := collision.NewRecorder()
	conf.Renderer, conf.Physics = registry, physics

	if metricsAddr != "" {
		shutdown := serveMetrics(log, metricsAddr)
		defer shutdown()
	}

	start := time.Now()
	v, err := conf.New(ctx)
	if err != nil {
		return fmt.Errorf("create volume: %w", err)
	}
	defer v.Close()
	log.Info("volume ready", "elapsed", time.Since(start).Round(time.Millisecond), "extent", uc.Volume.Extent)

	s := &simulation{
		log:    log,
		v:      v,
		radius: float64(uc.Volume.Extent) / 8,
		height: (uc.Terrain.Height + uc.Terrain.Amplitude) * 4,
	}
	limit := rate.Inf
	if uc.Update.Rate > 0 {
		limit = rate.Limit(uc.Update.Rate)
	}

	start = time.Now()
	done := make(chan struct{})
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(done)
		return s.updateLoop(ctx, rate.NewLimiter(limit, 1))
	})
	g.Go(func() error {
		return s.consumeLoop(ctx, done)
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if c := v.Collision(); c != nil {
		if err := c.Sync(context.Background()); err != nil {
			return fmt.Errorf("sync collision: %w", err)
		}
	}

	created, destroyed := registry.Counts()
	log.Info("simulation finished",
		"elapsed", time.Since(start).Round(time.Millisecond),
		"published", s.published,
		"pending", s.pending,
		"synced", s.synced.Load(),
		"constructed", s.constructed,
		"seams", s.seams,
		"edits", v.Edits(),
		"max_visible", s.maxVisible.Load(),
		"meshes_created", created,
		"meshes_destroyed", destroyed,
		"meshes_live", registry.Live(),
		"physics_updates", physics.Updates(),
	)
	return nil
}

// camera returns the eye position and frustum of the camera at the pass passed.
func (s *simulation) camera(pass int) (mgl64.Vec3, cube.Frustum) {
	angle := 2 * math.Pi * float64(pass) / float64(max(passes, 1))
	eye := mgl64.Vec3{s.radius * math.Cos(angle), s.height, s.radius * math.Sin(angle)}
	ahead := mgl64.Vec3{-math.Sin(angle), 0, math.Cos(angle)}
	view := mgl64.LookAtV(eye, eye.Add(ahead).Sub(mgl64.Vec3{0, 0.3, 0}), mgl64.Vec3{0, 1, 0})
	proj := mgl64.Perspective(mgl64.DegToRad(70), 16.0/9.0, 1, 16384)
	return eye, cube.FrustumFromMatrix(proj.Mul4(view))
}

// edit carves a crater below the camera, every other edit filling it back in with a block.
func (s *simulation) edit(eye mgl64.Vec3) {
	target := mgl64.Vec3{eye[0], s.height / 2, eye[2]}
	if s.editsQueued%2 == 0 {
		s.v.Edit(csg.ShapeSphere, target, mgl64.Vec3{64, 64, 64}, 0, false)
	} else {
		s.v.Edit(csg.ShapeCube, target, mgl64.Vec3{32, 32, 32}, 2, true)
	}
	s.editsQueued++
}

func (s *simulation) updateLoop(ctx context.Context, limiter *rate.Limiter) error {
	for i := 0; i < passes; i++ {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
		eye, frustum := s.camera(i)
		s.pass.Store(int64(i))
		if editEvery > 0 && i > 0 && i%editEvery == 0 {
			s.edit(eye)
		}
		stats, err := s.v.Update(ctx, eye, frustum)
		if errors.Is(err, clipmap.ErrPending) {
			s.pending++
			continue
		} else if err != nil {
			return fmt.Errorf("update pass %v: %w", i, err)
		}
		if stats.Published {
			s.published++
		}
		s.constructed += stats.Constructed
		s.seams += stats.Seams
		s.log.Debug("update pass", "pass", i, "selected", stats.Selected, "constructed", stats.Constructed,
			"empty", stats.Empty, "failed", stats.Failed, "seams", stats.Seams, "invalidated", stats.Invalidated)
	}
	return nil
}

// consumeLoop picks up the results of update passes until done is closed.
func (s *simulation) consumeLoop(ctx context.Context, done <-chan struct{}) error {
	t := time.NewTicker(time.Second / 120)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-done:
			s.consume()
			return nil
		case <-t.C:
			s.consume()
		}
	}
}

func (s *simulation) consume() {
	if !s.v.Sync() {
		return
	}
	s.synced.Add(1)
	_, frustum := s.camera(int(s.pass.Load()))
	visible := int64(len(s.v.Visible(frustum)))
	for {
		m := s.maxVisible.Load()
		if visible <= m || s.maxVisible.CompareAndSwap(m, visible) {
			return
		}
	}
}

// serveMetrics serves Prometheus metrics on addr until the returned function is called.
func serveMetrics(log *slog.Logger, addr string) (shutdown func()) {
	srv := &http.Server{Addr: addr, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("serve metrics", "addr", addr, "err", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
