// Package cpu implements a mesh backend that samples density fields and contours them on the CPU. It serves as
// the reference backend of the terrain volume and is used when no accelerated backend is configured.
package cpu

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/nickgildea/leven/terrain/backend"
	"github.com/nickgildea/leven/terrain/chunk"
	"github.com/nickgildea/leven/terrain/csg"
	"github.com/nickgildea/leven/terrain/cube"
	"github.com/nickgildea/leven/terrain/mesh"
)

// Config holds the settings of a Backend.
type Config struct {
	// Log is the Logger used to report problems such as truncated meshes. If nil, slog.Default() is used.
	Log *slog.Logger
	// VoxelsPerChunk is the number of voxels sampled along each axis of a chunk, regardless of its size.
	VoxelsPerChunk int
	// Density is the unedited density of the volume. If nil, Air is used.
	Density Density
	// Edits is the edit log that density fields catch up with when loaded. It must be shared with the volume.
	Edits *csg.Log
	// MaxVertices and MaxTriangles limit the size of a main mesh. Meshes exceeding them are truncated. Zero
	// values select mesh.MaxVertices and mesh.MaxTriangles.
	MaxVertices, MaxTriangles int
}

// Backend is a backend.Backend running entirely on the CPU.
type Backend struct {
	conf  Config
	store *store

	locks [32]sync.Mutex

	mu      sync.Mutex
	derived map[derivedKey]derivedEntry

	generated, truncated atomic.Uint64
}

type derivedKey struct {
	min  cube.Pos
	size int
}

type derivedEntry struct {
	lastOp int
	res    backend.Result
}

// New creates a Backend using the Config. An error is returned if the field store could not be opened.
func (conf Config) New() (*Backend, error) {
	if conf.Log == nil {
		conf.Log = slog.Default()
	}
	if conf.VoxelsPerChunk <= 0 {
		conf.VoxelsPerChunk = chunk.DefaultVoxelsPerChunk
	}
	if conf.Density == nil {
		conf.Density = Air{}
	}
	if conf.Edits == nil {
		return nil, errors.New("cpu backend: edit log must not be nil")
	}
	if conf.MaxVertices <= 0 {
		conf.MaxVertices = mesh.MaxVertices
	}
	if conf.MaxTriangles <= 0 {
		conf.MaxTriangles = mesh.MaxTriangles
	}
	s, err := openStore()
	if err != nil {
		return nil, err
	}
	return &Backend{conf: conf, store: s, derived: make(map[derivedKey]derivedEntry)}, nil
}

// VoxelsPerChunk ...
func (b *Backend) VoxelsPerChunk() int {
	return b.conf.VoxelsPerChunk
}

// GenerateMesh ...
func (b *Backend) GenerateMesh(ctx context.Context, min cube.Pos, size int) (backend.Result, error) {
	if err := ctx.Err(); err != nil {
		return backend.Result{}, err
	}
	unlock := b.lock(min)
	defer unlock()

	f, err := b.loadField(min, size)
	if err != nil {
		return backend.Result{}, fmt.Errorf("generate mesh: %w", err)
	}
	key := derivedKey{min: min, size: size}
	b.mu.Lock()
	entry, ok := b.derived[key]
	b.mu.Unlock()
	if ok && entry.lastOp == f.lastOp {
		return cloneResult(entry.res), nil
	}

	res, err := extract(f, b.conf.Density, b.conf.MaxVertices, b.conf.MaxTriangles)
	if err != nil {
		b.truncated.Add(1)
		b.conf.Log.Error("generate mesh: output truncated", "min", min, "size", size, "err", err)
	}
	b.generated.Add(1)

	b.mu.Lock()
	b.derived[key] = derivedEntry{lastOp: f.lastOp, res: res}
	b.mu.Unlock()
	return cloneResult(res), nil
}

// IsEmpty ...
func (b *Backend) IsEmpty(ctx context.Context, min cube.Pos, size int) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	unlock := b.lock(min)
	defer unlock()

	f, err := b.loadField(min, size)
	if err != nil {
		return false, fmt.Errorf("check empty: %w", err)
	}
	return !f.hasSurface(), nil
}

// ApplyEdits ...
func (b *Backend) ApplyEdits(ctx context.Context, ops []csg.Op, min cube.Pos, size int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	unlock := b.lock(min)
	defer unlock()

	f, err := b.loadField(min, size)
	if err != nil {
		return fmt.Errorf("apply edits: %w", err)
	}
	var touching []csg.Op
	for _, op := range ops {
		if op.Bounds().Overlaps(f.box()) {
			touching = append(touching, op)
		}
	}
	f.apply(touching)
	f.lastOp += len(ops)
	if err := b.store.save(f); err != nil {
		return fmt.Errorf("apply edits: %w", err)
	}
	b.EvictCache(min, size)
	return nil
}

// EvictCache ...
func (b *Backend) EvictCache(min cube.Pos, size int) {
	b.mu.Lock()
	delete(b.derived, derivedKey{min: min, size: size})
	b.mu.Unlock()
}

// Stats returns the number of meshes generated and the number of those that had to be truncated.
func (b *Backend) Stats() (generated, truncated uint64) {
	return b.generated.Load(), b.truncated.Load()
}

// Close releases the field store of the backend.
func (b *Backend) Close() error {
	return b.store.close()
}

// lock serialises access to the field of the chunk at min. Distinct chunks may share a lock.
func (b *Backend) lock(min cube.Pos) (unlock func()) {
	l := &b.locks[chunk.Hash(min)%uint64(len(b.locks))]
	l.Lock()
	return l.Unlock
}

// loadField returns the density field of a chunk, creating it if needed and replaying any edits from the log it
// has not seen yet.
func (b *Backend) loadField(min cube.Pos, size int) (*field, error) {
	f, ok, err := b.store.load(min, size)
	if err != nil {
		return nil, err
	}
	dirty := !ok
	if !ok {
		f = newField(min, size, b.conf.VoxelsPerChunk, b.conf.Density)
	}
	ops, idx := b.conf.Edits.Since(f.lastOp, f.box())
	if len(ops) > 0 {
		f.apply(ops)
		dirty = true
	}
	if idx != f.lastOp {
		f.lastOp = idx
		dirty = true
	}
	if dirty {
		if err := b.store.save(f); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func cloneResult(res backend.Result) backend.Result {
	return backend.Result{Mesh: res.Mesh.Clone(), Fragments: res.Fragments}
}
