package collision

import (
	"encoding/binary"
	"math"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/nickgildea/leven/terrain/cube"
	"github.com/nickgildea/leven/terrain/mesh"
)

// Physics receives the collision geometry of the volume. Its methods are called from the goroutine of a Cache and
// must not block for long.
type Physics interface {
	// UpdateMain replaces the main collision mesh of the node at min. A nil buffer removes it.
	UpdateMain(min cube.Pos, b *mesh.Buffer)
	// UpdateSeam replaces the seam collision mesh of the node at min. A nil buffer removes it.
	UpdateSeam(min cube.Pos, b *mesh.Buffer)
}

// NopPhysics is a Physics that discards every update.
type NopPhysics struct{}

// UpdateMain ...
func (NopPhysics) UpdateMain(cube.Pos, *mesh.Buffer) {}

// UpdateSeam ...
func (NopPhysics) UpdateSeam(cube.Pos, *mesh.Buffer) {}

// Recorder is a Physics that keeps the last mesh passed for every node. It is safe for concurrent use.
type Recorder struct {
	mu      sync.Mutex
	main    map[cube.Pos]*mesh.Buffer
	seam    map[cube.Pos]*mesh.Buffer
	updates int
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{main: make(map[cube.Pos]*mesh.Buffer), seam: make(map[cube.Pos]*mesh.Buffer)}
}

// UpdateMain ...
func (r *Recorder) UpdateMain(min cube.Pos, b *mesh.Buffer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates++
	if b == nil {
		delete(r.main, min)
		return
	}
	r.main[min] = b
}

// UpdateSeam ...
func (r *Recorder) UpdateSeam(min cube.Pos, b *mesh.Buffer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates++
	if b == nil {
		delete(r.seam, min)
		return
	}
	r.seam[min] = b
}

// Main returns the main mesh last passed for the node at min.
func (r *Recorder) Main(min cube.Pos) (*mesh.Buffer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.main[min]
	return b, ok
}

// Seam returns the seam mesh last passed for the node at min.
func (r *Recorder) Seam(min cube.Pos) (*mesh.Buffer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.seam[min]
	return b, ok
}

// Updates returns the number of updates received.
func (r *Recorder) Updates() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.updates
}

// Fingerprint returns a hash of the vertex positions and triangles of b. Equal meshes have equal fingerprints. A
// nil buffer has a fingerprint of 0.
func Fingerprint(b *mesh.Buffer) uint64 {
	if b == nil {
		return 0
	}
	d := xxhash.New()
	var buf [12]byte
	for _, v := range b.Vertices {
		binary.LittleEndian.PutUint32(buf[0:], math.Float32bits(v.Pos[0]))
		binary.LittleEndian.PutUint32(buf[4:], math.Float32bits(v.Pos[1]))
		binary.LittleEndian.PutUint32(buf[8:], math.Float32bits(v.Pos[2]))
		_, _ = d.Write(buf[:])
	}
	for _, t := range b.Triangles {
		binary.LittleEndian.PutUint32(buf[0:], t[0])
		binary.LittleEndian.PutUint32(buf[4:], t[1])
		binary.LittleEndian.PutUint32(buf[8:], t[2])
		_, _ = d.Write(buf[:])
	}
	return d.Sum64()
}
