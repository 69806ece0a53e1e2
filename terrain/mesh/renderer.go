package mesh

import (
	"errors"
	"sync"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
	"github.com/nickgildea/leven/terrain/internal/guard"
)

// Handle refers to a mesh owned by a Renderer. The zero Handle refers to no mesh.
type Handle uuid.UUID

// NoHandle is the Handle that refers to no mesh.
var NoHandle Handle

// Valid reports if h refers to a mesh.
func (h Handle) Valid() bool {
	return h != NoHandle
}

// String ...
func (h Handle) String() string {
	return uuid.UUID(h).String()
}

// Renderer creates and destroys the render resources of meshes. Implementations must be safe for use by the update
// goroutine and the consumer goroutine at the same time.
type Renderer interface {
	// CreateMesh uploads the buffer passed and returns a Handle to it. The buffer may be retained.
	CreateMesh(b *Buffer, centre mgl32.Vec3) (Handle, error)
	// DestroyMesh releases the resources of the mesh passed. Destroying the same Handle twice is a contract
	// violation.
	DestroyMesh(h Handle)
}

// ErrEmptyMesh is returned by Registry.CreateMesh when passed a buffer without triangles.
var ErrEmptyMesh = errors.New("mesh: create of empty mesh")

// Registry is a Renderer that keeps meshes in memory. It is used when no real renderer is attached and by tests
// to inspect the meshes handed out.
type Registry struct {
	mu     sync.Mutex
	meshes map[Handle]registered

	created, destroyed uint64
}

type registered struct {
	buf    *Buffer
	centre mgl32.Vec3
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{meshes: make(map[Handle]registered)}
}

// CreateMesh ...
func (r *Registry) CreateMesh(b *Buffer, centre mgl32.Vec3) (Handle, error) {
	if b.Empty() {
		return NoHandle, ErrEmptyMesh
	}
	h := Handle(uuid.New())
	r.mu.Lock()
	defer r.mu.Unlock()
	r.meshes[h] = registered{buf: b, centre: centre}
	r.created++
	return h, nil
}

// DestroyMesh ...
func (r *Registry) DestroyMesh(h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.meshes[h]
	guard.Assert(ok, "mesh: destroy of unknown or already destroyed mesh %v", h)
	delete(r.meshes, h)
	r.destroyed++
}

// Mesh returns the buffer of a live mesh.
func (r *Registry) Mesh(h Handle) (*Buffer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.meshes[h]
	return m.buf, ok
}

// Live returns the number of meshes created and not yet destroyed.
func (r *Registry) Live() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.meshes)
}

// Counts returns the total number of meshes created and destroyed over the lifetime of the registry.
func (r *Registry) Counts() (created, destroyed uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.created, r.destroyed
}
