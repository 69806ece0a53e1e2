// Package mesh holds the triangle meshes produced for terrain nodes, the simplifier applied to them and the
// collaborator interface used to hand them to a renderer.
package mesh

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

const (
	// MaxVertices is the largest number of vertices a Buffer holds unless other limits are set.
	MaxVertices = 1 << 23
	// MaxTriangles is the largest number of triangles a Buffer holds unless other limits are set.
	MaxTriangles = MaxVertices * 2
)

// ErrCapacity is returned when adding to a Buffer that is full.
var ErrCapacity = errors.New("mesh: buffer capacity exceeded")

// Vertex is a single vertex of a terrain mesh.
type Vertex struct {
	Pos      mgl32.Vec3
	Normal   mgl32.Vec3
	Material int32
}

// Triangle holds the indices of the three vertices of a triangle in a Buffer, in counter-clockwise order.
type Triangle [3]uint32

// Buffer is an indexed triangle list with a fixed capacity.
type Buffer struct {
	Vertices  []Vertex
	Triangles []Triangle

	maxVertices, maxTriangles int
}

// NewBuffer returns an empty Buffer limited to MaxVertices and MaxTriangles.
func NewBuffer() *Buffer {
	return NewBufferWithLimits(MaxVertices, MaxTriangles)
}

// NewBufferWithLimits returns an empty Buffer limited to the vertex and triangle counts passed.
func NewBufferWithLimits(maxVertices, maxTriangles int) *Buffer {
	return &Buffer{maxVertices: maxVertices, maxTriangles: maxTriangles}
}

// AddVertex appends v to the buffer and returns its index.
func (b *Buffer) AddVertex(v Vertex) (uint32, error) {
	if len(b.Vertices) >= b.vertexLimit() {
		return 0, fmt.Errorf("add vertex %v: %w", len(b.Vertices), ErrCapacity)
	}
	b.Vertices = append(b.Vertices, v)
	return uint32(len(b.Vertices) - 1), nil
}

// AddTriangle appends t to the buffer. All indices in t must refer to vertices already added.
func (b *Buffer) AddTriangle(t Triangle) error {
	if len(b.Triangles) >= b.triangleLimit() {
		return fmt.Errorf("add triangle %v: %w", len(b.Triangles), ErrCapacity)
	}
	b.Triangles = append(b.Triangles, t)
	return nil
}

// Empty reports if the buffer holds no triangles. A nil buffer is empty.
func (b *Buffer) Empty() bool {
	return b == nil || len(b.Triangles) == 0
}

// TriangleCount returns the number of triangles in the buffer. It is safe to call on a nil buffer.
func (b *Buffer) TriangleCount() int {
	if b == nil {
		return 0
	}
	return len(b.Triangles)
}

// Clone returns a deep copy of the buffer.
func (b *Buffer) Clone() *Buffer {
	if b == nil {
		return nil
	}
	return &Buffer{
		Vertices:     append([]Vertex(nil), b.Vertices...),
		Triangles:    append([]Triangle(nil), b.Triangles...),
		maxVertices:  b.maxVertices,
		maxTriangles: b.maxTriangles,
	}
}

func (b *Buffer) vertexLimit() int {
	if b.maxVertices <= 0 {
		return MaxVertices
	}
	return b.maxVertices
}

func (b *Buffer) triangleLimit() int {
	if b.maxTriangles <= 0 {
		return MaxTriangles
	}
	return b.maxTriangles
}
