package cpu

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/nickgildea/leven/terrain/backend"
	"github.com/nickgildea/leven/terrain/chunk"
	"github.com/nickgildea/leven/terrain/contour"
	"github.com/nickgildea/leven/terrain/cube"
	"github.com/nickgildea/leven/terrain/mesh"
)

// edgeCells holds, per axis, the offsets of the 4 cells sharing an edge relative to the corner the edge starts
// at. The order matches the order dual contouring visits the cells around an edge in, so that the winding of the
// main mesh agrees with the winding of seams.
var edgeCells = [3][4]cube.Pos{
	{{0, -1, -1}, {0, -1, 0}, {0, 0, -1}, {0, 0, 0}},
	{{-1, 0, -1}, {0, 0, -1}, {-1, 0, 0}, {0, 0, 0}},
	{{-1, -1, 0}, {-1, 0, 0}, {0, -1, 0}, {0, 0, 0}},
}

var axes = [3]cube.Pos{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}

type cellVertex struct {
	pos, normal mgl64.Vec3
	info        uint32
	index       int32
}

// extraction holds the vertices found for the cells of a field while it is being contoured.
type extraction struct {
	f     *field
	d     Density
	cells []*cellVertex
}

// extract contours the field passed, returning its main mesh and the fragments on its boundary.
func extract(f *field, d Density, maxVertices, maxTriangles int) (backend.Result, error) {
	e := &extraction{f: f, d: d, cells: make([]*cellVertex, f.n*f.n*f.n)}
	n := f.n
	for x := 0; x < n; x++ {
		for y := 0; y < n; y++ {
			for z := 0; z < n; z++ {
				e.cells[e.cellIndex(x, y, z)] = e.cellVertex(x, y, z)
			}
		}
	}

	var res backend.Result
	buf := mesh.NewBufferWithLimits(maxVertices, maxTriangles)
	err := e.mainMesh(buf)
	if !buf.Empty() {
		res.Mesh = buf
	}
	res.Fragments = e.fragments()
	return res, err
}

func (e *extraction) cellIndex(x, y, z int) int {
	return (x*e.f.n+y)*e.f.n + z
}

func (e *extraction) cell(p cube.Pos) *cellVertex {
	n := e.f.n
	if p[0] < 0 || p[1] < 0 || p[2] < 0 || p[0] >= n || p[1] >= n || p[2] >= n {
		return nil
	}
	return e.cells[e.cellIndex(p[0], p[1], p[2])]
}

// cellVertex places the surface vertex of the cell at x, y, z, or returns nil if the surface does not cross it.
func (e *extraction) cellVertex(x, y, z int) *cellVertex {
	f := e.f
	var corners uint8
	material := int32(0)
	for c, off := range cube.ChildOffsets {
		cx, cy, cz := x+off[0], y+off[1], z+off[2]
		if f.solid(cx, cy, cz) {
			corners |= 1 << c
			if material == 0 {
				material = f.material[f.index(cx, cy, cz)]
			}
		}
	}
	if corners == 0 || corners == 0xff {
		return nil
	}

	var q qef
	var normal mgl64.Vec3
	for _, edge := range contour.EdgeCorners {
		c0, c1 := edge[0], edge[1]
		if (corners>>c0)&1 == (corners>>c1)&1 {
			continue
		}
		o0, o1 := cube.ChildOffsets[c0], cube.ChildOffsets[c1]
		i0, i1 := f.index(x+o0[0], y+o0[1], z+o0[2]), f.index(x+o1[0], y+o1[1], z+o1[2])
		p0, p1 := f.voxelPos(x+o0[0], y+o0[1], z+o0[2]), f.voxelPos(x+o1[0], y+o1[1], z+o1[2])
		d0, d1 := float64(f.density[i0]), float64(f.density[i1])
		t := 0.5
		if d0 != d1 {
			t = d0 / (d0 - d1)
		}
		p := p0.Add(p1.Sub(p0).Mul(t))
		n := f.gradient(e.d, p)
		q.add(p, n)
		normal = normal.Add(n)
	}

	lo, hi := f.voxelPos(x, y, z), f.voxelPos(x+1, y+1, z+1)
	pos := q.solve()
	for i := 0; i < 3; i++ {
		pos[i] = min(max(pos[i], lo[i]), hi[i])
	}
	if normal.Len() > 0 {
		normal = normal.Normalize()
	}
	return &cellVertex{
		pos:    pos.Mul(chunk.LeafSizeScale),
		normal: normal,
		info:   backend.PackInfo(corners, material),
		index:  -1,
	}
}

// mainMesh emits a quad for every edge crossed by the surface whose 4 surrounding cells all lie inside the field.
// Edges on the boundary are left to seams.
func (e *extraction) mainMesh(buf *mesh.Buffer) error {
	n := e.f.n
	for axis := 0; axis < 3; axis++ {
		for x := 0; x < n; x++ {
			for y := 0; y < n; y++ {
				for z := 0; z < n; z++ {
					start := cube.Pos{x, y, z}
					if !e.interiorEdge(start, axis) {
						continue
					}
					end := start.Add(axes[axis])
					s0, s1 := e.f.solid(start[0], start[1], start[2]), e.f.solid(end[0], end[1], end[2])
					if s0 == s1 {
						continue
					}
					if err := e.emitQuad(buf, start, axis, !s1); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}

// interiorEdge reports if the edge along axis starting at corner p is shared by 4 cells of the field.
func (e *extraction) interiorEdge(p cube.Pos, axis int) bool {
	n := e.f.n
	for i := 0; i < 3; i++ {
		if i == axis {
			if p[i] >= n {
				return false
			}
			continue
		}
		if p[i] < 1 || p[i] > n-1 {
			return false
		}
	}
	return true
}

func (e *extraction) emitQuad(buf *mesh.Buffer, start cube.Pos, axis int, flip bool) error {
	var idx [4]uint32
	for i, off := range edgeCells[axis] {
		c := e.cell(start.Add(off))
		if c == nil {
			return nil
		}
		if c.index < 0 {
			v := mesh.Vertex{
				Pos:      mgl32.Vec3{float32(c.pos[0]), float32(c.pos[1]), float32(c.pos[2])},
				Normal:   mgl32.Vec3{float32(c.normal[0]), float32(c.normal[1]), float32(c.normal[2])},
				Material: backend.Fragment{Info: c.info}.Material(),
			}
			index, err := buf.AddVertex(v)
			if err != nil {
				return fmt.Errorf("emit quad: %w", err)
			}
			c.index = int32(index)
		}
		idx[i] = uint32(c.index)
	}
	tris := [2]mesh.Triangle{{idx[0], idx[1], idx[3]}, {idx[0], idx[3], idx[2]}}
	if flip {
		tris = [2]mesh.Triangle{{idx[0], idx[3], idx[1]}, {idx[0], idx[2], idx[3]}}
	}
	for _, t := range tris {
		if err := buf.AddTriangle(t); err != nil {
			return fmt.Errorf("emit quad: %w", err)
		}
	}
	return nil
}

// fragments returns the surface cells of the outermost layer of the field.
func (e *extraction) fragments() []backend.Fragment {
	n := e.f.n
	var out []backend.Fragment
	for x := 0; x < n; x++ {
		for y := 0; y < n; y++ {
			for z := 0; z < n; z++ {
				if x != 0 && y != 0 && z != 0 && x != n-1 && y != n-1 && z != n-1 {
					continue
				}
				c := e.cells[e.cellIndex(x, y, z)]
				if c == nil {
					continue
				}
				out = append(out, backend.Fragment{
					LocalMin: [3]int32{int32(x), int32(y), int32(z)},
					Pos:      mgl32.Vec3{float32(c.pos[0]), float32(c.pos[1]), float32(c.pos[2])},
					Normal:   mgl32.Vec3{float32(c.normal[0]), float32(c.normal[1]), float32(c.normal[2])},
					Info:     c.info,
				})
			}
		}
	}
	return out
}
