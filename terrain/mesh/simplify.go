package mesh

import (
	"math"
	"sort"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/go-gl/mathgl/mgl64"
)

// SimplifyOptions controls how aggressively Simplify collapses edges.
type SimplifyOptions struct {
	// EdgeFraction is the fraction of edges considered for collapsing in each iteration.
	EdgeFraction float64
	// MaxIterations caps the number of collapse iterations.
	MaxIterations int
	// TargetPercentage stops simplification once the triangle count drops below this fraction of the input.
	TargetPercentage float64
	// MaxError is the largest distance a collapsed vertex may deviate from the planes of its triangles.
	MaxError float64
	// MaxEdgeSize is the longest edge that may be collapsed.
	MaxEdgeSize float64
	// MinAngleCosine prevents collapsing edges whose vertex normals differ by more than this angle.
	MinAngleCosine float64
}

// DefaultSimplifyOptions returns the options used for leaf sized nodes.
func DefaultSimplifyOptions() SimplifyOptions {
	return SimplifyOptions{
		EdgeFraction:     0.125,
		MaxIterations:    10,
		TargetPercentage: 0.05,
		MaxError:         5,
		MaxEdgeSize:      2.5,
		MinAngleCosine:   0.7,
	}
}

// Scaled returns a copy of the options with the error and edge size budgets multiplied by scale. Coarser nodes use
// a larger scale so that they are simplified more aggressively.
func (opts SimplifyOptions) Scaled(scale float64) SimplifyOptions {
	opts.MaxError *= scale
	opts.MaxEdgeSize *= scale
	return opts
}

// quadric is the symmetric 4x4 error quadric of a set of planes, stored as its upper triangle.
type quadric [10]float64

func planeQuadric(n mgl64.Vec3, d float64) quadric {
	a, b, c := n[0], n[1], n[2]
	return quadric{a * a, a * b, a * c, a * d, b * b, b * c, b * d, c * c, c * d, d * d}
}

func (q *quadric) add(o quadric) {
	for i := range q {
		q[i] += o[i]
	}
}

func (q quadric) eval(v mgl64.Vec3) float64 {
	x, y, z := v[0], v[1], v[2]
	return q[0]*x*x + 2*q[1]*x*y + 2*q[2]*x*z + 2*q[3]*x +
		q[4]*y*y + 2*q[5]*y*z + 2*q[6]*y +
		q[7]*z*z + 2*q[8]*z + q[9]
}

type collapse struct {
	a, b uint32
	err  float64
	pos  mgl64.Vec3
}

// Simplify reduces the triangle count of b in place by collapsing short edges of low error. Vertices on the open
// border of the mesh never move, so that geometry built against the border, such as seams, keeps matching. The
// number of triangles removed is returned.
func Simplify(b *Buffer, centre mgl32.Vec3, opts SimplifyOptions) int {
	if b.Empty() || opts.MaxIterations <= 0 {
		return 0
	}
	initial := len(b.Triangles)
	target := int(float64(initial) * opts.TargetPercentage)
	c := mgl64.Vec3{float64(centre[0]), float64(centre[1]), float64(centre[2])}

	pos := make([]mgl64.Vec3, len(b.Vertices))
	for i, v := range b.Vertices {
		pos[i] = mgl64.Vec3{float64(v.Pos[0]), float64(v.Pos[1]), float64(v.Pos[2])}.Sub(c)
	}

	for iter := 0; iter < opts.MaxIterations && len(b.Triangles) > target; iter++ {
		if simplifyIteration(b, pos, opts) == 0 {
			break
		}
	}
	for i := range b.Vertices {
		p := pos[i].Add(c)
		b.Vertices[i].Pos = mgl32.Vec3{float32(p[0]), float32(p[1]), float32(p[2])}
	}
	compact(b)
	return initial - len(b.Triangles)
}

func simplifyIteration(b *Buffer, pos []mgl64.Vec3, opts SimplifyOptions) int {
	quadrics := make([]quadric, len(b.Vertices))
	adjacent := make([][]int, len(b.Vertices))
	edges := make(map[[2]uint32]int, len(b.Triangles)*3)

	for ti, t := range b.Triangles {
		n, ok := triangleNormal(pos[t[0]], pos[t[1]], pos[t[2]])
		if ok {
			q := planeQuadric(n, -n.Dot(pos[t[0]]))
			for _, v := range t {
				quadrics[v].add(q)
			}
		}
		for k := 0; k < 3; k++ {
			adjacent[t[k]] = append(adjacent[t[k]], ti)
			edges[edgeKey(t[k], t[(k+1)%3])]++
		}
	}
	border := make([]bool, len(b.Vertices))
	for e, count := range edges {
		if count == 1 {
			border[e[0]], border[e[1]] = true, true
		}
	}

	candidates := make([]collapse, 0, len(edges)/4)
	for e := range edges {
		va, vb := e[0], e[1]
		if border[va] || border[vb] {
			continue
		}
		if pos[va].Sub(pos[vb]).Len() > opts.MaxEdgeSize {
			continue
		}
		na, nb := b.Vertices[va].Normal, b.Vertices[vb].Normal
		if na.Dot(nb) < float32(opts.MinAngleCosine) {
			continue
		}
		if b.Vertices[va].Material != b.Vertices[vb].Material {
			continue
		}
		mid := pos[va].Add(pos[vb]).Mul(0.5)
		q := quadrics[va]
		q.add(quadrics[vb])
		err := math.Sqrt(math.Max(q.eval(mid), 0))
		if err > opts.MaxError {
			continue
		}
		candidates = append(candidates, collapse{a: va, b: vb, err: err, pos: mid})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].err != candidates[j].err {
			return candidates[i].err < candidates[j].err
		}
		if candidates[i].a != candidates[j].a {
			return candidates[i].a < candidates[j].a
		}
		return candidates[i].b < candidates[j].b
	})
	limit := max(1, int(math.Ceil(float64(len(edges))*opts.EdgeFraction)))
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	remap := make([]uint32, len(b.Vertices))
	for i := range remap {
		remap[i] = uint32(i)
	}
	locked := make([]bool, len(b.Vertices))
	collapsed := 0
	for _, cand := range candidates {
		if locked[cand.a] || locked[cand.b] {
			continue
		}
		if flips(b, pos, adjacent, cand) {
			continue
		}
		for _, v := range [2]uint32{cand.a, cand.b} {
			for _, ti := range adjacent[v] {
				for _, w := range b.Triangles[ti] {
					locked[w] = true
				}
			}
		}
		pos[cand.a] = cand.pos
		n := b.Vertices[cand.a].Normal.Add(b.Vertices[cand.b].Normal)
		if n.Len() > 0 {
			b.Vertices[cand.a].Normal = n.Normalize()
		}
		remap[cand.b] = cand.a
		collapsed++
	}
	if collapsed == 0 {
		return 0
	}
	kept := b.Triangles[:0]
	for _, t := range b.Triangles {
		t = Triangle{remap[t[0]], remap[t[1]], remap[t[2]]}
		if t[0] == t[1] || t[1] == t[2] || t[0] == t[2] {
			continue
		}
		kept = append(kept, t)
	}
	b.Triangles = kept
	return collapsed
}

// flips reports if moving both vertices of the collapse to its target position would turn any surviving triangle
// around.
func flips(b *Buffer, pos []mgl64.Vec3, adjacent [][]int, c collapse) bool {
	for _, v := range [2]uint32{c.a, c.b} {
		for _, ti := range adjacent[v] {
			t := b.Triangles[ti]
			if (t[0] == c.a || t[1] == c.a || t[2] == c.a) && (t[0] == c.b || t[1] == c.b || t[2] == c.b) {
				continue
			}
			before, ok := triangleNormal(pos[t[0]], pos[t[1]], pos[t[2]])
			if !ok {
				continue
			}
			var p [3]mgl64.Vec3
			for k, w := range t {
				p[k] = pos[w]
				if w == c.a || w == c.b {
					p[k] = c.pos
				}
			}
			after, ok := triangleNormal(p[0], p[1], p[2])
			if !ok || before.Dot(after) < 0.2 {
				return true
			}
		}
	}
	return false
}

func triangleNormal(a, b, c mgl64.Vec3) (mgl64.Vec3, bool) {
	n := b.Sub(a).Cross(c.Sub(a))
	l := n.Len()
	if l < 1e-12 {
		return mgl64.Vec3{}, false
	}
	return n.Mul(1 / l), true
}

func edgeKey(a, b uint32) [2]uint32 {
	if a > b {
		a, b = b, a
	}
	return [2]uint32{a, b}
}

// compact drops vertices no longer referenced by any triangle.
func compact(b *Buffer) {
	index := make([]int32, len(b.Vertices))
	for i := range index {
		index[i] = -1
	}
	vertices := make([]Vertex, 0, len(b.Vertices))
	for ti, t := range b.Triangles {
		for k, v := range t {
			if index[v] < 0 {
				index[v] = int32(len(vertices))
				vertices = append(vertices, b.Vertices[v])
			}
			b.Triangles[ti][k] = uint32(index[v])
		}
	}
	b.Vertices = vertices
}
