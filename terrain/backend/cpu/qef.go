package cpu

import (
	"github.com/go-gl/mathgl/mgl64"
)

// qefBias pulls the solution towards the mass point, which keeps the system solvable for flat and degenerate
// inputs.
const qefBias = 0.05

// qef accumulates the plane equations of the edge intersections of a cell and finds the point closest to all of
// them in the least squares sense.
type qef struct {
	mass  mgl64.Vec3
	count int

	points  []mgl64.Vec3
	normals []mgl64.Vec3
}

func (q *qef) add(p, n mgl64.Vec3) {
	q.points = append(q.points, p)
	q.normals = append(q.normals, n)
	q.mass = q.mass.Add(p)
	q.count++
}

// solve returns the point minimising the summed squared distance to the planes added.
func (q *qef) solve() mgl64.Vec3 {
	if q.count == 0 {
		return mgl64.Vec3{}
	}
	mass := q.mass.Mul(1 / float64(q.count))
	var ata [6]float64
	var atb mgl64.Vec3
	for i, p := range q.points {
		n := q.normals[i]
		ata[0] += n[0] * n[0]
		ata[1] += n[0] * n[1]
		ata[2] += n[0] * n[2]
		ata[3] += n[1] * n[1]
		ata[4] += n[1] * n[2]
		ata[5] += n[2] * n[2]
		b := n.Dot(p.Sub(mass))
		atb = atb.Add(n.Mul(b))
	}
	m := mgl64.Mat3{
		ata[0] + qefBias, ata[1], ata[2],
		ata[1], ata[3] + qefBias, ata[4],
		ata[2], ata[4], ata[5] + qefBias,
	}
	return mass.Add(m.Inv().Mul3x1(atb))
}
