package cube

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
)

// Pos holds the position of a voxel corner or node minimum in the terrain volume. Coordinates are world units
// and may be negative.
type Pos [3]int

// String converts the Pos to a string in the format (1,2,3) and returns it.
func (p Pos) String() string {
	return fmt.Sprintf("(%v,%v,%v)", p[0], p[1], p[2])
}

// X returns the X coordinate of the position.
func (p Pos) X() int {
	return p[0]
}

// Y returns the Y coordinate of the position.
func (p Pos) Y() int {
	return p[1]
}

// Z returns the Z coordinate of the position.
func (p Pos) Z() int {
	return p[2]
}

// Add adds two positions together and returns a new one with the combined values.
func (p Pos) Add(pos Pos) Pos {
	return Pos{p[0] + pos[0], p[1] + pos[1], p[2] + pos[2]}
}

// Sub subtracts pos from p and returns a new one with the subtracted values.
func (p Pos) Sub(pos Pos) Pos {
	return Pos{p[0] - pos[0], p[1] - pos[1], p[2] - pos[2]}
}

// Mul multiplies every coordinate of p by n.
func (p Pos) Mul(n int) Pos {
	return Pos{p[0] * n, p[1] * n, p[2] * n}
}

// Div divides every coordinate of p by n, truncating towards zero.
func (p Pos) Div(n int) Pos {
	return Pos{p[0] / n, p[1] / n, p[2] / n}
}

// Mod returns the remainder of every coordinate of p divided by n. The result carries the sign of p, like the %
// operator.
func (p Pos) Mod(n int) Pos {
	return Pos{p[0] % n, p[1] % n, p[2] % n}
}

// Min returns the component-wise minimum of p and pos.
func (p Pos) Min(pos Pos) Pos {
	return Pos{min(p[0], pos[0]), min(p[1], pos[1]), min(p[2], pos[2])}
}

// Max returns the component-wise maximum of p and pos.
func (p Pos) Max(pos Pos) Pos {
	return Pos{max(p[0], pos[0]), max(p[1], pos[1]), max(p[2], pos[2])}
}

// Vec3 returns a vec3 holding the same coordinates as the position.
func (p Pos) Vec3() mgl64.Vec3 {
	return mgl64.Vec3{float64(p[0]), float64(p[1]), float64(p[2])}
}

// PosFromVec3 returns a Pos with the coordinates of the vector passed, each rounded down.
func PosFromVec3(vec3 mgl64.Vec3) Pos {
	return Pos{floor(vec3[0]), floor(vec3[1]), floor(vec3[2])}
}

func floor(f float64) int {
	i := int(f)
	if float64(i) > f {
		i--
	}
	return i
}
