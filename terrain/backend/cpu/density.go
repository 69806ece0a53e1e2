package cpu

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/segmentio/fasthash/fnv1a"
)

// Density produces the unedited density of the volume. Points are in leaf voxel space. Negative values are solid.
type Density interface {
	// Sample returns the density at p and the material of the volume there if it is solid.
	Sample(p mgl64.Vec3) (float64, int32)
}

// Air is a Density without any solid material. Volumes built on Air only contain what edits add.
type Air struct{}

// Sample ...
func (Air) Sample(mgl64.Vec3) (float64, int32) {
	return 1, 0
}

// Ground is a Density with a flat surface at a fixed height.
type Ground struct {
	// Height is the height of the surface in voxel space.
	Height float64
	// Material is the material below the surface.
	Material int32
}

// Sample ...
func (g Ground) Sample(p mgl64.Vec3) (float64, int32) {
	return p[1] - g.Height, g.Material
}

// Hills is a Density with a rolling surface produced from layered value noise.
type Hills struct {
	// Seed selects the noise pattern.
	Seed uint64
	// Height is the average height of the surface in voxel space.
	Height float64
	// Amplitude is the largest deviation from Height.
	Amplitude float64
	// Wavelength is the horizontal distance between hills of the first octave.
	Wavelength float64
	// Octaves is the number of noise layers summed.
	Octaves int
	// Material is the material below the surface.
	Material int32
}

// Sample ...
func (h Hills) Sample(p mgl64.Vec3) (float64, int32) {
	wavelength := h.Wavelength
	if wavelength <= 0 {
		wavelength = 64
	}
	octaves := max(h.Octaves, 1)
	height, amp, total := 0.0, 1.0, 0.0
	freq := 1 / wavelength
	for o := 0; o < octaves; o++ {
		height += amp * h.noise(p[0]*freq, p[2]*freq, uint64(o))
		total += amp
		amp *= 0.5
		freq *= 2
	}
	return p[1] - (h.Height + h.Amplitude*(height/total)), h.Material
}

// noise returns smoothly interpolated value noise in the range [-1, 1].
func (h Hills) noise(x, z float64, octave uint64) float64 {
	x0, z0 := math.Floor(x), math.Floor(z)
	tx, tz := smooth(x-x0), smooth(z-z0)
	ix, iz := int64(x0), int64(z0)

	v00 := h.lattice(ix, iz, octave)
	v10 := h.lattice(ix+1, iz, octave)
	v01 := h.lattice(ix, iz+1, octave)
	v11 := h.lattice(ix+1, iz+1, octave)
	a := v00 + (v10-v00)*tx
	b := v01 + (v11-v01)*tx
	return a + (b-a)*tz
}

// lattice hashes an integer lattice point to a value in [-1, 1].
func (h Hills) lattice(x, z int64, octave uint64) float64 {
	sum := fnv1a.Init64
	sum = fnv1a.AddUint64(sum, h.Seed)
	sum = fnv1a.AddUint64(sum, octave)
	sum = fnv1a.AddUint64(sum, uint64(x))
	sum = fnv1a.AddUint64(sum, uint64(z))
	return float64(sum>>11)/float64(1<<53)*2 - 1
}

func smooth(t float64) float64 {
	return t * t * (3 - 2*t)
}
