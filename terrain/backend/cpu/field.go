package cpu

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/nickgildea/leven/terrain/chunk"
	"github.com/nickgildea/leven/terrain/csg"
	"github.com/nickgildea/leven/terrain/cube"
)

// field is the sampled density of a single chunk. Densities and materials are stored for every voxel corner,
// (n+1)^3 in total, so that neighbouring chunks of the same size agree on the corners they share.
type field struct {
	min  cube.Pos
	size int
	n    int

	density  []float32
	material []int32

	// ops holds every edit applied to the field, in order, so that the density between corners can be evaluated
	// exactly.
	ops []csg.Op
	// lastOp is the length of the edit log the field has caught up with.
	lastOp int
}

func newField(min cube.Pos, size, n int, d Density) *field {
	f := &field{
		min:      min,
		size:     size,
		n:        n,
		density:  make([]float32, (n+1)*(n+1)*(n+1)),
		material: make([]int32, (n+1)*(n+1)*(n+1)),
	}
	for x := 0; x <= n; x++ {
		for y := 0; y <= n; y++ {
			for z := 0; z <= n; z++ {
				i := f.index(x, y, z)
				v, m := d.Sample(f.voxelPos(x, y, z))
				f.density[i] = float32(v)
				if v < 0 {
					f.material[i] = m
				}
			}
		}
	}
	return f
}

func (f *field) index(x, y, z int) int {
	return (x*(f.n+1)+y)*(f.n+1) + z
}

// voxelStep returns the size of a single voxel of the field in leaf voxel space.
func (f *field) voxelStep() float64 {
	return float64(f.size) / float64(f.n) / chunk.LeafSizeScale
}

// voxelPos returns the leaf voxel space position of the corner passed.
func (f *field) voxelPos(x, y, z int) mgl64.Vec3 {
	origin := f.min.Vec3().Mul(1.0 / chunk.LeafSizeScale)
	step := f.voxelStep()
	return origin.Add(mgl64.Vec3{float64(x) * step, float64(y) * step, float64(z) * step})
}

func (f *field) box() cube.BBox {
	return cube.NodeBox(f.min, f.size)
}

// solid reports if the corner passed is inside the volume.
func (f *field) solid(x, y, z int) bool {
	return f.density[f.index(x, y, z)] < 0
}

// apply adds ops to the field, updating every corner within reach of them.
func (f *field) apply(ops []csg.Op) {
	for _, op := range ops {
		f.ops = append(f.ops, op)
		lo, hi := f.cornerRange(op.Bounds())
		for x := lo[0]; x <= hi[0]; x++ {
			for y := lo[1]; y <= hi[1]; y++ {
				for z := lo[2]; z <= hi[2]; z++ {
					i := f.index(x, y, z)
					p := f.voxelPos(x, y, z)
					dist := op.Distance(p)
					f.density[i] = float32(op.Apply(float64(f.density[i]), p))
					if dist < 0 {
						f.material[i] = op.Material
					}
				}
			}
		}
	}
}

// cornerRange returns the range of corners covered by the world space box passed, clamped to the field.
func (f *field) cornerRange(box cube.BBox) (lo, hi [3]int) {
	step := f.size / f.n
	for i := 0; i < 3; i++ {
		lo[i] = min(max((box.Min()[i]-f.min[i])/step-1, 0), f.n)
		hi[i] = min(max((box.Max()[i]-f.min[i])/step+1, 0), f.n)
	}
	return lo, hi
}

// sample evaluates the edited density at an arbitrary leaf voxel space point.
func (f *field) sample(d Density, p mgl64.Vec3) float64 {
	v, _ := d.Sample(p)
	for _, op := range f.ops {
		v = op.Apply(v, p)
	}
	return v
}

// gradient returns the normalised gradient of the edited density at p, which points out of the volume.
func (f *field) gradient(d Density, p mgl64.Vec3) mgl64.Vec3 {
	h := f.voxelStep() * 0.25
	g := mgl64.Vec3{
		f.sample(d, p.Add(mgl64.Vec3{h, 0, 0})) - f.sample(d, p.Sub(mgl64.Vec3{h, 0, 0})),
		f.sample(d, p.Add(mgl64.Vec3{0, h, 0})) - f.sample(d, p.Sub(mgl64.Vec3{0, h, 0})),
		f.sample(d, p.Add(mgl64.Vec3{0, 0, h})) - f.sample(d, p.Sub(mgl64.Vec3{0, 0, h})),
	}
	if g.Len() < 1e-12 {
		return mgl64.Vec3{0, 1, 0}
	}
	return g.Normalize()
}

// hasSurface reports if any two corners of the field differ in their solid state.
func (f *field) hasSurface() bool {
	first := f.density[0] < 0
	for _, v := range f.density[1:] {
		if (v < 0) != first {
			return true
		}
	}
	return false
}

type fieldHeader struct {
	Min     [3]int64
	Size, N int64
	LastOp  int64
	NumOps  int64
}

type encodedOp struct {
	Shape    uint8
	Add      uint8
	Material int32
	Origin   [3]float64
	HalfSize [3]float64
}

func (f *field) encode() ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, len(f.density)*8+64))
	h := fieldHeader{
		Min:    [3]int64{int64(f.min[0]), int64(f.min[1]), int64(f.min[2])},
		Size:   int64(f.size),
		N:      int64(f.n),
		LastOp: int64(f.lastOp),
		NumOps: int64(len(f.ops)),
	}
	if err := binary.Write(buf, binary.LittleEndian, h); err != nil {
		return nil, fmt.Errorf("encode header: %w", err)
	}
	for _, op := range f.ops {
		e := encodedOp{Shape: uint8(op.Shape), Material: op.Material, Origin: op.Origin, HalfSize: op.HalfSize}
		if op.Add {
			e.Add = 1
		}
		if err := binary.Write(buf, binary.LittleEndian, e); err != nil {
			return nil, fmt.Errorf("encode op: %w", err)
		}
	}
	if err := binary.Write(buf, binary.LittleEndian, f.density); err != nil {
		return nil, fmt.Errorf("encode density: %w", err)
	}
	if err := binary.Write(buf, binary.LittleEndian, f.material); err != nil {
		return nil, fmt.Errorf("encode material: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeField(data []byte) (*field, error) {
	r := bytes.NewReader(data)
	var h fieldHeader
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return nil, fmt.Errorf("decode header: %w", err)
	}
	f := &field{
		min:    cube.Pos{int(h.Min[0]), int(h.Min[1]), int(h.Min[2])},
		size:   int(h.Size),
		n:      int(h.N),
		lastOp: int(h.LastOp),
		ops:    make([]csg.Op, 0, h.NumOps),
	}
	for i := int64(0); i < h.NumOps; i++ {
		var e encodedOp
		if err := binary.Read(r, binary.LittleEndian, &e); err != nil {
			return nil, fmt.Errorf("decode op %v: %w", i, err)
		}
		f.ops = append(f.ops, csg.Op{Shape: csg.Shape(e.Shape), Origin: e.Origin, HalfSize: e.HalfSize, Material: e.Material, Add: e.Add == 1})
	}
	corners := (f.n + 1) * (f.n + 1) * (f.n + 1)
	f.density = make([]float32, corners)
	f.material = make([]int32, corners)
	if err := binary.Read(r, binary.LittleEndian, f.density); err != nil {
		return nil, fmt.Errorf("decode density: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, f.material); err != nil {
		return nil, fmt.Errorf("decode material: %w", err)
	}
	return f, nil
}
