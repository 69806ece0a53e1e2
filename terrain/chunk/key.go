package chunk

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	"github.com/nickgildea/leven/terrain/cube"
)

// Key is a packed, hashable form of a node minimum. It is only unique for positions whose coordinates fit in 21
// bits once divided by the granularity used to create it.
type Key uint64

// KeyOf packs p, divided by the granularity passed, into a Key.
func KeyOf(p cube.Pos, granularity int) Key {
	const mask = 1<<21 - 1
	x := uint64(p[0]/granularity) & mask
	y := uint64(p[1]/granularity) & mask
	z := uint64(p[2]/granularity) & mask
	return Key(x<<42 | y<<21 | z)
}

// Hash returns a well distributed 64-bit hash of a node position, used to spread nodes over shards.
func Hash(p cube.Pos) uint64 {
	var b [24]byte
	binary.LittleEndian.PutUint64(b[0:], uint64(int64(p[0])))
	binary.LittleEndian.PutUint64(b[8:], uint64(int64(p[1])))
	binary.LittleEndian.PutUint64(b[16:], uint64(int64(p[2])))
	return xxhash.Sum64(b[:])
}
