package csg

import (
	"sync"

	"github.com/nickgildea/leven/terrain/cube"
)

// Log is the ordered record of every edit applied to the volume. Density fields remember how much of the log they
// have replayed and catch up lazily through Since. Entries are never removed or modified.
type Log struct {
	mu     sync.RWMutex
	ops    []Op
	bounds []cube.BBox
}

// Append adds ops to the end of the log.
func (l *Log) Append(ops ...Op) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, op := range ops {
		l.ops = append(l.ops, op)
		l.bounds = append(l.bounds, op.Bounds())
	}
}

// Len returns the number of edits in the log.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.ops)
}

// Since returns the edits from index from onwards whose bounds overlap box, in log order, together with the
// length of the log at the time of the call. Passing the returned length as from in a later call yields only
// newer edits.
func (l *Log) Since(from int, box cube.BBox) ([]Op, int) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if from < 0 {
		from = 0
	}
	var ops []Op
	for i := from; i < len(l.ops); i++ {
		if box.Overlaps(l.bounds[i]) {
			ops = append(ops, l.ops[i])
		}
	}
	return ops, len(l.ops)
}
