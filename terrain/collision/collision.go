// Package collision keeps the collision geometry of the terrain volume at a fixed, coarse granularity. Nodes are
// owned by a single goroutine which loads them on request and hands their meshes to a Physics implementation.
package collision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/nickgildea/leven/terrain/backend"
	"github.com/nickgildea/leven/terrain/chunk"
	"github.com/nickgildea/leven/terrain/contour"
	"github.com/nickgildea/leven/terrain/csg"
	"github.com/nickgildea/leven/terrain/cube"
	"github.com/nickgildea/leven/terrain/mesh"
)

// ErrClosed is returned by methods of a Cache that has been closed.
var ErrClosed = errors.New("collision: cache closed")

// DefaultPoolSize is the default number of collision nodes that may hold geometry at the same time.
const DefaultPoolSize = 16384

// State is the state of a collision node in a Cache.
type State uint8

const (
	// Absent nodes were never loaded.
	Absent State = iota
	// Empty nodes are known to hold no geometry.
	Empty
	// Loaded nodes hold geometry.
	Loaded
)

// String ...
func (s State) String() string {
	switch s {
	case Absent:
		return "absent"
	case Empty:
		return "empty"
	case Loaded:
		return "loaded"
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// Config holds the settings of a Cache.
type Config struct {
	// Log is the Logger used to report failed loads and queue saturation. If nil, slog.Default() is used.
	Log *slog.Logger
	// Layout is the chunk layout of the volume. Collision nodes are Layout.CollisionNodeSize() in size.
	Layout chunk.Layout
	// Backend generates collision geometry. It samples Layout.CollisionVoxelsPerChunk voxels per chunk.
	Backend backend.Backend
	// Physics receives the meshes of loaded nodes. If nil, updates are discarded.
	Physics Physics
	// Simplify holds the simplification options of leaf sized nodes. Collision meshes are simplified with these
	// options scaled up to the collision node size. If left empty, mesh.DefaultSimplifyOptions() is used.
	Simplify mesh.SimplifyOptions
	// PoolSize is the maximum number of nodes holding geometry. If zero, DefaultPoolSize is used.
	PoolSize int
	// QueueSize is the number of load requests that may be queued before Schedule falls back to enqueueing
	// asynchronously. If zero, 64 is used.
	QueueSize int
}

// knownEmpty is stored for nodes that hold no geometry.
const knownEmpty = -1

type node struct {
	min        cube.Pos
	main, seam *mesh.Buffer
	leaves     []contour.Leaf
}

// Cache holds the collision nodes of a volume. Its methods may be called from any goroutine, except for Schedule
// and Sync which must be called from the same one.
type Cache struct {
	conf Config
	size int

	ctx    context.Context
	cancel context.CancelFunc

	cmds       chan command
	closing    chan struct{}
	running    sync.WaitGroup
	enqueueing sync.WaitGroup
	once       sync.Once

	// queueSaturation counts how often load requests found the queue full. It is used to rate-limit the
	// warnings logged for it.
	queueSaturation   atomic.Uint64
	lastSaturationLog atomic.Uint64

	// The fields below are owned by the goroutine running handleCommands.
	pool  []node
	free  []int32
	nodes map[cube.Pos]int32
}

// New creates a Cache using the Config and starts its goroutine. Close must be called to stop it.
func (conf Config) New() (*Cache, error) {
	if conf.Log == nil {
		conf.Log = slog.Default()
	}
	if conf.Layout == (chunk.Layout{}) {
		conf.Layout = chunk.DefaultLayout()
	}
	if conf.Backend == nil {
		return nil, errors.New("collision: backend must not be nil")
	}
	if conf.Backend.VoxelsPerChunk() != conf.Layout.CollisionVoxelsPerChunk {
		return nil, fmt.Errorf("collision: backend samples %v voxels per chunk, layout expects %v", conf.Backend.VoxelsPerChunk(), conf.Layout.CollisionVoxelsPerChunk)
	}
	if conf.Physics == nil {
		conf.Physics = NopPhysics{}
	}
	if conf.Simplify == (mesh.SimplifyOptions{}) {
		conf.Simplify = mesh.DefaultSimplifyOptions()
	}
	if conf.PoolSize <= 0 {
		conf.PoolSize = DefaultPoolSize
	}
	if conf.QueueSize <= 0 {
		conf.QueueSize = 64
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Cache{
		conf:    conf,
		size:    conf.Layout.CollisionNodeSize(),
		ctx:     ctx,
		cancel:  cancel,
		cmds:    make(chan command, conf.QueueSize),
		closing: make(chan struct{}),
		pool:    make([]node, conf.PoolSize),
		free:    make([]int32, conf.PoolSize),
		nodes:   make(map[cube.Pos]int32),
	}
	for i := range c.free {
		c.free[i] = int32(conf.PoolSize - 1 - i)
	}
	c.running.Add(1)
	go c.handleCommands()
	return c, nil
}

// NodeSize returns the size of a collision node.
func (c *Cache) NodeSize() int {
	return c.size
}

// ApplyEdits applies ops to the density of the collision node at min. It is called before the ops are added to
// the edit log and blocks until the backend is done.
func (c *Cache) ApplyEdits(ctx context.Context, ops []csg.Op, min cube.Pos) error {
	if err := c.conf.Backend.ApplyEdits(ctx, ops, min, c.size); err != nil {
		return fmt.Errorf("collision: apply edits to %v: %w", min, err)
	}
	return nil
}

// Schedule requests the nodes at nodes to be reloaded and the seams owned by the nodes at seams to be
// regenerated afterwards. Schedule never blocks: if the queue is full, the request is enqueued from a separate
// goroutine and a throttled warning is logged.
func (c *Cache) Schedule(nodes, seams []cube.Pos) {
	if len(nodes) == 0 && len(seams) == 0 {
		return
	}
	cmd := loadCommand{nodes: slices.Clone(nodes), seams: slices.Clone(seams)}
	select {
	case <-c.closing:
	case c.cmds <- cmd:
	default:
		c.enqueueing.Add(1)
		go c.enqueue(cmd)
		c.handleBackpressure()
	}
}

func (c *Cache) enqueue(cmd command) {
	defer c.enqueueing.Done()
	select {
	case <-c.closing:
	case c.cmds <- cmd:
	}
}

// handleBackpressure counts a saturated queue and logs a warning at most once a minute.
func (c *Cache) handleBackpressure() {
	count := c.queueSaturation.Add(1)
	queueSaturated.Inc()
	now := uint64(time.Now().UnixNano())
	last := c.lastSaturationLog.Load()

	if last != 0 && time.Duration(now-last) < time.Minute {
		return
	}
	if !c.lastSaturationLog.CompareAndSwap(last, now) {
		return
	}
	c.conf.Log.Warn("collision queue saturated: load backlog detected",
		"queued_requests", count,
		"queue_size", cap(c.cmds),
	)
}

// Init records the nodes at empty as known to be empty and loads the nodes at solid together with their seams.
// It blocks until the nodes are loaded.
func (c *Cache) Init(ctx context.Context, empty, solid []cube.Pos) error {
	done := make(chan struct{})
	return c.roundTrip(ctx, initCommand{empty: empty, solid: solid, done: done}, done)
}

// Sync blocks until every load request scheduled before the call has been handled.
func (c *Cache) Sync(ctx context.Context) error {
	c.enqueueing.Wait()
	done := make(chan struct{})
	return c.roundTrip(ctx, syncCommand{done: done}, done)
}

// Lookup returns the state of the collision node at min.
func (c *Cache) Lookup(ctx context.Context, min cube.Pos) (State, error) {
	reply := make(chan State, 1)
	if err := c.send(ctx, lookupCommand{min: min, reply: reply}); err != nil {
		return Absent, err
	}
	select {
	case s := <-reply:
		return s, nil
	case <-c.closing:
		return Absent, ErrClosed
	case <-ctx.Done():
		return Absent, ctx.Err()
	}
}

// Close stops the goroutine of the Cache. Queued requests are dropped.
func (c *Cache) Close() error {
	c.once.Do(func() {
		close(c.closing)
		c.cancel()
	})
	c.running.Wait()
	c.enqueueing.Wait()
	return nil
}

func (c *Cache) send(ctx context.Context, cmd command) error {
	select {
	case <-c.closing:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	case c.cmds <- cmd:
		return nil
	}
}

func (c *Cache) roundTrip(ctx context.Context, cmd command, done <-chan struct{}) error {
	if err := c.send(ctx, cmd); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-c.closing:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// handleCommands runs commands taken from the queue until the Cache is closed.
func (c *Cache) handleCommands() {
	defer c.running.Done()
	for {
		select {
		case cmd := <-c.cmds:
			c.runCommand(cmd)
		case <-c.closing:
			return
		}
	}
}

func (c *Cache) runCommand(cmd command) {
	defer func() {
		if r := recover(); r != nil {
			c.conf.Log.Error("collision command: panic", "error", fmt.Sprint(r))
		}
	}()
	cmd.run(c)
}

// load reloads the nodes passed and then regenerates the seams of the nodes at seams.
func (c *Cache) load(nodes, seams []cube.Pos) {
	for _, min := range nodes {
		c.loadNode(min)
	}
	for _, min := range seams {
		c.loadSeam(min)
	}
}

func (c *Cache) loadNode(min cube.Pos) {
	c.release(min)
	res, err := c.conf.Backend.GenerateMesh(c.ctx, min, c.size)
	if err != nil {
		if c.ctx.Err() == nil {
			nodesLoaded.WithLabelValues("error").Inc()
			c.conf.Log.Warn("load collision node: generate mesh failed", "min", min, "err", err)
		}
		c.conf.Physics.UpdateMain(min, nil)
		return
	}
	if res.Empty() {
		c.nodes[min] = knownEmpty
		nodesLoaded.WithLabelValues("empty").Inc()
		c.conf.Physics.UpdateMain(min, nil)
		return
	}
	if len(c.free) == 0 {
		nodesLoaded.WithLabelValues("dropped").Inc()
		c.conf.Log.Error("load collision node: node pool exhausted", "min", min, "pool_size", len(c.pool))
		c.conf.Physics.UpdateMain(min, nil)
		return
	}
	main := c.simplify(min, res.Mesh)
	i := c.free[len(c.free)-1]
	c.free = c.free[:len(c.free)-1]
	c.pool[i] = node{
		min:    min,
		main:   main,
		leaves: contour.Leaves(res.Fragments, min, c.size, c.conf.Backend.VoxelsPerChunk(), int(i)),
	}
	c.nodes[min] = i
	liveNodes.Inc()
	nodesLoaded.WithLabelValues("mesh").Inc()
	c.conf.Physics.UpdateMain(min, main)
}

// simplify simplifies the main mesh of the node at min in place. nil is returned if nothing is left of it.
func (c *Cache) simplify(min cube.Pos, b *mesh.Buffer) *mesh.Buffer {
	if b == nil || b.Empty() {
		return nil
	}
	scale := float64(chunk.LeafSizeScale*c.size) / float64(c.conf.Layout.LeafSize())
	h := float32(c.size) / 2
	centre := mgl32.Vec3{float32(min[0]) + h, float32(min[1]) + h, float32(min[2]) + h}
	mesh.Simplify(b, centre, c.conf.Simplify.Scaled(scale))
	if b.Empty() {
		return nil
	}
	return b
}

// release returns the node at min to the pool, if any, and removes its seam.
func (c *Cache) release(min cube.Pos) {
	i, ok := c.nodes[min]
	if !ok {
		return
	}
	delete(c.nodes, min)
	if i == knownEmpty {
		return
	}
	if c.pool[i].seam != nil {
		c.conf.Physics.UpdateSeam(min, nil)
	}
	c.pool[i] = node{}
	c.free = append(c.free, i)
	liveNodes.Dec()
}

// loadSeam stitches the seam owned by the node at min from the leaves of the nodes at its positive side. Nodes
// that are empty or absent own no seam.
func (c *Cache) loadSeam(min cube.Pos) {
	i, ok := c.nodes[min]
	if !ok || i == knownEmpty {
		return
	}
	var leaves []contour.Leaf
	for dir, off := range cube.ChildOffsets {
		j, ok := c.nodes[min.Add(off.Mul(c.size))]
		if !ok || j == knownEmpty {
			continue
		}
		leaves = contour.SelectSeamLeaves(leaves, min, c.size, dir, c.pool[j].leaves)
	}
	buf, err := contour.Stitch(leaves, min, c.size*2)
	if err != nil {
		if errors.Is(err, mesh.ErrCapacity) {
			c.conf.Log.Error("load collision seam: mesh truncated", "min", min, "err", err)
		} else {
			c.conf.Log.Warn("load collision seam: stitch failed", "min", min, "err", err)
			buf = nil
		}
	}
	host := &c.pool[i]
	if buf == nil && host.seam == nil {
		return
	}
	host.seam = buf
	c.conf.Physics.UpdateSeam(min, buf)
}

func (c *Cache) lookup(min cube.Pos) State {
	i, ok := c.nodes[min]
	switch {
	case !ok:
		return Absent
	case i == knownEmpty:
		return Empty
	}
	return Loaded
}

// command is run on the goroutine of a Cache.
type command interface {
	run(c *Cache)
}

type loadCommand struct {
	nodes, seams []cube.Pos
}

func (cmd loadCommand) run(c *Cache) {
	c.load(cmd.nodes, cmd.seams)
}

type initCommand struct {
	empty, solid []cube.Pos
	done         chan struct{}
}

func (cmd initCommand) run(c *Cache) {
	defer close(cmd.done)
	for _, min := range cmd.empty {
		c.release(min)
		c.nodes[min] = knownEmpty
	}
	c.load(cmd.solid, cmd.solid)
}

type lookupCommand struct {
	min   cube.Pos
	reply chan State
}

func (cmd lookupCommand) run(c *Cache) {
	cmd.reply <- c.lookup(cmd.min)
}

type syncCommand struct {
	done chan struct{}
}

func (cmd syncCommand) run(*Cache) {
	close(cmd.done)
}
