package view

import (
	"log/slog"

	"github.com/nickgildea/leven/terrain/cube"
	"github.com/nickgildea/leven/terrain/mesh"
)

// Snapshot is the unit handed from the update goroutine to the consumer.
type Snapshot struct {
	Tree Tree
	// Invalidated holds the meshes replaced during the update pass that built Tree. They are destroyed once the
	// consumer has switched to Tree.
	Invalidated []mesh.Handle
}

// Publisher passes Snapshots from a single producer to a single consumer. At most one Snapshot is in flight at a
// time.
type Publisher struct {
	ch chan Snapshot
}

// NewPublisher returns a Publisher with no Snapshot pending.
func NewPublisher() *Publisher {
	return &Publisher{ch: make(chan Snapshot, 1)}
}

// TryPublish hands s to the consumer. It never blocks: false is returned if the previous Snapshot has not been
// consumed yet, in which case s is dropped.
func (p *Publisher) TryPublish(s Snapshot) bool {
	select {
	case p.ch <- s:
		return true
	default:
		return false
	}
}

// Pending reports if a published Snapshot has not been consumed yet.
func (p *Publisher) Pending() bool {
	return len(p.ch) > 0
}

// TryConsume takes the pending Snapshot, if any, without blocking.
func (p *Publisher) TryConsume() (Snapshot, bool) {
	select {
	case s := <-p.ch:
		return s, true
	default:
		return Snapshot{}, false
	}
}

// Consumer is the receiving end of a Publisher. It holds the Tree currently in use and releases replaced meshes.
// A Consumer must only be used by one goroutine.
type Consumer struct {
	log      *slog.Logger
	pub      *Publisher
	renderer mesh.Renderer
	current  Tree
}

// NewConsumer returns a Consumer receiving from pub. Meshes are destroyed through renderer. If log is nil,
// slog.Default() is used.
func NewConsumer(log *slog.Logger, pub *Publisher, renderer mesh.Renderer) *Consumer {
	if log == nil {
		log = slog.Default()
	}
	return &Consumer{log: log, pub: pub, renderer: renderer}
}

// Sync switches to the pending Snapshot if there is one and destroys the meshes it invalidated. Nodes of the
// previous Tree must not be used after Sync returns true.
func (c *Consumer) Sync() bool {
	s, ok := c.pub.TryConsume()
	if !ok {
		return false
	}
	c.current = s.Tree
	for _, h := range s.Invalidated {
		c.renderer.DestroyMesh(h)
	}
	if len(s.Invalidated) > 0 {
		c.log.Debug("view: released invalidated meshes", "seq", s.Tree.Seq, "meshes", len(s.Invalidated))
	}
	return true
}

// Tree returns the Tree currently in use.
func (c *Consumer) Tree() Tree {
	return c.current
}

// Visible returns the meshes of the current Tree whose nodes intersect the frustum.
func (c *Consumer) Visible(f cube.Frustum) []mesh.Handle {
	var meshes []mesh.Handle
	c.current.Walk(func(n *Node) bool {
		if !f.ContainsBBox(n.Box()) {
			return false
		}
		if n.MainMesh.Valid() {
			meshes = append(meshes, n.MainMesh)
		}
		if n.SeamMesh.Valid() {
			meshes = append(meshes, n.SeamMesh)
		}
		return true
	})
	return meshes
}
