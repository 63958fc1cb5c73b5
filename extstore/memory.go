package extstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/graphmap/model"
)

// MemoryGraph is an in-memory transactional graph store. It implements the
// visibility contract exactly: buffered writes are invisible to other
// connections until Commit, and committed state is immediately visible to
// every subsequent reader.
//
// Used in tests and as the reference implementation of the Connector
// contract.
type MemoryGraph struct {
	addr string

	mu    sync.RWMutex
	props map[model.VertexID]map[string]any
	edges map[model.VertexID][]model.Edge

	commits int
}

// NewMemoryGraph creates an empty graph store answering at addr.
func NewMemoryGraph(addr string) *MemoryGraph {
	return &MemoryGraph{
		addr:  addr,
		props: make(map[model.VertexID]map[string]any),
		edges: make(map[model.VertexID][]model.Edge),
	}
}

// Connector returns a Connector that validates the config address against
// this store before handing out connections.
func (g *MemoryGraph) Connector() Connector {
	return memoryConnector{graph: g}
}

// CommittedProperty reads a property from committed state only.
func (g *MemoryGraph) CommittedProperty(id model.VertexID, name string) (any, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	props, ok := g.props[id]
	if !ok {
		return nil, false
	}
	v, ok := props[name]
	return v, ok
}

// CommittedEdges returns the committed out-edges of a vertex.
func (g *MemoryGraph) CommittedEdges(id model.VertexID) []model.Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]model.Edge, len(g.edges[id]))
	copy(out, g.edges[id])
	return out
}

// VerticesWithProperty returns the IDs of vertices whose committed state has
// the named property set.
func (g *MemoryGraph) VerticesWithProperty(name string) []model.VertexID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var ids []model.VertexID
	for id, props := range g.props {
		if _, ok := props[name]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// Commits returns the number of successful commits.
func (g *MemoryGraph) Commits() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.commits
}

type memoryConnector struct {
	graph *MemoryGraph
}

func (c memoryConnector) Open(_ context.Context, cfg Config) (Connection, error) {
	if cfg.Address != c.graph.addr {
		return nil, fmt.Errorf("%w: no store at %q", ErrUnreachable, cfg.Address)
	}
	return &memoryConn{graph: c.graph}, nil
}

// bufferedOp is one uncommitted mutation.
type bufferedOp struct {
	isEdge bool
	id     model.VertexID
	name   string // property name or edge label
	value  any
	target model.VertexID
}

type memoryConn struct {
	graph  *MemoryGraph
	buf    []bufferedOp
	closed bool
}

func (c *memoryConn) GetProperty(_ context.Context, id model.VertexID, name string) (any, bool, error) {
	if c.closed {
		return nil, false, ErrClosed
	}

	// Own uncommitted writes win over committed state, newest first.
	for i := len(c.buf) - 1; i >= 0; i-- {
		op := c.buf[i]
		if !op.isEdge && op.id == id && op.name == name {
			return op.value, true, nil
		}
	}

	v, ok := c.graph.CommittedProperty(id, name)
	return v, ok, nil
}

func (c *memoryConn) SetProperty(_ context.Context, id model.VertexID, name string, value any) error {
	if c.closed {
		return ErrClosed
	}
	c.buf = append(c.buf, bufferedOp{id: id, name: name, value: value})
	return nil
}

func (c *memoryConn) AddEdge(_ context.Context, from model.VertexID, label string, to model.VertexID) error {
	if c.closed {
		return ErrClosed
	}
	c.buf = append(c.buf, bufferedOp{isEdge: true, id: from, name: label, target: to})
	return nil
}

func (c *memoryConn) Commit(ctx context.Context) error {
	if c.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	g := c.graph
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, op := range c.buf {
		if op.isEdge {
			g.edges[op.id] = append(g.edges[op.id], model.Edge{Label: op.name, Target: op.target})
			continue
		}
		props, ok := g.props[op.id]
		if !ok {
			props = make(map[string]any)
			g.props[op.id] = props
		}
		props[op.name] = op.value
	}
	g.commits++
	c.buf = c.buf[:0]
	return nil
}

func (c *memoryConn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.buf = nil
	return nil
}
