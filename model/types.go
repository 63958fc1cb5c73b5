package model

import (
	"fmt"
)

// VertexID is the stable, user-facing vertex identifier. It is shared between
// the source dataset and the external graph store.
type VertexID uint64

// PartitionID is the index of a partition within one job.
type PartitionID uint32

// Ordinal is a dense, partition-local position of a vertex record.
// It is transient and only meaningful for the duration of one job.
type Ordinal uint32

// SlotID identifies a worker slot in the scheduler pool.
type SlotID uint32

// Location identifies a vertex record inside a partitioned dataset.
type Location struct {
	Partition PartitionID
	Ordinal   Ordinal
}

// String returns a string representation of the Location.
func (l Location) String() string {
	return fmt.Sprintf("Loc(%d:%d)", l.Partition, l.Ordinal)
}

// Edge is a typed, directed reference to another vertex.
type Edge struct {
	Label  string   `json:"label"`
	Target VertexID `json:"target"`
}

// Vertex represents a full vertex record.
//
// The engine treats vertices as read-only; mutations happen only through
// script side effects against the external store.
type Vertex struct {
	ID         VertexID       `json:"id"`
	Properties map[string]any `json:"properties,omitempty"`
	Edges      []Edge         `json:"edges,omitempty"`
}

// Property returns the named property value and whether it is set.
func (v *Vertex) Property(name string) (any, bool) {
	if v.Properties == nil {
		return nil, false
	}
	val, ok := v.Properties[name]
	return val, ok
}

// EdgesByLabel returns the vertex's out-edges carrying the given label,
// preserving edge order.
func (v *Vertex) EdgesByLabel(label string) []Edge {
	var out []Edge
	for _, e := range v.Edges {
		if e.Label == label {
			out = append(out, e)
		}
	}
	return out
}

// Clone returns a deep copy of the vertex. Workers hand clones to scripts so
// a misbehaving map cannot corrupt the adapter's view of the partition.
func (v *Vertex) Clone() *Vertex {
	if v == nil {
		return nil
	}
	c := &Vertex{ID: v.ID}
	if v.Properties != nil {
		c.Properties = make(map[string]any, len(v.Properties))
		for k, val := range v.Properties {
			c.Properties[k] = val
		}
	}
	if v.Edges != nil {
		c.Edges = make([]Edge, len(v.Edges))
		copy(c.Edges, v.Edges)
	}
	return c
}

// PartitionInfo describes one partition of a dataset: its index and an
// optional locality hint naming the external store shard that holds the
// same vertex range. The hint is scheduling metadata only.
type PartitionInfo struct {
	ID           PartitionID `json:"id"`
	LocalityHint string      `json:"locality_hint,omitempty"`
	VertexCount  uint32      `json:"vertex_count"`
}

// VertexBuilder provides a fluent API for constructing vertices.
type VertexBuilder struct {
	v Vertex
}

// NewVertex creates a builder for a vertex with the given ID.
func NewVertex(id VertexID) *VertexBuilder {
	return &VertexBuilder{v: Vertex{ID: id}}
}

// WithProperty sets a property on the vertex being built.
func (b *VertexBuilder) WithProperty(name string, value any) *VertexBuilder {
	if b.v.Properties == nil {
		b.v.Properties = make(map[string]any)
	}
	b.v.Properties[name] = value
	return b
}

// WithEdge appends a typed edge to the vertex being built.
func (b *VertexBuilder) WithEdge(label string, target VertexID) *VertexBuilder {
	b.v.Edges = append(b.v.Edges, Edge{Label: label, Target: target})
	return b
}

// Build returns the constructed vertex.
func (b *VertexBuilder) Build() *Vertex {
	return b.v.Clone()
}
