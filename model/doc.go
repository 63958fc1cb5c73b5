// Package model defines core types used throughout graphmap.
//
// # Identity Types
//
//   - VertexID: Stable vertex identifier shared between the source dataset
//     and the external graph store (uint64)
//   - PartitionID: Index of a partition within one job (uint32)
//   - Ordinal: Partition-local position of a vertex record (uint32)
//   - SlotID: Identifier of a worker slot in the scheduler pool (uint32)
//
// # Data Types
//
//   - Vertex: Identifier, property map, and ordered typed edges
//   - Edge: Labeled reference to another vertex
//   - PartitionInfo: Partition index plus optional locality hint
//
// # Vertex Builder
//
// Use the fluent API to construct vertices:
//
//	v := model.NewVertex(42).
//	    WithProperty("name", "hercules").
//	    WithEdge("father", 7).
//	    Build()
package model
