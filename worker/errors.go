package worker

import (
	"fmt"

	"github.com/hupe1980/graphmap/model"
)

// Phase names the lifecycle stage in which a partition error originated.
type Phase string

const (
	PhaseConnect Phase = "connect"
	PhaseSetup   Phase = "setup"
	PhaseRead    Phase = "read"
	PhaseMap     Phase = "map"
	PhaseCleanup Phase = "cleanup"
	PhaseOutput  Phase = "output"
)

// VertexError records a map-call failure for a single vertex. Under the
// SkipAndContinue policy these accumulate in the worker result; under
// AbortPartition the first one fails the partition.
type VertexError struct {
	Ordinal model.Ordinal
	Vertex  model.VertexID
	Err     error
}

// Error implements the error interface.
func (e *VertexError) Error() string {
	return fmt.Sprintf("vertex %d (ordinal %d): %v", e.Vertex, e.Ordinal, e.Err)
}

// Unwrap returns the underlying script error.
func (e *VertexError) Unwrap() error { return e.Err }

// PartitionError is the terminal error of a partition whose retry budget is
// exhausted. It carries the originating phase and, for map failures, the
// vertex that triggered the abort.
type PartitionError struct {
	Partition model.PartitionID
	Attempts  int
	Phase     Phase
	Err       error
}

// Error implements the error interface.
func (e *PartitionError) Error() string {
	return fmt.Sprintf("partition %d failed in phase %q after %d attempt(s): %v", e.Partition, e.Phase, e.Attempts, e.Err)
}

// Unwrap returns the underlying cause.
func (e *PartitionError) Unwrap() error { return e.Err }
