package graphmap

import (
	"errors"
	"fmt"

	"github.com/hupe1980/graphmap/blobstore"
	"github.com/hupe1980/graphmap/extstore"
	"github.com/hupe1980/graphmap/model"
	"github.com/hupe1980/graphmap/scheduler"
	"github.com/hupe1980/graphmap/script"
	"github.com/hupe1980/graphmap/worker"
)

var (
	// ErrNotFound is returned when a named dataset or blob does not exist.
	ErrNotFound = errors.New("not found")

	// ErrEmptyChain is returned when a chain is run without any jobs.
	ErrEmptyChain = errors.New("chain has no jobs")

	// ErrNoInput is returned when the first job of a chain has no input
	// dataset.
	ErrNoInput = errors.New("chain has no input dataset")
)

// ErrScriptLoad indicates the script of a job could not be loaded or does
// not satisfy the setup/map/cleanup contract. It is fatal to the job before
// any worker starts.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrScriptLoad struct {
	Location string
	cause    error
}

func (e *ErrScriptLoad) Error() string {
	return fmt.Sprintf("script load failed: %s: %v", e.Location, e.cause)
}

func (e *ErrScriptLoad) Unwrap() error { return e.cause }

// ErrJobFailed attributes a chain failure to a specific job. Partition and
// Vertex narrow the origin down when the cause was a worker failure.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrJobFailed struct {
	Chain     string
	Job       int
	Partition *model.PartitionID
	Vertex    *model.VertexID
	cause     error
}

func (e *ErrJobFailed) Error() string {
	msg := fmt.Sprintf("chain %q: job %d failed", e.Chain, e.Job)
	if e.Partition != nil {
		msg += fmt.Sprintf(" (partition %d", *e.Partition)
		if e.Vertex != nil {
			msg += fmt.Sprintf(", vertex %d", *e.Vertex)
		}
		msg += ")"
	}
	return fmt.Sprintf("%s: %v", msg, e.cause)
}

func (e *ErrJobFailed) Unwrap() error { return e.cause }

// ErrStoreUnavailable indicates the external graph store rejected or never
// accepted a worker connection.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrStoreUnavailable struct {
	Address string
	cause   error
}

func (e *ErrStoreUnavailable) Error() string {
	return fmt.Sprintf("external store unavailable: %s: %v", e.Address, e.cause)
}

func (e *ErrStoreUnavailable) Unwrap() error { return e.cause }

// translateError normalizes subpackage errors into the root taxonomy.
func translateError(err error, chain string, job int, address string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, blobstore.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}

	var cerr *script.ContractError
	if errors.As(err, &cerr) {
		return &ErrJobFailed{Chain: chain, Job: job, cause: &ErrScriptLoad{Location: cerr.Unit, cause: err}}
	}

	var perr *worker.PartitionError
	if errors.As(err, &perr) {
		jf := &ErrJobFailed{Chain: chain, Job: job, Partition: &perr.Partition, cause: err}

		var verr *worker.VertexError
		if errors.As(err, &verr) {
			jf.Vertex = &verr.Vertex
		}

		if errors.Is(err, extstore.ErrUnreachable) || errors.Is(err, extstore.ErrConfigRejected) {
			jf.cause = &ErrStoreUnavailable{Address: address, cause: err}
		}

		return jf
	}

	if errors.Is(err, scheduler.ErrNoSlots) {
		return &ErrJobFailed{Chain: chain, Job: job, cause: err}
	}

	return &ErrJobFailed{Chain: chain, Job: job, cause: err}
}
