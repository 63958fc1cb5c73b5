package script

import (
	"context"
	"fmt"
	"strings"

	"github.com/hupe1980/graphmap/blobstore"
	"github.com/hupe1980/graphmap/extstore"
	"github.com/hupe1980/graphmap/model"
)

// Args are the static, worker-lifetime configuration values passed to every
// lifecycle entry point.
type Args []string

// Env is the script execution environment, scoped to one worker.
type Env struct {
	// DFS is the pre-bound distributed-filesystem handle.
	DFS blobstore.Store

	// Local is the pre-bound local-filesystem handle.
	Local blobstore.Store

	// Graph is the worker's external store connection. It is nil until the
	// worker opens it during setup and is exclusively owned by this worker.
	Graph extstore.Connection
}

// Setupper is the setup entry point of the script contract.
type Setupper interface {
	Setup(ctx context.Context, env *Env, args Args) error
}

// Mapper is the map entry point of the script contract.
type Mapper interface {
	Map(ctx context.Context, env *Env, v *model.Vertex, args Args) (any, error)
}

// Cleaner is the cleanup entry point of the script contract.
type Cleaner interface {
	Cleanup(ctx context.Context, env *Env, args Args) error
}

// ContractError reports a script unit that does not satisfy the
// setup/map/cleanup contract.
type ContractError struct {
	Unit    string
	Missing []string
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("script %q missing entry points: %s", e.Unit, strings.Join(e.Missing, ", "))
}

// Runtime is a tagged handle over the three script entry points.
//
// It is the only way the engine invokes script code; constructing one via
// Bind guarantees the full contract is present.
type Runtime struct {
	unit    string
	setup   Setupper
	mapper  Mapper
	cleaner Cleaner
}

// Bind capability-checks v against the script contract and returns the bound
// runtime. Any missing entry point fails with *ContractError.
func Bind(unit string, v any) (*Runtime, error) {
	r := &Runtime{unit: unit}
	var missing []string

	if s, ok := v.(Setupper); ok {
		r.setup = s
	} else {
		missing = append(missing, "setup")
	}
	if m, ok := v.(Mapper); ok {
		r.mapper = m
	} else {
		missing = append(missing, "map")
	}
	if c, ok := v.(Cleaner); ok {
		r.cleaner = c
	} else {
		missing = append(missing, "cleanup")
	}

	if len(missing) > 0 {
		return nil, &ContractError{Unit: unit, Missing: missing}
	}
	return r, nil
}

// Unit returns the descriptor location this runtime was loaded from.
func (r *Runtime) Unit() string { return r.unit }

// Setup invokes the script's setup entry point.
func (r *Runtime) Setup(ctx context.Context, env *Env, args Args) error {
	return r.setup.Setup(ctx, env, args)
}

// Map invokes the script's map entry point for one vertex.
func (r *Runtime) Map(ctx context.Context, env *Env, v *model.Vertex, args Args) (any, error) {
	return r.mapper.Map(ctx, env, v, args)
}

// Cleanup invokes the script's cleanup entry point.
func (r *Runtime) Cleanup(ctx context.Context, env *Env, args Args) error {
	return r.cleaner.Cleanup(ctx, env, args)
}
