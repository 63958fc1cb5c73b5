package worker

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/hupe1980/graphmap/extstore"
	"github.com/hupe1980/graphmap/model"
	"github.com/hupe1980/graphmap/script"
	"github.com/stretchr/testify/require"
)

// hookScript implements the full script contract with overridable hooks.
type hookScript struct {
	setup   func(ctx context.Context, env *script.Env, args script.Args) error
	mapV    func(ctx context.Context, env *script.Env, v *model.Vertex, args script.Args) (any, error)
	cleanup func(ctx context.Context, env *script.Env, args script.Args) error
}

func (s *hookScript) Setup(ctx context.Context, env *script.Env, args script.Args) error {
	if s.setup == nil {
		return nil
	}
	return s.setup(ctx, env, args)
}

func (s *hookScript) Map(ctx context.Context, env *script.Env, v *model.Vertex, args script.Args) (any, error) {
	if s.mapV == nil {
		return nil, nil
	}
	return s.mapV(ctx, env, v, args)
}

func (s *hookScript) Cleanup(ctx context.Context, env *script.Env, args script.Args) error {
	if s.cleanup == nil {
		return nil
	}
	return s.cleanup(ctx, env, args)
}

// sliceSource serves vertices from a slice.
type sliceSource struct {
	vertices []*model.Vertex
	pos      int
	closed   bool
}

func (s *sliceSource) Next() (*model.Vertex, error) {
	if s.pos >= len(s.vertices) {
		return nil, io.EOF
	}
	v := s.vertices[s.pos]
	s.pos++
	return v, nil
}

func (s *sliceSource) Close() error {
	s.closed = true
	return nil
}

func sliceOpener(vertices []*model.Vertex) SourceOpener {
	return OpenerFunc(func(_ context.Context, _ model.PartitionID) (VertexSource, error) {
		return &sliceSource{vertices: vertices}, nil
	})
}

// recordSink captures emitted results and its terminal call.
type recordSink struct {
	results   []any
	committed bool
	aborted   bool
}

func (s *recordSink) Emit(_ context.Context, _ *model.Vertex, result any) error {
	s.results = append(s.results, result)
	return nil
}

func (s *recordSink) Commit() error {
	s.committed = true
	return nil
}

func (s *recordSink) Abort() error {
	s.aborted = true
	return nil
}

func testVertices(n int) []*model.Vertex {
	vertices := make([]*model.Vertex, 0, n)
	for i := 0; i < n; i++ {
		vertices = append(vertices, model.NewVertex(model.VertexID(i+1)).
			WithProperty("ordinal", i).
			Build())
	}
	return vertices
}

func runtimeFactory(s *hookScript) func(ctx context.Context) (*script.Runtime, error) {
	return func(context.Context) (*script.Runtime, error) {
		return script.Bind("test", s)
	}
}

func TestWorkerLifecycle(t *testing.T) {
	var calls []string

	s := &hookScript{
		setup: func(context.Context, *script.Env, script.Args) error {
			calls = append(calls, "setup")
			return nil
		},
		mapV: func(_ context.Context, _ *script.Env, v *model.Vertex, _ script.Args) (any, error) {
			calls = append(calls, "map")
			return v.ID, nil
		},
		cleanup: func(context.Context, *script.Env, script.Args) error {
			calls = append(calls, "cleanup")
			return nil
		},
	}

	sink := &recordSink{}

	w := New(Config{
		Partition:  model.PartitionInfo{ID: 7, VertexCount: 3},
		NewRuntime: runtimeFactory(s),
		Source:     sliceOpener(testVertices(3)),
		Sink: func(context.Context, model.PartitionInfo) (Sink, error) {
			return sink, nil
		},
	})

	require.Equal(t, StateCreated, w.State())

	res, err := w.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, StateTerminated, w.State())

	require.Equal(t, []string{"setup", "map", "map", "map", "cleanup"}, calls)
	require.Equal(t, 1, res.Attempts)
	require.Equal(t, uint64(3), res.Mapped.GetCardinality())
	require.True(t, res.Failed.IsEmpty())

	require.True(t, sink.committed)
	require.False(t, sink.aborted)
	require.Equal(t, []any{model.VertexID(1), model.VertexID(2), model.VertexID(3)}, sink.results)
}

func TestWorkerSkipAndContinue(t *testing.T) {
	s := &hookScript{
		mapV: func(_ context.Context, _ *script.Env, v *model.Vertex, _ script.Args) (any, error) {
			if v.ID%2 == 0 {
				return nil, errors.New("even vertex rejected")
			}
			return v.ID, nil
		},
	}

	sink := &recordSink{}

	w := New(Config{
		Partition:  model.PartitionInfo{ID: 1, VertexCount: 5},
		NewRuntime: runtimeFactory(s),
		Source:     sliceOpener(testVertices(5)),
		Sink: func(context.Context, model.PartitionInfo) (Sink, error) {
			return sink, nil
		},
	})

	res, err := w.Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, uint64(3), res.Mapped.GetCardinality())
	require.Equal(t, uint64(2), res.Failed.GetCardinality())
	require.True(t, res.Failed.Contains(1))
	require.True(t, res.Failed.Contains(3))
	require.Len(t, res.VertexErrors, 2)
	require.Equal(t, model.VertexID(2), res.VertexErrors[0].Vertex)

	// Skipped vertices emit nothing; the rest still reach the sink.
	require.Equal(t, []any{model.VertexID(1), model.VertexID(3), model.VertexID(5)}, sink.results)
	require.True(t, sink.committed)
}

func TestWorkerAbortPartition(t *testing.T) {
	s := &hookScript{
		mapV: func(_ context.Context, _ *script.Env, v *model.Vertex, _ script.Args) (any, error) {
			if v.ID == 2 {
				return nil, errors.New("boom")
			}
			return nil, nil
		},
	}

	sink := &recordSink{}

	w := New(Config{
		Partition:  model.PartitionInfo{ID: 1, VertexCount: 5},
		NewRuntime: runtimeFactory(s),
		Source:     sliceOpener(testVertices(5)),
		Sink: func(context.Context, model.PartitionInfo) (Sink, error) {
			return sink, nil
		},
		Policy: AbortPartition,
	})

	_, err := w.Run(context.Background())
	require.Error(t, err)
	require.Equal(t, StateFailed, w.State())

	var perr *PartitionError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, PhaseMap, perr.Phase)

	var verr *VertexError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, model.VertexID(2), verr.Vertex)
	require.Equal(t, model.Ordinal(1), verr.Ordinal)

	require.True(t, sink.aborted)
	require.False(t, sink.committed)
}

func TestWorkerRetryFromCreated(t *testing.T) {
	setups := 0

	s := &hookScript{
		setup: func(context.Context, *script.Env, script.Args) error {
			setups++
			if setups < 3 {
				return errors.New("transient setup failure")
			}
			return nil
		},
	}

	w := New(Config{
		Partition:   model.PartitionInfo{ID: 1, VertexCount: 2},
		NewRuntime:  runtimeFactory(s),
		Source:      sliceOpener(testVertices(2)),
		RetryBudget: 3,
	})

	res, err := w.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, res.Attempts)
	require.Equal(t, 3, setups)
	require.Equal(t, StateTerminated, w.State())
}

func TestWorkerRetryBudgetExhausted(t *testing.T) {
	attempts := 0

	s := &hookScript{
		setup: func(context.Context, *script.Env, script.Args) error {
			attempts++
			return errors.New("persistent failure")
		},
	}

	w := New(Config{
		Partition:   model.PartitionInfo{ID: 9, VertexCount: 1},
		NewRuntime:  runtimeFactory(s),
		Source:      sliceOpener(testVertices(1)),
		RetryBudget: 2,
	})

	_, err := w.Run(context.Background())
	require.Error(t, err)
	require.Equal(t, 3, attempts)

	var perr *PartitionError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, model.PartitionID(9), perr.Partition)
	require.Equal(t, 3, perr.Attempts)
	require.Equal(t, PhaseSetup, perr.Phase)
}

func TestWorkerCommitsBufferedWrites(t *testing.T) {
	graph := extstore.NewMemoryGraph("graph://local")
	pool := extstore.NewPool(graph.Connector(), extstore.Config{Address: "graph://local"}, extstore.PoolConfig{})

	s := &hookScript{
		mapV: func(ctx context.Context, env *script.Env, v *model.Vertex, _ script.Args) (any, error) {
			return nil, env.Graph.SetProperty(ctx, v.ID, "touched", true)
		},
	}

	w := New(Config{
		Partition:  model.PartitionInfo{ID: 1, VertexCount: 3},
		NewRuntime: runtimeFactory(s),
		Source:     sliceOpener(testVertices(3)),
		Pool:       pool,
	})

	res, err := w.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(3), res.Mapped.GetCardinality())

	// All writes landed in one atomic commit and the connection is released.
	require.Equal(t, 1, graph.Commits())
	require.Len(t, graph.VerticesWithProperty("touched"), 3)
	require.Equal(t, 0, pool.OpenCount())
}

func TestWorkerCleanupFailureDiscardsWrites(t *testing.T) {
	graph := extstore.NewMemoryGraph("graph://local")
	pool := extstore.NewPool(graph.Connector(), extstore.Config{Address: "graph://local"}, extstore.PoolConfig{})

	s := &hookScript{
		mapV: func(ctx context.Context, env *script.Env, v *model.Vertex, _ script.Args) (any, error) {
			return nil, env.Graph.SetProperty(ctx, v.ID, "touched", true)
		},
		cleanup: func(context.Context, *script.Env, script.Args) error {
			return errors.New("cleanup failed")
		},
	}

	w := New(Config{
		Partition:  model.PartitionInfo{ID: 1, VertexCount: 3},
		NewRuntime: runtimeFactory(s),
		Source:     sliceOpener(testVertices(3)),
		Pool:       pool,
	})

	_, err := w.Run(context.Background())
	require.Error(t, err)

	var perr *PartitionError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, PhaseCleanup, perr.Phase)

	// No commit happened, so none of the buffered writes are visible.
	require.Equal(t, 0, graph.Commits())
	require.Empty(t, graph.VerticesWithProperty("touched"))
	require.Equal(t, 0, pool.OpenCount())
}

func TestWorkerUnreachableStoreNotRetriedForever(t *testing.T) {
	graph := extstore.NewMemoryGraph("graph://local")
	pool := extstore.NewPool(graph.Connector(), extstore.Config{Address: "graph://wrong"}, extstore.PoolConfig{})

	w := New(Config{
		Partition:   model.PartitionInfo{ID: 4, VertexCount: 1},
		NewRuntime:  runtimeFactory(&hookScript{}),
		Source:      sliceOpener(testVertices(1)),
		Pool:        pool,
		RetryBudget: 2,
	})

	_, err := w.Run(context.Background())
	require.Error(t, err)
	require.ErrorIs(t, err, extstore.ErrUnreachable)

	var perr *PartitionError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, PhaseConnect, perr.Phase)
	require.Equal(t, 3, perr.Attempts)

	require.Equal(t, 0, graph.Commits())
}

func TestWorkerCancellationSkipsCommit(t *testing.T) {
	graph := extstore.NewMemoryGraph("graph://local")
	pool := extstore.NewPool(graph.Connector(), extstore.Config{Address: "graph://local"}, extstore.PoolConfig{})

	ctx, cancel := context.WithCancel(context.Background())

	mapped := 0
	s := &hookScript{
		mapV: func(mctx context.Context, env *script.Env, v *model.Vertex, _ script.Args) (any, error) {
			mapped++
			if mapped == 2 {
				cancel()
			}
			return nil, env.Graph.SetProperty(mctx, v.ID, "touched", true)
		},
	}

	w := New(Config{
		Partition:   model.PartitionInfo{ID: 1, VertexCount: 10},
		NewRuntime:  runtimeFactory(s),
		Source:      sliceOpener(testVertices(10)),
		Pool:        pool,
		RetryBudget: 5,
	})

	_, err := w.Run(ctx)
	require.Error(t, err)
	require.ErrorIs(t, err, context.Canceled)

	// The in-flight map call finished, nothing more ran and nothing committed.
	require.Equal(t, 2, mapped)
	require.Equal(t, 0, graph.Commits())
	require.Equal(t, 0, pool.OpenCount())
}

func TestWorkerStateString(t *testing.T) {
	require.Equal(t, "created", StateCreated.String())
	require.Equal(t, "mapping", StateMapping.String())
	require.Equal(t, "failed", StateFailed.String())
	require.True(t, StateTerminated.Terminal())
	require.False(t, StateMapping.Terminal())
}
