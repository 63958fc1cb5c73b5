package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hupe1980/graphmap/extstore"
	"github.com/hupe1980/graphmap/model"
	"github.com/hupe1980/graphmap/script"
)

// defaultMaxVertexErrors caps how many per-vertex errors a result retains.
// The failed-ordinal bitmap is always complete.
const defaultMaxVertexErrors = 64

// VertexSource yields the vertices of one partition in adapter order. Next
// returns io.EOF after the last vertex. Each retry attempt reopens the source
// from the beginning.
type VertexSource interface {
	Next() (*model.Vertex, error)
	Close() error
}

// SourceOpener opens a VertexSource for a partition.
type SourceOpener interface {
	OpenPartition(ctx context.Context, id model.PartitionID) (VertexSource, error)
}

// OpenerFunc adapts a function to the SourceOpener interface.
type OpenerFunc func(ctx context.Context, id model.PartitionID) (VertexSource, error)

// OpenPartition implements the SourceOpener interface.
func (f OpenerFunc) OpenPartition(ctx context.Context, id model.PartitionID) (VertexSource, error) {
	return f(ctx, id)
}

// Sink consumes the per-vertex map results of one partition attempt. Commit
// is called once after a clean cleanup; Abort on any failure path. A retried
// attempt gets a fresh sink.
type Sink interface {
	Emit(ctx context.Context, in *model.Vertex, result any) error
	Commit() error
	Abort() error
}

// SinkFactory creates the sink for one partition attempt.
type SinkFactory func(ctx context.Context, info model.PartitionInfo) (Sink, error)

// DiscardSink drops every result. It is the sink of jobs that run purely for
// their side effects.
type DiscardSink struct{}

func (DiscardSink) Emit(context.Context, *model.Vertex, any) error { return nil }
func (DiscardSink) Commit() error                                  { return nil }
func (DiscardSink) Abort() error                                   { return nil }

// Config configures a Worker.
type Config struct {
	// Partition is the partition this worker owns.
	Partition model.PartitionInfo

	// NewRuntime produces a fresh script instance. It is called once per
	// attempt, so retried attempts never observe state left behind by an
	// earlier setup.
	NewRuntime func(ctx context.Context) (*script.Runtime, error)

	// Args are passed verbatim to setup, map and cleanup.
	Args script.Args

	// Env carries the pre-bound filesystem handles. Env.Graph is overwritten
	// by the worker once its connection is open.
	Env script.Env

	// Pool hands out external store connections. Nil when the job touches no
	// external store; Env.Graph then stays nil.
	Pool *extstore.Pool

	// Source opens the partition's vertex stream.
	Source SourceOpener

	// Sink receives map results. Nil means DiscardSink.
	Sink SinkFactory

	// RetryBudget is the number of additional attempts after the first.
	RetryBudget int

	// Policy decides how a per-vertex script error is handled.
	Policy FailurePolicy

	// MaxVertexErrors caps the recorded VertexError slice. Zero means the
	// default of 64.
	MaxVertexErrors int

	// Logger receives lifecycle events. Nil discards them.
	Logger *slog.Logger
}

// Result summarizes a successfully terminated worker.
type Result struct {
	Partition model.PartitionID

	// Attempts is the number of attempts consumed, including the final
	// successful one.
	Attempts int

	// Mapped holds the ordinals whose map call succeeded.
	Mapped *roaring.Bitmap

	// Failed holds the ordinals skipped under the SkipAndContinue policy.
	Failed *roaring.Bitmap

	// VertexErrors are the recorded per-vertex failures, capped at
	// MaxVertexErrors.
	VertexErrors []*VertexError
}

// Worker drives the lifecycle of a single partition.
type Worker struct {
	cfg    Config
	logger *slog.Logger
	state  atomic.Int32
}

// New creates a new worker for the partition named in cfg.
func New(cfg Config) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	if cfg.MaxVertexErrors == 0 {
		cfg.MaxVertexErrors = defaultMaxVertexErrors
	}

	w := &Worker{cfg: cfg, logger: logger}
	w.state.Store(int32(StateCreated))

	return w
}

// State returns the worker's current lifecycle state. Safe for concurrent use.
func (w *Worker) State() State {
	return State(w.state.Load())
}

func (w *Worker) setState(s State) {
	w.state.Store(int32(s))
}

// Run executes the partition to completion, retrying from Created on failure
// until the budget is exhausted. Cancellation is never retried: the attempt
// aborts after the in-flight map call returns and the commit is skipped.
func (w *Worker) Run(ctx context.Context) (*Result, error) {
	var lastErr error

	attempts := w.cfg.RetryBudget + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		res, phase, err := w.runOnce(ctx, attempt)
		if err == nil {
			res.Attempts = attempt
			return res, nil
		}

		w.setState(StateFailed)

		lastErr = &PartitionError{
			Partition: w.cfg.Partition.ID,
			Attempts:  attempt,
			Phase:     phase,
			Err:       err,
		}

		if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			break
		}

		if attempt < attempts {
			w.logger.Warn("partition attempt failed, retrying",
				slog.Uint64("partition", uint64(w.cfg.Partition.ID)),
				slog.Int("attempt", attempt),
				slog.String("phase", string(phase)),
				slog.String("error", err.Error()))
		}
	}

	return nil, lastErr
}

// runOnce executes one full setup → map* → cleanup pass.
func (w *Worker) runOnce(ctx context.Context, attempt int) (*Result, Phase, error) {
	w.setState(StateCreated)

	res := &Result{
		Partition: w.cfg.Partition.ID,
		Mapped:    roaring.New(),
		Failed:    roaring.New(),
	}

	w.setState(StateSettingUp)

	rt, err := w.cfg.NewRuntime(ctx)
	if err != nil {
		return nil, PhaseSetup, err
	}

	env := w.cfg.Env

	var conn extstore.Connection
	if w.cfg.Pool != nil {
		owner := fmt.Sprintf("partition-%d-attempt-%d", w.cfg.Partition.ID, attempt)

		conn, err = w.cfg.Pool.Open(ctx, owner)
		if err != nil {
			return nil, PhaseConnect, err
		}

		env.Graph = conn
	}

	// Closing an uncommitted connection discards its write buffer.
	committed := false
	defer func() {
		if conn != nil && !committed {
			_ = conn.Close()
		}
	}()

	if err := rt.Setup(ctx, &env, w.cfg.Args); err != nil {
		return nil, PhaseSetup, err
	}

	src, err := w.cfg.Source.OpenPartition(ctx, w.cfg.Partition.ID)
	if err != nil {
		return nil, PhaseRead, err
	}
	defer func() { _ = src.Close() }()

	var sink Sink = DiscardSink{}
	if w.cfg.Sink != nil {
		sink, err = w.cfg.Sink(ctx, w.cfg.Partition)
		if err != nil {
			return nil, PhaseOutput, err
		}
	}

	sinkDone := false
	defer func() {
		if !sinkDone {
			_ = sink.Abort()
		}
	}()

	w.setState(StateMapping)

	var ord model.Ordinal
	for {
		if err := ctx.Err(); err != nil {
			return nil, PhaseMap, err
		}

		v, rerr := src.Next()
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			return nil, PhaseRead, rerr
		}

		// Scripts get a clone so a misbehaving map cannot corrupt the
		// adapter's view of the partition.
		out, merr := rt.Map(ctx, &env, v.Clone(), w.cfg.Args)
		if merr != nil {
			verr := &VertexError{Ordinal: ord, Vertex: v.ID, Err: merr}

			if w.cfg.Policy == AbortPartition {
				return nil, PhaseMap, verr
			}

			res.Failed.Add(uint32(ord))
			if len(res.VertexErrors) < w.cfg.MaxVertexErrors {
				res.VertexErrors = append(res.VertexErrors, verr)
			}

			w.logger.Debug("vertex skipped",
				slog.Uint64("partition", uint64(w.cfg.Partition.ID)),
				slog.Uint64("vertex", uint64(v.ID)),
				slog.Uint64("ordinal", uint64(ord)),
				slog.String("error", merr.Error()))

			ord++
			continue
		}

		res.Mapped.Add(uint32(ord))

		if serr := sink.Emit(ctx, v, out); serr != nil {
			return nil, PhaseOutput, serr
		}

		ord++
	}

	w.setState(StateCleaningUp)

	if err := rt.Cleanup(ctx, &env, w.cfg.Args); err != nil {
		return nil, PhaseCleanup, err
	}

	if conn != nil {
		if err := conn.Commit(ctx); err != nil {
			return nil, PhaseCleanup, err
		}

		committed = true

		if err := conn.Close(); err != nil {
			return nil, PhaseCleanup, err
		}
	}

	if err := sink.Commit(); err != nil {
		return nil, PhaseOutput, err
	}

	sinkDone = true

	w.setState(StateTerminated)

	return res, "", nil
}
