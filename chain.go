package graphmap

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/graphmap/blobstore"
	"github.com/hupe1980/graphmap/checkpoint"
	"github.com/hupe1980/graphmap/dataset"
	"github.com/hupe1980/graphmap/extstore"
	"github.com/hupe1980/graphmap/model"
	"github.com/hupe1980/graphmap/scheduler"
	"github.com/hupe1980/graphmap/script"
	"github.com/hupe1980/graphmap/worker"
)

// defaultMaxWorkers caps the worker slots of a job when no explicit slot
// topology or worker count is configured.
const defaultMaxWorkers = 8

// JobState is the lifecycle stage of a job within a chain.
type JobState int32

const (
	JobPending JobState = iota
	JobScheduled
	JobRunning
	JobSucceeded
	JobFailed
	JobSkipped
)

// String implements the fmt.Stringer interface.
func (s JobState) String() string {
	switch s {
	case JobPending:
		return "pending"
	case JobScheduled:
		return "scheduled"
	case JobRunning:
		return "running"
	case JobSucceeded:
		return "succeeded"
	case JobFailed:
		return "failed"
	case JobSkipped:
		return "skipped"
	default:
		return fmt.Sprintf("unknown(%d)", int32(s))
	}
}

// Output selects what happens to a job's per-vertex map results.
type Output struct {
	materialize bool
	format      *dataset.Format
}

// NoOp discards map results. The job runs for its side effects against the
// external store; the next job in the chain reads the same input this one
// did.
func NoOp() Output {
	return Output{}
}

// Materialize persists map results as the job's output dataset, which
// becomes the input of the next job. The chain's codec and compression
// options determine the on-disk format.
func Materialize() Output {
	return Output{materialize: true}
}

// MaterializeAs is Materialize with an explicit format overriding the
// chain's codec and compression options.
func MaterializeAs(format dataset.Format) Output {
	return Output{materialize: true, format: &format}
}

// Job is one step of a chain: a script applied to every vertex of the
// job's input dataset.
type Job struct {
	chain     *Chain
	index     int
	ref       script.Ref
	output    Output
	connector extstore.Connector
	storeCfg  extstore.Config

	state      atomic.Int32
	outputName string
	err        error
}

// WithOutput configures what happens to the job's map results.
// Defaults to NoOp().
func (j *Job) WithOutput(o Output) *Job {
	j.output = o
	return j
}

// WithStore gives the job's workers access to an external graph store. Each
// worker opens one connection during setup; buffered writes become visible
// in a single commit during cleanup.
func (j *Job) WithStore(connector extstore.Connector, cfg extstore.Config) *Job {
	j.connector = connector
	j.storeCfg = cfg
	return j
}

// Index returns the job's zero-based position in the chain.
func (j *Job) Index() int { return j.index }

// Script returns the job's script reference.
func (j *Job) Script() script.Ref { return j.ref }

// State returns the job's current state. Safe for concurrent use.
func (j *Job) State() JobState { return JobState(j.state.Load()) }

func (j *Job) setState(s JobState) { j.state.Store(int32(s)) }

// OutputDataset returns the name of the job's materialized dataset, or ""
// for a NoOp job or one that has not succeeded yet.
func (j *Job) OutputDataset() string { return j.outputName }

// Err returns the job's terminal error, if any.
func (j *Job) Err() error { return j.err }

// Chain is an ordered sequence of jobs over a shared input dataset. Jobs run
// strictly one after another; the chain halts at the first failed job and
// never starts the ones after it.
type Chain struct {
	name   string
	dfs    blobstore.Store
	local  blobstore.Store
	loader *script.Loader
	input  string
	jobs   []*Job
	opts   options
}

// New creates an empty chain. dfs is the shared store holding datasets and
// script descriptors; local is scratch space private to this process.
func New(name string, dfs, local blobstore.Store, optFns ...Option) *Chain {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Chain{
		name:   name,
		dfs:    dfs,
		local:  local,
		loader: script.NewLoader(dfs),
		opts:   opts,
	}
}

// Name returns the chain's name.
func (c *Chain) Name() string { return c.name }

// Input sets the dataset the first job reads.
func (c *Chain) Input(dataset string) *Chain {
	c.input = dataset
	return c
}

// Step appends a job running the script at the given descriptor location.
// The returned Job can be further configured before Run.
func (c *Chain) Step(location string, args ...string) *Job {
	j := &Job{
		chain: c,
		index: len(c.jobs),
		ref:   script.Ref{Location: location, Args: args},
	}
	c.jobs = append(c.jobs, j)

	return j
}

// Jobs returns the chain's jobs in order.
func (c *Chain) Jobs() []*Job {
	return append([]*Job(nil), c.jobs...)
}

// Run executes the chain's jobs in order. It returns the first job failure,
// attributed to the job (and where possible the partition and vertex) that
// caused it; jobs after a failed one stay pending.
func (c *Chain) Run(ctx context.Context) error {
	if len(c.jobs) == 0 {
		return ErrEmptyChain
	}
	if c.input == "" {
		return ErrNoInput
	}

	logger := c.opts.logger.WithChain(c.name)
	input := c.input

	for _, job := range c.jobs {
		if c.opts.checkpoints != nil {
			rec, err := c.opts.checkpoints.Lookup(ctx, c.name, job.index)
			if err != nil {
				job.err = translateError(err, c.name, job.index, job.storeCfg.Address)
				job.setState(JobFailed)
				return job.err
			}

			if rec != nil {
				job.setState(JobSkipped)
				job.outputName = rec.Output
				logger.LogJobSkipped(ctx, job.index, rec.Output)

				if rec.Output != "" {
					input = rec.Output
				}
				continue
			}
		}

		start := time.Now()

		err := c.runJob(ctx, logger, job, input)
		c.opts.metricsCollector.RecordJob(time.Since(start), err)
		logger.LogJobEnd(ctx, job.index, time.Since(start), err)

		if err != nil {
			job.err = err
			job.setState(JobFailed)
			return err
		}

		job.setState(JobSucceeded)

		if c.opts.checkpoints != nil {
			err := c.opts.checkpoints.Mark(ctx, checkpoint.Record{
				Chain:  c.name,
				Job:    job.index,
				Output: job.outputName,
			})
			if err != nil && !errors.Is(err, checkpoint.ErrAlreadyMarked) {
				job.err = translateError(err, c.name, job.index, job.storeCfg.Address)
				job.setState(JobFailed)
				return job.err
			}
		}

		if job.outputName != "" {
			input = job.outputName
		}
	}

	return nil
}

// runJob executes one job over all partitions of its input dataset.
func (c *Chain) runJob(ctx context.Context, logger *Logger, job *Job, input string) error {
	job.setState(JobScheduled)

	// Contract violations and missing descriptors surface here, before any
	// worker starts.
	if _, err := c.loader.Load(ctx, job.ref); err != nil {
		return &ErrJobFailed{
			Chain: c.name,
			Job:   job.index,
			cause: &ErrScriptLoad{Location: job.ref.Location, cause: err},
		}
	}

	ds, err := dataset.Open(ctx, c.dfs, input)
	if err != nil {
		return translateError(err, c.name, job.index, job.storeCfg.Address)
	}

	parts := ds.Partitions()
	logger.LogJobStart(ctx, job.index, job.ref.Location, len(parts))

	schedPool, err := scheduler.NewPool(c.slots(len(parts)), c.schedulerOptions()...)
	if err != nil {
		return translateError(err, c.name, job.index, job.storeCfg.Address)
	}

	var connPool *extstore.Pool
	if job.connector != nil {
		connPool = extstore.NewPool(job.connector, job.storeCfg, extstore.PoolConfig{
			MaxOpenConnections: c.opts.maxConnections,
			WriteOpsPerSec:     c.opts.writeOpsPerSec,
		})
	}

	var (
		writer *dataset.Writer
		sink   worker.SinkFactory
	)
	if job.output.materialize {
		format := dataset.Format{Codec: c.opts.codec, Compression: c.opts.compression}
		if job.output.format != nil {
			format = *job.output.format
		}

		outName := fmt.Sprintf("%s/job-%03d", c.name, job.index)
		writer = dataset.NewWriter(c.dfs, outName, format)
		sink = materializeSinkFactory(writer)
		job.outputName = outName
	}

	opener := worker.OpenerFunc(func(octx context.Context, id model.PartitionID) (worker.VertexSource, error) {
		return ds.OpenPartition(octx, id)
	})

	job.setState(JobRunning)

	g, gctx := errgroup.WithContext(ctx)
	for _, part := range parts {
		g.Go(func() error {
			waitStart := time.Now()

			asg, err := schedPool.Acquire(gctx, part.LocalityHint)
			if err != nil {
				return err
			}
			defer asg.Release()

			c.opts.metricsCollector.RecordAssignment(asg.Colocated(), time.Since(waitStart))
			logger.LogAssignment(gctx, uint32(part.ID), uint32(asg.Slot().ID), asg.Colocated())

			w := worker.New(worker.Config{
				Partition:   part,
				NewRuntime:  func(rctx context.Context) (*script.Runtime, error) { return c.loader.Load(rctx, job.ref) },
				Args:        job.ref.Args,
				Env:         script.Env{DFS: c.dfs, Local: c.local},
				Pool:        connPool,
				Source:      opener,
				Sink:        sink,
				RetryBudget: c.opts.retryBudget,
				Policy:      c.opts.failurePolicy,
				Logger:      logger.WithJob(job.index).Logger,
			})

			runStart := time.Now()

			res, err := w.Run(gctx)
			if err != nil {
				attempts := 0
				var perr *worker.PartitionError
				if errors.As(err, &perr) {
					attempts = perr.Attempts
				}

				c.opts.metricsCollector.RecordPartition(attempts, 0, 0, time.Since(runStart), err)
				logger.LogPartition(gctx, uint32(part.ID), attempts, 0, 0, err)

				return err
			}

			mapped := res.Mapped.GetCardinality()
			skipped := res.Failed.GetCardinality()

			c.opts.metricsCollector.RecordPartition(res.Attempts, mapped, skipped, time.Since(runStart), nil)
			logger.LogPartition(gctx, uint32(part.ID), res.Attempts, mapped, skipped, nil)

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		job.outputName = ""
		return translateError(err, c.name, job.index, job.storeCfg.Address)
	}

	if writer != nil {
		commitStart := time.Now()

		err := writer.Commit(ctx)
		c.opts.metricsCollector.RecordCommit(time.Since(commitStart), err)

		if err != nil {
			job.outputName = ""
			return translateError(err, c.name, job.index, job.storeCfg.Address)
		}
	}

	return nil
}

// slots returns the configured slot topology, or a flat one sized to the
// partition count.
func (c *Chain) slots(partitions int) []scheduler.Slot {
	if len(c.opts.slots) > 0 {
		return c.opts.slots
	}

	n := c.opts.maxWorkers
	if n == 0 {
		n = partitions
		if n > defaultMaxWorkers {
			n = defaultMaxWorkers
		}
	}
	if n < 1 {
		n = 1
	}

	slots := make([]scheduler.Slot, n)
	for i := range slots {
		slots[i] = scheduler.Slot{ID: model.SlotID(i)}
	}

	return slots
}

func (c *Chain) schedulerOptions() []scheduler.Option {
	if c.opts.localityWait < 0 {
		return nil
	}
	return []scheduler.Option{scheduler.WithLocalityWait(c.opts.localityWait)}
}

// materializeSinkFactory writes map results into the job's output dataset,
// one partition writer per attempt.
func materializeSinkFactory(writer *dataset.Writer) worker.SinkFactory {
	return func(ctx context.Context, info model.PartitionInfo) (worker.Sink, error) {
		pw, err := writer.CreatePartition(ctx, info)
		if err != nil {
			return nil, err
		}
		return &materializeSink{pw: pw}, nil
	}
}

type materializeSink struct {
	pw *dataset.PartitionWriter
}

// Emit persists one map result. A nil result carries the input vertex
// forward unchanged; a *model.Vertex result replaces it.
func (s *materializeSink) Emit(_ context.Context, in *model.Vertex, result any) error {
	switch out := result.(type) {
	case nil:
		return s.pw.Append(in)
	case *model.Vertex:
		return s.pw.Append(out)
	default:
		return fmt.Errorf("materialized map result must be *model.Vertex or nil, got %T", result)
	}
}

func (s *materializeSink) Commit() error { return s.pw.Close() }

func (s *materializeSink) Abort() error { return s.pw.Abort() }
