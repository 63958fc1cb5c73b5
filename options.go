package graphmap

import (
	"time"

	"github.com/hupe1980/graphmap/checkpoint"
	"github.com/hupe1980/graphmap/codec"
	"github.com/hupe1980/graphmap/dataset"
	"github.com/hupe1980/graphmap/scheduler"
	"github.com/hupe1980/graphmap/worker"
)

type options struct {
	codec            codec.Codec
	compression      dataset.Compression
	metricsCollector MetricsCollector
	logger           *Logger
	checkpoints      checkpoint.Store
	retryBudget      int
	failurePolicy    worker.FailurePolicy
	maxWorkers       int
	slots            []scheduler.Slot
	localityWait     time.Duration
	maxConnections   int64
	writeOpsPerSec   int64
}

// Option configures Chain constructor behavior.
//
// Today options primarily exist to avoid exploding the API surface
// (e.g. codec-specific constructor variants).
type Option func(*options)

// WithCodec configures the codec used for intermediate dataset records.
//
// If nil is passed, codec.Default is used.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		if c == nil {
			c = codec.Default
		}
		o.codec = c
	}
}

// WithCompression configures the compression applied to materialized
// partition blobs. Defaults to no compression.
func WithCompression(c dataset.Compression) Option {
	return func(o *options) {
		o.compression = c
	}
}

// WithMetricsCollector configures metrics collection for chain operations.
//
// If nil is passed, NoopMetricsCollector is used.
func WithMetricsCollector(collector MetricsCollector) Option {
	return func(o *options) {
		if collector == nil {
			collector = NoopMetricsCollector{}
		}
		o.metricsCollector = collector
	}
}

// WithLogger configures structured logging for chain operations.
//
// If nil is passed, NoopLogger() is used.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithCheckpointStore configures a store for completed-job markers. A re-run
// of the same chain skips jobs that already have a marker.
//
// Without a store every run executes all jobs.
func WithCheckpointStore(store checkpoint.Store) Option {
	return func(o *options) {
		o.checkpoints = store
	}
}

// WithRetryBudget configures how many additional attempts a failed partition
// gets before the job fails. Defaults to 2.
func WithRetryBudget(budget int) Option {
	return func(o *options) {
		if budget < 0 {
			budget = 0
		}
		o.retryBudget = budget
	}
}

// WithFailurePolicy configures how a per-vertex script error is handled.
// Defaults to worker.SkipAndContinue.
func WithFailurePolicy(policy worker.FailurePolicy) Option {
	return func(o *options) {
		o.failurePolicy = policy
	}
}

// WithMaxWorkers configures the number of worker slots available to a job,
// i.e. how many partitions run concurrently. Defaults to the number of
// partitions, capped at 8.
func WithMaxWorkers(n int) Option {
	return func(o *options) {
		if n < 1 {
			n = 1
		}
		o.maxWorkers = n
	}
}

// WithSlots configures an explicit worker slot topology, including slot
// locations matched against partition locality hints. Overrides
// WithMaxWorkers.
func WithSlots(slots ...scheduler.Slot) Option {
	return func(o *options) {
		o.slots = slots
	}
}

// WithLocalityWait bounds how long the scheduler holds a partition for a
// co-located slot before falling back to any free slot. Zero disables
// waiting. Defaults to scheduler.DefaultLocalityWait.
func WithLocalityWait(d time.Duration) Option {
	return func(o *options) {
		o.localityWait = d
	}
}

// WithMaxConnections caps concurrently open external store connections
// across all workers of a job. Zero means one per worker with no global cap.
func WithMaxConnections(n int64) Option {
	return func(o *options) {
		o.maxConnections = n
	}
}

// WithWriteOpsPerSec throttles buffered external store writes across all
// connections of a job. Zero means unlimited.
func WithWriteOpsPerSec(n int64) Option {
	return func(o *options) {
		o.writeOpsPerSec = n
	}
}

func defaultOptions() options {
	return options{
		codec:            codec.Default,
		compression:      dataset.CompressionNone,
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
		retryBudget:      2,
		failurePolicy:    worker.SkipAndContinue,
		localityWait:     -1, // sentinel, resolved to scheduler.DefaultLocalityWait
	}
}
