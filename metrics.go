package graphmap

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
//
// Example Prometheus integration:
//
//	type PrometheusCollector struct {
//	    jobCounter        prometheus.Counter
//	    partitionDuration prometheus.Histogram
//	}
//
//	func (p *PrometheusCollector) RecordJob(duration time.Duration, err error) {
//	    p.jobCounter.Inc()
//	    // ... record error state, duration, etc.
//	}
type MetricsCollector interface {
	// RecordJob is called after each job of a chain finishes.
	// duration is the total time taken, err is nil if successful.
	RecordJob(duration time.Duration, err error)

	// RecordPartition is called after each partition worker terminates.
	// attempts is the number of attempts consumed, mapped and skipped are
	// vertex counts, err is nil if successful.
	RecordPartition(attempts int, mapped, skipped uint64, duration time.Duration, err error)

	// RecordAssignment is called after each slot assignment.
	// colocated reports whether the partition landed on a co-located slot,
	// wait is the time spent in the scheduler.
	RecordAssignment(colocated bool, wait time.Duration)

	// RecordCommit is called after each external store commit attempt.
	RecordCommit(duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordJob(time.Duration, error)                            {}
func (NoopMetricsCollector) RecordPartition(int, uint64, uint64, time.Duration, error) {}
func (NoopMetricsCollector) RecordAssignment(bool, time.Duration)                      {}
func (NoopMetricsCollector) RecordCommit(time.Duration, error)                         {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	JobCount            atomic.Int64
	JobErrors           atomic.Int64
	JobTotalNanos       atomic.Int64
	PartitionCount      atomic.Int64
	PartitionErrors     atomic.Int64
	PartitionAttempts   atomic.Int64
	VerticesMapped      atomic.Int64
	VerticesSkipped     atomic.Int64
	AssignmentCount     atomic.Int64
	AssignmentColocated atomic.Int64
	AssignmentWaitNanos atomic.Int64
	CommitCount         atomic.Int64
	CommitErrors        atomic.Int64
}

// RecordJob implements MetricsCollector.
func (b *BasicMetricsCollector) RecordJob(duration time.Duration, err error) {
	b.JobCount.Add(1)
	b.JobTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.JobErrors.Add(1)
	}
}

// RecordPartition implements MetricsCollector.
func (b *BasicMetricsCollector) RecordPartition(attempts int, mapped, skipped uint64, duration time.Duration, err error) {
	b.PartitionCount.Add(1)
	b.PartitionAttempts.Add(int64(attempts))
	b.VerticesMapped.Add(int64(mapped))
	b.VerticesSkipped.Add(int64(skipped))
	if err != nil {
		b.PartitionErrors.Add(1)
	}
}

// RecordAssignment implements MetricsCollector.
func (b *BasicMetricsCollector) RecordAssignment(colocated bool, wait time.Duration) {
	b.AssignmentCount.Add(1)
	b.AssignmentWaitNanos.Add(wait.Nanoseconds())
	if colocated {
		b.AssignmentColocated.Add(1)
	}
}

// RecordCommit implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCommit(duration time.Duration, err error) {
	b.CommitCount.Add(1)
	if err != nil {
		b.CommitErrors.Add(1)
	}
}

// ColocationRate returns the fraction of assignments that were co-located,
// or 0 if none were recorded.
func (b *BasicMetricsCollector) ColocationRate() float64 {
	total := b.AssignmentCount.Load()
	if total == 0 {
		return 0
	}
	return float64(b.AssignmentColocated.Load()) / float64(total)
}
