// Package worker implements the per-partition lifecycle driver.
//
// # State Machine
//
//	Created → SettingUp → Mapping → CleaningUp → Terminated
//
// Failed is reachable from every non-terminal state. On failure the whole
// setup → map* → cleanup sequence re-runs from Created for that partition (no
// partial resume), up to the configured retry budget. This gives at-least-once
// execution; scripts must be idempotent with respect to side effects.
//
// # Phases
//
//   - SettingUp: opens the worker's external store connection (if configured)
//     and invokes the script's setup exactly once.
//   - Mapping: feeds every vertex of the partition through map, strictly
//     sequentially, in adapter order. A per-vertex script error is recorded;
//     policy decides between skip-and-continue (default) and abort-partition.
//   - CleaningUp: invokes cleanup exactly once, then commits and releases the
//     connection. A cleanup failure fails the partition regardless of how many
//     map calls succeeded, because uncommitted side effects are not visible.
//
// Concurrency exists only across partitions; within a worker everything is
// single-threaded and synchronous.
package worker
