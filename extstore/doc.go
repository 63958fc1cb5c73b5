// Package extstore defines the contract between graphmap workers and an
// external, transactional graph store, plus the connection pool that enforces
// the one-connection-per-worker ownership rule.
//
// # Write Model
//
// Writes issued through a Connection are buffered until Commit. Commit makes
// all buffered writes since the last commit durable and visible to subsequent
// readers of the store. There is no cross-connection transaction: while a job
// runs, readers of the store may observe a mix of committed and uncommitted
// state across partitions.
//
// Close releases the connection's resources, discards any uncommitted buffer,
// and is safe to call after a failed commit.
//
// # Pool
//
// The Pool opens at most one Connection per worker and never hands the same
// Connection to two workers. It can optionally cap the number of concurrently
// open connections and rate-limit buffered write throughput.
package extstore
