// Package script provides the runtime binding between graphmap workers and
// user-supplied scripts.
//
// A script unit satisfies a three-entry-point contract:
//
//	setup(args)          once per worker, before any vertex
//	map(vertex, args)    once per vertex, in partition order
//	cleanup(args)        once per worker, after the last vertex
//
// Units are registered as factories (like database/sql drivers) and referenced
// by descriptors stored in the shared blobstore. The contract is duck-typed at
// the factory level but checked statically at load time: Bind verifies all
// three entry points exist before any worker is scheduled, and Load fails with
// a ContractError naming the missing ones.
//
// The execution environment (Env) carries the two pre-bound filesystem
// handles — one distributed, one local — plus the worker-scoped external
// store connection. The connection is nil until the worker opens it during
// setup; it is never shared between workers.
package script
