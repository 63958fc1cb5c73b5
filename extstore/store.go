package extstore

import (
	"context"
	"errors"

	"github.com/hupe1980/graphmap/model"
)

var (
	// ErrUnreachable is returned by Open when the external store cannot be
	// reached at the configured address.
	ErrUnreachable = errors.New("extstore: store unreachable")

	// ErrConfigRejected is returned by Open when the store rejects the
	// configuration (bad credentials, unknown options).
	ErrConfigRejected = errors.New("extstore: configuration rejected")

	// ErrClosed is returned by operations on a closed connection.
	ErrClosed = errors.New("extstore: connection closed")
)

// Config carries worker-lifetime connection parameters for the external store.
type Config struct {
	// Address locates the store instance.
	Address string

	// Options are store-specific settings passed through verbatim.
	Options map[string]string
}

// Connector opens connections to one external graph store.
type Connector interface {
	// Open establishes a connection. It fails with an error satisfying
	// errors.Is(err, ErrUnreachable) or errors.Is(err, ErrConfigRejected)
	// when the store cannot be used with the given config.
	Open(ctx context.Context, cfg Config) (Connection, error)
}

// Connection is a single worker's handle to the external store.
//
// A Connection is exclusively owned by one worker and is not safe for
// concurrent use. Writes are buffered until Commit.
type Connection interface {
	// GetProperty reads a vertex property. The read sees committed store
	// state overlaid with this connection's own uncommitted writes.
	GetProperty(ctx context.Context, id model.VertexID, name string) (any, bool, error)

	// SetProperty buffers a property write.
	SetProperty(ctx context.Context, id model.VertexID, name string, value any) error

	// AddEdge buffers an edge insertion.
	AddEdge(ctx context.Context, from model.VertexID, label string, to model.VertexID) error

	// Commit makes all buffered writes since the last commit durable and
	// visible to subsequent readers of the store.
	Commit(ctx context.Context) error

	// Close releases resources and discards any uncommitted buffer.
	// Safe to call after a failed commit and safe to call twice.
	Close() error
}
