package extstore

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/hupe1980/graphmap/model"
)

// PoolConfig holds pool-level resource limits.
type PoolConfig struct {
	// MaxOpenConnections caps concurrently open connections.
	// If 0, one connection per worker with no global cap.
	MaxOpenConnections int64

	// WriteOpsPerSec is the maximum buffered-write throughput across all
	// connections. If 0, unlimited.
	WriteOpsPerSec int64
}

// Pool manages connections to one external store instance.
//
// Invariants:
//   - At most one open Connection per owner (worker) at a time.
//   - A Connection is never handed to two owners.
type Pool struct {
	connector Connector
	cfg       Config

	connSem *semaphore.Weighted // nil if uncapped
	limiter *rate.Limiter       // nil if unlimited

	mu     sync.Mutex
	owners map[string]*pooledConn
}

// NewPool creates a connection pool bound to the given connector and
// connection config.
func NewPool(connector Connector, cfg Config, pc PoolConfig) *Pool {
	p := &Pool{
		connector: connector,
		cfg:       cfg,
		owners:    make(map[string]*pooledConn),
	}
	if pc.MaxOpenConnections > 0 {
		p.connSem = semaphore.NewWeighted(pc.MaxOpenConnections)
	}
	if pc.WriteOpsPerSec > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(pc.WriteOpsPerSec), int(pc.WriteOpsPerSec))
	}
	return p
}

// Open opens the connection for the named owner. It blocks while the pool's
// connection cap is exhausted. Opening twice for the same owner without an
// intervening Close is an error.
func (p *Pool) Open(ctx context.Context, owner string) (Connection, error) {
	p.mu.Lock()
	if _, ok := p.owners[owner]; ok {
		p.mu.Unlock()
		return nil, fmt.Errorf("extstore: connection already open for worker %s", owner)
	}
	p.mu.Unlock()

	if p.connSem != nil {
		if err := p.connSem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
	}

	conn, err := p.connector.Open(ctx, p.cfg)
	if err != nil {
		if p.connSem != nil {
			p.connSem.Release(1)
		}
		return nil, err
	}

	pc := &pooledConn{Connection: conn, pool: p, owner: owner}

	p.mu.Lock()
	if _, ok := p.owners[owner]; ok {
		p.mu.Unlock()
		pc.release()
		return nil, fmt.Errorf("extstore: connection already open for worker %s", owner)
	}
	p.owners[owner] = pc
	p.mu.Unlock()

	return pc, nil
}

// OpenCount returns the number of currently open connections.
func (p *Pool) OpenCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.owners)
}

func (p *Pool) remove(owner string) {
	p.mu.Lock()
	delete(p.owners, owner)
	p.mu.Unlock()
}

// pooledConn wraps a Connection with pool bookkeeping and write throttling.
type pooledConn struct {
	Connection
	pool   *Pool
	owner  string
	closed bool
}

func (c *pooledConn) SetProperty(ctx context.Context, id model.VertexID, name string, value any) error {
	if c.pool.limiter != nil {
		if err := c.pool.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	return c.Connection.SetProperty(ctx, id, name, value)
}

func (c *pooledConn) AddEdge(ctx context.Context, from model.VertexID, label string, to model.VertexID) error {
	if c.pool.limiter != nil {
		if err := c.pool.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	return c.Connection.AddEdge(ctx, from, label, to)
}

func (c *pooledConn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.pool.remove(c.owner)
	err := c.Connection.Close()
	c.releaseSem()
	return err
}

func (c *pooledConn) release() {
	_ = c.Connection.Close()
	c.releaseSem()
}

func (c *pooledConn) releaseSem() {
	if c.pool.connSem != nil {
		c.pool.connSem.Release(1)
	}
}
