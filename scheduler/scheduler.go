package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hupe1980/graphmap/model"
)

// ErrNoSlots is returned when a pool is created without any slots.
var ErrNoSlots = errors.New("scheduler: pool has no slots")

// DefaultLocalityWait bounds how long Acquire holds out for a co-located
// slot before settling for any free one.
const DefaultLocalityWait = 3 * time.Second

// Slot describes one worker slot and its physical location.
type Slot struct {
	ID       model.SlotID
	Location string
}

// slotState is the pool's view of one slot.
type slotState struct {
	slot Slot
	busy bool
	load int // partitions assigned so far, the-least-loaded tie-break key
}

// Pool hands out worker slots with locality preference.
type Pool struct {
	localityWait time.Duration

	mu     sync.Mutex
	slots  []*slotState
	waitCh chan struct{} // closed and replaced whenever a slot frees up
}

// Option configures a Pool.
type Option func(*Pool)

// WithLocalityWait sets the bounded wait for a co-located slot.
// Zero disables waiting: a non-co-located free slot is taken immediately.
func WithLocalityWait(d time.Duration) Option {
	return func(p *Pool) { p.localityWait = d }
}

// NewPool creates a slot pool.
func NewPool(slots []Slot, opts ...Option) (*Pool, error) {
	if len(slots) == 0 {
		return nil, ErrNoSlots
	}

	p := &Pool{
		localityWait: DefaultLocalityWait,
		waitCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	for _, s := range slots {
		p.slots = append(p.slots, &slotState{slot: s})
	}
	return p, nil
}

// Assignment is a held slot. Release returns it to the pool.
type Assignment struct {
	pool  *Pool
	state *slotState
	hint  string // locality hint recorded at acquire time
	once  sync.Once
}

// Slot returns the assigned slot.
func (a *Assignment) Slot() Slot { return a.state.slot }

// Colocated reports whether the assignment honored the locality hint.
func (a *Assignment) Colocated() bool {
	return a.state.slot.Location != "" && a.state.slot.Location == a.hint
}

// Release returns the slot to the pool. Idempotent.
func (a *Assignment) Release() {
	a.once.Do(func() {
		p := a.pool
		p.mu.Lock()
		a.state.busy = false
		close(p.waitCh)
		p.waitCh = make(chan struct{})
		p.mu.Unlock()
	})
}

// Acquire blocks until a slot is available and returns it.
//
// Placement: a free slot whose location matches hint wins. With a non-empty
// hint and no free co-located slot, Acquire waits up to the pool's locality
// wait for one to free before taking any free slot. Ties break by load, then
// by slot ID.
func (p *Pool) Acquire(ctx context.Context, hint string) (*Assignment, error) {
	var localityDeadline <-chan time.Time
	localityExpired := hint == "" || p.localityWait <= 0
	if hint != "" && p.localityWait > 0 {
		timer := time.NewTimer(p.localityWait)
		defer timer.Stop()
		localityDeadline = timer.C
	}

	for {
		p.mu.Lock()

		var candidates []*slotState
		if hint != "" {
			for _, s := range p.slots {
				if !s.busy && s.slot.Location == hint {
					candidates = append(candidates, s)
				}
			}
		}
		if len(candidates) == 0 && localityExpired {
			for _, s := range p.slots {
				if !s.busy {
					candidates = append(candidates, s)
				}
			}
		}

		if len(candidates) > 0 {
			best := pickBest(candidates)
			best.busy = true
			best.load++
			p.mu.Unlock()
			return &Assignment{pool: p, state: best, hint: hint}, nil
		}

		waitCh := p.waitCh
		p.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-waitCh:
			// A slot freed; retry.
		case <-localityDeadline:
			localityExpired = true
		}
	}
}

// Loads returns the per-slot assignment counts, keyed by slot ID.
// Intended for tests and introspection.
func (p *Pool) Loads() map[model.SlotID]int {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[model.SlotID]int, len(p.slots))
	for _, s := range p.slots {
		out[s.slot.ID] = s.load
	}
	return out
}
