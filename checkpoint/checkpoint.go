// Package checkpoint records which jobs of a chain already succeeded, so a
// re-run of the same chain can skip them instead of repeating their work.
//
// A marker is written exactly once per (chain, job) pair; marking is
// first-writer-wins so two concurrent runs of the same chain cannot both
// claim a job.
package checkpoint

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrAlreadyMarked is returned when a (chain, job) pair has already been
// marked completed, typically by a concurrent run.
var ErrAlreadyMarked = errors.New("checkpoint: job already marked completed")

// Record is one completed-job marker.
type Record struct {
	// Chain identifies the job chain, normally its name.
	Chain string `json:"chain"`

	// Job is the zero-based position of the job within the chain.
	Job int `json:"job"`

	// Output is the name of the job's materialized dataset, or empty for a
	// job that ran for side effects only.
	Output string `json:"output,omitempty"`

	// CompletedAt is when the marker was written.
	CompletedAt time.Time `json:"completed_at"`
}

// Store persists completed-job markers.
type Store interface {
	// Lookup returns the marker for a (chain, job) pair, or nil if the job
	// has not completed.
	Lookup(ctx context.Context, chain string, job int) (*Record, error)

	// Mark writes a completion marker. Returns ErrAlreadyMarked if one
	// already exists for the pair.
	Mark(ctx context.Context, rec Record) error

	// Records returns all markers of a chain, ordered by job.
	Records(ctx context.Context, chain string) ([]Record, error)
}

// MemoryStore is an in-memory Store for single-process runs and tests.
type MemoryStore struct {
	mu   sync.RWMutex
	recs map[string]map[int]Record
}

// NewMemoryStore creates an empty in-memory checkpoint store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{recs: make(map[string]map[int]Record)}
}

// Lookup implements the Store interface.
func (s *MemoryStore) Lookup(_ context.Context, chain string, job int) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.recs[chain][job]
	if !ok {
		return nil, nil
	}

	return &rec, nil
}

// Mark implements the Store interface.
func (s *MemoryStore) Mark(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs, ok := s.recs[rec.Chain]
	if !ok {
		jobs = make(map[int]Record)
		s.recs[rec.Chain] = jobs
	}

	if _, exists := jobs[rec.Job]; exists {
		return ErrAlreadyMarked
	}

	if rec.CompletedAt.IsZero() {
		rec.CompletedAt = time.Now()
	}

	jobs[rec.Job] = rec

	return nil
}

// Records implements the Store interface.
func (s *MemoryStore) Records(_ context.Context, chain string) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := s.recs[chain]

	out := make([]Record, 0, len(jobs))
	for _, rec := range jobs {
		out = append(out, rec)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Job < out[j].Job })

	return out, nil
}
