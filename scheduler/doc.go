// Package scheduler assigns partitions to worker slots with best-effort
// locality.
//
// Each slot has a physical location. A partition carrying a locality hint is
// preferentially placed on a free slot at that location (co-located with the
// external store shard holding the same vertex range). If no co-located slot
// frees up within a bounded wait, any free slot is taken: correctness never
// depends on locality, only throughput does.
//
// Ties among equally-local free slots break deterministically: least-loaded
// first, then lowest slot ID.
package scheduler
