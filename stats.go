// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package submit

import "github.com/gogpu/submit/internal/queue"

// QueueStats is a snapshot of one submission queue's counters.
type QueueStats = queue.Stats

// Stats is a snapshot of Submitter counters.
type Stats struct {
	// Capacity is the pool size; InUse the number of allocated units.
	Capacity int
	InUse    int

	// Allocations counts successful acquisitions, Exhausted the failed ones.
	Allocations uint64
	Exhausted   uint64

	// Reused counts acquisitions that kept the slot's recording target;
	// Reinits those that rebuilt it for a different list type.
	Reused  uint64
	Reinits uint64

	// Queues holds per-list-type counters, indexed by ListType.
	Queues [NumListTypes]QueueStats
}

// Executed returns the number of units executed across all queues.
func (st Stats) Executed() uint64 {
	var n uint64
	for _, q := range st.Queues {
		n += q.Executed
	}
	return n
}

// Disposed returns the number of units disposed across all queues.
func (st Stats) Disposed() uint64 {
	var n uint64
	for _, q := range st.Queues {
		n += q.Disposed
	}
	return n
}

// Outstanding returns the number of units in all FIFOs.
func (st Stats) Outstanding() int {
	n := 0
	for _, q := range st.Queues {
		n += q.Outstanding
	}
	return n
}

// Stats returns a snapshot of the pool and queue counters.
func (s *Submitter) Stats() Stats {
	ps := s.pool.Stats()
	st := Stats{
		Capacity:    ps.Capacity,
		InUse:       ps.InUse,
		Allocations: ps.Allocations,
		Exhausted:   ps.Exhausted,
		Reused:      ps.Reused,
		Reinits:     ps.Reinits,
	}
	for i, q := range s.queues {
		st.Queues[i] = q.Stats()
	}
	return st
}
