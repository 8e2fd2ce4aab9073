// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package unit

import (
	"sync"
	"sync/atomic"
)

// DefaultCapacity is the pool size used when none is configured.
const DefaultCapacity = 256

// Pool is a fixed-capacity arena of command units.
//
// Storage is allocated once; Allocate and Deallocate only move slot indices
// between the free stack and the in-use table, so the hot path performs no
// allocation. Ids are handed out from a monotonic counter and never reused,
// even though slots are.
//
// Thread safety: Pool is safe for concurrent use under a single pool-wide lock.
type Pool struct {
	mu    sync.Mutex
	units []CommandUnit
	inUse []bool
	free  []int

	// freed is closed and replaced on every Deallocate so that waiters can
	// select on it together with a context.
	freed chan struct{}

	nextID atomic.Uint64

	allocations uint64
	exhausted   uint64
	reused      uint64
	reinits     uint64
}

// PoolStats is a snapshot of pool counters.
type PoolStats struct {
	Capacity    int
	InUse       int
	Allocations uint64
	Exhausted   uint64
	Reused      uint64
	Reinits     uint64
}

// NewPool creates a pool of capacity units backed by device.
// If capacity is 0 or negative, DefaultCapacity is used.
func NewPool(device Device, capacity int) *Pool {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	p := &Pool{
		units: make([]CommandUnit, capacity),
		inUse: make([]bool, capacity),
		free:  make([]int, capacity),
		freed: make(chan struct{}),
	}
	for i := range p.units {
		p.units[i].init(i, device)
		// Pop order is ascending slot index.
		p.free[i] = capacity - 1 - i
	}
	return p
}

// Allocate takes a free unit and tags it with a fresh id, list type, buffer
// index and debug name. A free unit whose recording target already matches
// list is preferred; otherwise the target is rebuilt on first reset.
// The unit is returned Idle. ok is false when every slot is in use.
func (p *Pool) Allocate(list ListType, bufferIndex int, name string) (u *CommandUnit, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.free) == 0 {
		p.exhausted++
		slogger().Warn("submit: command unit pool exhausted", "capacity", len(p.units), "list", list, "name", name)
		return nil, false
	}

	pick := len(p.free) - 1
	for i := len(p.free) - 1; i >= 0; i-- {
		c := &p.units[p.free[i]]
		if c.encoder != nil && c.encList == list {
			pick = i
			break
		}
	}
	slot := p.free[pick]
	p.free = append(p.free[:pick], p.free[pick+1:]...)
	p.inUse[slot] = true
	p.allocations++

	u = &p.units[slot]
	if u.reinit(p.nextID.Add(1), list, bufferIndex, name) {
		p.reused++
	} else {
		p.reinits++
	}
	return u, true
}

// Deallocate retires the unit's acquisition, closes any open recording and
// returns the slot to the free stack. Units not owned by this pool or
// already free are ignored.
func (p *Pool) Deallocate(u *CommandUnit) {
	p.release(u, true)
}

// Release is Deallocate for units the consumer has finished with. A unit
// its producer re-armed after execution stays allocated and Release
// reports false.
func (p *Pool) Release(u *CommandUnit) (released bool) {
	return p.release(u, false)
}

func (p *Pool) release(u *CommandUnit, force bool) bool {
	if u == nil {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	slot := u.slot
	if slot < 0 || slot >= len(p.units) || &p.units[slot] != u {
		slogger().Warn("submit: deallocate of foreign command unit", "slot", slot)
		return false
	}
	if !p.inUse[slot] {
		return false
	}
	if !u.recycle(force) {
		return false
	}
	p.inUse[slot] = false
	p.free = append(p.free, slot)

	close(p.freed)
	p.freed = make(chan struct{})
	return true
}

// Freed returns a channel closed at the next Deallocate.
func (p *Pool) Freed() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.freed
}

// Capacity returns the number of slots.
func (p *Pool) Capacity() int {
	return len(p.units)
}

// InUse returns the number of allocated slots.
func (p *Pool) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.units) - len(p.free)
}

// Stats returns a snapshot of pool counters.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolStats{
		Capacity:    len(p.units),
		InUse:       len(p.units) - len(p.free),
		Allocations: p.allocations,
		Exhausted:   p.exhausted,
		Reused:      p.reused,
		Reinits:     p.reinits,
	}
}

// Destroy closes every open recording target. The pool must not be used
// afterwards.
func (p *Pool) Destroy() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.units {
		u := &p.units[i]
		u.mu.Lock()
		u.discardLocked()
		u.encoder = nil
		u.mu.Unlock()
	}
}
