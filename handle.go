// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package submit

import (
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/submit/internal/queue"
	"github.com/gogpu/submit/internal/unit"
)

// Handle refers to one acquisition of a command unit.
//
// The zero Handle is empty: Acquire returns it when the pool is exhausted.
// A Handle stays meaningful after its unit is recycled. Mutating calls then
// fail with ErrStaleHandle, and state queries report the outcome the
// acquisition retired with until the slot is reused again.
//
// Handles are small values and may be copied freely. Only the acquiring
// producer may call SoftReset, HardReset, Encoder and FlagReady.
type Handle struct {
	u      *unit.CommandUnit
	q      *queue.SubmissionQueue
	id     uint64
	list   ListType
	buffer int
	name   string
}

// Valid reports whether h refers to an acquisition.
func (h Handle) Valid() bool { return h.u != nil }

// ID returns the unit id, unique among every unit acquired from the pool.
// It is 0 for an empty Handle.
func (h Handle) ID() uint64 { return h.id }

// ListType returns the list type the unit was acquired for.
func (h Handle) ListType() ListType { return h.list }

// BufferIndex returns the frame-in-flight index the unit is tagged with.
func (h Handle) BufferIndex() int { return h.buffer }

// Name returns the debug tag given to Acquire.
func (h Handle) Name() string { return h.name }

// State returns the lifecycle state of the acquisition.
func (h Handle) State() State {
	if h.u == nil {
		return StateIdle
	}
	return h.u.StateOf(h.id)
}

// IsReady reports whether the unit has been flagged ready in its current
// recording pass. It stays true while the unit executes and after.
func (h Handle) IsReady() bool {
	switch h.State() {
	case StateReady, StateExecuting, StateExecuted:
		return true
	}
	return false
}

// IsExecuted reports whether the GPU has finished the unit's work.
func (h Handle) IsExecuted() bool { return h.State() == StateExecuted }

// IsDisposed reports whether the unit was disposed before execution.
func (h Handle) IsDisposed() bool { return h.State() == StateDisposed }

// FenceValue returns the fence value the unit's last submission retired
// at, or 0 if it has not executed.
func (h Handle) FenceValue() uint64 {
	if h.u == nil {
		return 0
	}
	return h.u.FenceValue(h.id)
}

// Encoder returns the recording target. It is only available while the
// unit is Recording.
func (h Handle) Encoder() (hal.CommandEncoder, error) {
	if h.u == nil {
		return nil, ErrInvalidHandle
	}
	return h.u.Encoder(h.id)
}

// SoftReset opens the recording target for a new pass. It is valid from
// Idle or Executed and reuses the existing target. An Executed unit
// re-armed before the consumer recycles it keeps its place in the queue
// and runs again once flagged ready; after recycling SoftReset fails with
// ErrStaleHandle.
func (h Handle) SoftReset() error {
	if h.u == nil {
		return ErrInvalidHandle
	}
	return h.u.SoftReset(h.id)
}

// HardReset replaces the recording target with a new one and opens it.
// It is refused once the unit is Ready.
func (h Handle) HardReset() error {
	if h.u == nil {
		return ErrInvalidHandle
	}
	return h.u.HardReset(h.id)
}

// FlagReady ends the recording pass and hands the unit to the consumer.
// cb, if non-nil, runs exactly once on the consumer goroutine after the
// GPU has finished the work. It must not block on this Submitter.
func (h Handle) FlagReady(cb func()) error {
	if h.u == nil {
		return ErrInvalidHandle
	}
	return h.u.FlagReady(h.id, cb)
}

// Dispose cancels the unit before execution. The consumer recycles it
// without submitting anything. Disposing twice is a no-op.
func (h Handle) Dispose() error {
	if h.u == nil {
		return ErrInvalidHandle
	}
	return h.u.Dispose(h.id)
}

// Execute blocks until the unit has executed. It returns ErrDisposed when
// the producer disposed the unit, or the device failure or ErrStopped when
// the consumer dropped it.
// The unit must have been flagged ready or Execute never returns.
func (h Handle) Execute() error {
	if h.u == nil {
		return ErrInvalidHandle
	}
	switch h.u.Wait(h.id) {
	case StateExecuted:
		return nil
	case StateIdle:
		// The slot has been reused since and no longer remembers the outcome.
		return ErrStaleHandle
	}
	if !h.u.Abandoned(h.id) {
		return ErrDisposed
	}
	if err := h.q.Err(); err != nil {
		return err
	}
	return ErrStopped
}
