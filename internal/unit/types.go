// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package unit

import (
	"fmt"
	"time"

	"github.com/gogpu/wgpu/hal"
)

// ListType is the hardware queue class a unit targets.
type ListType uint8

const (
	// Direct units carry graphics work (render passes, copies, dispatches).
	Direct ListType = iota
	// Compute units carry compute dispatches only.
	Compute
	// Copy units carry transfer work (uploads, readbacks).
	Copy
	// Bundle units carry pre-recorded command sequences.
	Bundle
)

// NumListTypes is the number of distinct list types.
const NumListTypes = 4

// String returns the list type name.
func (t ListType) String() string {
	switch t {
	case Direct:
		return "direct"
	case Compute:
		return "compute"
	case Copy:
		return "copy"
	case Bundle:
		return "bundle"
	default:
		return fmt.Sprintf("ListType(%d)", uint8(t))
	}
}

// Valid reports whether t is one of the defined list types.
func (t ListType) Valid() bool {
	return t < NumListTypes
}

// State is a position in the command unit lifecycle.
//
//	Idle -> Recording -> Ready -> Executing -> Executed -> (recycled) Idle
//	Idle | Recording | Ready -> Disposed
type State uint8

const (
	// Idle is the state of a freshly allocated or recycled unit.
	Idle State = iota
	// Recording means the recording target is open for commands.
	Recording
	// Ready means the producer handed the unit to the consumer.
	Ready
	// Executing means the unit was submitted and its fence is pending.
	Executing
	// Executed means the fence was reached and the callback has run.
	Executed
	// Disposed is terminal: the unit is skipped and its target closed.
	Disposed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case Ready:
		return "ready"
	case Executing:
		return "executing"
	case Executed:
		return "executed"
	case Disposed:
		return "disposed"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Terminal reports whether no further transition can happen for the
// current acquisition.
func (s State) Terminal() bool {
	return s == Executed || s == Disposed
}

// Device is the part of hal.Device that command units use.
type Device interface {
	CreateCommandEncoder(desc *hal.CommandEncoderDescriptor) (hal.CommandEncoder, error)
	FreeCommandBuffer(cmdBuffer hal.CommandBuffer)
}

// FenceDevice is the part of hal.Device that fence timelines use.
type FenceDevice interface {
	CreateFence() (hal.Fence, error)
	DestroyFence(fence hal.Fence)
	Wait(fence hal.Fence, value uint64, timeout time.Duration) (bool, error)
}

// Queue is the part of hal.Queue used for submission.
type Queue interface {
	Submit(commandBuffers []hal.CommandBuffer, fence hal.Fence, fenceValue uint64) error
}
