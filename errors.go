// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package submit

import (
	"errors"

	"github.com/gogpu/submit/internal/queue"
	"github.com/gogpu/submit/internal/unit"
)

// Errors returned by submit. Compare with errors.Is.
var (
	// ErrPoolExhausted is returned by the convenience APIs (AcquireWait,
	// Record) when no unit could be obtained. Acquire itself reports
	// exhaustion with an empty Handle.
	ErrPoolExhausted = errors.New("submit: command unit pool exhausted")

	// ErrInvalidListType reports a list type outside the defined set.
	ErrInvalidListType = errors.New("submit: invalid list type")

	// ErrInvalidHandle reports an operation on an empty Handle.
	ErrInvalidHandle = errors.New("submit: empty command unit handle")

	// ErrClosed reports a Submitter used after Close.
	ErrClosed = errors.New("submit: submitter closed")

	// ErrInvalidBufferIndex reports a buffer index outside [0, BufferCount).
	ErrInvalidBufferIndex = queue.ErrInvalidBufferIndex

	// ErrStopped reports a submission queue whose consumer is not running.
	ErrStopped = queue.ErrStopped

	// ErrReentrancy reports an illegal lifecycle transition, such as
	// SoftReset while the unit is executing.
	ErrReentrancy = unit.ErrReentrancy

	// ErrStaleHandle reports a handle whose unit has been recycled.
	ErrStaleHandle = unit.ErrStaleHandle

	// ErrDisposed reports an operation on a disposed unit.
	ErrDisposed = unit.ErrDisposed

	// ErrFenceRegression reports a fence value that did not increase.
	ErrFenceRegression = unit.ErrFenceRegression
)

// StateError describes an illegal transition. It unwraps to ErrReentrancy.
type StateError = unit.StateError

// DeviceError is an unrecoverable driver or hardware failure. Format it
// with %+v to print the stack of the failing call.
type DeviceError = unit.DeviceError
