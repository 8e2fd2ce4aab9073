// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package unit

import (
	stderrors "errors"
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrReentrancy reports a lifecycle call made in a state that forbids it,
	// such as SoftReset while Executing or a second FlagReady.
	ErrReentrancy = stderrors.New("submit: illegal command unit transition")

	// ErrStaleHandle reports a handle whose unit has been recycled.
	ErrStaleHandle = stderrors.New("submit: stale command unit handle")

	// ErrDisposed reports an operation on a disposed unit.
	ErrDisposed = stderrors.New("submit: command unit disposed")

	// ErrFenceRegression reports a fence value that did not increase.
	ErrFenceRegression = stderrors.New("submit: fence value regressed")
)

// StateError describes an illegal transition. It unwraps to ErrReentrancy.
type StateError struct {
	Op    string
	ID    uint64
	State State
}

func (e *StateError) Error() string {
	return fmt.Sprintf("submit: %s on unit %d in state %s", e.Op, e.ID, e.State)
}

// Unwrap returns ErrReentrancy.
func (e *StateError) Unwrap() error { return ErrReentrancy }

// DeviceError is an unrecoverable driver or hardware failure. Err carries
// the stack of the failing call; print it with %+v.
type DeviceError struct {
	Op   string
	List ListType
	Err  error
}

// NewDeviceError wraps err with a stack trace.
func NewDeviceError(op string, list ListType, err error) *DeviceError {
	return &DeviceError{Op: op, List: list, Err: errors.WithStack(err)}
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("submit: device failure during %s on %s queue: %v", e.Op, e.List, e.Err)
}

// Unwrap returns the underlying error.
func (e *DeviceError) Unwrap() error { return e.Err }

// Format implements fmt.Formatter so that %+v includes the stack.
func (e *DeviceError) Format(s fmt.State, verb rune) {
	if verb == 'v' && s.Flag('+') {
		fmt.Fprintf(s, "submit: device failure during %s on %s queue: %+v", e.Op, e.List, e.Err)
		return
	}
	fmt.Fprint(s, e.Error())
}
