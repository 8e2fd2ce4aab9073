// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package submit

import "github.com/gogpu/submit/internal/unit"

// ListType is the hardware queue class a command unit targets.
type ListType = unit.ListType

// List types.
const (
	ListDirect  = unit.Direct
	ListCompute = unit.Compute
	ListCopy    = unit.Copy
	ListBundle  = unit.Bundle
)

// NumListTypes is the number of list types.
const NumListTypes = unit.NumListTypes

// State is a position in the command unit lifecycle.
type State = unit.State

// Unit states.
const (
	StateIdle      = unit.Idle
	StateRecording = unit.Recording
	StateReady     = unit.Ready
	StateExecuting = unit.Executing
	StateExecuted  = unit.Executed
	StateDisposed  = unit.Disposed
)

// ListTypes returns every list type in declaration order.
func ListTypes() []ListType {
	return []ListType{ListDirect, ListCompute, ListCopy, ListBundle}
}
