// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package unit implements command units and the fixed-capacity pool that
// recycles them.
//
// A CommandUnit wraps one hal.CommandEncoder together with the lifecycle
// state that decides who may touch it: the acquiring producer while Idle or
// Recording, the submission queue's consumer from Ready onwards. The Pool is
// an index arena over preallocated units; reinitialization re-tags a slot
// in place instead of allocating a new unit.
package unit
