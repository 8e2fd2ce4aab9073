// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package fence tracks GPU completion for one hardware queue.
//
// A Timeline owns a single hal.Fence and hands out strictly increasing
// values: every submission and every explicit signal takes the next value,
// so completion of value v implies completion of all earlier work on the
// queue. A FrameTracker records, per frame-in-flight buffer index, the value
// that retired the buffer's last frame.
//
// Both types are mutated only by the owning queue's consumer goroutine.
// Readers go through the atomic accessors Completed and Value.
package fence
