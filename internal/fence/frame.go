// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package fence

import (
	"fmt"
	"sync/atomic"
)

// DefaultBufferCount is the number of frames in flight (double buffering).
const DefaultBufferCount = 2

// FrameTracker keeps one fence value per buffer index.
type FrameTracker struct {
	values  []atomic.Uint64
	current atomic.Int32
}

// NewFrameTracker creates a tracker for buffers frames in flight.
// If buffers is 0 or negative, DefaultBufferCount is used.
func NewFrameTracker(buffers int) *FrameTracker {
	if buffers <= 0 {
		buffers = DefaultBufferCount
	}
	return &FrameTracker{values: make([]atomic.Uint64, buffers)}
}

// Buffers returns the number of buffer indices.
func (f *FrameTracker) Buffers() int {
	return len(f.values)
}

// Current returns the active buffer index.
func (f *FrameTracker) Current() int {
	return int(f.current.Load())
}

// Value returns the fence value that retired buffer index i's last frame.
func (f *FrameTracker) Value(i int) uint64 {
	if i < 0 || i >= len(f.values) {
		return 0
	}
	return f.values[i].Load()
}

// Swap retires the active buffer and makes next active. It signals t,
// records the signaled value for the active buffer and waits for it. Since
// values increase monotonically, reaching it also covers every earlier use
// of next. Consumer only.
func (f *FrameTracker) Swap(t *Timeline, next int) (uint64, error) {
	if next < 0 || next >= len(f.values) {
		return 0, fmt.Errorf("fence: buffer index %d out of range [0, %d)", next, len(f.values))
	}
	cur := f.Current()
	v, err := t.Signal()
	if err != nil {
		return 0, err
	}
	f.values[cur].Store(v)
	if err := t.Wait(v); err != nil {
		return 0, err
	}
	slogger().Debug("submit: buffer swapped", "list", t.List(), "from", cur, "to", next, "fence", v)
	f.current.Store(int32(next))
	return v, nil
}
