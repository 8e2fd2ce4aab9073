// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package fence

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/submit/internal/unit"
)

// DefaultTimeout bounds a single fence wait.
const DefaultTimeout = 5 * time.Second

// errTimeout is wrapped into a DeviceError when a wait does not complete.
var errTimeout = errors.New("fence wait timed out")

// Timeline is a monotonic fence counter bound to one hardware queue.
type Timeline struct {
	device  unit.FenceDevice
	queue   unit.Queue
	list    unit.ListType
	fence   hal.Fence
	timeout time.Duration

	// last is the last value handed out. Written by the consumer only.
	last atomic.Uint64

	completed atomic.Uint64
}

// NewTimeline creates the fence for a queue. A timeout of 0 or less selects
// DefaultTimeout.
func NewTimeline(device unit.FenceDevice, queue unit.Queue, list unit.ListType, timeout time.Duration) (*Timeline, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	f, err := device.CreateFence()
	if err != nil {
		return nil, unit.NewDeviceError("create fence", list, err)
	}
	return &Timeline{
		device:  device,
		queue:   queue,
		list:    list,
		fence:   f,
		timeout: timeout,
	}, nil
}

// Submit submits buffers and signals the next fence value once they retire.
// A nil or empty buffers slice only signals.
func (t *Timeline) Submit(buffers []hal.CommandBuffer) (uint64, error) {
	v := t.last.Load() + 1
	if err := t.queue.Submit(buffers, t.fence, v); err != nil {
		return 0, unit.NewDeviceError("submit", t.list, err)
	}
	t.last.Store(v)
	return v, nil
}

// Signal signals the next fence value behind all work already submitted.
func (t *Timeline) Signal() (uint64, error) {
	return t.Submit(nil)
}

// Wait blocks until the fence reaches value. A timeout or driver error is
// a DeviceError.
func (t *Timeline) Wait(value uint64) error {
	if last := t.last.Load(); value > last {
		return unit.NewDeviceError("wait", t.list,
			fmt.Errorf("%w: waiting for %d, last signaled %d", unit.ErrFenceRegression, value, last))
	}
	if value <= t.completed.Load() {
		return nil
	}
	ok, err := t.device.Wait(t.fence, value, t.timeout)
	if err != nil {
		return unit.NewDeviceError("wait", t.list, err)
	}
	if !ok {
		return unit.NewDeviceError("wait", t.list, fmt.Errorf("%w after %v (value %d)", errTimeout, t.timeout, value))
	}
	for {
		c := t.completed.Load()
		if value <= c || t.completed.CompareAndSwap(c, value) {
			return nil
		}
	}
}

// Completed returns the highest value known to be reached.
func (t *Timeline) Completed() uint64 {
	return t.completed.Load()
}

// Last returns the last value handed out.
func (t *Timeline) Last() uint64 {
	return t.last.Load()
}

// List returns the list type the timeline serves.
func (t *Timeline) List() unit.ListType {
	return t.list
}

// Destroy releases the fence.
func (t *Timeline) Destroy() {
	if t.fence != nil {
		t.device.DestroyFence(t.fence)
		t.fence = nil
	}
}
