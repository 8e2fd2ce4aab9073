// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package fence

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gogpu/wgpu/hal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/submit/internal/unit"
)

type fakeFence struct {
	hal.Fence
	value atomic.Uint64
}

// fakeGPU signals fences at submit time unless hold is set.
type fakeGPU struct {
	mu         sync.Mutex
	submits    [][]hal.CommandBuffer
	hold       atomic.Bool
	submitFail error
	waitFail   error
	destroyed  int
}

func (g *fakeGPU) CreateFence() (hal.Fence, error) { return &fakeFence{}, nil }

func (g *fakeGPU) DestroyFence(hal.Fence) {
	g.mu.Lock()
	g.destroyed++
	g.mu.Unlock()
}

func (g *fakeGPU) Wait(f hal.Fence, value uint64, _ time.Duration) (bool, error) {
	if g.waitFail != nil {
		return false, g.waitFail
	}
	return f.(*fakeFence).value.Load() >= value, nil
}

func (g *fakeGPU) Submit(buffers []hal.CommandBuffer, f hal.Fence, value uint64) error {
	if g.submitFail != nil {
		return g.submitFail
	}
	g.mu.Lock()
	g.submits = append(g.submits, buffers)
	g.mu.Unlock()
	if !g.hold.Load() {
		f.(*fakeFence).value.Store(value)
	}
	return nil
}

type failingFenceDevice struct {
	fakeGPU
}

func (*failingFenceDevice) CreateFence() (hal.Fence, error) {
	return nil, errors.New("out of memory")
}

// =============================================================================
// Timeline Tests
// =============================================================================

func TestTimelineMonotonic(t *testing.T) {
	gpu := &fakeGPU{}
	tl, err := NewTimeline(gpu, gpu, unit.Direct, 0)
	require.NoError(t, err)
	defer tl.Destroy()

	var prev uint64
	for i := 0; i < 10; i++ {
		v, err := tl.Submit([]hal.CommandBuffer{nil})
		require.NoError(t, err)
		assert.Greater(t, v, prev)
		require.NoError(t, tl.Wait(v))
		prev = v
	}
	assert.Equal(t, uint64(10), tl.Completed())
	assert.Equal(t, uint64(10), tl.Last())
}

func TestTimelineSignalSubmitsNoBuffers(t *testing.T) {
	gpu := &fakeGPU{}
	tl, err := NewTimeline(gpu, gpu, unit.Copy, time.Second)
	require.NoError(t, err)

	v, err := tl.Signal()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), v)
	require.Len(t, gpu.submits, 1)
	assert.Empty(t, gpu.submits[0])
}

func TestTimelineWaitTimeout(t *testing.T) {
	gpu := &fakeGPU{}
	gpu.hold.Store(true)
	tl, err := NewTimeline(gpu, gpu, unit.Compute, time.Millisecond)
	require.NoError(t, err)

	v, err := tl.Signal()
	require.NoError(t, err)

	err = tl.Wait(v)
	var de *unit.DeviceError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, unit.Compute, de.List)
	assert.ErrorIs(t, err, errTimeout)
	assert.Equal(t, uint64(0), tl.Completed())
}

func TestTimelineWaitBeyondLast(t *testing.T) {
	gpu := &fakeGPU{}
	tl, err := NewTimeline(gpu, gpu, unit.Direct, 0)
	require.NoError(t, err)

	assert.ErrorIs(t, tl.Wait(1), unit.ErrFenceRegression)
}

func TestTimelineDeviceErrors(t *testing.T) {
	boom := errors.New("device removed")

	gpu := &fakeGPU{submitFail: boom}
	tl, err := NewTimeline(gpu, gpu, unit.Direct, 0)
	require.NoError(t, err)
	_, err = tl.Signal()
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, uint64(0), tl.Last(), "failed submit must not consume a value")

	gpu = &fakeGPU{waitFail: boom}
	tl, err = NewTimeline(gpu, gpu, unit.Direct, 0)
	require.NoError(t, err)
	v, err := tl.Signal()
	require.NoError(t, err)
	assert.ErrorIs(t, tl.Wait(v), boom)

	_, err = NewTimeline(&failingFenceDevice{}, gpu, unit.Copy, 0)
	var de *unit.DeviceError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "create fence", de.Op)
}

func TestTimelineDestroyOnce(t *testing.T) {
	gpu := &fakeGPU{}
	tl, err := NewTimeline(gpu, gpu, unit.Direct, 0)
	require.NoError(t, err)
	tl.Destroy()
	tl.Destroy()
	assert.Equal(t, 1, gpu.destroyed)
}

// =============================================================================
// FrameTracker Tests
// =============================================================================

func TestFrameTrackerDefaults(t *testing.T) {
	f := NewFrameTracker(0)
	assert.Equal(t, DefaultBufferCount, f.Buffers())
	assert.Equal(t, 0, f.Current())
	assert.Equal(t, uint64(0), f.Value(1))
	assert.Equal(t, uint64(0), f.Value(-1))
	assert.Equal(t, uint64(0), f.Value(7))
}

func TestFrameTrackerSwap(t *testing.T) {
	gpu := &fakeGPU{}
	tl, err := NewTimeline(gpu, gpu, unit.Direct, 0)
	require.NoError(t, err)
	f := NewFrameTracker(3)

	// Some work on buffer 0 before the swap.
	_, err = tl.Submit([]hal.CommandBuffer{nil})
	require.NoError(t, err)

	v, err := f.Swap(tl, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), v)
	assert.Equal(t, uint64(2), f.Value(0))
	assert.Equal(t, 1, f.Current())
	assert.Equal(t, uint64(2), tl.Completed(), "swap waits for the signaled value")

	v, err = f.Swap(tl, 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), v)
	assert.Equal(t, uint64(3), f.Value(1))
	assert.Equal(t, 2, f.Current())
}

func TestFrameTrackerSwapOutOfRange(t *testing.T) {
	gpu := &fakeGPU{}
	tl, err := NewTimeline(gpu, gpu, unit.Direct, 0)
	require.NoError(t, err)
	f := NewFrameTracker(2)

	_, err = f.Swap(tl, 2)
	assert.Error(t, err)
	assert.Equal(t, 0, f.Current())
	assert.Empty(t, gpu.submits)
}

func TestFrameTrackerSwapTimeoutKeepsBuffer(t *testing.T) {
	gpu := &fakeGPU{}
	gpu.hold.Store(true)
	tl, err := NewTimeline(gpu, gpu, unit.Direct, time.Millisecond)
	require.NoError(t, err)
	f := NewFrameTracker(2)

	_, err = f.Swap(tl, 1)
	require.Error(t, err)
	assert.Equal(t, 0, f.Current(), "active buffer must not advance before the GPU retires it")
}
