// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package submit

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
)

// =============================================================================
// Test doubles
// =============================================================================

// fakeEncoder records the commands written into it as labels.
type fakeEncoder struct {
	hal.CommandEncoder
	mu    sync.Mutex
	label string
	open  bool
	cmds  []string
}

func (e *fakeEncoder) BeginEncoding(label string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.label = label
	e.open = true
	e.cmds = e.cmds[:0]
	return nil
}

func (e *fakeEncoder) EndEncoding() (hal.CommandBuffer, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.open {
		return nil, errors.New("fake: end without begin")
	}
	e.open = false
	return &fakeCommandBuffer{label: e.label, cmds: append([]string(nil), e.cmds...)}, nil
}

func (e *fakeEncoder) DiscardEncoding() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.open = false
}

func (e *fakeEncoder) write(cmd string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cmds = append(e.cmds, cmd)
}

type fakeCommandBuffer struct {
	hal.CommandBuffer
	label string
	cmds  []string
}

type fakeFence struct {
	hal.Fence
	value atomic.Uint64
}

// fakeDevice implements the hal.Device methods the submitter uses.
type fakeDevice struct {
	hal.Device
	mu       sync.Mutex
	encoders int
	fences   int
	freed    int
}

func (d *fakeDevice) CreateCommandEncoder(desc *hal.CommandEncoderDescriptor) (hal.CommandEncoder, error) {
	d.mu.Lock()
	d.encoders++
	d.mu.Unlock()
	return &fakeEncoder{label: desc.Label}, nil
}

func (d *fakeDevice) FreeCommandBuffer(hal.CommandBuffer) {
	d.mu.Lock()
	d.freed++
	d.mu.Unlock()
}

func (d *fakeDevice) CreateFence() (hal.Fence, error) {
	d.mu.Lock()
	d.fences++
	d.mu.Unlock()
	return &fakeFence{}, nil
}

func (d *fakeDevice) DestroyFence(hal.Fence) {
	d.mu.Lock()
	d.fences--
	d.mu.Unlock()
}

func (d *fakeDevice) Wait(f hal.Fence, value uint64, _ time.Duration) (bool, error) {
	return f.(*fakeFence).value.Load() >= value, nil
}

func (d *fakeDevice) liveFences() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fences
}

// fakeQueue records submitted command buffers by label. A non-nil gate
// blocks every Submit until it is closed; fail makes Submit return an error.
type fakeQueue struct {
	hal.Queue
	mu        sync.Mutex
	submitted []string
	commands  [][]string
	gate      chan struct{}
	fail      error
}

func (q *fakeQueue) Submit(buffers []hal.CommandBuffer, f hal.Fence, value uint64) error {
	q.mu.Lock()
	gate, fail := q.gate, q.fail
	q.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if fail != nil {
		return fail
	}
	q.mu.Lock()
	for _, b := range buffers {
		cb := b.(*fakeCommandBuffer)
		q.submitted = append(q.submitted, cb.label)
		q.commands = append(q.commands, cb.cmds)
	}
	q.mu.Unlock()
	f.(*fakeFence).value.Store(value)
	return nil
}

func (q *fakeQueue) setGate(ch chan struct{}) {
	q.mu.Lock()
	q.gate = ch
	q.mu.Unlock()
}

func (q *fakeQueue) setFail(err error) {
	q.mu.Lock()
	q.fail = err
	q.mu.Unlock()
}

func (q *fakeQueue) submissions() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.submitted...)
}

// fakeProvider implements gpucontext.DeviceProvider plus HAL access.
type fakeProvider struct {
	gpucontext.DeviceProvider
	device any
	queue  any
}

func (p *fakeProvider) HalDevice() any { return p.device }
func (p *fakeProvider) HalQueue() any  { return p.queue }

// newTestSubmitter builds a Submitter over fakes and closes it on cleanup.
func newTestSubmitter(t *testing.T, opts ...Option) (*Submitter, *fakeDevice, *fakeQueue) {
	t.Helper()
	dev := &fakeDevice{}
	q := &fakeQueue{}
	opts = append([]Option{WithFenceTimeout(50 * time.Millisecond)}, opts...)
	s, err := New(dev, q, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(s.Close)
	return s, dev, q
}

// createNoopDevice opens the noop HAL backend.
func createNoopDevice(t *testing.T) (hal.Device, hal.Queue, func()) {
	t.Helper()
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		t.Fatalf("Open failed: %v", err)
	}
	cleanup := func() {
		openDev.Device.Destroy()
		instance.Destroy()
	}
	return openDev.Device, openDev.Queue, cleanup
}

// waitDone runs fn and fails the test if it does not finish in time.
func waitDone(t *testing.T, what string, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("%s did not finish", what)
	}
}
