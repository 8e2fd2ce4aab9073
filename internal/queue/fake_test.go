// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package queue

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/submit/internal/unit"
)

// =============================================================================
// Test doubles
// =============================================================================

type fakeEncoder struct {
	hal.CommandEncoder
	mu    sync.Mutex
	label string
	open  bool
}

func (e *fakeEncoder) BeginEncoding(label string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.label = label
	e.open = true
	return nil
}

func (e *fakeEncoder) EndEncoding() (hal.CommandBuffer, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.open {
		return nil, errors.New("fake: end without begin")
	}
	e.open = false
	return &fakeCommandBuffer{label: e.label}, nil
}

func (e *fakeEncoder) DiscardEncoding() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.open = false
}

type fakeCommandBuffer struct {
	hal.CommandBuffer
	label string
}

type fakeFence struct {
	hal.Fence
	value atomic.Uint64
}

// fakeGPU implements Device and unit.Queue. Submissions complete
// immediately unless gate is set, in which case Submit blocks until the
// gate is closed.
type fakeGPU struct {
	mu        sync.Mutex
	submitted []string
	signals   int
	freed     int

	gate       chan struct{}
	submitFail error
	hold       bool
}

func (g *fakeGPU) CreateCommandEncoder(desc *hal.CommandEncoderDescriptor) (hal.CommandEncoder, error) {
	return &fakeEncoder{label: desc.Label}, nil
}

func (g *fakeGPU) FreeCommandBuffer(hal.CommandBuffer) {
	g.mu.Lock()
	g.freed++
	g.mu.Unlock()
}

func (g *fakeGPU) CreateFence() (hal.Fence, error) { return &fakeFence{}, nil }

func (g *fakeGPU) DestroyFence(hal.Fence) {}

func (g *fakeGPU) Wait(f hal.Fence, value uint64, _ time.Duration) (bool, error) {
	return f.(*fakeFence).value.Load() >= value, nil
}

func (g *fakeGPU) Submit(buffers []hal.CommandBuffer, f hal.Fence, value uint64) error {
	g.mu.Lock()
	gate := g.gate
	fail := g.submitFail
	hold := g.hold
	g.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if fail != nil {
		return fail
	}

	g.mu.Lock()
	if len(buffers) == 0 {
		g.signals++
	}
	for _, b := range buffers {
		g.submitted = append(g.submitted, b.(*fakeCommandBuffer).label)
	}
	g.mu.Unlock()

	if !hold {
		f.(*fakeFence).value.Store(value)
	}
	return nil
}

func (g *fakeGPU) setGate(ch chan struct{}) {
	g.mu.Lock()
	g.gate = ch
	g.mu.Unlock()
}

func (g *fakeGPU) submissions() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.submitted...)
}

func (g *fakeGPU) signalCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.signals
}

// failureRecorder collects errors passed to OnFailure.
type failureRecorder struct {
	mu   sync.Mutex
	errs []error
	done chan struct{}
}

func newFailureRecorder() *failureRecorder {
	return &failureRecorder{done: make(chan struct{}, 1)}
}

func (r *failureRecorder) handle(err error) {
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
	select {
	case r.done <- struct{}{}:
	default:
	}
}

func (r *failureRecorder) wait(t *testing.T) error {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
		t.Fatal("OnFailure was not called")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.errs[0]
}

// newTestQueue builds and starts a queue over a fresh fake GPU.
func newTestQueue(t *testing.T, list unit.ListType, capacity int, onFailure func(error)) (*SubmissionQueue, *fakeGPU, *unit.Pool) {
	t.Helper()
	gpu := &fakeGPU{}
	pool := unit.NewPool(gpu, capacity)
	q, err := New(Config{
		List:         list,
		Device:       gpu,
		Queue:        gpu,
		Pool:         pool,
		Buffers:      2,
		FenceTimeout: 50 * time.Millisecond,
		OnFailure:    onFailure,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := q.StartTask(); err != nil {
		t.Fatalf("StartTask: %v", err)
	}
	t.Cleanup(func() {
		q.StopTask()
		q.Destroy()
	})
	return q, gpu, pool
}

// recordUnit acquires a unit and opens it for recording.
func recordUnit(t *testing.T, q *SubmissionQueue, name string, buffer int) (*unit.CommandUnit, uint64) {
	t.Helper()
	u, id, ok := q.Acquire(name, buffer)
	if !ok {
		t.Fatalf("Acquire(%q) failed", name)
	}
	if err := u.SoftReset(id); err != nil {
		t.Fatalf("SoftReset(%q): %v", name, err)
	}
	return u, id
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
