// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package submit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/submit/internal/parallel"
	"github.com/gogpu/submit/internal/queue"
	"github.com/gogpu/submit/internal/unit"
)

// Submitter is the set of submission queues of one device: a shared
// command unit pool and one SubmissionQueue per list type, each with its
// own FIFO, consumer goroutine and fence timeline.
//
// The render pipeline owns a Submitter and passes it to whatever records
// GPU work; there is no process-wide instance.
//
// Thread safety: Submitter is safe for concurrent use. StartTask,
// StopTask and Close must not be called concurrently with each other.
type Submitter struct {
	device  hal.Device
	hwQueue [unit.NumListTypes]hal.Queue
	queues  [unit.NumListTypes]*queue.SubmissionQueue
	pool    *unit.Pool
	workers *parallel.WorkerPool
	buffers int

	current atomic.Int32
	swapMu  sync.Mutex
	// swapErr is set when a swap advanced some queues but not all. Guarded
	// by swapMu.
	swapErr error

	closed atomic.Bool
}

// New creates a Submitter over a HAL device and its default queue and
// starts every consumer goroutine.
//
// Example:
//
//	s, err := submit.New(device, queue, submit.WithBufferCount(3))
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
func New(device hal.Device, q hal.Queue, opts ...Option) (*Submitter, error) {
	if device == nil || q == nil {
		return nil, errors.New("submit: New requires a device and a queue")
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	s := &Submitter{
		device:  device,
		pool:    unit.NewPool(device, o.capacity),
		workers: parallel.NewWorkerPool(o.workers),
		buffers: o.buffers,
	}
	for _, list := range ListTypes() {
		hq := o.queues[list]
		if hq == nil {
			hq = q
		}
		s.hwQueue[list] = hq

		sq, err := queue.New(queue.Config{
			List:         list,
			Device:       device,
			Queue:        hq,
			Pool:         s.pool,
			Buffers:      o.buffers,
			FenceTimeout: o.fenceTimeout,
			OnFailure:    o.onFailure,
		})
		if err != nil {
			s.destroyQueues()
			s.workers.Close()
			return nil, fmt.Errorf("submit: create %s queue: %w", list, err)
		}
		s.queues[list] = sq
	}

	if err := s.StartTask(); err != nil {
		s.Close()
		return nil, err
	}
	Logger().Info("submit: submitter ready",
		"capacity", s.pool.Capacity(), "buffers", s.buffers, "workers", s.workers.Workers())
	return s, nil
}

// NewFromProvider creates a Submitter from a host application's device
// provider. The provider must expose HalDevice() and HalQueue() returning
// a hal.Device and a hal.Queue.
func NewFromProvider(provider gpucontext.DeviceProvider, opts ...Option) (*Submitter, error) {
	if provider == nil {
		return nil, errors.New("submit: nil device provider")
	}
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, errors.New("submit: device provider does not expose HAL access")
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok {
		return nil, errors.New("submit: provider HalDevice is not hal.Device")
	}
	q, ok := hp.HalQueue().(hal.Queue)
	if !ok {
		return nil, errors.New("submit: provider HalQueue is not hal.Queue")
	}
	return New(device, q, opts...)
}

// Acquire takes a command unit for list, tags it with the active buffer
// index and appends it to that list type's FIFO. The unit is Idle; call
// SoftReset or HardReset to start recording.
//
// Acquire never blocks. It returns an empty Handle when the pool is
// exhausted, the list type is invalid, the Submitter is closed or the
// queue has failed. Producers retry later or use AcquireWait.
func (s *Submitter) Acquire(list ListType, name string) Handle {
	if !list.Valid() || s.closed.Load() {
		return Handle{}
	}
	q := s.queues[list]
	buffer := s.CurrentBuffer()
	u, id, ok := q.Acquire(name, buffer)
	if !ok {
		return Handle{}
	}
	return Handle{u: u, q: q, id: id, list: list, buffer: buffer, name: name}
}

// AcquireWait is Acquire that waits for a unit to be recycled when the
// pool is exhausted. It returns an error wrapping ErrPoolExhausted and
// ctx.Err() if ctx ends first.
func (s *Submitter) AcquireWait(ctx context.Context, list ListType, name string) (Handle, error) {
	if !list.Valid() {
		return Handle{}, fmt.Errorf("%w: %v", ErrInvalidListType, list)
	}
	q := s.queues[list]
	for {
		if s.closed.Load() {
			return Handle{}, ErrClosed
		}
		// Take the channel before trying so a slot freed in between is not missed.
		freed := s.pool.Freed()
		if h := s.Acquire(list, name); h.Valid() {
			return h, nil
		}
		if err := q.Err(); err != nil {
			return Handle{}, err
		}
		select {
		case <-freed:
		case <-ctx.Done():
			return Handle{}, fmt.Errorf("%w: %w", ErrPoolExhausted, ctx.Err())
		}
	}
}

// WaitForCommandsCompletion blocks until every queue's FIFO is empty. It
// returns the joined errors of queues that are stopped with work pending
// or have failed.
func (s *Submitter) WaitForCommandsCompletion() error {
	var errs []error
	for _, q := range s.queues {
		if err := q.WaitForCommandsCompletion(); err != nil {
			errs = append(errs, fmt.Errorf("submit: %s queue: %w", q.List(), err))
		}
	}
	return errors.Join(errs...)
}

// SwapBuffer retires the active buffer index on every queue and makes
// next active. It returns once all work acquired before the call has
// retired and the fence signaled behind it has been reached, so
// resources tagged with next are free for reuse.
//
// Queues are swapped in list-type order and the first failure stops the
// swap. If earlier queues had already advanced, the queues no longer agree
// on the active buffer and every later SwapBuffer returns that failure.
func (s *Submitter) SwapBuffer(next int) error {
	if next < 0 || next >= s.buffers {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrInvalidBufferIndex, next, s.buffers)
	}
	s.swapMu.Lock()
	defer s.swapMu.Unlock()
	if s.swapErr != nil {
		return s.swapErr
	}

	for i, q := range s.queues {
		if err := q.SwapBuffer(next); err != nil {
			err = fmt.Errorf("submit: %s queue: %w", q.List(), err)
			if i > 0 {
				s.swapErr = fmt.Errorf("submit: partial swap to buffer %d: %w", next, err)
				Logger().Error("submit: partial buffer swap", "next", next, "advanced", i, "err", err)
				return s.swapErr
			}
			return err
		}
	}
	s.current.Store(int32(next))
	Logger().Debug("submit: buffer swapped", "current", next)
	return nil
}

// CurrentBuffer returns the active buffer index.
func (s *Submitter) CurrentBuffer() int {
	return int(s.current.Load())
}

// BufferCount returns the number of frames in flight.
func (s *Submitter) BufferCount() int {
	return s.buffers
}

// GetCommandQueue returns the hardware queue list submits to, for
// subsystems that need to signal or wait on it directly. It returns nil
// for an invalid list type.
func (s *Submitter) GetCommandQueue(list ListType) hal.Queue {
	if !list.Valid() {
		return nil
	}
	return s.hwQueue[list]
}

// GetLatestFenceValue returns the highest fence value the GPU is known to
// have reached on list's timeline.
func (s *Submitter) GetLatestFenceValue(list ListType) uint64 {
	if !list.Valid() {
		return 0
	}
	return s.queues[list].LatestFenceValue()
}

// FrameFenceValue returns the fence value that retired bufferIndex's last
// frame on list's timeline.
func (s *Submitter) FrameFenceValue(list ListType, bufferIndex int) uint64 {
	if !list.Valid() {
		return 0
	}
	return s.queues[list].FrameFenceValue(bufferIndex)
}

// Outstanding returns the number of units in list's FIFO.
func (s *Submitter) Outstanding(list ListType) int {
	if !list.Valid() {
		return 0
	}
	return s.queues[list].Outstanding()
}

// StartTask starts every consumer goroutine that is not running.
func (s *Submitter) StartTask() error {
	if s.closed.Load() {
		return ErrClosed
	}
	var errs []error
	for _, q := range s.queues {
		if err := q.StartTask(); err != nil {
			errs = append(errs, fmt.Errorf("submit: start %s queue: %w", q.List(), err))
		}
	}
	return errors.Join(errs...)
}

// StopTask stops every consumer goroutine. Units still in a FIFO are
// disposed without being submitted and returned to the pool. Producers
// must not be recording while StopTask runs.
func (s *Submitter) StopTask() {
	for _, q := range s.queues {
		q.StopTask()
	}
}

// Close stops the consumers and releases fences and recording targets.
// Close is idempotent.
func (s *Submitter) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.StopTask()
	s.destroyQueues()
	s.pool.Destroy()
	s.workers.Close()
	Logger().Info("submit: submitter closed")
}

func (s *Submitter) destroyQueues() {
	for _, q := range s.queues {
		if q != nil {
			q.Destroy()
		}
	}
}
