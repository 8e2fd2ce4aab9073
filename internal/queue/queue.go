// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package queue

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/submit/internal/fence"
	"github.com/gogpu/submit/internal/unit"
)

var (
	// ErrStopped reports a queue whose consumer is not running.
	ErrStopped = errors.New("submit: submission queue stopped")

	// ErrInvalidBufferIndex reports a buffer index outside [0, buffers).
	ErrInvalidBufferIndex = errors.New("submit: buffer index out of range")
)

// Device is the part of hal.Device a submission queue needs.
type Device interface {
	unit.Device
	unit.FenceDevice
}

// Config describes one submission queue.
type Config struct {
	// List is the list type the queue serves.
	List unit.ListType

	// Device creates encoders and fences and waits on them.
	Device Device

	// Queue receives submissions and fence signals.
	Queue unit.Queue

	// Pool supplies command units. It may be shared between queues.
	Pool *unit.Pool

	// Buffers is the number of frames in flight. 0 selects
	// fence.DefaultBufferCount.
	Buffers int

	// FenceTimeout bounds each fence wait. 0 selects fence.DefaultTimeout.
	FenceTimeout time.Duration

	// OnFailure receives device failures on the consumer goroutine. nil
	// logs the failure and panics.
	OnFailure func(error)
}

// entry is a FIFO element: either a unit acquisition or a swap marker.
type entry struct {
	unit   *unit.CommandUnit
	id     uint64
	buffer int
	swap   *swapRequest
}

type swapRequest struct {
	next int
	done chan error
}

// SubmissionQueue is the FIFO of outstanding units for one list type and
// the consumer goroutine that executes them.
//
// Thread safety: Acquire, SwapBuffer, WaitForCommandsCompletion and the
// accessors are safe for concurrent use. StartTask and StopTask must not be
// called concurrently with each other.
type SubmissionQueue struct {
	list      unit.ListType
	device    Device
	pool      *unit.Pool
	timeline  *fence.Timeline
	frames    *fence.FrameTracker
	onFailure func(error)

	mu          sync.Mutex
	cond        *sync.Cond
	fifo        ring[entry]
	outstanding int
	perBuffer   []int
	running     bool
	stopping    bool
	failed      error
	wg          sync.WaitGroup

	count    atomic.Int64
	acquired atomic.Uint64
	executed atomic.Uint64
	disposed atomic.Uint64
	swaps    atomic.Uint64
}

// New creates a stopped submission queue. Call StartTask to launch the
// consumer.
func New(cfg Config) (*SubmissionQueue, error) {
	if !cfg.List.Valid() {
		return nil, fmt.Errorf("submit: invalid list type %v", cfg.List)
	}
	if cfg.Device == nil || cfg.Queue == nil || cfg.Pool == nil {
		return nil, errors.New("submit: queue config requires Device, Queue and Pool")
	}
	tl, err := fence.NewTimeline(cfg.Device, cfg.Queue, cfg.List, cfg.FenceTimeout)
	if err != nil {
		return nil, err
	}
	frames := fence.NewFrameTracker(cfg.Buffers)
	q := &SubmissionQueue{
		list:      cfg.List,
		device:    cfg.Device,
		pool:      cfg.Pool,
		timeline:  tl,
		frames:    frames,
		onFailure: cfg.OnFailure,
		perBuffer: make([]int, frames.Buffers()),
	}
	q.cond = sync.NewCond(&q.mu)
	return q, nil
}

// List returns the list type the queue serves.
func (q *SubmissionQueue) List() unit.ListType { return q.list }

// Acquire allocates a unit tagged with bufferIndex and appends it to the
// FIFO. ok is false when the pool is exhausted or the queue has failed.
// The returned unit is Idle; SoftReset or HardReset opens it for recording.
func (q *SubmissionQueue) Acquire(name string, bufferIndex int) (u *unit.CommandUnit, id uint64, ok bool) {
	if bufferIndex < 0 || bufferIndex >= len(q.perBuffer) {
		return nil, 0, false
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.failed != nil {
		return nil, 0, false
	}
	u, ok = q.pool.Allocate(q.list, bufferIndex, name)
	if !ok {
		return nil, 0, false
	}
	id = u.ID()
	u.SetNotify(q.wake)
	q.fifo.push(entry{unit: u, id: id, buffer: bufferIndex})
	q.outstanding++
	q.perBuffer[bufferIndex]++
	q.count.Store(int64(q.outstanding))
	q.acquired.Add(1)
	q.cond.Broadcast()
	slogger().Debug("submit: unit acquired", "id", id, "slot", u.Slot(), "list", q.list, "name", name, "buffer", bufferIndex)
	return u, id, true
}

// wake is installed as the units' notify hook.
func (q *SubmissionQueue) wake() {
	q.mu.Lock()
	q.cond.Broadcast()
	q.mu.Unlock()
}

// StartTask launches the consumer goroutine. It is a no-op when already
// running and fails after a device failure.
func (q *SubmissionQueue) StartTask() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.failed != nil {
		return q.failed
	}
	if q.running {
		return nil
	}
	q.running = true
	q.wg.Add(1)
	go q.run()
	return nil
}

// StopTask stops the consumer. Outstanding units are disposed without being
// submitted and returned to the pool; pending swaps fail with ErrStopped.
// Producers must not be recording into units of this queue concurrently.
func (q *SubmissionQueue) StopTask() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	q.stopping = true
	q.cond.Broadcast()
	q.mu.Unlock()

	q.wg.Wait()

	q.mu.Lock()
	q.stopping = false
	q.mu.Unlock()
}

// Running reports whether the consumer goroutine is active.
func (q *SubmissionQueue) Running() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.running
}

// Err returns the device failure that stopped the queue, if any.
func (q *SubmissionQueue) Err() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.failed
}

// WaitForCommandsCompletion blocks until no unit is outstanding. It returns
// ErrStopped if the consumer is not running while units are outstanding,
// and the device failure if the queue failed.
func (q *SubmissionQueue) WaitForCommandsCompletion() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.outstanding > 0 {
		if q.failed != nil {
			return q.failed
		}
		if !q.running {
			return ErrStopped
		}
		q.cond.Wait()
	}
	return q.failed
}

// SwapBuffer retires the active buffer index and activates next. It returns
// once every unit acquired before the call has left the FIFO and the fence
// signaled behind them has been reached.
func (q *SubmissionQueue) SwapBuffer(next int) error {
	if next < 0 || next >= len(q.perBuffer) {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrInvalidBufferIndex, next, len(q.perBuffer))
	}
	req := &swapRequest{next: next, done: make(chan error, 1)}

	q.mu.Lock()
	if q.failed != nil {
		err := q.failed
		q.mu.Unlock()
		return err
	}
	if !q.running {
		q.mu.Unlock()
		return ErrStopped
	}
	q.fifo.push(entry{swap: req})
	q.cond.Broadcast()
	q.mu.Unlock()

	return <-req.done
}

// Outstanding returns the number of units in the FIFO.
func (q *SubmissionQueue) Outstanding() int {
	return int(q.count.Load())
}

// OutstandingFor returns the number of units in the FIFO tagged with
// bufferIndex.
func (q *SubmissionQueue) OutstandingFor(bufferIndex int) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if bufferIndex < 0 || bufferIndex >= len(q.perBuffer) {
		return 0
	}
	return q.perBuffer[bufferIndex]
}

// Buffers returns the number of frames in flight.
func (q *SubmissionQueue) Buffers() int {
	return len(q.perBuffer)
}

// CurrentBuffer returns the buffer index made active by the last swap.
func (q *SubmissionQueue) CurrentBuffer() int {
	return q.frames.Current()
}

// LatestFenceValue returns the highest fence value the GPU is known to
// have reached on this queue.
func (q *SubmissionQueue) LatestFenceValue() uint64 {
	return q.timeline.Completed()
}

// FrameFenceValue returns the fence value that retired bufferIndex's last
// frame.
func (q *SubmissionQueue) FrameFenceValue(bufferIndex int) uint64 {
	return q.frames.Value(bufferIndex)
}

// Stats is a snapshot of queue counters.
type Stats struct {
	Outstanding int
	// PerBuffer holds the outstanding units per frame-in-flight index.
	PerBuffer []int
	// Current is the buffer index made active by the last swap.
	Current  int
	Acquired uint64
	Executed uint64
	Disposed uint64
	Swaps    uint64
	// Fence is the last completed value; Signaled the last one submitted.
	Fence    uint64
	Signaled uint64
}

// Stats returns a snapshot of queue counters.
func (q *SubmissionQueue) Stats() Stats {
	perBuffer := make([]int, q.Buffers())
	for i := range perBuffer {
		perBuffer[i] = q.OutstandingFor(i)
	}
	return Stats{
		Outstanding: q.Outstanding(),
		PerBuffer:   perBuffer,
		Current:     q.CurrentBuffer(),
		Acquired:    q.acquired.Load(),
		Executed:    q.executed.Load(),
		Disposed:    q.disposed.Load(),
		Swaps:       q.swaps.Load(),
		Fence:       q.timeline.Completed(),
		Signaled:    q.timeline.Last(),
	}
}

// Destroy releases the queue's fence. The consumer must be stopped.
func (q *SubmissionQueue) Destroy() {
	q.timeline.Destroy()
}

// run is the consumer loop.
func (q *SubmissionQueue) run() {
	defer q.wg.Done()
	slogger().Info("submit: consumer started", "list", q.list)

	for {
		q.mu.Lock()
		for !q.stopping && !q.frontActionableLocked() {
			q.cond.Wait()
		}
		if q.stopping {
			dropped := q.drainLocked(ErrStopped)
			q.running = false
			q.cond.Broadcast()
			q.mu.Unlock()
			if dropped > 0 {
				slogger().Warn("submit: consumer stopped with outstanding units", "list", q.list, "dropped", dropped)
			}
			slogger().Info("submit: consumer stopped", "list", q.list)
			return
		}
		e := q.fifo.front()
		q.mu.Unlock()

		// The consumer is the only goroutine that pops, so e stays at the
		// front while it is processed without the lock.
		if err := q.process(e); err != nil {
			q.fail(err)
			return
		}
	}
}

// frontActionableLocked reports whether the front entry can be processed
// now. A unit that is still Idle or Recording is not.
func (q *SubmissionQueue) frontActionableLocked() bool {
	if q.fifo.len() == 0 {
		return false
	}
	e := q.fifo.front()
	if e.swap != nil {
		return true
	}
	switch e.unit.StateOf(e.id) {
	case unit.Idle, unit.Recording:
		return false
	default:
		return true
	}
}

func (q *SubmissionQueue) process(e entry) error {
	if e.swap != nil {
		_, err := q.frames.Swap(q.timeline, e.swap.next)
		q.mu.Lock()
		q.fifo.pop()
		q.mu.Unlock()
		e.swap.done <- err
		if err == nil {
			q.swaps.Add(1)
		}
		return err
	}

	enc, st := e.unit.Claim()
	switch st {
	case unit.Ready:
		if err := q.execute(e, enc); err != nil {
			return err
		}
		q.executed.Add(1)
	case unit.Disposed:
		q.disposed.Add(1)
	case unit.Executed:
	default:
		// Not claimable any more; re-evaluate the front.
		return nil
	}
	q.retire(e)
	return nil
}

// execute submits a claimed unit, waits for its fence and runs its callback.
func (q *SubmissionQueue) execute(e entry, enc hal.CommandEncoder) error {
	cmdBuf, err := enc.EndEncoding()
	if err != nil {
		return unit.NewDeviceError("end encoding", q.list, err)
	}
	v, err := q.timeline.Submit([]hal.CommandBuffer{cmdBuf})
	if err != nil {
		return err
	}
	if err := q.timeline.Wait(v); err != nil {
		return err
	}
	q.device.FreeCommandBuffer(cmdBuf)

	cb, err := e.unit.Complete(v)
	if err != nil {
		return unit.NewDeviceError("complete", q.list, err)
	}
	if cb != nil {
		cb()
	}
	e.unit.MarkExecuted()
	return nil
}

// retire pops the front unit and returns it to the pool. A unit its
// producer re-armed after execution stays at the front for another pass.
func (q *SubmissionQueue) retire(e entry) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.pool.Release(e.unit) {
		slogger().Debug("submit: unit re-armed", "id", e.id, "list", q.list)
		q.cond.Broadcast()
		return
	}
	q.fifo.pop()
	q.outstanding--
	q.perBuffer[e.buffer]--
	q.count.Store(int64(q.outstanding))
	q.cond.Broadcast()
}

// drainLocked disposes every entry, failing pending swaps with err.
func (q *SubmissionQueue) drainLocked(err error) int {
	dropped := 0
	for q.fifo.len() > 0 {
		e := q.fifo.pop()
		if e.swap != nil {
			e.swap.done <- err
			continue
		}
		e.unit.Abandon()
		q.pool.Deallocate(e.unit)
		q.disposed.Add(1)
		dropped++
	}
	q.outstanding = 0
	for i := range q.perBuffer {
		q.perBuffer[i] = 0
	}
	q.count.Store(0)
	return dropped
}

// fail records a device failure, drops all work and reports the failure.
func (q *SubmissionQueue) fail(err error) {
	q.mu.Lock()
	q.failed = err
	q.drainLocked(err)
	q.running = false
	q.cond.Broadcast()
	q.mu.Unlock()

	slogger().Error("submit: device failure", "list", q.list, "err", err)
	if q.onFailure != nil {
		q.onFailure(err)
		return
	}
	panic(err)
}
