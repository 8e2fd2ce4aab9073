// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package unit

import (
	"fmt"
	"sync"

	"github.com/gogpu/wgpu/hal"
)

// CommandUnit is one reusable recording target plus its lifecycle state.
//
// Units live in a Pool arena and are never copied. Every exported method
// that acts on behalf of a producer takes the acquisition id the producer
// was given; a mismatch means the unit has since been recycled and the call
// fails with ErrStaleHandle.
//
// An Executed unit may be re-armed with SoftReset or HardReset until the
// consumer recycles it. A re-armed unit keeps its acquisition and its FIFO
// position; once recycled, a re-arm fails with ErrStaleHandle.
//
// Fence values are monotonic per acquisition and per list-type timeline.
// When a slot is reused for a different list type its fence value restarts
// at 0 and follows the new timeline from there.
//
// Thread safety: all fields are guarded by mu. The encoder itself is used
// without the lock by whoever owns the unit: the producer while Recording,
// the consumer while Executing.
type CommandUnit struct {
	mu   sync.Mutex
	cond *sync.Cond

	slot   int
	device Device

	id     uint64
	list   ListType
	buffer int
	name   string

	state    State
	encoder  hal.CommandEncoder
	encList  ListType
	encoding bool
	fence    uint64
	callback func()

	// notify wakes the owning submission queue after Ready or Disposed.
	notify func()

	// abandoned is set when the consumer dropped the unit unsubmitted.
	abandoned bool

	// Outcome of the last acquisition that retired from this slot.
	retiredID        uint64
	retiredState     State
	retiredFence     uint64
	retiredAbandoned bool
}

func (u *CommandUnit) init(slot int, device Device) {
	u.slot = slot
	u.device = device
	u.cond = sync.NewCond(&u.mu)
}

// ID returns the id of the current acquisition, or 0 when the unit is free.
func (u *CommandUnit) ID() uint64 {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.id
}

// Slot returns the arena index of the unit.
func (u *CommandUnit) Slot() int { return u.slot }

// ListType returns the list type of the current acquisition.
func (u *CommandUnit) ListType() ListType {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.list
}

// BufferIndex returns the frame-in-flight index the unit belongs to.
func (u *CommandUnit) BufferIndex() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.buffer
}

// Name returns the debug tag of the current acquisition.
func (u *CommandUnit) Name() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.name
}

// State returns the current state regardless of acquisition.
func (u *CommandUnit) State() State {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.state
}

// StateOf returns the state of acquisition id. A retired acquisition
// reports the state it retired with while the slot still remembers it;
// older acquisitions report Idle.
func (u *CommandUnit) StateOf(id uint64) State {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.stateOfLocked(id)
}

func (u *CommandUnit) stateOfLocked(id uint64) State {
	switch {
	case id != 0 && id == u.id:
		return u.state
	case id != 0 && id == u.retiredID:
		return u.retiredState
	default:
		return Idle
	}
}

// FenceValue returns the latest fence value observed for acquisition id.
func (u *CommandUnit) FenceValue(id uint64) uint64 {
	u.mu.Lock()
	defer u.mu.Unlock()
	switch {
	case id != 0 && id == u.id:
		return u.fence
	case id != 0 && id == u.retiredID:
		return u.retiredFence
	default:
		return 0
	}
}

// Encoder returns the recording target while acquisition id is Recording.
func (u *CommandUnit) Encoder(id uint64) (hal.CommandEncoder, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if err := u.checkLocked("Encoder", id); err != nil {
		return nil, err
	}
	if u.state != Recording {
		return nil, &StateError{Op: "Encoder", ID: id, State: u.state}
	}
	return u.encoder, nil
}

// SoftReset opens the recording target for a new pass. Valid from Idle or
// Executed; the existing encoder is reused. Re-arming an Executed unit that
// the consumer has already recycled fails with ErrStaleHandle.
func (u *CommandUnit) SoftReset(id uint64) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if err := u.checkLocked("SoftReset", id); err != nil {
		return err
	}
	if u.state != Idle && u.state != Executed {
		return &StateError{Op: "SoftReset", ID: id, State: u.state}
	}
	if u.encoder == nil || u.encList != u.list {
		if err := u.recreateLocked(); err != nil {
			return err
		}
	}
	if err := u.beginLocked(); err != nil {
		return err
	}
	slogger().Debug("submit: unit soft reset", "id", id, "list", u.list, "name", u.name)
	return nil
}

// HardReset closes the recording target, replaces it with a freshly created
// one and opens it. It is refused while the consumer owns the unit.
func (u *CommandUnit) HardReset(id uint64) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if err := u.checkLocked("HardReset", id); err != nil {
		return err
	}
	switch u.state {
	case Ready, Executing:
		return &StateError{Op: "HardReset", ID: id, State: u.state}
	case Disposed:
		return ErrDisposed
	}
	if err := u.recreateLocked(); err != nil {
		return err
	}
	if err := u.beginLocked(); err != nil {
		return err
	}
	slogger().Debug("submit: unit hard reset", "id", id, "list", u.list, "name", u.name)
	return nil
}

// FlagReady hands a Recording unit to the consumer. cb, if non-nil, runs
// exactly once on the consumer goroutine after the GPU has finished the
// unit's work.
func (u *CommandUnit) FlagReady(id uint64, cb func()) error {
	u.mu.Lock()
	if err := u.checkLocked("FlagReady", id); err != nil {
		u.mu.Unlock()
		return err
	}
	if u.state != Recording {
		st := u.state
		u.mu.Unlock()
		if st == Disposed {
			return ErrDisposed
		}
		return &StateError{Op: "FlagReady", ID: id, State: st}
	}
	u.callback = cb
	u.state = Ready
	notify := u.notify
	u.cond.Broadcast()
	u.mu.Unlock()

	if notify != nil {
		notify()
	}
	return nil
}

// Dispose cancels acquisition id before execution. The recording target is
// closed and the consumer will recycle the unit without submitting it.
// Disposing an already disposed unit is a no-op.
func (u *CommandUnit) Dispose(id uint64) error {
	u.mu.Lock()
	if err := u.checkLocked("Dispose", id); err != nil {
		u.mu.Unlock()
		return err
	}
	switch u.state {
	case Disposed:
		u.mu.Unlock()
		return nil
	case Executing, Executed:
		st := u.state
		u.mu.Unlock()
		return &StateError{Op: "Dispose", ID: id, State: st}
	}
	u.discardLocked()
	u.state = Disposed
	notify := u.notify
	u.cond.Broadcast()
	u.mu.Unlock()

	if notify != nil {
		notify()
	}
	return nil
}

// Wait blocks until acquisition id has executed, been disposed, or retired,
// and returns the final state.
func (u *CommandUnit) Wait(id uint64) State {
	u.mu.Lock()
	defer u.mu.Unlock()
	for {
		st := u.stateOfLocked(id)
		if st.Terminal() || id != u.id {
			return st
		}
		u.cond.Wait()
	}
}

// Claim moves a Ready unit to Executing and returns its recording target.
// It reports the observed state when the unit is not Ready. Consumer only.
func (u *CommandUnit) Claim() (hal.CommandEncoder, State) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.state != Ready {
		return nil, u.state
	}
	u.state = Executing
	u.encoding = false
	u.cond.Broadcast()
	return u.encoder, Ready
}

// Complete records the fence value the unit's submission retired at and
// returns the post-execution callback. Consumer only.
func (u *CommandUnit) Complete(value uint64) (func(), error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.state != Executing {
		return nil, &StateError{Op: "Complete", ID: u.id, State: u.state}
	}
	if value <= u.fence {
		return nil, fmt.Errorf("%w: unit %d at %d, got %d", ErrFenceRegression, u.id, u.fence, value)
	}
	u.fence = value
	cb := u.callback
	u.callback = nil
	return cb, nil
}

// MarkExecuted finishes an Executing unit and wakes Wait callers. Consumer only.
func (u *CommandUnit) MarkExecuted() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.state = Executed
	u.cond.Broadcast()
	slogger().Debug("submit: unit executed", "id", u.id, "list", u.list, "fence", u.fence)
}

// Abandon disposes a unit the consumer is dropping without submitting it,
// whatever its state. Used when a queue stops or fails. Consumer only.
func (u *CommandUnit) Abandon() {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.state == Executed || u.state == Disposed {
		return
	}
	u.discardLocked()
	u.callback = nil
	u.abandoned = true
	u.state = Disposed
	u.cond.Broadcast()
}

// Abandoned reports whether the acquisition id was dropped by the consumer
// rather than disposed by its producer.
func (u *CommandUnit) Abandoned(id uint64) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	switch {
	case id != 0 && id == u.id:
		return u.abandoned
	case id != 0 && id == u.retiredID:
		return u.retiredAbandoned
	}
	return false
}

// SetNotify installs the function called after FlagReady and Dispose.
func (u *CommandUnit) SetNotify(fn func()) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.notify = fn
}

// reinit re-tags a free unit for a new acquisition. The encoder is kept
// when it was created for the same list type; otherwise it is dropped and
// the fence history reset, since the new list type has its own timeline.
func (u *CommandUnit) reinit(id uint64, list ListType, buffer int, name string) (reused bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	reused = u.encoder != nil && u.encList == list
	if !reused {
		u.discardLocked()
		u.encoder = nil
		u.fence = 0
	}
	u.id = id
	u.list = list
	u.buffer = buffer
	u.name = name
	u.state = Idle
	u.callback = nil
	u.notify = nil
	u.abandoned = false
	return reused
}

// recycle retires the current acquisition and returns the unit to Idle
// with no open recording and no pending callback. Unless force is set, a
// unit whose producer re-armed it after it executed (Recording or Ready)
// keeps its acquisition and recycle returns false.
func (u *CommandUnit) recycle(force bool) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	if !force && (u.state == Recording || u.state == Ready) {
		return false
	}
	u.discardLocked()
	u.retiredID = u.id
	u.retiredFence = u.fence
	u.retiredAbandoned = u.abandoned
	if u.state == Executed {
		u.retiredState = Executed
	} else {
		u.retiredState = Disposed
	}
	u.id = 0
	u.state = Idle
	u.callback = nil
	u.notify = nil
	u.abandoned = false
	u.cond.Broadcast()
	return true
}

func (u *CommandUnit) checkLocked(op string, id uint64) error {
	if id == 0 || id != u.id {
		return fmt.Errorf("%w: %s on unit %d (current %d)", ErrStaleHandle, op, id, u.id)
	}
	return nil
}

// recreateLocked replaces the encoder with a new one for the current list type.
func (u *CommandUnit) recreateLocked() error {
	u.discardLocked()
	enc, err := u.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: u.label(),
	})
	if err != nil {
		return NewDeviceError("create command encoder", u.list, err)
	}
	u.encoder = enc
	u.encList = u.list
	return nil
}

func (u *CommandUnit) beginLocked() error {
	if err := u.encoder.BeginEncoding(u.label()); err != nil {
		return NewDeviceError("begin encoding", u.list, err)
	}
	u.encoding = true
	u.callback = nil
	u.state = Recording
	u.cond.Broadcast()
	return nil
}

func (u *CommandUnit) discardLocked() {
	if u.encoding && u.encoder != nil {
		u.encoder.DiscardEncoding()
	}
	u.encoding = false
}

func (u *CommandUnit) label() string {
	if u.name == "" {
		return u.list.String()
	}
	return u.list.String() + ":" + u.name
}
