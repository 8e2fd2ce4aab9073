// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package submit schedules GPU command recording and submission.
//
// Producers acquire command units, record into them on any goroutine and
// flag them ready. One consumer goroutine per list type (direct, compute,
// copy, bundle) executes ready units in strict acquisition order: it ends
// the recording, submits it to the hardware queue, waits on the queue's
// fence, runs the unit's completion callback and recycles the unit into a
// fixed-capacity pool.
//
// # Quick Start
//
//	s, err := submit.New(device, queue)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer s.Close()
//
//	h := s.Acquire(submit.ListDirect, "shadow-pass")
//	if !h.Valid() {
//	    return // pool exhausted, retry next frame
//	}
//	if err := h.SoftReset(); err != nil {
//	    return err
//	}
//	enc, _ := h.Encoder()
//	// ... record into enc ...
//	_ = h.FlagReady(nil)
//
//	// End of frame: wait for the GPU to release the next buffer index.
//	_ = s.SwapBuffer((s.CurrentBuffer() + 1) % s.BufferCount())
//
// # Ordering
//
// Units on the same list type execute in acquisition order. A unit that is
// still recording blocks every unit acquired after it on that list type,
// even if they are ready. There is no ordering across list types.
//
// # Backpressure
//
// The pool has a fixed capacity (WithCapacity). When every unit is in use,
// Acquire returns an empty Handle; AcquireWait blocks until a unit is
// recycled instead.
//
// # Frames in flight
//
// Every acquired unit is tagged with the active buffer index. SwapBuffer
// returns only once all work acquired before it has retired on the GPU,
// so per-frame resources addressed by the next index may be reused.
//
// # Failures
//
// Illegal lifecycle calls return errors wrapping ErrReentrancy,
// ErrStaleHandle or ErrDisposed. Driver failures and fence timeouts are
// fatal: the queue drops its work and calls the failure handler, which by
// default logs the *DeviceError and panics.
//
// # Logging
//
// submit is silent by default. Use SetLogger to enable log/slog output.
package submit
