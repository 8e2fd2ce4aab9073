// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package queue implements the per-list-type submission queue.
//
// A SubmissionQueue keeps acquired command units in a FIFO and runs one
// consumer goroutine that executes them strictly in acquisition order:
//
//	Acquire -> push back ---------------------------+
//	FlagReady -> wake consumer                      |
//	consumer: front Ready?  Claim -> EndEncoding -> Submit(fence, v)
//	          -> Wait(v) -> callback -> Executed -> pop + recycle
//	          front Disposed? pop + recycle
//	          front still recording? sleep until woken
//
// A unit that is not yet Ready blocks every unit behind it (head-of-line
// blocking). The consumer sleeps on a condition variable while the front is
// not actionable; FlagReady, Dispose, Acquire and StopTask wake it.
//
// Buffer swaps are enqueued as markers in the same FIFO, so fence state is
// only ever mutated by the consumer goroutine and a swap retires exactly
// the work acquired before it.
package queue
