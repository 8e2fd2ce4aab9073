// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package submit

import (
	"time"

	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/submit/internal/fence"
	"github.com/gogpu/submit/internal/unit"
)

// Option configures a Submitter during creation.
//
// Example:
//
//	s, err := submit.New(device, queue,
//	    submit.WithCapacity(512),
//	    submit.WithBufferCount(3),
//	    submit.WithQueue(submit.ListCopy, copyQueue),
//	)
type Option func(*options)

type options struct {
	capacity     int
	buffers      int
	fenceTimeout time.Duration
	queues       [unit.NumListTypes]hal.Queue
	onFailure    func(error)
	workers      int
}

func defaultOptions() options {
	return options{
		capacity:     unit.DefaultCapacity,
		buffers:      fence.DefaultBufferCount,
		fenceTimeout: fence.DefaultTimeout,
	}
}

// WithCapacity sets the number of command units in the shared pool.
// Values below 1 keep the default of 256.
func WithCapacity(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.capacity = n
		}
	}
}

// WithBufferCount sets the number of frames in flight (2 for double
// buffering, 3 for triple). Values below 1 keep the default of 2.
func WithBufferCount(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.buffers = n
		}
	}
}

// WithFenceTimeout bounds every fence wait. A wait that times out is
// treated as a device failure. Values below 1 keep the default of 5s.
func WithFenceTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.fenceTimeout = d
		}
	}
}

// WithQueue binds a dedicated hardware queue to list. Without it every
// list type submits to the queue passed to New. Invalid list types are
// ignored.
func WithQueue(list ListType, q hal.Queue) Option {
	return func(o *options) {
		if list.Valid() {
			o.queues[list] = q
		}
	}
}

// WithFailureHandler installs the function that receives device failures.
// It runs on the failing queue's consumer goroutine. The default handler
// logs the failure and panics.
func WithFailureHandler(fn func(error)) Option {
	return func(o *options) {
		o.onFailure = fn
	}
}

// WithWorkers sets the number of goroutines Record uses to run passes.
// Values below 1 select GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}
