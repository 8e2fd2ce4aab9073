// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package submit

import (
	"context"
	stderrors "errors"

	"github.com/gogpu/wgpu/hal"
	"github.com/pkg/errors"

	"github.com/gogpu/submit/internal/parallel"
)

// Pass is one unit of recording work for Record.
type Pass struct {
	// Name is the debug tag of the unit.
	Name string

	// List selects the queue the pass is submitted on.
	List ListType

	// Record writes commands into the open encoder. Returning an error
	// disposes the unit.
	Record func(enc hal.CommandEncoder) error

	// OnComplete, if non-nil, runs on the consumer goroutine after the GPU
	// has finished the pass.
	OnComplete func()
}

// Record acquires one unit per pass in pass order, records the passes
// concurrently on the worker pool and flags each one ready. Passes on the
// same list type therefore execute in the order given, however long each
// takes to record.
//
// Passes whose recording fails, or that had not started when ctx ended,
// are disposed. The returned handles match passes one to one; the error
// joins every pass failure. If the pool cannot supply a unit for every
// pass, nothing is recorded and the error wraps ErrPoolExhausted.
func (s *Submitter) Record(ctx context.Context, passes ...Pass) ([]Handle, error) {
	if s.closed.Load() || !s.workers.IsRunning() {
		return nil, ErrClosed
	}
	handles := make([]Handle, len(passes))
	for i, p := range passes {
		if !p.List.Valid() {
			disposeAll(handles[:i])
			return nil, errors.Wrapf(ErrInvalidListType, "submit: pass %q", p.Name)
		}
		h := s.Acquire(p.List, p.Name)
		if !h.Valid() {
			disposeAll(handles[:i])
			if err := s.queues[p.List].Err(); err != nil {
				return nil, err
			}
			return nil, errors.Wrapf(ErrPoolExhausted, "submit: pass %q", p.Name)
		}
		handles[i] = h
	}

	flagged := make([]bool, len(passes))
	jobs := make([]parallel.Job, len(passes))
	for i := range passes {
		p, h := passes[i], handles[i]
		jobs[i] = func(context.Context) error {
			if err := recordPass(h, p); err != nil {
				return errors.Wrapf(err, "submit: pass %q", p.Name)
			}
			flagged[i] = true
			return nil
		}
	}
	err := s.workers.Run(ctx, jobs)

	for i, h := range handles {
		if !flagged[i] {
			if derr := h.Dispose(); derr != nil {
				err = stderrors.Join(err, derr)
			}
		}
	}
	return handles, err
}

func recordPass(h Handle, p Pass) error {
	if err := h.SoftReset(); err != nil {
		return err
	}
	if p.Record != nil {
		enc, err := h.Encoder()
		if err != nil {
			return err
		}
		if err := p.Record(enc); err != nil {
			return err
		}
	}
	return h.FlagReady(p.OnComplete)
}

func disposeAll(handles []Handle) {
	for _, h := range handles {
		_ = h.Dispose()
	}
}
