// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package unit

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gogpu/wgpu/hal"
)

// fakeEncoder is a test double for hal.CommandEncoder. Only the encoding
// lifecycle methods are implemented; anything else panics on the nil
// embedded interface.
type fakeEncoder struct {
	hal.CommandEncoder

	mu        sync.Mutex
	label     string
	begins    int
	ends      int
	discards  int
	open      bool
	beginFail error
}

func (e *fakeEncoder) BeginEncoding(label string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.beginFail != nil {
		return e.beginFail
	}
	e.label = label
	e.begins++
	e.open = true
	return nil
}

func (e *fakeEncoder) EndEncoding() (hal.CommandBuffer, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.open {
		return nil, errors.New("fake: end without begin")
	}
	e.ends++
	e.open = false
	return &fakeCommandBuffer{}, nil
}

func (e *fakeEncoder) DiscardEncoding() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.discards++
	e.open = false
}

func (e *fakeEncoder) isOpen() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.open
}

type fakeCommandBuffer struct {
	hal.CommandBuffer
}

// fakeDevice is a test double for the encoder side of hal.Device.
type fakeDevice struct {
	mu         sync.Mutex
	encoders   []*fakeEncoder
	createFail error
	freed      atomic.Int32
}

func (d *fakeDevice) CreateCommandEncoder(desc *hal.CommandEncoderDescriptor) (hal.CommandEncoder, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.createFail != nil {
		return nil, d.createFail
	}
	enc := &fakeEncoder{label: desc.Label}
	d.encoders = append(d.encoders, enc)
	return enc, nil
}

func (d *fakeDevice) FreeCommandBuffer(hal.CommandBuffer) {
	d.freed.Add(1)
}

func (d *fakeDevice) created() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.encoders)
}

func fmtPlusV(err error) string {
	return fmt.Sprintf("%+v", err)
}
