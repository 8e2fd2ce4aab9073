// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package submit

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/gogpu/submit/internal/fence"
	"github.com/gogpu/submit/internal/queue"
	"github.com/gogpu/submit/internal/unit"
)

// nopHandler discards all records. Enabled returns false so disabled
// logging costs no formatting.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(slog.New(nopHandler{}))
}

// SetLogger configures the logger for submit and its internal packages.
// By default nothing is logged. Pass nil to restore silence.
//
// Log levels used by submit:
//   - [slog.LevelDebug]: unit transitions, acquisitions and buffer swaps
//   - [slog.LevelInfo]: consumer start and stop
//   - [slog.LevelWarn]: pool exhaustion, units dropped at stop
//   - [slog.LevelError]: device failures
//
// Example:
//
//	submit.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(nopHandler{})
	}
	loggerPtr.Store(l)
	unit.SetLogger(l)
	fence.SetLogger(l)
	queue.SetLogger(l)
}

// Logger returns the current logger. It is safe for concurrent use.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}
