// SPDX-License-Identifier: GPL-3.0-or-later

package http

import (
	"context"
	"log/slog"
	"net"

	"github.com/bassosimone/netstub"
	"github.com/bassosimone/slogstub"

	coro "github.com/coro-rt/coro"
)

// NewConfig re-exports [coro.NewConfig] so this package's tests read the
// same as the root package's.
func NewConfig() *coro.Config { return coro.NewConfig() }

// DefaultSLogger re-exports [coro.DefaultSLogger].
func DefaultSLogger() coro.SLogger { return coro.DefaultSLogger() }

// newCapturingLogger returns a logger that captures all log records into the
// returned slice.
func newCapturingLogger() (*slog.Logger, *[]slog.Record) {
	var records []slog.Record
	handler := &slogstub.FuncHandler{
		EnabledFunc: func(ctx context.Context, level slog.Level) bool {
			return true
		},
		HandleFunc: func(ctx context.Context, record slog.Record) error {
			records = append(records, record)
			return nil
		},
	}
	return slog.New(handler), &records
}

// newMinimalConn returns a [*netstub.FuncConn] with only LocalAddrFunc and
// RemoteAddrFunc set.
func newMinimalConn() *netstub.FuncConn {
	return &netstub.FuncConn{
		LocalAddrFunc:  func() net.Addr { return &net.TCPAddr{} },
		RemoteAddrFunc: func() net.Addr { return &net.TCPAddr{} },
	}
}
