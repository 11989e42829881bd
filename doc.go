// SPDX-License-Identifier: GPL-3.0-or-later

// Package coro provides a structured-concurrency runtime: coroutines with
// independent stacks, bundles, cancellation, deadlines, and a deadline-aware
// I/O poller integrated with a cooperative single-threaded scheduler.
//
// # Core Abstraction
//
// A handle table unifies coroutines, bundles, and channels under one
// small-integer [Handle] type, whose ownership moves via [HOwn] and
// which is released via [HClose]. Exactly one coroutine runs at a time;
// [Go] spawns a new one, and blocking calls ([Msleep], [ChSend], [ChRecv],
// [Choose], [BundleWait], [FdIn], [FdOut]) hand the scheduler baton to
// another ready coroutine until their own condition is satisfied.
//
// # Available Primitives
//
// Coroutines and bundles:
//   - [Go]: spawns a coroutine, returning its [Handle]
//   - [Bundle], [BundleGo], [BundleWait]: group coroutines sharing a lifetime
//   - [HClose]: releases a handle, cancelling a still-running coroutine
//
// Channels:
//   - [ChMake]: creates a rendezvous channel pair
//   - [ChSend], [ChRecv]: blocking unbuffered exchange
//   - [ChDone]: poisons a channel, waking queued peers with [ErrPipe]
//   - [Choose]: multi-way select over send/receive clauses
//
// I/O:
//   - [FdIn], [FdOut]: park the calling coroutine until a file descriptor
//     is ready for reading or writing, or the deadline expires
//   - [FdClean]: evicts poller registrations for a descriptor being closed
//
// Composition utilities (reused by the protocol adapters in this module):
//   - [Compose2] through [Compose8]: chain Funcs into pipelines
//   - [FuncAdapter]: wrap a function as a Func for ad-hoc custom behavior
//   - [Apply]: bind a fixed input to a Func
//   - [ConstFunc]: lift a pure value into a Func
//   - [NewEndpointFunc]: convenience wrapper for ConstFunc with endpoints
//
// Connection establishment helpers, reused by the adapter packages:
//   - [ConnectFunc]: dials TCP or UDP endpoints
//   - [ObserveConnFunc]: observes connections for logging I/O operations
//   - [CancelWatchFunc]: closes a connection on context cancellation
//
// The TLS handshake Func (TLSHandshakeFunc) lives in adapter/tls, and the
// HTTP transport wrapper (HTTPConn, created via NewHTTPConnFunc) lives in
// adapter/http.
//
// # Observability
//
// The connection helpers support structured logging via [SLogger]
// (compatible with [log/slog]); the scheduler, channel, and poller
// primitives do not log. By default, logging is disabled. Set the Logger
// field to a custom [*slog.Logger] to enable logging. Error classification
// is configurable via [ErrClassifier]; by default, [DefaultErrClassifier]
// is used.
//
// Use [NewSpanID] to generate a unique, time-ordered identifier (UUIDv7) for
// each operation, then attach it to the logger with [*slog.Logger.With]. All
// log entries from that operation will share the same spanID, enabling
// correlation across pipeline stages and simplifying log analysis.
//
// # Timeout and Cancellation Philosophy
//
// Coroutine deadlines are absolute millisecond timestamps (see [Now]), not
// durations, matching this package's scheduler timer wheel. [CancelWatchFunc]
// binds a [context.Context]'s lifecycle to a connection for callers that
// still need interop with context-based cancellation: when the context is
// done, the connection is closed immediately, causing any in-progress I/O
// to fail. [DeadlineTime] and [MillisDeadline] convert between this
// millisecond convention and [time.Time], for adapters bridging to stdlib
// or third-party APIs expressed in terms of SetDeadline (the ws and socks5
// adapters use both; the tls adapter uses [DeadlineTime]).
package coro
