// SPDX-License-Identifier: GPL-3.0-or-later

package coro

import "errors"

// Sentinel errors returned by blocking and handle-table operations.
//
// Every operation in this package returns one of these (wrapped with
// [fmt.Errorf] context where useful) instead of panicking, per the
// propagation rule this runtime follows: the core never throws.
var (
	// ErrCanceled is returned by a suspension point when the calling
	// coroutine's handle has been closed. Sticky: once a coroutine is
	// cancelled, every subsequent suspension also fails with ErrCanceled.
	ErrCanceled = errors.New("coro: canceled")

	// ErrTimedout is returned when a deadline expires before an operation
	// completes. The object is left in its prior state.
	ErrTimedout = errors.New("coro: timed out")

	// ErrBadf is returned for an unknown, stale, or wrong-kind handle.
	ErrBadf = errors.New("coro: bad handle")

	// ErrBusy is returned when a second waiter attempts to register for
	// the same (fd, direction) poller key.
	ErrBusy = errors.New("coro: busy")

	// ErrInval is returned for misuse, such as mismatched chsend/chrecv
	// lengths.
	ErrInval = errors.New("coro: invalid argument")

	// ErrPipe is returned once a channel or adapter has been permanently
	// closed for communication (chdone, adapter half-close, peer EOF).
	ErrPipe = errors.New("coro: broken pipe")

	// ErrMsgsize is returned by a message receive whose buffer is too
	// small to hold the pending message. The message remains pending.
	ErrMsgsize = errors.New("coro: message too large for buffer")

	// ErrNomem names an allocation failure. No function in this package
	// returns it: stacks, handle-table slots, and deadline nodes are
	// allocated by the Go runtime.
	ErrNomem = errors.New("coro: out of memory")

	// ErrNotsup is returned when an operation is not supported by a
	// particular handle kind (e.g. hclose on an adapter that requires
	// Detach for clean teardown still tears down, but reports this).
	ErrNotsup = errors.New("coro: not supported")
)
