// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: the deadline-aware readiness wait this runtime needs,
// wiring the poller subpackage into the scheduler's park/wake machinery
// exactly as channel.go wires its own send/recv queues.
//

package coro

import (
	"fmt"

	"github.com/coro-rt/coro/poller"
)

// newPollerBackend is supplied per-platform by fd_unix.go / fd_other.go,
// following this module's usual unix/windows build-tag split.
var newPollerBackend func() (poller.Backend, error)

func ensurePoller() error {
	if rt.poller != nil {
		return nil
	}
	if newPollerBackend == nil {
		return fmt.Errorf("%w: no poller backend registered for this platform", ErrNotsup)
	}
	backend, err := newPollerBackend()
	if err != nil {
		return fmt.Errorf("coro: poller init: %w", err)
	}
	rt.poller = poller.New(backend)
	return nil
}

// fdWait registers the calling coroutine as the sole waiter for (fd, dir)
// and parks until the descriptor is ready, the deadline expires, or the
// coroutine is canceled. Returns [ErrBusy] if
// another coroutine already waits on this exact (fd, dir) pair.
func fdWait(fd int, dir poller.Direction, deadline int64) error {
	c := currentCoro()
	if c.cancelRequested {
		return ErrCanceled
	}
	if err := ensurePoller(); err != nil {
		return err
	}
	if err := rt.poller.Register(fd, dir, int64(c.handle)); err != nil {
		return err
	}
	c.pendingCleanup = append(c.pendingCleanup, func() {
		rt.poller.Unregister(fd, dir)
	})
	reason := rt.park(deadline)
	switch reason {
	case wakeNormal:
		return nil
	case wakeTimedout:
		return ErrTimedout
	case wakeCanceled:
		return ErrCanceled
	case wakeFdClosed:
		return ErrBadf
	default:
		return ErrTimedout
	}
}

// FdIn waits for fd to become readable.
func FdIn(fd int, deadline int64) error {
	return fdWait(fd, poller.In, deadline)
}

// FdOut waits for fd to become writable.
func FdOut(fd int, deadline int64) error {
	return fdWait(fd, poller.Out, deadline)
}

// FdClean evicts every poller registration for fd and wakes their
// waiters with [ErrBadf], mirroring libdill's "descriptor about to be
// closed" contract: a coroutine must never be
// left parked on a descriptor its owner has torn down.
func FdClean(fd int) {
	if rt.poller == nil {
		return
	}
	for _, tok := range rt.poller.Clean(fd) {
		h := Handle(tok)
		c := coroOf(h)
		if c == nil || c.status != statusWaiting {
			continue
		}
		rt.wake(h, wakeFdClosed)
	}
}
