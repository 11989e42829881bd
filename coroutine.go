// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: the prologue/epilogue, bundle, and cancellation
// machinery this runtime needs, plus the resume/yield handshake in the
// tcard/coro reference file under _examples/other_examples/, generalized
// from a single driver/coroutine pair to this package's N-way
// ready-queue scheduler.
//

package coro

import (
	"fmt"

	"github.com/coro-rt/coro/internal/rbtree"
)

// status is a coroutine's lifecycle state.
// A cancelled coroutine is represented as statusFinished with retErr set
// to [ErrCanceled]: a distinct "cancelled" status and "finished" status
// would differ only in how the coroutine stopped, which this package
// already captures precisely via retErr, so no fifth enum value is kept.
type status int

const (
	statusReady status = iota
	statusRunning
	statusWaiting
	statusFinished
)

// coroutine is the object backing a coroutine [Handle].
type coroutine struct {
	handle Handle
	bundle Handle // invalidHandle if not a bundle member

	status status
	resume chan struct{} // nil for the implicit root coroutine

	cancelRequested bool
	wakeReason      waitReason
	deadlineNode    *rbtree.Node[Handle]
	pendingCleanup  []func()
	lastClause      clauseResult

	retErr   error
	finished chan struct{}

	stackMemo int // bookkeeping only; see Go/GoMem doc comment

	selfRef bool // true while runBody still holds its own keep-alive reference
}

// Go launches fn in a new coroutine and returns its handle. fn runs on a real goroutine — giving it an
// independent, Go-runtime-managed stack — but the scheduler guarantees that
// coroutine bodies never run concurrently with each other: exactly one
// holds the baton at a time.
func Go(fn func()) Handle {
	return goImpl(fn, invalidHandle, 0)
}

// GoMem launches fn in a new coroutine using a caller-supplied stack
// buffer. Go does not allow user code to supply
// the memory backing a goroutine's stack, so buf is retained only for
// size bookkeeping and is never freed by the runtime on termination —
// user-supplied stacks are never freed by this runtime, while the real
// (Go-runtime-managed) stack is reclaimed
// by the garbage collector once the coroutine goroutine exits.
func GoMem(fn func(), buf []byte) Handle {
	h := goImpl(fn, invalidHandle, len(buf))
	return h
}

func goImpl(fn func(), bundle Handle, stackLen int) Handle {
	c := &coroutine{
		bundle:    bundle,
		status:    statusReady,
		resume:    make(chan struct{}, 1),
		finished:  make(chan struct{}),
		stackMemo: stackLen,
	}
	h := rt.handles.alloc(kindCoroutine, c, func() error {
		return nil
	})
	c.handle = h
	// A coroutine keeps a reference to its own handle-table entry until
	// its body returns, so hclose on a still-running coroutine only
	// marks it cancelled instead of freeing the slot out from under the
	// ready queue or deadline tree.
	if _, err := rt.handles.dup(h); err == nil {
		c.selfRef = true
	}

	go func() {
		<-c.resume
		runBody(c, fn)
	}()

	rt.enqueueReady(h)
	return h
}

// runBody executes fn, recovering any panic as a finished-with-error
// coroutine rather than crashing the process, records [ErrCanceled] as
// the result of a cancelled coroutine, then hands the baton back to the
// scheduler.
func runBody(c *coroutine, fn func()) {
	defer func() {
		if p := recover(); p != nil {
			if c.retErr == nil {
				c.retErr = fmt.Errorf("coro: coroutine panicked: %v", p)
			}
		}
		if c.retErr == nil && c.cancelRequested {
			c.retErr = ErrCanceled
		}
		c.status = statusFinished
		close(c.finished)
		bundleMemberFinished(c)
		if c.selfRef {
			c.selfRef = false
			_, _, _ = rt.handles.close(c.handle)
		}
		finishAndHandOff(c)
	}()
	fn()
}

// finishAndHandOff marks the baton free and dispatches the next ready
// coroutine from whatever goroutine the finishing coroutine happened to
// be running on.
func finishAndHandOff(c *coroutine) {
	rt.current = invalidHandle
	if len(rt.ready) > 0 {
		nxt := rt.ready[0]
		rt.ready = rt.ready[1:]
		rt.current = nxt
		nc := coroOf(nxt)
		nc.status = statusRunning
		if nc.resume != nil {
			nc.resume <- struct{}{}
		}
	}
}

// Yield voluntarily relinquishes the processor, appending the calling
// coroutine to the tail of the ready queue.
func Yield() error {
	c := currentCoro()
	if c.cancelRequested {
		return ErrCanceled
	}
	rt.enqueueReady(rt.current)
	rt.dispatch()
	if c.cancelRequested {
		return ErrCanceled
	}
	return nil
}

// HOwn transfers ownership of h to a freshly minted handle naming the
// same object, and invalidates h: any later lookup of h (including a
// second HOwn or HClose) fails with [ErrBadf]. The reference count is
// unchanged, so closing the returned handle releases exactly the one
// reference h used to name.
func HOwn(h Handle) (Handle, error) {
	return rt.handles.reassign(h)
}

// HClose releases one reference to h. Closing a
// coroutine's handle marks it cancelled: the next time it would block —
// or immediately, if it is already blocked — its suspension fails with
// [ErrCanceled].
func HClose(h Handle) error {
	e, err := rt.handles.lookup(h)
	if err != nil {
		return err
	}
	if e.kind == kindCoroutine {
		c, _ := e.value.(*coroutine)
		if c != nil && c.status != statusFinished {
			c.cancelRequested = true
			if c.status == statusWaiting {
				rt.wake(c.handle, wakeCanceled)
			}
		}
	}
	_, destroyErr, err := rt.handles.close(h)
	if err != nil {
		return err
	}
	if destroyErr != nil {
		return fmt.Errorf("%w: %v", ErrNotsup, destroyErr)
	}
	return nil
}
