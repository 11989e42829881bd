// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: the scheduler, poller integration, and deadline tree
// this runtime needs, built on the goroutine baton-handoff idiom demonstrated by
// the tcard/coro reference file in _examples/other_examples/ (a single
// resume/yield channel pair per coroutine, generalized here from a
// pairwise driver/coroutine relationship to an N-way ready queue).
//

package coro

import (
	"time"

	"github.com/coro-rt/coro/internal/rbtree"
	"github.com/coro-rt/coro/poller"
)

// waitReason records why a parked coroutine was woken.
type waitReason int

const (
	wakeNormal waitReason = iota
	wakeTimedout
	wakeCanceled
	wakeFdClosed
)

// fdBackend is the subset of [*poller.Poller] the scheduler and the
// Fd* primitives need. Tokens are Handle values narrowed to int64,
// which is what [*poller.Poller] natively speaks.
type fdBackend interface {
	Register(fd int, dir poller.Direction, token int64) error
	Unregister(fd int, dir poller.Direction)
	Clean(fd int) []int64
	Wait(timeoutMs int64) []int64
}

// runtimeState is the process-scoped scheduler singleton. It is touched
// only by whichever coroutine currently holds the baton (see dispatch),
// so it needs no internal locking.
type runtimeState struct {
	handles   *handleTable
	ready     []Handle
	deadlines rbtree.Tree[Handle]
	current   Handle
	startMono time.Time

	cfg    *Config
	logger SLogger
	errCls ErrClassifier

	poller fdBackend
}

var rt = newRuntimeState()

func newRuntimeState() *runtimeState {
	return &runtimeState{
		handles:   newHandleTable(),
		current:   invalidHandle,
		startMono: time.Now(),
		cfg:       NewConfig(),
		logger:    DefaultSLogger(),
		errCls:    DefaultErrClassifier,
	}
}

// Now returns the runtime's monotonic clock in milliseconds. Guaranteed non-decreasing across any two successive calls
// because it is derived from [time.Since], which uses Go's monotonic
// clock reading regardless of wall-clock adjustments.
func Now() int64 {
	return time.Since(rt.startMono).Milliseconds()
}

// DeadlineTime converts an absolute deadline expressed in this runtime's
// own millisecond clock (as returned by [Now] and accepted throughout
// this package's blocking calls) into a wall-clock [time.Time], for
// adapters that must bridge to a stdlib API expressed in terms of
// SetDeadline rather than FdIn/FdOut. A negative deadline (this
// package's "block forever" convention) maps to the zero [time.Time],
// matching net.Conn's own "no deadline" convention.
func DeadlineTime(deadline int64) time.Time {
	if deadline < 0 {
		return time.Time{}
	}
	return rt.startMono.Add(time.Duration(deadline) * time.Millisecond)
}

// MillisDeadline is the inverse of [DeadlineTime]: it converts a
// wall-clock deadline as accepted by stdlib SetDeadline-style APIs into
// this runtime's millisecond clock, for adapters that wrap a net.Conn
// shim around a [socket.Bytestream] underlier. The zero [time.Time]
// (stdlib's "no deadline") maps to -1, this package's "block forever".
func MillisDeadline(t time.Time) int64 {
	if t.IsZero() {
		return -1
	}
	return int64(t.Sub(rt.startMono) / time.Millisecond)
}

func coroOf(h Handle) *coroutine {
	e, err := rt.handles.lookup(h)
	if err != nil {
		return nil
	}
	c, _ := e.value.(*coroutine)
	return c
}

// currentCoro returns the coroutine object for whichever goroutine is
// logically "running" right now, lazily registering the calling
// goroutine as the implicit root coroutine the first time it blocks.
// This mirrors libdill's implicit main fiber: code that never calls
// [Go] can still call [Msleep], [ChSend], etc.
func currentCoro() *coroutine {
	if rt.current == invalidHandle {
		c := &coroutine{status: statusRunning, resume: make(chan struct{}, 1)}
		h := rt.handles.alloc(kindCoroutine, c, func() error { return nil })
		c.handle = h
		rt.current = h
	}
	return coroOf(rt.current)
}

// enqueueReady appends h to the tail of the ready queue.
func (r *runtimeState) enqueueReady(h Handle) {
	r.ready = append(r.ready, h)
}

// wake transitions a waiting coroutine to ready, recording why. It
// unlinks any outstanding deadline node and runs every cleanup the
// coroutine registered for its other pending clauses.
func (r *runtimeState) wake(h Handle, reason waitReason) {
	c := coroOf(h)
	if c == nil || c.status != statusWaiting {
		return
	}
	if c.deadlineNode != nil {
		r.deadlines.Erase(c.deadlineNode)
		c.deadlineNode = nil
	}
	for _, u := range c.pendingCleanup {
		u()
	}
	c.pendingCleanup = nil
	c.wakeReason = reason
	c.status = statusReady
	r.enqueueReady(h)
}

// park suspends the current coroutine until it is woken by [runtimeState.wake]
// or by deadline/poller expiry, returning the reason it resumed. The
// caller must already have registered whatever wait-set entries it needs
// (channel queue slot, poller key) and attached their cleanups to
// c.pendingCleanup before calling park with a non-zero deadline.
func (r *runtimeState) park(deadline int64) waitReason {
	me := r.current
	c := coroOf(me)
	c.status = statusWaiting
	c.wakeReason = wakeNormal
	if deadline >= 0 {
		c.deadlineNode = r.deadlines.Insert(deadline, me)
	}
	r.dispatch()
	c.status = statusRunning
	return c.wakeReason
}

// dispatch hands the baton to the next ready coroutine, blocking the
// caller's goroutine until it is resumed in turn. If no coroutine is
// ready, it consults the deadline tree and the poller.
func (r *runtimeState) dispatch() {
	me := r.current
	for {
		if len(r.ready) > 0 {
			nxt := r.ready[0]
			r.ready = r.ready[1:]
			r.current = nxt
			c := coroOf(nxt)
			if nxt == me {
				// We re-queued ourselves (plain Yield): no goroutine
				// hand-off needed, just fall through as still running.
				c.status = statusRunning
				return
			}
			c.status = statusRunning
			if c.resume != nil {
				c.resume <- struct{}{}
			}
			if me != invalidHandle {
				meC := coroOf(me)
				<-meC.resume
			}
			return
		}
		r.pollOnce()
		if len(r.ready) == 0 && r.poller == nil && r.deadlines.Empty() {
			// Nothing runnable and nothing pending: every coroutine
			// that could wake us is gone. Mirrors libdill's behavior
			// of blocking forever on a truly orphaned wait.
			select {}
		}
	}
}

// pollOnce fires expired deadlines and, if a poller backend is attached,
// blocks for readiness events up to the earliest deadline.
func (r *runtimeState) pollOnce() {
	var timeout int64 = -1
	if first := r.deadlines.First(); first != nil {
		timeout = first.Key() - Now()
		if timeout < 0 {
			timeout = 0
		}
	}

	if r.poller != nil {
		for _, tok := range r.poller.Wait(timeout) {
			r.wake(Handle(tok), wakeNormal)
		}
	} else if timeout > 0 {
		time.Sleep(time.Duration(timeout) * time.Millisecond)
	}

	now := Now()
	for first := r.deadlines.First(); first != nil && first.Key() <= now; first = r.deadlines.First() {
		h := first.Value
		r.deadlines.Erase(first)
		c := coroOf(h)
		c.deadlineNode = nil
		for _, u := range c.pendingCleanup {
			u()
		}
		c.pendingCleanup = nil
		c.wakeReason = wakeTimedout
		c.status = statusReady
		r.enqueueReady(h)
	}
}

// Msleep suspends the calling coroutine until the monotonic clock
// reaches deadline. A negative deadline blocks
// forever (barring cancellation); zero returns immediately.
func Msleep(deadline int64) error {
	c := currentCoro()
	if c.cancelRequested {
		return ErrCanceled
	}
	if deadline == 0 {
		return nil
	}
	reason := rt.park(deadline)
	switch reason {
	case wakeTimedout:
		return nil
	case wakeCanceled:
		return ErrCanceled
	default:
		return nil
	}
}
