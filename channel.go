// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: the channel and selection semantics this runtime needs.
// chsend/chrecv are implemented as single-clause calls into the same
// matching engine as [Choose], mirroring libdill's own chsend/chrecv-in-terms-of-choose
// structure (original_source/libdill.h documents dill_choose as the
// single primitive underlying both).
//

package coro

import (
	"fmt"
	"math/rand/v2"
)

// ClauseOp identifies whether a [Clause] wants to send or receive.
type ClauseOp int

const (
	// OpSend means the clause wants to hand buf's bytes to a receiver.
	OpSend ClauseOp = iota
	// OpRecv means the clause wants to fill buf with a sender's bytes.
	OpRecv
)

// Clause is one arm of a [Choose] call.
type Clause struct {
	Op  ClauseOp
	Ch  Handle
	Buf []byte
}

// chanWaiter is one entry in a channel's send or receive queue.
type chanWaiter struct {
	coro      Handle
	buf       []byte
	clauseIdx int
}

// channelObj is the object backing both handles returned by [ChMake]
//.
type channelObj struct {
	sendQ []chanWaiter
	recvQ []chanWaiter
	done  bool
}

// ChMake creates an unbuffered rendezvous channel, returning two handles
// that share the same underlying object. The
// channel is destroyed once both handles are closed.
func ChMake() (a, b Handle, err error) {
	ch := &channelObj{}
	destroy := func() error { return nil }
	a = rt.handles.alloc(kindChannel, ch, destroy)
	b, err = rt.handles.dup(a)
	if err != nil {
		return invalidHandle, invalidHandle, err
	}
	return a, b, nil
}

func lookupChannel(h Handle) (*channelObj, error) {
	e, err := rt.handles.lookup(h)
	if err != nil {
		return nil, err
	}
	ch, ok := e.value.(*channelObj)
	if !ok {
		return nil, fmt.Errorf("%w: handle %d is not a channel", ErrBadf, h)
	}
	return ch, nil
}

// ChSend sends len(buf) bytes on ch, rendezvousing with a pending or
// future receiver. Equivalent to a one-clause
// [Choose].
func ChSend(ch Handle, buf []byte, deadline int64) error {
	idx, err := Choose([]Clause{{Op: OpSend, Ch: ch, Buf: buf}}, deadline)
	if idx < 0 && err == nil {
		err = ErrTimedout
	}
	return err
}

// ChRecv receives len(buf) bytes on ch, filling buf from a pending or
// future sender. Equivalent to a one-clause
// [Choose].
func ChRecv(ch Handle, buf []byte, deadline int64) error {
	idx, err := Choose([]Clause{{Op: OpRecv, Ch: ch, Buf: buf}}, deadline)
	if idx < 0 && err == nil {
		err = ErrTimedout
	}
	return err
}

// ChDone permanently closes ch for future communication. Every currently queued sender and receiver wakes with
// [ErrPipe]; so do all future send/recv attempts. Not idempotent: a
// second call also returns [ErrPipe].
func ChDone(ch Handle) error {
	c, err := lookupChannel(ch)
	if err != nil {
		return err
	}
	if c.done {
		return ErrPipe
	}
	c.done = true
	for _, w := range c.sendQ {
		wakeClauseWaiter(w, ErrPipe)
	}
	for _, w := range c.recvQ {
		wakeClauseWaiter(w, ErrPipe)
	}
	c.sendQ = nil
	c.recvQ = nil
	return nil
}

// clauseResult is stashed on a coroutine while it is parked in Choose,
// recording which clause fired and with what terminal condition.
type clauseResult struct {
	index int
	err   error
}

func wakeClauseWaiter(w chanWaiter, err error) {
	c := coroOf(w.coro)
	if c == nil {
		return
	}
	c.lastClause = clauseResult{index: w.clauseIdx, err: err}
	rt.wake(w.coro, wakeNormal)
}

// Choose scans clauses for one that is immediately satisfiable, else
// parks until exactly one fires or deadline expires. It
// returns the winning clause's index, or -1 with [ErrTimedout] /
// [ErrCanceled] if none ever fired. A winning clause may itself carry
// [ErrPipe] (its channel was done) or [ErrInval] (length mismatch with
// its rendezvous counterpart).
func Choose(clauses []Clause, deadline int64) (int, error) {
	c := currentCoro()
	if c.cancelRequested {
		return -1, ErrCanceled
	}

	if idx, matched, err := tryImmediate(clauses); matched {
		return idx, err
	}

	if deadline == 0 {
		return -1, ErrTimedout
	}

	registerClauses(c, clauses)
	reason := rt.park(deadline)
	switch reason {
	case wakeNormal:
		res := c.lastClause
		c.lastClause = clauseResult{}
		return res.index, res.err
	case wakeTimedout:
		return -1, ErrTimedout
	case wakeCanceled:
		return -1, ErrCanceled
	default:
		return -1, ErrTimedout
	}
}

// tryImmediate scans clauses left to right, collecting every one that
// is immediately satisfiable, then uniformly picks among them and performs the rendezvous synchronously.
func tryImmediate(clauses []Clause) (idx int, matched bool, err error) {
	var ready []int
	for i, cl := range clauses {
		ch, lookupErr := lookupChannel(cl.Ch)
		if lookupErr != nil {
			continue
		}
		if ch.done {
			ready = append(ready, i)
			continue
		}
		switch cl.Op {
		case OpSend:
			if len(ch.recvQ) > 0 {
				ready = append(ready, i)
			}
		case OpRecv:
			if len(ch.sendQ) > 0 {
				ready = append(ready, i)
			}
		}
	}
	if len(ready) == 0 {
		return -1, false, nil
	}
	pick := ready[0]
	if len(ready) > 1 {
		pick = ready[rand.IntN(len(ready))]
	}
	idx, err = fireClause(clauses[pick], pick)
	return idx, true, err
}

// fireClause performs the rendezvous (or epipe resolution) for a single
// immediately-ready clause, returning its index and terminal error.
func fireClause(cl Clause, idx int) (int, error) {
	ch, err := lookupChannel(cl.Ch)
	if err != nil {
		return idx, err
	}
	if ch.done {
		return idx, ErrPipe
	}
	switch cl.Op {
	case OpSend:
		peer := popFront(&ch.recvQ)
		if len(cl.Buf) != len(peer.buf) {
			wakeClauseWaiter(peer, ErrInval)
			return idx, ErrInval
		}
		copy(peer.buf, cl.Buf)
		wakeClauseWaiter(peer, nil)
		return idx, nil
	default:
		peer := popFront(&ch.sendQ)
		if len(cl.Buf) != len(peer.buf) {
			wakeClauseWaiter(peer, ErrInval)
			return idx, ErrInval
		}
		copy(cl.Buf, peer.buf)
		wakeClauseWaiter(peer, nil)
		return idx, nil
	}
}

// registerClauses enqueues a waiter for every clause on its channel and
// attaches the matching cleanup to c so that whichever clause fires
// first unlinks all the others.
func registerClauses(c *coroutine, clauses []Clause) {
	for i, cl := range clauses {
		ch, err := lookupChannel(cl.Ch)
		if err != nil {
			continue
		}
		w := chanWaiter{coro: c.handle, buf: cl.Buf, clauseIdx: i}
		switch cl.Op {
		case OpSend:
			ch.sendQ = append(ch.sendQ, w)
			c.pendingCleanup = append(c.pendingCleanup, func() {
				removeWaiter(&ch.sendQ, c.handle)
			})
		case OpRecv:
			ch.recvQ = append(ch.recvQ, w)
			c.pendingCleanup = append(c.pendingCleanup, func() {
				removeWaiter(&ch.recvQ, c.handle)
			})
		}
	}
}

func popFront(q *[]chanWaiter) chanWaiter {
	w := (*q)[0]
	*q = (*q)[1:]
	return w
}

func removeWaiter(q *[]chanWaiter, h Handle) {
	for i, w := range *q {
		if w.coro == h {
			*q = append((*q)[:i], (*q)[i+1:]...)
			return
		}
	}
}
