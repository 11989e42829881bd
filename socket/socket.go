// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: the virtual socket framework this runtime needs — a
// capability trait/interface with two methods each for bytestream and
// message, plus done/detach/close.
//

// Package socket defines the capability interfaces every protocol
// adapter in this module implements: Bytestream for byte-exact streams
// and Message for boundary-preserving exchanges. Adapters stack on top
// of each other by holding their underlier as one of these interfaces.
package socket

import "io"

// IOList is a scatter/gather buffer list, used by the *l variants of
// Bytestream and Message to minimize copies on the fast path.
type IOList [][]byte

// Len returns the total byte length across all chunks.
func (l IOList) Len() int {
	n := 0
	for _, b := range l {
		n += len(b)
	}
	return n
}

// Flatten copies every chunk into one contiguous slice.
func (l IOList) Flatten() []byte {
	out := make([]byte, 0, l.Len())
	for _, b := range l {
		out = append(out, b...)
	}
	return out
}

// Bytestream is a byte-exact stream capability: bsend,
// brecv, bsendl, brecvl. brecv fills buf completely or fails; a short
// read never happens silently.
type Bytestream interface {
	// BSend writes every byte of buf, blocking until done, the deadline
	// expires, or the calling coroutine is cancelled.
	BSend(buf []byte, deadline int64) error

	// BRecv fills buf completely. A peer-closed stream
	// surfaces as [io.EOF] (stream still readable to end) or an error
	// wrapping it once fully drained; an established but now-broken
	// stream surfaces as the core's ErrPipe.
	BRecv(buf []byte, deadline int64) error

	// BSendl is the gather-write variant of BSend.
	BSendl(list IOList, deadline int64) error

	// BRecvl is the scatter-read variant of BRecv.
	BRecvl(list IOList, deadline int64) error

	// Done half-closes the stream for writing, signaling EOF to the
	// peer while still permitting reads.
	Done(deadline int64) error

	// Close releases the underlying resource. Closing mid-operation is
	// best-effort: outstanding operations fail but teardown always
	// proceeds.
	Close() error
}

// Message is a boundary-preserving capability: msend,
// mrecv, msendl, mrecvl. mrecv into an undersized buffer fails with
// ErrMsgsize and the message remains pending.
type Message interface {
	// MSend transmits buf as one message.
	MSend(buf []byte, deadline int64) error

	// MRecv receives one message into buf, returning the number of
	// bytes written. If buf is smaller than the pending message, it
	// returns (0, ErrMsgsize) and the message stays queued.
	MRecv(buf []byte, deadline int64) (int, error)

	// MSendl is the gather-write variant of MSend.
	MSendl(list IOList, deadline int64) error

	// MRecvl is the scatter-read variant of MRecv.
	MRecvl(list IOList, deadline int64) (int, error)

	// Done half-closes the message stream for sending.
	Done(deadline int64) error

	// Close releases the underlying resource.
	Close() error
}

// Detacher is implemented by adapters that can be unstacked from their
// underlier, returning it intact.
type Detacher[Underlier any] interface {
	// Detach tears down this adapter's own protocol state within
	// deadline and returns the underlier, which becomes usable again.
	Detach(deadline int64) (Underlier, error)
}

// errShortRead is returned internally by scatter/gather helpers; socket
// implementations translate it to their own ErrPipe/io.EOF convention.
var errShortRead = io.ErrUnexpectedEOF

// ShortReadError exposes errShortRead for adapters that need to compare
// against it directly instead of wrapping io.ErrUnexpectedEOF themselves.
func ShortReadError() error { return errShortRead }
