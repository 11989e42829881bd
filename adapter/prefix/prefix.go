//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: libdill's prefix_attach, expressed over this module's
// socket.Bytestream/Message capability traits.
//

// Package prefix implements length-prefix message framing over a
// [socket.Bytestream] underlier, producing a [socket.Message].
package prefix

import (
	"encoding/binary"

	coro "github.com/coro-rt/coro"
	"github.com/coro-rt/coro/socket"
)

// HeaderLen is the number of bytes reserved for the big-endian frame
// length header.
type HeaderLen int

const (
	// Header1 uses a single-byte length header (frames up to 255 bytes).
	Header1 HeaderLen = 1
	// Header2 uses a two-byte length header (frames up to 65535 bytes).
	Header2 HeaderLen = 2
	// Header4 uses a four-byte length header.
	Header4 HeaderLen = 4
	// Header8 uses an eight-byte length header.
	Header8 HeaderLen = 8
)

// Options configures [Attach].
type Options struct {
	// HeaderLen selects the frame length header width. Zero defaults
	// to [Header2].
	HeaderLen HeaderLen
}

// Framed is a [socket.Message] that frames messages over a
// [socket.Bytestream] underlier with a fixed-width length header.
type Framed struct {
	underlier  socket.Bytestream
	headerLen  int
	pending    []byte // header peeked but not yet consumed by a big-enough MRecv
	sendClosed bool
}

var _ socket.Message = &Framed{}
var _ socket.Detacher[socket.Bytestream] = &Framed{}

// Attach wraps underlier with length-prefix framing.
func Attach(underlier socket.Bytestream, opts Options) *Framed {
	headerLen := int(opts.HeaderLen)
	if headerLen == 0 {
		headerLen = int(Header2)
	}
	return &Framed{underlier: underlier, headerLen: headerLen}
}

// MSend implements [socket.Message].
func (f *Framed) MSend(buf []byte, deadline int64) error {
	if f.sendClosed {
		return coro.ErrPipe
	}
	header := f.encodeHeader(len(buf))
	if err := f.underlier.BSend(header, deadline); err != nil {
		return err
	}
	return f.underlier.BSend(buf, deadline)
}

// MSendl implements [socket.Message].
func (f *Framed) MSendl(list socket.IOList, deadline int64) error {
	return f.MSend(list.Flatten(), deadline)
}

// MRecv implements [socket.Message].
//
// If buf is too small to hold the pending message, the raw header
// bytes stay cached in f.pending so a retry with a bigger buffer does
// not re-read (and thus desynchronize) the wire.
func (f *Framed) MRecv(buf []byte, deadline int64) (int, error) {
	n, err := f.peekLen(deadline)
	if err != nil {
		return 0, err
	}
	if n > len(buf) {
		return 0, coro.ErrMsgsize
	}
	if err := f.underlier.BRecv(buf[:n], deadline); err != nil {
		return 0, err
	}
	f.pending = nil
	return n, nil
}

// MRecvl implements [socket.Message].
func (f *Framed) MRecvl(list socket.IOList, deadline int64) (int, error) {
	n, err := f.peekLen(deadline)
	if err != nil {
		return 0, err
	}
	if n > list.Len() {
		return 0, coro.ErrMsgsize
	}
	buf := make([]byte, n)
	if err := f.underlier.BRecv(buf, deadline); err != nil {
		return 0, err
	}
	f.pending = nil
	off := 0
	for _, chunk := range list {
		if off >= n {
			break
		}
		off += copy(chunk, buf[off:n])
	}
	return n, nil
}

// peekLen reads (or returns the already-cached) frame length header
// without consuming the payload, so an ErrMsgsize caller may retry
// with a larger buffer instead of losing the frame.
func (f *Framed) peekLen(deadline int64) (int, error) {
	if f.pending != nil {
		return f.decodeHeader(f.pending), nil
	}
	header := make([]byte, f.headerLen)
	if err := f.underlier.BRecv(header, deadline); err != nil {
		return 0, err
	}
	f.pending = header
	return f.decodeHeader(header), nil
}

func (f *Framed) encodeHeader(n int) []byte {
	buf := make([]byte, f.headerLen)
	switch f.headerLen {
	case 1:
		buf[0] = byte(n)
	case 2:
		binary.BigEndian.PutUint16(buf, uint16(n))
	case 4:
		binary.BigEndian.PutUint32(buf, uint32(n))
	case 8:
		binary.BigEndian.PutUint64(buf, uint64(n))
	}
	return buf
}

func (f *Framed) decodeHeader(buf []byte) int {
	switch f.headerLen {
	case 1:
		return int(buf[0])
	case 2:
		return int(binary.BigEndian.Uint16(buf))
	case 4:
		return int(binary.BigEndian.Uint32(buf))
	case 8:
		return int(binary.BigEndian.Uint64(buf))
	}
	return 0
}

// Done implements [socket.Message] by half-closing the underlier.
func (f *Framed) Done(deadline int64) error {
	f.sendClosed = true
	return f.underlier.Done(deadline)
}

// Close implements [socket.Message].
func (f *Framed) Close() error {
	return f.underlier.Close()
}

// Detach implements [socket.Detacher], returning the underlier. A
// pending peeked header that hasn't been consumed is discarded; the
// caller inherits a stream positioned mid-frame in that case, matching
// this adapter's documented desync risk on a detach performed while a
// frame is only partially received.
func (f *Framed) Detach(deadline int64) (socket.Bytestream, error) {
	return f.underlier, nil
}
