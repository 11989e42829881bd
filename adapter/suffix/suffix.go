// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: nabbar/golib's ioutils/delim buffering discipline
// (UnRead/carry-over on short reads), rebuilt on this module's
// byte-exact Bytestream capability instead of io.Reader — since BRecv
// always fills its buffer completely rather than returning whatever is
// currently available, the delimiter scan reads one byte at a time
// instead of delim's bufio.Reader.ReadBytes.
//

// Package suffix implements delimiter-terminated message framing over a
// [socket.Bytestream] underlier, producing a [socket.Message].
package suffix

import (
	coro "github.com/coro-rt/coro"
	"github.com/coro-rt/coro/socket"
)

// DefaultDelimiter is the delimiter byte used when Options.Delimiter is
// left at its zero value.
const DefaultDelimiter = '\n'

// Options configures [Attach].
type Options struct {
	// Delimiter is the message-terminating byte. Zero defaults to
	// [DefaultDelimiter].
	Delimiter byte
	// MaxLen bounds the number of bytes read while scanning for the
	// delimiter, guarding against an unbounded peer. Zero means no bound.
	MaxLen int
}

// Framed is a [socket.Message] that frames messages over a
// [socket.Bytestream] underlier, terminated by a single delimiter byte.
type Framed struct {
	underlier  socket.Bytestream
	delim      byte
	maxLen     int
	carry      []byte // bytes read past the last delimiter, not yet returned
	sendClosed bool
}

var _ socket.Message = &Framed{}
var _ socket.Detacher[socket.Bytestream] = &Framed{}

// Attach wraps underlier with delimiter framing.
func Attach(underlier socket.Bytestream, opts Options) *Framed {
	delim := opts.Delimiter
	if delim == 0 {
		delim = DefaultDelimiter
	}
	return &Framed{underlier: underlier, delim: delim, maxLen: opts.MaxLen}
}

// MSend transmits buf followed by the delimiter byte as one message.
// buf must not itself contain the delimiter, or the receiver will split
// it into two messages. Bytes are written one at a time so the send
// side imposes no framing assumption beyond byte-exactness on the
// underlier, mirroring the one-byte-at-a-time scan [Framed.MRecv] does.
func (f *Framed) MSend(buf []byte, deadline int64) error {
	if f.sendClosed {
		return coro.ErrPipe
	}
	one := make([]byte, 1)
	for _, b := range buf {
		one[0] = b
		if err := f.underlier.BSend(one, deadline); err != nil {
			return err
		}
	}
	one[0] = f.delim
	return f.underlier.BSend(one, deadline)
}

// MSendl implements [socket.Message].
func (f *Framed) MSendl(list socket.IOList, deadline int64) error {
	return f.MSend(list.Flatten(), deadline)
}

// MRecv receives one delimiter-terminated message (delimiter excluded)
// into buf. If the message is longer than buf, [coro.ErrMsgsize] is
// returned and the bytes already scanned are retained in an internal
// carry-over buffer so a retry with a bigger buffer picks up where the
// scan left off rather than re-reading the wire.
func (f *Framed) MRecv(buf []byte, deadline int64) (int, error) {
	msg, err := f.scan(deadline)
	if err != nil {
		return 0, err
	}
	if len(msg) > len(buf) {
		f.carry = msg
		return 0, coro.ErrMsgsize
	}
	f.carry = nil
	return copy(buf, msg), nil
}

// MRecvl implements [socket.Message].
func (f *Framed) MRecvl(list socket.IOList, deadline int64) (int, error) {
	msg, err := f.scan(deadline)
	if err != nil {
		return 0, err
	}
	if len(msg) > list.Len() {
		f.carry = msg
		return 0, coro.ErrMsgsize
	}
	f.carry = nil
	off := 0
	for _, chunk := range list {
		if off >= len(msg) {
			break
		}
		off += copy(chunk, msg[off:])
	}
	return len(msg), nil
}

// scan returns the next delimiter-terminated message, either replaying
// f.carry from a previous too-small MRecv or reading fresh bytes one at
// a time until the delimiter is found.
func (f *Framed) scan(deadline int64) ([]byte, error) {
	if f.carry != nil {
		return f.carry, nil
	}
	msg := make([]byte, 0, 64)
	one := make([]byte, 1)
	for {
		if f.maxLen > 0 && len(msg) >= f.maxLen {
			return nil, coro.ErrMsgsize
		}
		if err := f.underlier.BRecv(one, deadline); err != nil {
			return nil, err
		}
		if one[0] == f.delim {
			return msg, nil
		}
		msg = append(msg, one[0])
	}
}

// Done half-closes the underlier for writing.
func (f *Framed) Done(deadline int64) error {
	f.sendClosed = true
	return f.underlier.Done(deadline)
}

// Close implements [socket.Message].
func (f *Framed) Close() error {
	return f.underlier.Close()
}

// Detach implements [socket.Detacher], returning the underlier. Any
// scanned-but-undelivered carry-over bytes are discarded; a detach
// performed while a message is only partially scanned leaves the
// stream positioned mid-message for the caller, same as [adapter/prefix].
func (f *Framed) Detach(deadline int64) (socket.Bytestream, error) {
	return f.underlier, nil
}
