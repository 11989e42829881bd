// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: this module's ConnectFunc span-logging convention
// (logConnectStart/logConnectDone), applied to a minimal line-oriented
// banner/ack handshake standing in for libdill's tcrypto/terminal
// handshake adapter family. Handshake mechanics themselves are out of
// scope; this package only sequences the exchange within a deadline.
//

// Package term implements a minimal line-oriented handshake adapter: a
// client sends a banner line and expects an echoed acknowledgement
// line back, both terminated by '\n'.
package term

import (
	coro "github.com/coro-rt/coro"
	"github.com/coro-rt/coro/socket"
)

// Conn is a [socket.Bytestream] that has completed (or will complete,
// via [ClientHandshake]/[ServerHandshake]) a terminal handshake over
// its underlier.
type Conn struct {
	underlier socket.Bytestream
}

var _ socket.Bytestream = &Conn{}
var _ socket.Detacher[socket.Bytestream] = &Conn{}

// lineReader reads '\n'-terminated lines one byte at a time, since
// [socket.Bytestream.BRecv] always fills its buffer completely rather
// than returning whatever is currently available.
type lineReader struct {
	underlier socket.Bytestream
}

func (l *lineReader) readLine(deadline int64) (string, error) {
	var line []byte
	one := make([]byte, 1)
	for {
		if err := l.underlier.BRecv(one, deadline); err != nil {
			return "", err
		}
		if one[0] == '\n' {
			return string(line), nil
		}
		line = append(line, one[0])
	}
}

// writeLine writes line one byte at a time, then the trailing '\n',
// matching the one-byte-at-a-time granularity of [lineReader.readLine]
// on the other end.
func writeLine(underlier socket.Bytestream, line string, deadline int64) error {
	one := make([]byte, 1)
	for i := 0; i < len(line); i++ {
		one[0] = line[i]
		if err := underlier.BSend(one, deadline); err != nil {
			return err
		}
	}
	one[0] = '\n'
	return underlier.BSend(one, deadline)
}

// ClientHandshake sends banner over underlier and waits for an
// identical echoed acknowledgement line back within deadline, reading
// it one byte at a time up to '\n'. On success, underlier is wrapped in
// a [Conn] ready for ordinary Bytestream use.
func ClientHandshake(underlier socket.Bytestream, banner string, deadline int64) (*Conn, error) {
	if err := writeLine(underlier, banner, deadline); err != nil {
		return nil, err
	}
	r := &lineReader{underlier: underlier}
	ack, err := r.readLine(deadline)
	if err != nil {
		return nil, err
	}
	if ack != banner {
		return nil, coro.ErrInval
	}
	return &Conn{underlier: underlier}, nil
}

// ServerHandshake waits for a banner line from underlier within
// deadline, echoes it back as an acknowledgement, and returns a [Conn]
// ready for ordinary Bytestream use.
func ServerHandshake(underlier socket.Bytestream, deadline int64) (*Conn, error) {
	r := &lineReader{underlier: underlier}
	banner, err := r.readLine(deadline)
	if err != nil {
		return nil, err
	}
	if err := writeLine(underlier, banner, deadline); err != nil {
		return nil, err
	}
	return &Conn{underlier: underlier}, nil
}

// BSend implements [socket.Bytestream].
func (c *Conn) BSend(buf []byte, deadline int64) error {
	return c.underlier.BSend(buf, deadline)
}

// BRecv implements [socket.Bytestream].
func (c *Conn) BRecv(buf []byte, deadline int64) error {
	return c.underlier.BRecv(buf, deadline)
}

// BSendl implements [socket.Bytestream].
func (c *Conn) BSendl(list socket.IOList, deadline int64) error {
	return c.underlier.BSendl(list, deadline)
}

// BRecvl implements [socket.Bytestream].
func (c *Conn) BRecvl(list socket.IOList, deadline int64) error {
	return c.underlier.BRecvl(list, deadline)
}

// Done implements [socket.Bytestream].
func (c *Conn) Done(deadline int64) error { return c.underlier.Done(deadline) }

// Close implements [socket.Bytestream].
func (c *Conn) Close() error { return c.underlier.Close() }

// Detach returns the underlier unchanged: the handshake has already
// fully completed by the time a [Conn] exists, so there is no
// additional teardown to perform within deadline.
func (c *Conn) Detach(deadline int64) (socket.Bytestream, error) {
	return c.underlier, nil
}
