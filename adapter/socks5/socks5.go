// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: golang.org/x/net/proxy's SOCKS5 client dialer (already
// a dependency of this module via golang.org/x/net), retargeted to
// negotiate over an already-connected underlier instead of dialing its
// own TCP connection. SOCKS5 message exchange itself is out of scope;
// this package only wires the handshake's deadline and wraps the
// result back into this module's Bytestream capability.
//

// Package socks5 implements a Bytestream-to-Bytestream adapter that
// negotiates a SOCKS5 proxy handshake over an already-connected
// underlier.
package socks5

import (
	"net"
	"time"

	"golang.org/x/net/proxy"

	coro "github.com/coro-rt/coro"
	"github.com/coro-rt/coro/socket"
)

// Auth carries SOCKS5 username/password credentials, mirroring
// [proxy.Auth].
type Auth struct {
	User     string
	Password string
}

// forwardDialer hands back a pre-connected net.Conn regardless of the
// network/addr [proxy.SOCKS5] asks it to dial, since the underlier is
// already connected to the SOCKS5 proxy itself.
type forwardDialer struct {
	conn net.Conn
}

func (f forwardDialer) Dial(network, addr string) (net.Conn, error) {
	return f.conn, nil
}

// Attach negotiates a SOCKS5 handshake over underlier (already
// connected to a SOCKS5 proxy), asking it to relay to target
// (host:port). On success, underlier is restacked as a [socket.Bytestream]
// connected end-to-end to target.
func Attach(underlier socket.Bytestream, target string, auth *Auth, deadline int64) (socket.Bytestream, error) {
	shim := newNetConnShim(underlier, deadline)
	var proxyAuth *proxy.Auth
	if auth != nil {
		proxyAuth = &proxy.Auth{User: auth.User, Password: auth.Password}
	}
	dialer, err := proxy.SOCKS5("tcp", "", proxyAuth, forwardDialer{conn: shim})
	if err != nil {
		return nil, err
	}
	conn, err := dialer.Dial("tcp", target)
	if err != nil {
		return nil, err
	}
	if conn != net.Conn(shim) {
		return &wrappedConn{Conn: conn, underlier: underlier}, nil
	}
	return underlier, nil
}

// wrappedConn restacks a net.Conn returned by the SOCKS5 dialer back
// onto [socket.Bytestream], covering the defensive case where it
// returns something other than the exact shim handed to forwardDialer.
type wrappedConn struct {
	net.Conn
	underlier socket.Bytestream
}

var _ socket.Bytestream = &wrappedConn{}

func (w *wrappedConn) BSend(buf []byte, deadline int64) error {
	if err := w.SetWriteDeadline(coro.DeadlineTime(deadline)); err != nil {
		return err
	}
	_, err := w.Write(buf)
	return err
}

func (w *wrappedConn) BRecv(buf []byte, deadline int64) error {
	if err := w.SetReadDeadline(coro.DeadlineTime(deadline)); err != nil {
		return err
	}
	total := 0
	for total < len(buf) {
		n, err := w.Read(buf[total:])
		total += n
		if err != nil {
			if total == len(buf) {
				return nil
			}
			return socket.ShortReadError()
		}
	}
	return nil
}

func (w *wrappedConn) BSendl(list socket.IOList, deadline int64) error {
	return w.BSend(list.Flatten(), deadline)
}

func (w *wrappedConn) BRecvl(list socket.IOList, deadline int64) error {
	buf := make([]byte, list.Len())
	if err := w.BRecv(buf, deadline); err != nil {
		return err
	}
	off := 0
	for _, chunk := range list {
		off += copy(chunk, buf[off:])
	}
	return nil
}

func (w *wrappedConn) Done(deadline int64) error { return w.underlier.Done(deadline) }
func (w *wrappedConn) Close() error              { return w.Conn.Close() }

// netConnShim adapts a [socket.Bytestream] to [net.Conn] so it can be
// handed to [golang.org/x/net/proxy]'s SOCKS5 client, which only speaks
// net.Conn.
type netConnShim struct {
	underlier socket.Bytestream
	deadline  int64
}

var _ net.Conn = &netConnShim{}

func newNetConnShim(underlier socket.Bytestream, deadline int64) *netConnShim {
	return &netConnShim{underlier: underlier, deadline: deadline}
}

func (s *netConnShim) Read(b []byte) (int, error) {
	if err := s.underlier.BRecv(b, s.deadline); err != nil {
		return 0, err
	}
	return len(b), nil
}

func (s *netConnShim) Write(b []byte) (int, error) {
	if err := s.underlier.BSend(b, s.deadline); err != nil {
		return 0, err
	}
	return len(b), nil
}

func (s *netConnShim) Close() error                     { return s.underlier.Close() }
func (s *netConnShim) LocalAddr() net.Addr               { return shimAddr{} }
func (s *netConnShim) RemoteAddr() net.Addr              { return shimAddr{} }
func (s *netConnShim) SetDeadline(t time.Time) error     { s.deadline = coro.MillisDeadline(t); return nil }
func (s *netConnShim) SetReadDeadline(t time.Time) error { s.deadline = coro.MillisDeadline(t); return nil }
func (s *netConnShim) SetWriteDeadline(t time.Time) error {
	s.deadline = coro.MillisDeadline(t)
	return nil
}

type shimAddr struct{}

func (shimAddr) Network() string { return "coro" }
func (shimAddr) String() string  { return "coro" }
