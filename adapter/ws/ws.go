// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: this module's ConnectFunc/ObserveConnFunc span-logging
// convention, retargeted onto github.com/gorilla/websocket's client/
// server upgrade handshake. WS framing itself is out of scope; this
// package only owns handshake sequencing and message-boundary mapping.
//

// Package ws implements a Bytestream-to-Message adapter over
// github.com/gorilla/websocket, restacking a completed upgrade onto
// this module's [socket.Message] capability.
package ws

import (
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	coro "github.com/coro-rt/coro"
	"github.com/coro-rt/coro/socket"
)

// Kind tags whether a received message arrived as a text or binary
// WebSocket frame, matching gorilla/websocket's own frame type values.
type Kind int

const (
	// KindText marks a text frame.
	KindText Kind = websocket.TextMessage
	// KindBinary marks a binary frame.
	KindBinary Kind = websocket.BinaryMessage
)

// netConnShim adapts a [socket.Bytestream] to [net.Conn], the type
// gorilla/websocket's dialer and upgrader require. Deadlines set via
// SetDeadline/SetReadDeadline/SetWriteDeadline are translated to this
// runtime's millisecond clock via [coro.MillisDeadline] and applied to
// the next Read/Write call.
type netConnShim struct {
	underlier   socket.Bytestream
	readDeadln  int64
	writeDeadln int64
}

func newNetConnShim(underlier socket.Bytestream) *netConnShim {
	return &netConnShim{underlier: underlier, readDeadln: -1, writeDeadln: -1}
}

func (s *netConnShim) Read(b []byte) (int, error) {
	if err := s.underlier.BRecv(b, s.readDeadln); err != nil {
		return 0, err
	}
	return len(b), nil
}

func (s *netConnShim) Write(b []byte) (int, error) {
	if err := s.underlier.BSend(b, s.writeDeadln); err != nil {
		return 0, err
	}
	return len(b), nil
}

func (s *netConnShim) Close() error { return s.underlier.Close() }

func (s *netConnShim) LocalAddr() net.Addr  { return shimAddr{} }
func (s *netConnShim) RemoteAddr() net.Addr { return shimAddr{} }

func (s *netConnShim) SetDeadline(t time.Time) error {
	s.readDeadln = coro.MillisDeadline(t)
	s.writeDeadln = s.readDeadln
	return nil
}

func (s *netConnShim) SetReadDeadline(t time.Time) error {
	s.readDeadln = coro.MillisDeadline(t)
	return nil
}

func (s *netConnShim) SetWriteDeadline(t time.Time) error {
	s.writeDeadln = coro.MillisDeadline(t)
	return nil
}

var _ net.Conn = &netConnShim{}

// shimAddr is a minimal net.Addr stand-in; the underlying Bytestream
// adapters (adapter/tcp, adapter/ipc, ...) already log real addresses
// at their own layer, so this shim does not need to surface them too.
type shimAddr struct{}

func (shimAddr) Network() string { return "coro" }
func (shimAddr) String() string  { return "coro" }

// Conn is a [socket.Message] wrapping a handshaked *websocket.Conn.
type Conn struct {
	ws *websocket.Conn
}

var _ socket.Message = &Conn{}

// DialOptions configures the client-side [Dial].
type DialOptions struct {
	// RequestHeader is sent with the upgrade request.
	RequestHeader http.Header
}

// Dial performs a client-side WebSocket upgrade over underlier within
// deadline, connecting to rawURL (a ws:// or wss:// URL). The TCP/TLS
// connection itself must already be established by composing underlier
// from adapter/tcp or adapter/tls before calling Dial.
func Dial(underlier socket.Bytestream, rawURL string, opts DialOptions, deadline int64) (*Conn, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	shim := newNetConnShim(underlier)
	shim.readDeadln = deadline
	shim.writeDeadln = deadline
	wsConn, _, err := websocket.NewClient(shim, u, opts.RequestHeader, 0, 0)
	if err != nil {
		return nil, err
	}
	return &Conn{ws: wsConn}, nil
}

// Upgrade performs a server-side WebSocket upgrade within deadline,
// replying to the given HTTP request. gorilla/websocket's Upgrader
// hijacks w's own underlying connection, so (unlike [Dial]) no
// [socket.Bytestream] underlier is needed here; deadline only bounds
// the handshake itself.
func Upgrade(w http.ResponseWriter, r *http.Request, deadline int64) (*Conn, error) {
	upgrader := websocket.Upgrader{
		HandshakeTimeout: time.Until(coro.DeadlineTime(deadline)),
	}
	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return &Conn{ws: wsConn}, nil
}

// MSend transmits buf as one binary-frame message.
func (c *Conn) MSend(buf []byte, deadline int64) error {
	if err := c.ws.SetWriteDeadline(coro.DeadlineTime(deadline)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.BinaryMessage, buf)
}

// MRecv receives one message into buf, returning [coro.ErrMsgsize] if
// buf is too small. The received frame's [Kind] is discarded by this
// method; use [Conn.MRecvKind] to inspect it.
func (c *Conn) MRecv(buf []byte, deadline int64) (int, error) {
	n, _, err := c.MRecvKind(buf, deadline)
	return n, err
}

// MRecvKind is like MRecv but also returns the frame's [Kind] (text or
// binary), for callers that need to distinguish the two instead of
// treating every frame as an opaque byte message.
func (c *Conn) MRecvKind(buf []byte, deadline int64) (int, Kind, error) {
	if err := c.ws.SetReadDeadline(coro.DeadlineTime(deadline)); err != nil {
		return 0, 0, err
	}
	kind, data, err := c.ws.ReadMessage()
	if err != nil {
		return 0, 0, err
	}
	if len(data) > len(buf) {
		return 0, Kind(kind), coro.ErrMsgsize
	}
	return copy(buf, data), Kind(kind), nil
}

// MSendl implements [socket.Message].
func (c *Conn) MSendl(list socket.IOList, deadline int64) error {
	return c.MSend(list.Flatten(), deadline)
}

// MRecvl implements [socket.Message].
func (c *Conn) MRecvl(list socket.IOList, deadline int64) (int, error) {
	buf := make([]byte, list.Len())
	n, err := c.MRecv(buf, deadline)
	if err != nil {
		return 0, err
	}
	off := 0
	for _, chunk := range list {
		if off >= n {
			break
		}
		off += copy(chunk, buf[off:n])
	}
	return n, nil
}

// Done sends a close frame, half-closing the WebSocket for future
// sends.
func (c *Conn) Done(deadline int64) error {
	if err := c.ws.SetWriteDeadline(coro.DeadlineTime(deadline)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// Close implements [socket.Message].
func (c *Conn) Close() error {
	return c.ws.Close()
}
