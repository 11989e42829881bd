// SPDX-License-Identifier: GPL-3.0-or-later

package socks5

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coro-rt/coro/socket"
)

// blockingConn is a [socket.Bytestream] whose BRecv blocks until Close
// is called, simulating a handshake reply that never arrives until the
// underlier is torn down from another goroutine.
type blockingConn struct {
	closed chan struct{}
}

func newBlockingConn() *blockingConn { return &blockingConn{closed: make(chan struct{})} }

func (c *blockingConn) BSend(buf []byte, deadline int64) error { return nil }

func (c *blockingConn) BRecv(buf []byte, deadline int64) error {
	<-c.closed
	return io.ErrClosedPipe
}

func (c *blockingConn) BSendl(list socket.IOList, deadline int64) error { return nil }

func (c *blockingConn) BRecvl(list socket.IOList, deadline int64) error {
	<-c.closed
	return io.ErrClosedPipe
}

func (c *blockingConn) Done(deadline int64) error { return nil }

func (c *blockingConn) Close() error {
	select {
	case <-c.closed:
	default:
		close(c.closed)
	}
	return nil
}

var _ socket.Bytestream = &blockingConn{}

func TestForwardDialerReturnsGivenConn(t *testing.T) {
	shim := newNetConnShim(nil, -1)
	fd := forwardDialer{conn: shim}

	conn, err := fd.Dial("tcp", "ignored:0")
	require.NoError(t, err)
	assert.Same(t, shim, conn)
}

func TestShimAddr(t *testing.T) {
	var a shimAddr
	assert.Equal(t, "coro", a.Network())
	assert.Equal(t, "coro", a.String())
}

func TestNetConnShimDefaultDeadline(t *testing.T) {
	s := newNetConnShim(nil, 1234)
	assert.Equal(t, int64(1234), s.deadline)
}

func TestCloseMidHandshakeUnblocksAttach(t *testing.T) {
	underlier := newBlockingConn()

	done := make(chan error, 1)
	go func() {
		_, err := Attach(underlier, "example.invalid:80", nil, -1)
		done <- err
	}()

	require.NoError(t, underlier.Close())

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Attach did not return after underlier was closed")
	}
}

var _ net.Addr = shimAddr{}
