// SPDX-License-Identifier: GPL-3.0-or-later

package term

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coro "github.com/coro-rt/coro"
	"github.com/coro-rt/coro/socket"
)

type pipeConn struct {
	out, in coro.Handle
}

var _ socket.Bytestream = &pipeConn{}

func newPipePair() (a, b *pipeConn, err error) {
	c1a, c1b, err := coro.ChMake()
	if err != nil {
		return nil, nil, err
	}
	c2a, c2b, err := coro.ChMake()
	if err != nil {
		return nil, nil, err
	}
	return &pipeConn{out: c1a, in: c2b}, &pipeConn{out: c2a, in: c1b}, nil
}

func (p *pipeConn) BSend(buf []byte, deadline int64) error {
	cp := append([]byte(nil), buf...)
	return coro.ChSend(p.out, cp, deadline)
}

func (p *pipeConn) BRecv(buf []byte, deadline int64) error {
	got := make([]byte, len(buf))
	if err := coro.ChRecv(p.in, got, deadline); err != nil {
		return err
	}
	copy(buf, got)
	return nil
}

func (p *pipeConn) BSendl(list socket.IOList, deadline int64) error {
	return p.BSend(list.Flatten(), deadline)
}

func (p *pipeConn) BRecvl(list socket.IOList, deadline int64) error {
	buf := make([]byte, list.Len())
	if err := p.BRecv(buf, deadline); err != nil {
		return err
	}
	off := 0
	for _, chunk := range list {
		off += copy(chunk, buf[off:])
	}
	return nil
}

func (p *pipeConn) Done(deadline int64) error { return coro.ChDone(p.out) }
func (p *pipeConn) Close() error              { _ = coro.HClose(p.out); return coro.HClose(p.in) }

func TestHandshakeRoundTrip(t *testing.T) {
	a, b, err := newPipePair()
	require.NoError(t, err)
	defer a.Close()
	defer b.Close()

	sig, sigDone, err := coro.ChMake()
	require.NoError(t, err)

	coro.Go(func() {
		sc, serr := ServerHandshake(b, coro.Now()+2000)
		require.NoError(t, serr)
		require.NotNil(t, sc)
		require.NoError(t, coro.ChSend(sig, []byte{1}, -1))
	})

	cc, cerr := ClientHandshake(a, "hello", coro.Now()+2000)
	require.NoError(t, cerr)
	require.NotNil(t, cc)

	result := make([]byte, 1)
	require.NoError(t, coro.ChRecv(sigDone, result, -1))
	assert.Equal(t, byte(1), result[0])

	require.NoError(t, coro.HClose(sig))
	require.NoError(t, coro.HClose(sigDone))
}

func TestClientHandshakeMismatchedAckReturnsErrInval(t *testing.T) {
	a, b, err := newPipePair()
	require.NoError(t, err)
	defer a.Close()
	defer b.Close()

	sig, sigDone, err := coro.ChMake()
	require.NoError(t, err)

	coro.Go(func() {
		r := &lineReader{underlier: b}
		banner, rerr := r.readLine(coro.Now() + 2000)
		require.NoError(t, rerr)
		require.Equal(t, "hello", banner)
		require.NoError(t, writeLine(b, "different", coro.Now()+2000))
		require.NoError(t, coro.ChSend(sig, []byte{1}, -1))
	})

	_, err = ClientHandshake(a, "hello", coro.Now()+2000)
	require.ErrorIs(t, err, coro.ErrInval)

	result := make([]byte, 1)
	require.NoError(t, coro.ChRecv(sigDone, result, -1))

	require.NoError(t, coro.HClose(sig))
	require.NoError(t, coro.HClose(sigDone))
}

func TestCloseMidHandshakeUnblocksWaitingSide(t *testing.T) {
	a, b, err := newPipePair()
	require.NoError(t, err)
	defer a.Close()
	defer b.Close()

	var herr error
	h := coro.Go(func() {
		_, herr = ServerHandshake(b, -1)
	})
	// Let ServerHandshake start and block reading the banner line.
	require.NoError(t, coro.Yield())
	require.NoError(t, coro.HClose(h))
	// Cancellation is sticky, so the coroutine cannot report back over a
	// channel; yielding lets the cancelled handshake return first.
	require.NoError(t, coro.Yield())
	require.ErrorIs(t, herr, coro.ErrCanceled)
}

func TestConnAfterHandshakeCarriesOrdinaryBytestream(t *testing.T) {
	a, b, err := newPipePair()
	require.NoError(t, err)
	defer a.Close()
	defer b.Close()

	sig, sigDone, err := coro.ChMake()
	require.NoError(t, err)

	coro.Go(func() {
		sc, serr := ServerHandshake(b, coro.Now()+2000)
		require.NoError(t, serr)
		buf := make([]byte, 2)
		require.NoError(t, sc.BRecv(buf, coro.Now()+2000))
		assert.Equal(t, "hi", string(buf))
		require.NoError(t, coro.ChSend(sig, []byte{1}, -1))
	})

	cc, cerr := ClientHandshake(a, "hello", coro.Now()+2000)
	require.NoError(t, cerr)
	require.NoError(t, cc.BSend([]byte("hi"), coro.Now()+2000))

	result := make([]byte, 1)
	require.NoError(t, coro.ChRecv(sigDone, result, -1))
	assert.Equal(t, byte(1), result[0])

	detached, derr := cc.Detach(-1)
	require.NoError(t, derr)
	assert.Same(t, a, detached)

	require.NoError(t, coro.HClose(sig))
	require.NoError(t, coro.HClose(sigDone))
}
