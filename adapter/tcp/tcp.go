//go:build unix

//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: coro/connect.go's ConnectFunc/Dialer span-logging
// convention and coro/observeconn.go's ObserveConnFunc I/O decorator,
// retargeted from net.Dial onto raw non-blocking sockets so that every
// suspension point cooperatively yields via coro.FdIn/coro.FdOut instead
// of blocking on Go's own runtime netpoller.
//

// Package tcp implements a Bytestream adapter over raw, non-blocking
// TCP sockets integrated with the scheduler's I/O poller.
package tcp

import (
	"log/slog"
	"net"
	"strconv"
	"time"

	"golang.org/x/sys/unix"

	coro "github.com/coro-rt/coro"
	"github.com/coro-rt/coro/internal/rawio"
	"github.com/coro-rt/coro/socket"
)

// Conn is a [socket.Bytestream] over a raw, non-blocking TCP socket.
type Conn struct {
	fd            int
	laddr, raddr  string
	logger        coro.SLogger
	errClassifier coro.ErrClassifier
	timeNow       func() time.Time
	sendClosed    bool
}

var _ socket.Bytestream = &Conn{}

// Dial connects to address (host:port) within deadline, returning a
// [*Conn] on success. The returned [*Conn] logs to
// [coro.DefaultSLogger], which discards output, and classifies errors
// with [coro.DefaultErrClassifier]; it exposes no way to change either.
func Dial(address string, deadline int64) (*Conn, error) {
	raddr, err := net.ResolveTCPAddr("tcp", address)
	if err != nil {
		return nil, err
	}
	domain := unix.AF_INET
	sa := &unix.SockaddrInet4{Port: raddr.Port}
	if ip4 := raddr.IP.To4(); ip4 != nil {
		copy(sa.Addr[:], ip4)
	} else {
		domain = unix.AF_INET6
		sa6 := &unix.SockaddrInet6{Port: raddr.Port}
		copy(sa6.Addr[:], raddr.IP.To16())
		return dial(domain, sa6, deadline)
	}
	return dial(domain, sa, deadline)
}

func dial(domain int, sa unix.Sockaddr, deadline int64) (*Conn, error) {
	fd, err := unix.Socket(domain, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return nil, err
	}
	if err := rawio.SetNonblock(fd); err != nil {
		unix.Close(fd)
		return nil, err
	}
	err = unix.Connect(fd, sa)
	if err != nil && err != unix.EINPROGRESS {
		unix.Close(fd)
		return nil, err
	}
	if err == unix.EINPROGRESS {
		if werr := coro.FdOut(fd, deadline); werr != nil {
			rawio.Close(fd)
			return nil, werr
		}
		if soerr, gerr := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR); gerr == nil && soerr != 0 {
			rawio.Close(fd)
			return nil, unix.Errno(soerr)
		}
	}
	lsa, _ := unix.Getsockname(fd)
	rsa, _ := unix.Getpeername(fd)
	return &Conn{
		fd:            fd,
		laddr:         sockaddrString(lsa),
		raddr:         sockaddrString(rsa),
		logger:        coro.DefaultSLogger(),
		errClassifier: coro.DefaultErrClassifier,
		timeNow:       time.Now,
	}, nil
}

// BSend implements [socket.Bytestream].
func (c *Conn) BSend(buf []byte, deadline int64) error {
	if c.sendClosed {
		return coro.ErrPipe
	}
	t0 := c.timeNow()
	c.logger.Debug("writeStart", slog.Int("ioBufferSize", len(buf)), slog.String("localAddr", c.laddr), slog.String("remoteAddr", c.raddr), slog.Time("t", t0))
	n, err := rawio.Write(c.fd, buf, deadline)
	c.logger.Debug("writeDone", slog.Int("ioBytesCount", n), slog.Any("err", err), slog.String("errClass", c.errClassifier.Classify(err)), slog.Time("t0", t0), slog.Time("t", c.timeNow()))
	return err
}

// BRecv implements [socket.Bytestream].
func (c *Conn) BRecv(buf []byte, deadline int64) error {
	t0 := c.timeNow()
	c.logger.Debug("readStart", slog.Int("ioBufferSize", len(buf)), slog.String("localAddr", c.laddr), slog.String("remoteAddr", c.raddr), slog.Time("t", t0))
	total := 0
	var err error
	for total < len(buf) {
		var n int
		n, err = rawio.Read(c.fd, buf[total:], deadline)
		if n == 0 && err == nil {
			err = socket.ShortReadError()
			break
		}
		total += n
		if err != nil {
			break
		}
	}
	c.logger.Debug("readDone", slog.Int("ioBytesCount", total), slog.Any("err", err), slog.String("errClass", c.errClassifier.Classify(err)), slog.Time("t0", t0), slog.Time("t", c.timeNow()))
	return err
}

// BSendl implements [socket.Bytestream].
func (c *Conn) BSendl(list socket.IOList, deadline int64) error {
	return c.BSend(list.Flatten(), deadline)
}

// BRecvl implements [socket.Bytestream].
func (c *Conn) BRecvl(list socket.IOList, deadline int64) error {
	buf := make([]byte, list.Len())
	if err := c.BRecv(buf, deadline); err != nil {
		return err
	}
	off := 0
	for _, chunk := range list {
		off += copy(chunk, buf[off:])
	}
	return nil
}

// Done implements [socket.Bytestream] by shutting down the write half.
func (c *Conn) Done(deadline int64) error {
	c.sendClosed = true
	return unix.Shutdown(c.fd, unix.SHUT_WR)
}

// Close implements [socket.Bytestream].
func (c *Conn) Close() error {
	return rawio.Close(c.fd)
}

// Fd returns the underlying raw file descriptor, for adapters stacking
// above this one that need to inspect the transport directly (e.g. TLS
// reading ALPN off the handshake).
func (c *Conn) Fd() int { return c.fd }

// sockaddrOfFd returns the local address a bound socket is listening on,
// used by tests to dial back a Listen("127.0.0.1:0", ...) ephemeral port.
func sockaddrOfFd(fd int) (string, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return "", err
	}
	return sockaddrString(sa), nil
}

func sockaddrString(sa unix.Sockaddr) string {
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		return net.JoinHostPort(net.IP(v.Addr[:]).String(), strconv.Itoa(v.Port))
	case *unix.SockaddrInet6:
		return net.JoinHostPort(net.IP(v.Addr[:]).String(), strconv.Itoa(v.Port))
	default:
		return ""
	}
}

// Listener accepts incoming TCP connections over a raw, non-blocking
// listening socket.
type Listener struct {
	fd int
}

// Listen creates a listening socket bound to address (host:port) with
// the given backlog.
func Listen(address string, backlog int) (*Listener, error) {
	laddr, err := net.ResolveTCPAddr("tcp", address)
	if err != nil {
		return nil, err
	}
	domain := unix.AF_INET
	var sa unix.Sockaddr
	if ip4 := laddr.IP.To4(); ip4 != nil || laddr.IP == nil {
		sa4 := &unix.SockaddrInet4{Port: laddr.Port}
		if ip4 != nil {
			copy(sa4.Addr[:], ip4)
		}
		sa = sa4
	} else {
		domain = unix.AF_INET6
		sa6 := &unix.SockaddrInet6{Port: laddr.Port}
		copy(sa6.Addr[:], laddr.IP.To16())
		sa = sa6
	}
	fd, err := unix.Socket(domain, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return nil, err
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, err
	}
	if err := rawio.SetNonblock(fd); err != nil {
		unix.Close(fd)
		return nil, err
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, err
	}
	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return nil, err
	}
	return &Listener{fd: fd}, nil
}

// Accept waits for and returns the next incoming connection, parking
// the calling coroutine on coro.FdIn between accept(2) attempts.
func (l *Listener) Accept(deadline int64) (*Conn, error) {
	for {
		cfd, sa, err := unix.Accept(l.fd)
		if err == nil {
			if err := rawio.SetNonblock(cfd); err != nil {
				unix.Close(cfd)
				return nil, err
			}
			lsa, _ := unix.Getsockname(cfd)
			return &Conn{
				fd:            cfd,
				laddr:         sockaddrString(lsa),
				raddr:         sockaddrString(sa),
				logger:        coro.DefaultSLogger(),
				errClassifier: coro.DefaultErrClassifier,
				timeNow:       time.Now,
			}, nil
		}
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			if werr := coro.FdIn(l.fd, deadline); werr != nil {
				return nil, werr
			}
			continue
		}
		return nil, err
	}
}

// Close stops accepting new connections.
func (l *Listener) Close() error {
	return rawio.Close(l.fd)
}
