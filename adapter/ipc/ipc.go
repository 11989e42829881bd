//go:build unix

//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: adapter/tcp's raw-non-blocking-socket pattern, itself
// grounded on coro/connect.go's Dialer abstraction, retargeted onto
// AF_UNIX stream sockets (libdill's ipc_connect/ipc_listen equivalent).
//

// Package ipc implements a Bytestream adapter over local (AF_UNIX)
// stream sockets, the local-socket analogue of adapter/tcp.
package ipc

import (
	"golang.org/x/sys/unix"

	coro "github.com/coro-rt/coro"
	"github.com/coro-rt/coro/internal/rawio"
	"github.com/coro-rt/coro/socket"
)

// Conn is a [socket.Bytestream] over a raw, non-blocking AF_UNIX socket.
type Conn struct {
	fd         int
	path       string
	sendClosed bool
}

var _ socket.Bytestream = &Conn{}

// Dial connects to the Unix-domain socket at path within deadline.
func Dial(path string, deadline int64) (*Conn, error) {
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, err
	}
	if err := rawio.SetNonblock(fd); err != nil {
		unix.Close(fd)
		return nil, err
	}
	sa := &unix.SockaddrUnix{Name: path}
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
	return &Conn{fd: fd, path: path}, nil
}

// BSend implements [socket.Bytestream].
func (c *Conn) BSend(buf []byte, deadline int64) error {
	if c.sendClosed {
		return coro.ErrPipe
	}
	_, err := rawio.Write(c.fd, buf, deadline)
	return err
}

// BRecv implements [socket.Bytestream].
func (c *Conn) BRecv(buf []byte, deadline int64) error {
	total := 0
	for total < len(buf) {
		n, err := rawio.Read(c.fd, buf[total:], deadline)
		if n == 0 && err == nil {
			return socket.ShortReadError()
		}
		total += n
		if err != nil {
			return err
		}
	}
	return nil
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

// Fd returns the underlying raw file descriptor.
func (c *Conn) Fd() int { return c.fd }

// Listener accepts incoming connections on a Unix-domain socket.
type Listener struct {
	fd   int
	path string
}

// Listen creates a Unix-domain listening socket at path, removing any
// stale socket file left behind by a previous, uncleanly-terminated run.
func Listen(path string, backlog int) (*Listener, error) {
	_ = unix.Unlink(path)
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, err
	}
	if err := rawio.SetNonblock(fd); err != nil {
		unix.Close(fd)
		return nil, err
	}
	if err := unix.Bind(fd, &unix.SockaddrUnix{Name: path}); err != nil {
		unix.Close(fd)
		return nil, err
	}
	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return nil, err
	}
	return &Listener{fd: fd, path: path}, nil
}

// Accept waits for and returns the next incoming connection.
func (l *Listener) Accept(deadline int64) (*Conn, error) {
	for {
		cfd, _, err := unix.Accept(l.fd)
		if err == nil {
			if err := rawio.SetNonblock(cfd); err != nil {
				unix.Close(cfd)
				return nil, err
			}
			return &Conn{fd: cfd}, nil
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

// Close stops accepting new connections and removes the socket file.
func (l *Listener) Close() error {
	err := rawio.Close(l.fd)
	_ = unix.Unlink(l.path)
	return err
}
