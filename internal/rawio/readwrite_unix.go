//go:build unix

//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package rawio

import (
	coro "github.com/coro-rt/coro"
	"golang.org/x/sys/unix"
)

// Read performs one logical read of up to len(buf) bytes from fd,
// parking the calling coroutine on coro.FdIn whenever the descriptor
// isn't yet readable, until data arrives, the peer closes (0, nil),
// deadline expires, or the coroutine is cancelled.
func Read(fd int, buf []byte, deadline int64) (int, error) {
	for {
		n, err := unix.Read(fd, buf)
		if err == nil {
			return n, nil
		}
		if isTemporary(err) {
			if werr := coro.FdIn(fd, deadline); werr != nil {
				return 0, werr
			}
			continue
		}
		return 0, err
	}
}

// Write performs one logical write of buf to fd, parking on coro.FdOut
// across EAGAIN until every byte is written, the deadline expires, or
// the coroutine is cancelled.
func Write(fd int, buf []byte, deadline int64) (int, error) {
	written := 0
	for written < len(buf) {
		n, err := unix.Write(fd, buf[written:])
		if err == nil {
			written += n
			continue
		}
		if isTemporary(err) {
			if werr := coro.FdOut(fd, deadline); werr != nil {
				return written, werr
			}
			continue
		}
		return written, err
	}
	return written, nil
}

// RecvFrom performs one non-blocking datagram receive, parking on
// coro.FdIn across EAGAIN. Exactly one recvfrom happens per returned
// message, preserving datagram boundaries.
func RecvFrom(fd int, buf []byte, deadline int64) (int, unix.Sockaddr, error) {
	for {
		n, from, err := unix.Recvfrom(fd, buf, 0)
		if err == nil {
			return n, from, nil
		}
		if isTemporary(err) {
			if werr := coro.FdIn(fd, deadline); werr != nil {
				return 0, nil, werr
			}
			continue
		}
		return 0, nil, err
	}
}

// SendTo performs one non-blocking datagram send, parking on
// coro.FdOut across EAGAIN.
func SendTo(fd int, buf []byte, to unix.Sockaddr, deadline int64) error {
	for {
		err := unix.Sendto(fd, buf, 0, to)
		if err == nil {
			return nil
		}
		if isTemporary(err) {
			if werr := coro.FdOut(fd, deadline); werr != nil {
				return werr
			}
			continue
		}
		return err
	}
}

// Close closes fd and evicts any poller registrations for it so a
// concurrently parked waiter fails fast with ErrBadf instead of hanging
//.
func Close(fd int) error {
	coro.FdClean(fd)
	return unix.Close(fd)
}
