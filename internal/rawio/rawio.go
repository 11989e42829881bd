//go:build unix

//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: the raw-fd-plus-runtime-poller-integration style of
// mdlayher/socket's Conn (_examples/other_examples/1ebe435f_moby-moby),
// retargeted from Go's own runtime netpoller onto this module's
// coro.FdIn/FdOut so that a coroutine performing raw socket I/O
// cooperatively yields the scheduler baton instead of blocking it.
//

// Package rawio provides non-blocking read/write loops over raw file
// descriptors for the adapter packages (tcp, ipc, udp) that need direct
// control over poller registration rather than Go's net package.
package rawio

import "golang.org/x/sys/unix"

// SetNonblock arms fd for non-blocking I/O, required before any Read or
// Write call in this package.
func SetNonblock(fd int) error {
	return unix.SetNonblock(fd, true)
}

// isTemporary reports whether err is a transient condition (EAGAIN, the
// POSIX equivalent, or an interrupted call) that warrants a retry after
// the descriptor reports readiness again.
func isTemporary(err error) bool {
	return err == unix.EAGAIN || err == unix.EWOULDBLOCK || err == unix.EINTR
}
