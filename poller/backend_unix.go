//go:build unix

//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: the OS-specific build-tag split used throughout the
// teacher's errclass package (_examples/bassosimone-nop/errclass/{unix,windows}.go),
// applied here to the poller's readiness backend instead of error
// classification.
//

package poller

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// EpollBackend implements [Backend] on top of Linux/BSD epoll via
// golang.org/x/sys/unix, edge-triggered so a waiter re-registering for
// the same fd never loses a wakeup that arrived between calls.
type EpollBackend struct {
	fd int
}

var _ Backend = (*EpollBackend)(nil)

// NewEpollBackend creates an epoll instance.
func NewEpollBackend() (*EpollBackend, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("poller: epoll_create1: %w", err)
	}
	return &EpollBackend{fd: fd}, nil
}

func epollEvents(dir Direction) uint32 {
	if dir == In {
		return unix.EPOLLIN | unix.EPOLLRDHUP | unix.EPOLLET
	}
	return unix.EPOLLOUT | unix.EPOLLET
}

// Add implements [Backend].
func (b *EpollBackend) Add(fd int, dir Direction) error {
	ev := &unix.EpollEvent{Events: epollEvents(dir), Fd: int32(fd)}
	if err := unix.EpollCtl(b.fd, unix.EPOLL_CTL_ADD, fd, ev); err != nil {
		// Already armed for the other direction: upgrade to mod with
		// both event bits set so ADD on the second direction succeeds.
		if err == unix.EEXIST {
			ev.Events |= epollEvents(otherDir(dir))
			return unix.EpollCtl(b.fd, unix.EPOLL_CTL_MOD, fd, ev)
		}
		return fmt.Errorf("poller: epoll_ctl add: %w", err)
	}
	return nil
}

// Remove implements [Backend].
func (b *EpollBackend) Remove(fd int, dir Direction) error {
	ev := &unix.EpollEvent{Events: epollEvents(otherDir(dir)), Fd: int32(fd)}
	err := unix.EpollCtl(b.fd, unix.EPOLL_CTL_MOD, fd, ev)
	if err != nil && err != unix.ENOENT {
		return fmt.Errorf("poller: epoll_ctl remove: %w", err)
	}
	return nil
}

func otherDir(d Direction) Direction {
	if d == In {
		return Out
	}
	return In
}

// Wait implements [Backend].
func (b *EpollBackend) Wait(timeoutMs int64) ([]Event, error) {
	timeout := -1
	if timeoutMs >= 0 {
		timeout = int(timeoutMs)
	}
	raw := make([]unix.EpollEvent, 64)
	n, err := unix.EpollWait(b.fd, raw, timeout)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, fmt.Errorf("poller: epoll_wait: %w", err)
	}
	events := make([]Event, 0, n*2)
	for _, ev := range raw[:n] {
		fd := int(ev.Fd)
		if ev.Events&(unix.EPOLLIN|unix.EPOLLRDHUP|unix.EPOLLHUP|unix.EPOLLERR) != 0 {
			events = append(events, Event{FD: fd, Dir: In})
		}
		if ev.Events&(unix.EPOLLOUT|unix.EPOLLHUP|unix.EPOLLERR) != 0 {
			events = append(events, Event{FD: fd, Dir: Out})
		}
	}
	return events, nil
}

// Close implements [Backend].
func (b *EpollBackend) Close() error {
	return unix.Close(b.fd)
}
