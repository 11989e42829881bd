//go:build unix

//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: adapter/tcp's raw-non-blocking-socket pattern, using
// rawio.RecvFrom/SendTo (one syscall per datagram, never coalesced) so
// message boundaries survive, matching libdill's udp_send/udp_recv.
//

// Package udp implements a Message adapter over a raw, non-blocking
// UDP socket. Unlike the stream adapters, UDP exposes the Message
// capability since each datagram is a self-delimited unit.
package udp

import (
	"net"

	"golang.org/x/sys/unix"

	coro "github.com/coro-rt/coro"
	"github.com/coro-rt/coro/internal/rawio"
	"github.com/coro-rt/coro/socket"
)

// maxDatagram bounds a single recvfrom; UDP payloads larger than this
// are truncated by the kernel before this package ever sees them.
const maxDatagram = 65507

// Socket is a [socket.Message] over a raw, non-blocking UDP socket.
type Socket struct {
	fd   int
	peer unix.Sockaddr // set by Dial, or by the first MRecv if still unset
}

var _ socket.Message = &Socket{}

// Bind creates a UDP socket bound to address (host:port, "" host means
// any interface), suitable for receiving from arbitrary peers after
// [Socket.MRecv] or for sending to an explicit peer via [Socket.SendTo].
func Bind(address string) (*Socket, error) {
	laddr, err := net.ResolveUDPAddr("udp", address)
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
	fd, err := unix.Socket(domain, unix.SOCK_DGRAM, unix.IPPROTO_UDP)
	if err != nil {
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
	return &Socket{fd: fd}, nil
}

// Dial creates a UDP socket with address set as the default peer for
// [Socket.MSend]. [Socket.MRecv] still accepts datagrams from any sender.
func Dial(address string) (*Socket, error) {
	s, err := Bind(":0")
	if err != nil {
		return nil, err
	}
	raddr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		s.Close()
		return nil, err
	}
	sa4 := &unix.SockaddrInet4{Port: raddr.Port}
	if ip4 := raddr.IP.To4(); ip4 != nil {
		copy(sa4.Addr[:], ip4)
		s.peer = sa4
	} else {
		sa6 := &unix.SockaddrInet6{Port: raddr.Port}
		copy(sa6.Addr[:], raddr.IP.To16())
		s.peer = sa6
	}
	return s, nil
}

// MSend transmits buf as one datagram to the default peer, set by
// [Dial] or by the first [Socket.MRecv] on a [Bind] socket, and fails
// with [coro.ErrInval] while none is set. Use [Socket.SendTo] for an
// explicit destination.
func (s *Socket) MSend(buf []byte, deadline int64) error {
	if s.peer == nil {
		return coro.ErrInval
	}
	return rawio.SendTo(s.fd, buf, s.peer, deadline)
}

// SendTo transmits buf as one datagram to an explicit peer address
// (host:port), for sockets created with [Bind] rather than [Dial].
func (s *Socket) SendTo(buf []byte, address string, deadline int64) error {
	raddr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return err
	}
	sa4 := &unix.SockaddrInet4{Port: raddr.Port}
	var sa unix.Sockaddr = sa4
	if ip4 := raddr.IP.To4(); ip4 != nil {
		copy(sa4.Addr[:], ip4)
	} else {
		sa6 := &unix.SockaddrInet6{Port: raddr.Port}
		copy(sa6.Addr[:], raddr.IP.To16())
		sa = sa6
	}
	return rawio.SendTo(s.fd, buf, sa, deadline)
}

// MRecv receives one datagram into buf. If buf is smaller than the
// pending datagram, returns (0, [coro.ErrMsgsize]); per UDP semantics
// the oversized datagram is still consumed by the kernel (unlike
// stream-based Message adapters, there is no way to re-peek a
// datagram without MSG_PEEK, which this package does not use).
func (s *Socket) MRecv(buf []byte, deadline int64) (int, error) {
	scratch := make([]byte, maxDatagram)
	n, from, err := rawio.RecvFrom(s.fd, scratch, deadline)
	if err != nil {
		return 0, err
	}
	if s.peer == nil {
		s.peer = from
	}
	if n > len(buf) {
		return 0, coro.ErrMsgsize
	}
	copy(buf, scratch[:n])
	return n, nil
}

// MSendl is the gather-write variant of MSend.
func (s *Socket) MSendl(list socket.IOList, deadline int64) error {
	return s.MSend(list.Flatten(), deadline)
}

// MRecvl is the scatter-read variant of MRecv.
func (s *Socket) MRecvl(list socket.IOList, deadline int64) (int, error) {
	buf := make([]byte, list.Len())
	n, err := s.MRecv(buf, deadline)
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

// Done is a no-op for UDP: datagram sockets have no connection state
// to half-close.
func (s *Socket) Done(deadline int64) error { return nil }

// Close releases the underlying socket.
func (s *Socket) Close() error {
	return rawio.Close(s.fd)
}

// Fd returns the underlying raw file descriptor.
func (s *Socket) Fd() int { return s.fd }
