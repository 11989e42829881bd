// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: coro/connect.go's logConnectStart/logConnectDone
// span-logging convention, applied to the one extra request/reply
// round trip RFC 1078 TCPMUX service multiplexing adds on top of an
// already-established connection.
//

// Package tcpmux implements RFC 1078 TCPMUX service multiplexing: a
// client sends "<service>\r\n" over an already-connected underlier and
// reads back a single accept ('+') or reject ('-') byte before using
// the connection for the named service.
package tcpmux

import (
	"log/slog"

	coro "github.com/coro-rt/coro"
	"github.com/coro-rt/coro/socket"
)

// ErrRefused is returned by [Connect] when the remote TCPMUX server
// rejects the requested service name.
var ErrRefused = coro.ErrPipe

// Connect sends service (an RFC 1078 service name) over underlier and
// reads back the accept/reject byte within deadline. On acceptance,
// underlier is returned unchanged, ready for the named service's own
// protocol. On rejection, it returns [ErrRefused] and leaves the
// connection for the caller to close.
func Connect(underlier socket.Bytestream, service string, deadline int64) (socket.Bytestream, error) {
	logConnectStart(service, deadline)
	err := writeRequest(underlier, service, deadline)
	if err == nil {
		err = readReply(underlier, deadline)
	}
	logConnectDone(service, deadline, err)
	if err != nil {
		return nil, err
	}
	return underlier, nil
}

func writeRequest(underlier socket.Bytestream, service string, deadline int64) error {
	one := make([]byte, 1)
	for i := 0; i < len(service); i++ {
		one[0] = service[i]
		if err := underlier.BSend(one, deadline); err != nil {
			return err
		}
	}
	for _, b := range [2]byte{'\r', '\n'} {
		one[0] = b
		if err := underlier.BSend(one, deadline); err != nil {
			return err
		}
	}
	return nil
}

func readReply(underlier socket.Bytestream, deadline int64) error {
	reply := make([]byte, 1)
	if err := underlier.BRecv(reply, deadline); err != nil {
		return err
	}
	switch reply[0] {
	case '+':
		return nil
	case '-':
		return ErrRefused
	default:
		return coro.ErrInval
	}
}

// Accept reads a service name terminated by "\r\n" from underlier
// within deadline, passes it to accepted (which decides whether to
// serve it), and writes back the corresponding accept/reject byte.
// When accepted returns true, underlier is returned unchanged, ready
// for the named service's own protocol; when it returns false, Connect
// on the other end observes [ErrRefused].
func Accept(underlier socket.Bytestream, accepted func(service string) bool, deadline int64) (socket.Bytestream, error) {
	service, err := readRequest(underlier, deadline)
	if err != nil {
		return nil, err
	}
	ok := accepted(service)
	reply := []byte{'-'}
	if ok {
		reply[0] = '+'
	}
	if err := underlier.BSend(reply, deadline); err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrRefused
	}
	return underlier, nil
}

func readRequest(underlier socket.Bytestream, deadline int64) (string, error) {
	var service []byte
	one := make([]byte, 1)
	for {
		if err := underlier.BRecv(one, deadline); err != nil {
			return "", err
		}
		if one[0] == '\n' {
			if len(service) > 0 && service[len(service)-1] == '\r' {
				service = service[:len(service)-1]
			}
			return string(service), nil
		}
		service = append(service, one[0])
	}
}

func logConnectStart(service string, deadline int64) {
	slog.Debug("tcpmuxStart", slog.String("service", service), slog.Int64("deadline", deadline))
}

func logConnectDone(service string, deadline int64, err error) {
	slog.Debug("tcpmuxDone", slog.String("service", service), slog.Int64("deadline", deadline), slog.Any("err", err))
}
