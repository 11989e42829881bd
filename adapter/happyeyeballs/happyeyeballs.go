// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: adapter/tcp's raw-socket, FdOut-integrated Dial, racing
// it across a slice of addresses per RFC 8305's staggered dual-stack
// connection racing. Races run as coroutines sharing a bundle rather
// than OS goroutines, so every suspension point (the stagger delay and
// the dial itself) goes through this runtime's own scheduler instead of
// Go's runtime netpoller or timers.
//

// Package happyeyeballs implements RFC 8305 connection racing over a
// list of candidate addresses, dialing each with a staggered start
// delay and returning the first successful connection while cancelling
// the rest.
package happyeyeballs

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strconv"

	coro "github.com/coro-rt/coro"
	"github.com/coro-rt/coro/adapter/tcp"
	"github.com/coro-rt/coro/socket"
)

// DefaultDelay is the stagger RFC 8305 recommends between successive
// connection attempts (its "Connection Attempt Delay", minimum 100ms,
// recommended 250ms), expressed in this runtime's millisecond clock.
const DefaultDelay int64 = 250

// ErrNoAddresses is returned when [DialFunc.Call] is given an empty
// address list.
var ErrNoAddresses = errors.New("happyeyeballs: no addresses given")

// Dialer dials a single resolved address within deadline, returning a
// [socket.Bytestream] on success.
type Dialer func(addr netip.AddrPort, deadline int64) (socket.Bytestream, error)

// DefaultDialer dials addr over a raw, non-blocking TCP socket via
// [tcp.Dial], so the attempt suspends on [coro.FdOut] rather than Go's
// runtime netpoller.
func DefaultDialer(addr netip.AddrPort, deadline int64) (socket.Bytestream, error) {
	return tcp.Dial(net.JoinHostPort(addr.Addr().String(), strconv.Itoa(int(addr.Port()))), deadline)
}

// DialFunc races dials across a slice of addresses (as produced by
// resolving a dual-stack name), starting attempt i after i*Delay
// milliseconds have elapsed, and returns the first successful
// connection. Every other in-flight attempt is cancelled, and any
// connection that manages to complete after a winner is already chosen
// is closed immediately without being handed to the caller.
type DialFunc struct {
	// Connect dials a single address. Set by [NewDialFunc] to
	// [DefaultDialer]; may be replaced with a fake for testing.
	Connect Dialer

	// Delay is the stagger between successive attempts, in this
	// runtime's millisecond clock. Set by [NewDialFunc] to [DefaultDelay].
	Delay int64
}

// NewDialFunc returns a [*DialFunc] wired to [DefaultDialer].
func NewDialFunc() *DialFunc {
	return &DialFunc{Connect: DefaultDialer, Delay: DefaultDelay}
}

// attemptResult is what a race attempt coroutine hands back to Call
// over the result channel, keyed by its index into addrs.
type attemptResult struct {
	conn socket.Bytestream
	err  error
}

// Call races addrs, staggering attempt i's start by i*Delay, and blocks
// until deadline for the first successful connection. It returns
// deadline's expiry or cancellation if no attempt ever completes, or an
// error wrapping the last attempt's failure if every attempt fails.
func (d *DialFunc) Call(addrs []netip.AddrPort, deadline int64) (socket.Bytestream, error) {
	if len(addrs) == 0 {
		return nil, ErrNoAddresses
	}

	done, doneWaiter, err := coro.ChMake()
	if err != nil {
		return nil, err
	}
	defer coro.HClose(doneWaiter)
	defer coro.HClose(done)

	bundle := coro.Bundle()
	defer coro.HClose(bundle)

	results := make([]attemptResult, len(addrs))
	start := coro.Now()
	for i, addr := range addrs {
		i, addr := i, addr
		if _, err := coro.BundleGo(bundle, func() {
			if i > 0 {
				if err := coro.Msleep(start + int64(i)*d.Delay); err != nil {
					return
				}
			}
			conn, connErr := d.Connect(addr, deadline)
			results[i] = attemptResult{conn: conn, err: connErr}
			idx := make([]byte, 8)
			binary.LittleEndian.PutUint64(idx, uint64(i))
			// No one may be receiving by the time we get here (a winner
			// was already chosen and Call returned): a conn that wins
			// this race too late is closed instead of leaked.
			if sendErr := coro.ChSend(done, idx, deadline); sendErr != nil && conn != nil {
				conn.Close()
			}
		}); err != nil {
			return nil, err
		}
	}

	var lastErr error
	for range addrs {
		idx := make([]byte, 8)
		if err := coro.ChRecv(doneWaiter, idx, deadline); err != nil {
			return nil, err
		}
		res := results[binary.LittleEndian.Uint64(idx)]
		if res.err != nil {
			lastErr = res.err
			continue
		}
		return res.conn, nil
	}

	if lastErr != nil {
		return nil, fmt.Errorf("happyeyeballs: all attempts failed: %w", lastErr)
	}
	return nil, ErrNoAddresses
}
