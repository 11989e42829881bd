//go:build !unix

//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package coro

import "github.com/coro-rt/coro/poller"

func init() {
	newPollerBackend = func() (poller.Backend, error) {
		return poller.NewPollBackend()
	}
}
