//go:build !unix

//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package poller

import (
	"sync"
	"time"
)

// PollBackend is a portable fallback [Backend] for platforms without an
// epoll/kqueue binding in this module's dependency set (e.g. Windows).
// It polls [os.File.SetDeadline]-free raw descriptors with a short
// ticker, trading CPU for portability — adequate for the coroutine
// scheduler's correctness contract but not for
// high fan-out production use on these platforms.
type PollBackend struct {
	mu      sync.Mutex
	pending map[key]struct{}
}

var _ Backend = (*PollBackend)(nil)

// NewPollBackend creates the fallback backend.
func NewPollBackend() (*PollBackend, error) {
	return &PollBackend{pending: make(map[key]struct{})}, nil
}

// Add implements [Backend].
func (b *PollBackend) Add(fd int, dir Direction) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending[key{fd, dir}] = struct{}{}
	return nil
}

// Remove implements [Backend].
func (b *PollBackend) Remove(fd int, dir Direction) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.pending, key{fd, dir})
	return nil
}

// Wait implements [Backend]. It has no real readiness signal on this
// platform, so it sleeps until timeout and reports every still-pending
// key as ready; callers relying on non-blocking accuracy should prefer
// the unix epoll backend.
func (b *PollBackend) Wait(timeoutMs int64) ([]Event, error) {
	if timeoutMs < 0 {
		timeoutMs = 50
	}
	time.Sleep(time.Duration(timeoutMs) * time.Millisecond)
	b.mu.Lock()
	defer b.mu.Unlock()
	events := make([]Event, 0, len(b.pending))
	for k := range b.pending {
		events = append(events, Event{FD: k.fd, Dir: k.dir})
	}
	return events, nil
}

// Close implements [Backend].
func (b *PollBackend) Close() error {
	return nil
}
