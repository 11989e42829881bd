// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: libdill's struct hvfs table (see original_source/libdill.h).
//

package coro

import "fmt"

// Handle is a small-integer name for a runtime object: a coroutine, a
// bundle, a channel endpoint, a raw file descriptor holder, or an
// adapter. Two handles may name the same underlying object; exactly one
// is the "owner" whose close destroys the object.
//
// A Handle packs a table index in its low 32 bits and a generation
// counter in its high 32 bits, so a Handle value that outlives its slot
// (use-after-free or use-after-hclose) is rejected as [ErrBadf] instead
// of silently aliasing whatever object the runtime later placed in the
// same slot.
type Handle int64

const invalidHandle Handle = -1

func makeHandle(index, generation uint32) Handle {
	return Handle(uint64(generation)<<32 | uint64(index))
}

func (h Handle) index() uint32 {
	return uint32(uint64(h))
}

func (h Handle) generation() uint32 {
	return uint32(uint64(h) >> 32)
}

// objKind tags the kind of object a handle-table entry names.
type objKind int

const (
	kindCoroutine objKind = iota
	kindBundle
	kindChannel
	kindRawFD
	kindAdapter
)

func (k objKind) String() string {
	switch k {
	case kindCoroutine:
		return "coroutine"
	case kindBundle:
		return "bundle"
	case kindChannel:
		return "channel"
	case kindRawFD:
		return "rawfd"
	case kindAdapter:
		return "adapter"
	default:
		return "unknown"
	}
}

// destroyer is called exactly once, when the last handle referencing an
// entry is closed. It never panics: destruction failures are reported by
// hclose's return value but teardown still proceeds (fail-fast teardown).
type destroyer func() error

// handleEntry is one slot of the handle table.
type handleEntry struct {
	generation uint32
	kind       objKind
	refs       int
	destroy    destroyer
	value      any
	live       bool
}

// handleTable is a compact array of entries with a free list. The whole
// runtime is single-threaded: every call into the table happens from
// the coroutine currently holding the scheduler baton, so no
// synchronization is required here — a caller wanting thread-safety
// wraps the entire runtime in one external lock rather than sprinkling
// locks here.
type handleTable struct {
	entries []handleEntry
	free    []uint32
}

func newHandleTable() *handleTable {
	return &handleTable{}
}

// alloc reserves a new slot, returning the owner Handle for it.
func (t *handleTable) alloc(kind objKind, value any, destroy destroyer) Handle {
	var idx uint32
	if n := len(t.free); n > 0 {
		idx = t.free[n-1]
		t.free = t.free[:n-1]
		t.entries[idx].generation++
	} else {
		idx = uint32(len(t.entries))
		t.entries = append(t.entries, handleEntry{})
	}
	e := &t.entries[idx]
	e.kind = kind
	e.value = value
	e.destroy = destroy
	e.refs = 1
	e.live = true
	return makeHandle(idx, e.generation)
}

// lookup resolves h to its live entry, or ErrBadf.
func (t *handleTable) lookup(h Handle) (*handleEntry, error) {
	idx := h.index()
	if int(idx) >= len(t.entries) {
		return nil, fmt.Errorf("%w: handle %d out of range", ErrBadf, h)
	}
	e := &t.entries[idx]
	if !e.live || e.generation != h.generation() {
		return nil, fmt.Errorf("%w: handle %d stale", ErrBadf, h)
	}
	return e, nil
}

// dup increments the reference count and returns a Handle naming the
// same entry, implementing the "two handles, one object" half of hown.
func (t *handleTable) dup(h Handle) (Handle, error) {
	e, err := t.lookup(h)
	if err != nil {
		return invalidHandle, err
	}
	e.refs++
	return h, nil
}

// reassign mints a fresh Handle for h's entry by bumping its
// generation, which makes h itself stale (a later lookup of h fails
// with [ErrBadf]) while leaving the entry's reference count, value,
// and destroyer untouched. This is the "rename the one reference I
// hold" operation hown needs: unlike dup, it does not add a reference,
// it relabels the single one named by h.
func (t *handleTable) reassign(h Handle) (Handle, error) {
	e, err := t.lookup(h)
	if err != nil {
		return invalidHandle, err
	}
	e.generation++
	return makeHandle(h.index(), e.generation), nil
}

// close drops one reference from h's entry, running destroy() on the
// last reference. Returns (wasLast, destroyErr, err): err is ErrBadf for
// an unknown handle; destroyErr is whatever the destructor returned.
func (t *handleTable) close(h Handle) (wasLast bool, destroyErr error, err error) {
	e, err := t.lookup(h)
	if err != nil {
		return false, nil, err
	}
	e.refs--
	if e.refs > 0 {
		return false, nil, nil
	}
	e.live = false
	d := e.destroy
	e.value = nil
	e.destroy = nil
	t.free = append(t.free, h.index())
	if d != nil {
		destroyErr = d()
	}
	return true, destroyErr, nil
}
