// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: libdill's bundle lifecycle (original_source/libdill.h).
//

package coro

// bundleObj tracks a set of coroutines sharing a lifetime.
type bundleObj struct {
	members   []Handle
	remaining int
	waiter    Handle
}

// Bundle creates an empty bundle and returns its handle.
func Bundle() Handle {
	b := &bundleObj{waiter: invalidHandle}
	return rt.handles.alloc(kindBundle, b, func() error {
		return destroyBundle(b)
	})
}

func lookupBundle(h Handle) (*bundleObj, error) {
	e, err := rt.handles.lookup(h)
	if err != nil {
		return nil, err
	}
	b, ok := e.value.(*bundleObj)
	if !ok {
		return nil, ErrBadf
	}
	return b, nil
}

// BundleGo launches fn as a member of bundle b.
func BundleGo(b Handle, fn func()) (Handle, error) {
	bobj, err := lookupBundle(b)
	if err != nil {
		return invalidHandle, err
	}
	h := goImpl(fn, b, 0)
	bobj.members = append(bobj.members, h)
	bobj.remaining++
	return h, nil
}

// bundleMemberFinished is invoked by a coroutine's own completion path
// (runBody) when it belongs to a bundle, waking up a pending
// [BundleWait] once every member has finished.
func bundleMemberFinished(c *coroutine) {
	if c.bundle == invalidHandle {
		return
	}
	bobj, err := lookupBundle(c.bundle)
	if err != nil {
		return
	}
	bobj.remaining--
	if bobj.remaining <= 0 && bobj.waiter != invalidHandle {
		w := bobj.waiter
		bobj.waiter = invalidHandle
		rt.wake(w, wakeNormal)
	}
}

// BundleWait blocks until every member of b has finished. Returns nil once all members finished, [ErrTimedout]
// on deadline expiry, or [ErrCanceled] if the waiting coroutine is
// itself cancelled.
func BundleWait(b Handle, deadline int64) error {
	bobj, err := lookupBundle(b)
	if err != nil {
		return err
	}
	c := currentCoro()
	if c.cancelRequested {
		return ErrCanceled
	}
	if bobj.remaining <= 0 {
		return nil
	}
	if deadline == 0 {
		return ErrTimedout
	}
	bobj.waiter = rt.current
	c.pendingCleanup = append(c.pendingCleanup, func() {
		bobj.waiter = invalidHandle
	})
	reason := rt.park(deadline)
	switch reason {
	case wakeNormal:
		return nil
	case wakeTimedout:
		return ErrTimedout
	default:
		return ErrCanceled
	}
}

// destroyBundle cancels every still-running member, waits for each to
// actually finish running its unwind path, then releases the group
//.
func destroyBundle(b *bundleObj) error {
	for _, m := range b.members {
		mc := coroOf(m)
		if mc == nil || mc.status == statusFinished {
			continue
		}
		mc.cancelRequested = true
		if mc.status == statusWaiting {
			rt.wake(m, wakeCanceled)
		}
	}
	// b's handle entry is already released here, so bundleMemberFinished
	// cannot count down remaining: yield until every member has finished.
	for {
		running := false
		for _, m := range b.members {
			if mc := coroOf(m); mc != nil && m != rt.current && mc.status != statusFinished {
				running = true
			}
		}
		if !running {
			return nil
		}
		currentCoro()
		rt.enqueueReady(rt.current)
		rt.dispatch()
	}
}
