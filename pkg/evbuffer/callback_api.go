package evbuffer

// AddCallback registers fn to run after every mutating operation, returning
// a handle for later removal or suspension (spec.md §4.5 Callback-add).
func (b *Buffer) AddCallback(fn ChangeFunc, arg interface{}) CallbackHandle {
	return b.cb.add(fn, arg)
}

// RemoveCallback unregisters the callback identified by h. A callback may
// remove itself during its own dispatch; removing a different callback's
// handle from inside a callback is rejected with ErrForeignCallbackRemoval
// (spec.md §9 Open Question: callback-removal re-entrancy).
func (b *Buffer) RemoveCallback(h CallbackHandle) error {
	if b.anyDispatchActive() && !b.inDispatchOf(h) {
		return ErrForeignCallbackRemoval
	}
	if !b.cb.removeEntry(h) {
		return ErrNotFound
	}
	return nil
}

// RemoveCallbackFunc unregisters the first callback registered with fn and
// arg, mirroring libevent's by-pointer removal API (evbuffer_cb_remove).
func (b *Buffer) RemoveCallbackFunc(fn ChangeFunc, arg interface{}) error {
	if !b.cb.removeByFunc(fn, arg) {
		return ErrNotFound
	}
	return nil
}

// SetCallbackFlags enables or disables a registered callback without
// removing it (spec.md §4.5).
func (b *Buffer) SetCallbackFlags(h CallbackHandle, flags CallbackFlags) error {
	if !b.cb.setFlags(h, flags) {
		return ErrNotFound
	}
	return nil
}

// SuspendCallback defers a callback's dispatch: mutations between a Suspend
// and its matching Unsuspend accumulate into one ChangeInfo delivered on the
// 0-suspend-depth transition, instead of firing once per operation
// (spec.md §4.5 Callback-suspend, §3 Callback entry invariants).
func (b *Buffer) SuspendCallback(h CallbackHandle) error {
	var origSize int
	_ = b.withLock(func() error {
		origSize = b.chain.totalLen
		return nil
	})
	if !b.cb.suspendEntry(h, origSize) {
		return ErrNotFound
	}
	return nil
}

// UnsuspendCallback lifts one suspension level, dispatching the accumulated
// delta immediately (synchronously, or via cfg.Loop) if this was the last
// level and at least one byte moved while suspended.
func (b *Buffer) UnsuspendCallback(h CallbackHandle) error {
	fn, arg, info, should := b.cb.unsuspendEntry(h)
	if fn == nil && !should {
		// unsuspendEntry returns (nil, nil, _, false) both for "not found"
		// and for "found but not yet back to depth 0"; disambiguate by
		// re-checking presence so callers see ErrNotFound only when due.
		found := false
		b.cb.mu.Lock()
		for _, e := range b.cb.entries {
			if e.handle == h {
				found = true
				break
			}
		}
		b.cb.mu.Unlock()
		if !found {
			return ErrNotFound
		}
		return nil
	}
	if should {
		job := dispatchJob{handle: h, fn: fn, arg: arg, info: info}
		if b.cfg.Loop != nil {
			_ = b.cfg.Loop.Post(b.id, func() { b.runOneJob(job) })
		} else {
			b.runOneJob(job)
		}
	}
	return nil
}
