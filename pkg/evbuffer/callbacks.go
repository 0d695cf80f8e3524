package evbuffer

import (
	"reflect"
	"sync"

	"github.com/google/uuid"
)

// CallbackFlags mirrors libevent's EVBUFFER_CB_ENABLED/EVBUFFER_CB_DISABLED
// bits (SPEC_FULL.md §5), settable via SetCallbackFlags.
type CallbackFlags uint8

const (
	CallbackDisabled CallbackFlags = 0
	CallbackEnabled  CallbackFlags = 1
)

// ChangeInfo is passed to every callback after a mutating operation.
// OrigSize is the buffer's length before the batch; NAdded/NDeleted are the
// bytes added/removed during the batch (or, while a callback was suspended,
// accumulated across the whole suspension).
type ChangeInfo struct {
	OrigSize int
	NAdded   int
	NDeleted int
}

// ChangeFunc is a registered change listener. arg is the opaque argument
// supplied at registration.
type ChangeFunc func(b *Buffer, info ChangeInfo, arg interface{})

// CallbackHandle identifies a registered callback for removal. Backed by a
// uuid.New() value rather than a package-global counter, so handles stay
// collision-free across concurrently registering goroutines.
type CallbackHandle uuid.UUID

type callbackEntry struct {
	handle  CallbackHandle
	fn      ChangeFunc
	arg     interface{}
	flags   CallbackFlags
	suspend int // suspension depth; >0 means deltas accumulate instead of dispatching

	pending        ChangeInfo
	hasPending     bool
	origSizeAtSusp int
}

// callbackRegistry is the Buffer's ordered set of change listeners
// (spec.md §2/§4.5, Callback entry in §3).
type callbackRegistry struct {
	mu      sync.Mutex
	entries []*callbackEntry
}

func newCallbackRegistry() *callbackRegistry {
	return &callbackRegistry{}
}

func (r *callbackRegistry) add(fn ChangeFunc, arg interface{}) CallbackHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := CallbackHandle(uuid.New())
	r.entries = append(r.entries, &callbackEntry{
		handle: h,
		fn:     fn,
		arg:    arg,
		flags:  CallbackEnabled,
	})
	return h
}

func (r *callbackRegistry) removeEntry(h CallbackHandle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.entries {
		if e.handle == h {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			return true
		}
	}
	return false
}

func (r *callbackRegistry) removeByFunc(fn ChangeFunc, arg interface{}) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.entries {
		if sameFunc(e.fn, fn) && e.arg == arg {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			return true
		}
	}
	return false
}

func (r *callbackRegistry) setFlags(h CallbackHandle, flags CallbackFlags) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.handle == h {
			e.flags = flags
			return true
		}
	}
	return false
}

// suspendEntry increments the suspension counter for h, snapshotting origSize on
// the 0->1 transition (spec.md §3 Callback entry invariants).
func (r *callbackRegistry) suspendEntry(h CallbackHandle, origSize int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.handle == h {
			if e.suspend == 0 {
				e.origSizeAtSusp = origSize
			}
			e.suspend++
			return true
		}
	}
	return false
}

// unsuspendEntry decrements the counter and, on the 1->0 transition, returns the
// accumulated delta to dispatch (if any is pending).
func (r *callbackRegistry) unsuspendEntry(h CallbackHandle) (fn ChangeFunc, arg interface{}, info ChangeInfo, shouldDispatch bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.handle != h {
			continue
		}
		if e.suspend == 0 {
			return nil, nil, ChangeInfo{}, false
		}
		e.suspend--
		if e.suspend == 0 && e.hasPending && (e.pending.NAdded != 0 || e.pending.NDeleted != 0) {
			info = e.pending
			info.OrigSize = e.origSizeAtSusp
			fn, arg = e.fn, e.arg
			shouldDispatch = true
			e.pending = ChangeInfo{}
			e.hasPending = false
		}
		return fn, arg, info, shouldDispatch
	}
	return nil, nil, ChangeInfo{}, false
}

// recordBatch records one batch with every enabled entry: a suspended entry
// accumulates the delta, and every other one gets a dispatchJob in the
// returned list. The jobs are copies, so a callback that mutates the registry during dispatch
// (self-removal permitted, per spec.md §9 Open Question) does not race the
// in-flight notification loop.
func (r *callbackRegistry) recordBatch(orig int, added, deleted int) []dispatchJob {
	r.mu.Lock()
	defer r.mu.Unlock()
	jobs := make([]dispatchJob, 0, len(r.entries))
	for _, e := range r.entries {
		if e.flags == CallbackDisabled {
			continue
		}
		if e.suspend > 0 {
			if !e.hasPending {
				e.hasPending = true
				e.origSizeAtSusp = orig
			}
			e.pending.NAdded += added
			e.pending.NDeleted += deleted
			continue
		}
		jobs = append(jobs, dispatchJob{
			handle: e.handle,
			fn:     e.fn,
			arg:    e.arg,
			info:   ChangeInfo{OrigSize: orig, NAdded: added, NDeleted: deleted},
		})
	}
	return jobs
}

type dispatchJob struct {
	handle CallbackHandle
	fn     ChangeFunc
	arg    interface{}
	info   ChangeInfo
}

// sameFunc compares two ChangeFunc values by identity via comparison of
// their underlying code pointers. Go forbids directly
// comparing func values; reflect.ValueOf(...).Pointer() is the idiomatic
// workaround used for "remove by function" APIs.
func sameFunc(a, b ChangeFunc) bool {
	return funcPointer(a) == funcPointer(b)
}

func funcPointer(fn ChangeFunc) uintptr {
	if fn == nil {
		return 0
	}
	return reflect.ValueOf(fn).Pointer()
}
