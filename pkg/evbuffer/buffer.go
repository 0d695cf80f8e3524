// Package evbuffer implements a zero-copy, chained byte buffer: a staging
// area for outbound payloads and inbound reads that avoids the
// single-contiguous-array-plus-memmove pattern. See SPEC_FULL.md for the
// full design; this file holds the Buffer type's lifecycle, locking, and
// freeze-barrier surface.
package evbuffer

import (
	"sync/atomic"

	"github.com/fluxorio/evbuffer/pkg/core"
	"github.com/fluxorio/evbuffer/pkg/evbuffer/dispatch"
)

var nextBufferID uint64

// Config configures a Buffer at construction. The zero Config is valid and
// selects the defaults noted per field.
type Config struct {
	// Locking enables the recursive mutex guarding every public operation.
	// Default false (single-threaded, uncontended fast path).
	Locking bool

	// Loop is the deferred-dispatch binding (spec.md §4.5, §9). Nil means
	// callbacks run synchronously under the buffer's lock.
	Loop dispatch.Loop

	// Logger receives a Warn entry for each recovered callback panic; the
	// buffer logs nothing else. Nil installs a no-op logger.
	Logger core.Logger

	// Metrics receives optional Prometheus instrumentation. Nil disables it.
	Metrics *Metrics

	// DefaultReadSize is the slack ReadFromFD ensures when howmuch<=0.
	// Default 4096, matching the implementation-default noted in spec.md §4.4.
	DefaultReadSize int
}

func (c Config) withDefaults() Config {
	if c.DefaultReadSize <= 0 {
		c.DefaultReadSize = 4096
	}
	if c.Logger == nil {
		c.Logger = core.NewNopLogger()
	}
	return c
}

// reservation tracks what ReserveSpace handed out but CommitSpace has not
// yet published (spec.md §4.1, §9 Open Question on reservation re-entrancy).
type reservation struct {
	seg   *segment
	avail int // bytes available to commit, from seg.misalign+seg.length onward
	valid bool
}

// Buffer is the composed zero-copy chained byte buffer: Chain + Lock +
// Callbacks + freeze flags + reservation state + optional deferred-dispatch
// binding (spec.md §2 item 7).
type Buffer struct {
	id uint64

	cfg    Config
	locked bool
	lock   recursiveMutex

	chain   *chain
	cb      *callbackRegistry
	version uint64

	freezeFrontDepth int
	freezeBackDepth  int

	reserved reservation

	dispatchMu      recursiveMutex
	dispatchHandle  CallbackHandle
	dispatchActive  bool

	closed bool
}

// New creates an empty Buffer.
func New(cfg Config) *Buffer {
	cfg = cfg.withDefaults()
	b := &Buffer{
		id:     atomic.AddUint64(&nextBufferID, 1),
		cfg:    cfg,
		locked: cfg.Locking,
		chain:  newChain(),
		cb:     newCallbackRegistry(),
	}
	return b
}

// EnableLocking attaches (or replaces) the recursive lock used by every
// public operation. Calling it after concurrent use has begun is the
// caller's responsibility to avoid, matching the C API's contract.
func (b *Buffer) EnableLocking() {
	b.locked = true
}

// Lock acquires the buffer's lock explicitly, letting callers compose
// multi-step sequences (e.g. Pullup then inspect) atomically. Recursive on
// the same goroutine. No-op if locking was never enabled.
func (b *Buffer) Lock() {
	if b.locked {
		b.lock.Lock()
	}
}

// Unlock releases a lock acquired by Lock.
func (b *Buffer) Unlock() {
	if b.locked {
		b.lock.Unlock()
	}
}

func (b *Buffer) withLock(fn func() error) error {
	if b.locked {
		b.lock.Lock()
		defer b.lock.Unlock()
	}
	return fn()
}

// Free destroys the buffer: runs every external-reference cleanup callback,
// closes every file-backed segment's descriptor, frees every heap segment,
// and removes all registered callbacks without firing them (spec.md §3
// Lifecycles).
func (b *Buffer) Free() {
	_ = b.withLock(func() error {
		if b.closed {
			return nil
		}
		s := b.chain.head
		for s != nil {
			next := s.next
			s.release()
			b.recordSegmentReleased()
			s = next
		}
		b.chain = newChain()
		b.cb.mu.Lock()
		b.cb.entries = nil
		b.cb.mu.Unlock()
		b.closed = true
		return nil
	})
}

// GetLength returns the buffer's total logical byte count.
func (b *Buffer) GetLength() int {
	var n int
	_ = b.withLock(func() error {
		n = b.chain.totalLen
		return nil
	})
	return n
}

// GetContiguousSpace returns the number of bytes available without copying
// from the start of the buffer, i.e. the live length of the first segment
// with data.
func (b *Buffer) GetContiguousSpace() int {
	var n int
	_ = b.withLock(func() error {
		b.chain.advanceFirstWithData()
		if s := b.chain.firstWithData; s != nil {
			n = s.length
		}
		return nil
	})
	return n
}

// Bytes pulls up the whole buffer and returns a slice over the first
// segment's live bytes, mirroring libevent's EVBUFFER_DATA/EVBUFFER_LENGTH
// macros (SPEC_FULL.md §5). The slice is invalidated by any further mutation.
func (b *Buffer) Bytes() []byte {
	var out []byte
	_ = b.withLock(func() error {
		if _, err := b.pullupLocked(-1); err != nil {
			return err
		}
		if s := b.chain.head; s != nil {
			out = s.bytes()
		}
		return nil
	})
	return out
}

// Freeze blocks prepend and front-drain (atFront=true) or append, reserve,
// and commit (atFront=false). Freezes stack; call Unfreeze the same number
// of times to lift the barrier (spec.md §4.6).
func (b *Buffer) Freeze(atFront bool) error {
	return b.withLock(func() error {
		if atFront {
			b.freezeFrontDepth++
		} else {
			b.freezeBackDepth++
		}
		return nil
	})
}

// Unfreeze lifts one level of a Freeze barrier.
func (b *Buffer) Unfreeze(atFront bool) error {
	return b.withLock(func() error {
		if atFront {
			if b.freezeFrontDepth == 0 {
				return ErrInvalidArgument
			}
			b.freezeFrontDepth--
		} else {
			if b.freezeBackDepth == 0 {
				return ErrInvalidArgument
			}
			b.freezeBackDepth--
		}
		return nil
	})
}

// bumpVersion marks every previously-returned Position and Pullup pointer as
// potentially stale and drops any outstanding ReserveSpace reservation.
// Called by every structural chain mutation, even ones (like Pullup) that do
// not change logical length (spec.md §9 version counter note).
func (b *Buffer) bumpVersion() {
	b.version++
	b.reserved = reservation{}
}

func (b *Buffer) frontFrozen() bool { return b.freezeFrontDepth > 0 }
func (b *Buffer) backFrozen() bool  { return b.freezeBackDepth > 0 }

// notify records one mutation batch with the callback registry and
// dispatches it, synchronously under the lock or deferred to cfg.Loop, per
// spec.md §4.5. Must be called while still holding the buffer's lock (or
// with locking disabled).
func (b *Buffer) notify(origSize, added, deleted int) {
	if added == 0 && deleted == 0 {
		return
	}
	b.recordBytesAppended(added)
	b.recordBytesDrained(deleted)
	jobs := b.cb.recordBatch(origSize, added, deleted)
	if len(jobs) == 0 {
		return
	}
	if b.cfg.Loop != nil {
		_ = b.cfg.Loop.Post(b.id, func() { b.runJobs(jobs) })
		return
	}
	b.runJobs(jobs)
}

func (b *Buffer) runJobs(jobs []dispatchJob) {
	if m := b.cfg.Metrics; m != nil {
		m.DeferredQueueDepth.Set(float64(len(jobs)))
	}
	for _, j := range jobs {
		b.runOneJob(j)
	}
	if m := b.cfg.Metrics; m != nil {
		m.DeferredQueueDepth.Set(0)
	}
}

func (b *Buffer) runOneJob(j dispatchJob) {
	b.dispatchMu.Lock()
	b.dispatchHandle = j.handle
	b.dispatchActive = true
	b.dispatchMu.Unlock()

	stopTimer := b.timeCallbackDispatch()
	defer func() {
		stopTimer()
		b.dispatchMu.Lock()
		b.dispatchActive = false
		b.dispatchMu.Unlock()
		if r := recover(); r != nil {
			if m := b.cfg.Metrics; m != nil {
				m.CallbackPanicsTotal.Inc()
			}
			b.cfg.Logger.Warnf("evbuffer: callback panicked: %v", r)
		}
	}()
	j.fn(b, j.info, j.arg)
}

// inDispatchOf reports whether the calling code is running inside this
// handle's own callback invocation (used to permit self-removal and reject
// foreign removal, spec.md §9 Open Question).
func (b *Buffer) inDispatchOf(h CallbackHandle) bool {
	b.dispatchMu.Lock()
	defer b.dispatchMu.Unlock()
	return b.dispatchActive && b.dispatchHandle == h
}

func (b *Buffer) anyDispatchActive() bool {
	b.dispatchMu.Lock()
	defer b.dispatchMu.Unlock()
	return b.dispatchActive
}
