package evbuffer

// Add copies n bytes from src into the buffer's tail, coalescing into the
// existing tail segment when it is heap-owned, writable, and has enough
// slack; otherwise a new heap segment sized growCapacity(max(n,
// lastCapacity)) is allocated and chained (spec.md §4.1 Append-bytes).
func (b *Buffer) Add(src []byte) error {
	return b.withLock(func() error {
		if b.backFrozen() {
			return ErrFrozen
		}
		return b.appendLocked(src)
	})
}

func (b *Buffer) appendLocked(src []byte) error {
	n := len(src)
	if n == 0 {
		return nil
	}
	orig := b.chain.totalLen

	if tail := b.chain.tail; tail != nil && tail.writable(n) {
		copy(tail.data[tail.misalign+tail.length:], src)
		tail.length += n
		b.chain.totalLen += n
	} else {
		last := 0
		if tail := b.chain.tail; tail != nil {
			last = tail.capacity
		}
		seg := newHeapSegment(growCapacity(maxInt(n, last)))
		copy(seg.data, src)
		seg.length = n
		b.chain.linkTail(seg)
		b.recordSegmentAllocated()
	}

	b.chain.advanceFirstWithData()
	b.bumpVersion()
	b.notify(orig, n, 0)
	return nil
}

// AddReference appends a segment flagged read-only and externally
// referenced, sharing data's backing array rather than copying it. cleanup
// is invoked exactly once, when the segment's last byte is drained or the
// buffer is freed (spec.md §4.1 Append-reference, §3 Ownership summary).
// It deliberately never coalesces with a heap tail: doing so would require
// a copy, defeating the zero-copy guarantee.
func (b *Buffer) AddReference(data []byte, cleanup CleanupFunc, arg interface{}) error {
	return b.withLock(func() error {
		if b.backFrozen() {
			return ErrFrozen
		}
		orig := b.chain.totalLen
		seg := &segment{
			data:       data,
			capacity:   len(data),
			length:     len(data),
			flags:      segFlagReadOnly | segFlagReference,
			cleanup:    cleanup,
			cleanupArg: arg,
		}
		b.chain.linkTail(seg)
		b.chain.advanceFirstWithData()
		b.recordSegmentAllocated()
		b.bumpVersion()
		b.notify(orig, len(data), 0)
		return nil
	})
}

// AddBuffer moves every segment from src's chain onto the end of b's chain
// without copying bytes. src becomes empty. Both buffers' callbacks fire
// with the appropriate deltas (spec.md §4.1 Append-buffer). Locks are
// acquired in a fixed order by buffer id to avoid deadlock when two
// goroutines race add_buffer in opposite directions (spec.md §5 Ordering).
func (b *Buffer) AddBuffer(src *Buffer) error {
	if b == src {
		return ErrInvalidArgument
	}
	first, second := b, src
	if src.id < b.id {
		first, second = src, b
	}
	var outerErr error
	_ = first.withLock(func() error {
		return second.withLock(func() error {
			if b.backFrozen() {
				outerErr = ErrFrozen
				return nil
			}
			n := src.chain.totalLen
			if n == 0 {
				return nil
			}
			origDst := b.chain.totalLen
			origSrc := src.chain.totalLen
			b.chain.spliceTail(src.chain)
			b.bumpVersion()
			src.bumpVersion()
			b.notify(origDst, n, 0)
			src.notify(origSrc, 0, n)
			return nil
		})
	})
	return outerErr
}

// Expand ensures the tail has at least n bytes of writable slack, allocating
// and appending an empty heap segment if necessary. It does not change the
// logical length (spec.md §4.1 Expand).
func (b *Buffer) Expand(n int) error {
	if n < 0 {
		return ErrInvalidArgument
	}
	return b.withLock(func() error {
		if b.backFrozen() {
			return ErrFrozen
		}
		b.expandLocked(n)
		return nil
	})
}

func (b *Buffer) expandLocked(n int) *segment {
	if tail := b.chain.tail; tail != nil && tail.tailSlack() >= n {
		return tail
	}
	seg := newHeapSegment(growCapacity(n))
	b.chain.linkTail(seg)
	b.recordSegmentAllocated()
	return seg
}

// ReserveSpace returns a slice of at least n writable bytes in the tail heap
// segment, enlarging it first if needed. Reserve is idempotent until
// Commit: repeated calls (with no other mutation in between) return a view
// of the same reservation (spec.md §4.1 Reserve-space). Any buffer mutation
// other than CommitSpace invalidates the previously returned reservation
// (spec.md §9 Open Question, resolved here in favor of explicit
// invalidation over silent UB).
func (b *Buffer) ReserveSpace(n int) ([]byte, error) {
	if n < 0 {
		return nil, ErrInvalidArgument
	}
	var out []byte
	err := b.withLock(func() error {
		if b.backFrozen() {
			return ErrFrozen
		}
		if b.reserved.valid && b.reserved.avail >= n && b.reserved.seg == b.chain.tail {
			s := b.reserved.seg
			out = s.data[s.misalign+s.length : s.misalign+s.length+b.reserved.avail]
			return nil
		}
		seg := b.expandLocked(n)
		avail := seg.tailSlack()
		b.reserved = reservation{seg: seg, avail: avail, valid: true}
		out = seg.data[seg.misalign+seg.length : seg.misalign+seg.length+avail]
		return nil
	})
	return out, err
}

// CommitSpace publishes k bytes of a previous ReserveSpace as logical
// length; any remaining reserved bytes stay as slack. k must not exceed the
// size of the live reservation (spec.md §4.1 Commit-space).
func (b *Buffer) CommitSpace(k int) error {
	if k < 0 {
		return ErrInvalidArgument
	}
	return b.withLock(func() error {
		if b.backFrozen() {
			return ErrFrozen
		}
		if !b.reserved.valid || b.reserved.seg != b.chain.tail {
			return ErrNoReservation
		}
		if k > b.reserved.avail {
			return ErrCommitExceedsReservation
		}
		orig := b.chain.totalLen
		seg := b.reserved.seg
		seg.length += k
		b.chain.totalLen += k
		b.reserved = reservation{}
		b.chain.advanceFirstWithData()
		b.bumpVersion()
		b.notify(orig, k, 0)
		return nil
	})
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
