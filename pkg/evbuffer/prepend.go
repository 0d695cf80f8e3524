package evbuffer

// Prepend writes data before the buffer's current contents. It first tries
// the misalign slack at the front of the head segment (if heap-owned and
// writable); otherwise it inserts a new segment at the front. Fails if the
// front is frozen (spec.md §4.1 Prepend).
func (b *Buffer) Prepend(data []byte) error {
	return b.withLock(func() error {
		if b.frontFrozen() {
			return ErrFrozen
		}
		n := len(data)
		if n == 0 {
			return nil
		}
		orig := b.chain.totalLen

		if head := b.chain.head; head != nil && head.flags.pooled() && !head.flags.readOnly() &&
			!head.flags.reference() && !head.flags.fileBacked() && head.misalign >= n {
			head.misalign -= n
			head.length += n
			copy(head.data[head.misalign:], data)
			b.chain.totalLen += n
		} else {
			seg := newHeapSegment(growCapacity(n))
			// Place the new bytes at the end of the segment's capacity so a
			// later Prepend can grow into the front slack the same way.
			seg.misalign = seg.capacity - n
			seg.length = n
			copy(seg.data[seg.misalign:], data)
			b.chain.linkHead(seg)
			b.recordSegmentAllocated()
		}

		b.chain.advanceFirstWithData()
		b.bumpVersion()
		b.notify(orig, n, 0)
		return nil
	})
}

// PrependBuffer splices src's chain in front of dst's without copying bytes
// (spec.md §4.1 Prepend-buffer).
func (b *Buffer) PrependBuffer(src *Buffer) error {
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
			if b.frontFrozen() {
				outerErr = ErrFrozen
				return nil
			}
			n := src.chain.totalLen
			if n == 0 {
				return nil
			}
			origDst := b.chain.totalLen
			origSrc := src.chain.totalLen
			b.chain.spliceHead(src.chain)
			b.bumpVersion()
			src.bumpVersion()
			b.notify(origDst, n, 0)
			src.notify(origSrc, 0, n)
			return nil
		})
	})
	return outerErr
}
