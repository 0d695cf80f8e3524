package evbuffer

// Drain removes n bytes from the logical front by bumping misalign on the
// head segment(s) and advancing the first-with-data cursor; no bytes are
// copied. Fully-drained heap segments are returned to the pool; reference
// and file-backed segments are released (cleanup fires, fd closes) as soon
// as their final byte is drained. Fails if the front is frozen
// (spec.md §4.2 Drain).
func (b *Buffer) Drain(n int) error {
	if n < 0 {
		return ErrInvalidArgument
	}
	return b.withLock(func() error {
		if b.frontFrozen() {
			return ErrFrozen
		}
		orig := b.chain.totalLen
		if n > orig {
			n = orig
		}
		b.drainLocked(n)
		b.bumpVersion()
		b.notify(orig, 0, n)
		return nil
	})
}

// drainLocked removes up to n bytes from the front. A file-backed segment
// never needs to be materialized just to be drained (draining never reads
// its bytes); a partial drain of one simply advances its file offset, the
// same way a heap segment's misalign advances. Caller holds the lock and
// has already clamped n to the buffer's length.
func (b *Buffer) drainLocked(n int) {
	remaining := n
	for remaining > 0 && b.chain.head != nil {
		s := b.chain.head
		avail := s.length
		if avail <= remaining {
			remaining -= avail
			b.chain.totalLen -= avail
			s.length = 0
			s.misalign = 0
			b.chain.head = s.next
			s.next = nil
			pooled := s.flags.pooled()
			s.release()
			b.recordSegmentReleased()
			if pooled {
				b.recordSegmentPooled()
			}
			if b.chain.head == nil {
				b.chain.tail = nil
			}
		} else {
			if s.flags.fileBacked() && s.data == nil {
				s.fileOff += int64(remaining)
			} else {
				s.misalign += remaining
			}
			s.length -= remaining
			b.chain.totalLen -= remaining
			remaining = 0
		}
	}
	b.chain.firstWithData = nil
	b.chain.advanceFirstWithData()
}

// Remove copies up to n bytes across however many segments are needed into
// dst, then drains that many bytes. Returns the number of bytes actually
// moved (spec.md §4.2 Remove).
func (b *Buffer) Remove(dst []byte, n int) (int, error) {
	if n < 0 {
		return 0, ErrInvalidArgument
	}
	var moved int
	err := b.withLock(func() error {
		if b.frontFrozen() {
			return ErrFrozen
		}
		orig := b.chain.totalLen
		if n > orig {
			n = orig
		}
		if n > len(dst) {
			n = len(dst)
		}
		moved = b.copyFrontLocked(dst[:n], n)
		b.drainLocked(moved)
		b.bumpVersion()
		b.notify(orig, 0, moved)
		return nil
	})
	return moved, err
}

// copyFrontLocked copies the first n bytes of the chain into dst,
// materializing (via pread) any file-backed segment it reaches. If that
// read fails, copying stops there and the count copied so far is returned.
func (b *Buffer) copyFrontLocked(dst []byte, n int) int {
	copied := 0
	for s := b.chain.head; s != nil && copied < n; s = s.next {
		want := minInt(n-copied, s.length)
		if want == 0 {
			continue
		}
		if s.flags.fileBacked() && s.data == nil {
			if err := b.materializeFileSegment(s); err != nil {
				break
			}
		}
		copy(dst[copied:copied+want], s.bytes()[:want])
		copied += want
	}
	return copied
}

// RemoveBuffer moves up to n bytes from src to dst with zero copies where
// possible: whole segments at src's head are unlinked and linked onto dst's
// tail. A partial final segment is copied, to avoid exposing a shared
// writable segment to both chains (spec.md §4.2 Remove-buffer).
func (b *Buffer) RemoveBuffer(src *Buffer, n int) (int, error) {
	if n < 0 {
		return 0, ErrInvalidArgument
	}
	if b == src {
		return 0, ErrInvalidArgument
	}
	first, second := b, src
	if src.id < b.id {
		first, second = src, b
	}
	var moved int
	var outerErr error
	_ = first.withLock(func() error {
		return second.withLock(func() error {
			if b.backFrozen() || src.frontFrozen() {
				outerErr = ErrFrozen
				return nil
			}
			origDst := b.chain.totalLen
			origSrc := src.chain.totalLen
			if n > origSrc {
				n = origSrc
			}
			// The segment that n splits is copied, so its bytes must be in memory.
			cut := 0
			for s := src.chain.head; s != nil && cut < n; s = s.next {
				if cut+s.length > n && s.flags.fileBacked() && s.data == nil {
					if err := src.materializeFileSegment(s); err != nil {
						outerErr = err
						return nil
					}
				}
				cut += s.length
			}
			moved = moveChainPrefix(src.chain, b.chain, n)
			b.bumpVersion()
			src.bumpVersion()
			b.notify(origDst, moved, 0)
			src.notify(origSrc, 0, moved)
			return nil
		})
	})
	return moved, outerErr
}

// moveChainPrefix relocates up to n bytes from the front of src onto the
// tail of dst, unlinking whole segments where possible and copying only a
// trailing partial segment.
func moveChainPrefix(src, dst *chain, n int) int {
	moved := 0
	for moved < n && src.head != nil {
		s := src.head
		remaining := n - moved
		if s.length <= remaining {
			src.head = s.next
			s.next = nil
			src.totalLen -= s.length
			moved += s.length
			dst.linkTail(s)
		} else {
			// Partial: copy the needed prefix into a fresh heap segment so
			// the shared writable backing array is never exposed to both
			// chains at once.
			part := newHeapSegment(growCapacity(remaining))
			copy(part.data, s.bytes()[:remaining])
			part.length = remaining
			dst.linkTail(part)

			s.misalign += remaining
			s.length -= remaining
			src.totalLen -= remaining
			moved += remaining
		}
	}
	if src.head == nil {
		src.tail = nil
	}
	src.firstWithData = nil
	src.advanceFirstWithData()
	return moved
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
