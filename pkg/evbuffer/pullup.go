package evbuffer

// Pullup ensures the first n bytes reside in a single contiguous heap
// segment and returns a slice over them. n == -1 means the whole buffer.
// If the head segment already covers n bytes, its existing bytes are
// returned directly. Otherwise a new head segment large enough is
// allocated, bytes are copied from the relevant prefix of the chain
// (materializing any file-backed segment crossed and copying out of any
// referenced segment crossed), and it is spliced in, releasing
// fully-consumed donor segments. Pullup may invalidate all Positions and
// any pointer previously returned by Pullup on this buffer
// (spec.md §4.2 Pullup).
func (b *Buffer) Pullup(n int) ([]byte, error) {
	var out []byte
	err := b.withLock(func() error {
		res, err := b.pullupLocked(n)
		out = res
		return err
	})
	return out, err
}

func (b *Buffer) pullupLocked(n int) ([]byte, error) {
	total := b.chain.totalLen
	if n < 0 {
		n = total
	}
	if n > total {
		return nil, ErrInvalidArgument
	}
	if n == 0 {
		return nil, nil
	}

	head := b.chain.head
	if head != nil && head.length >= n {
		if head.flags.fileBacked() && head.data == nil {
			if err := b.materializeFileSegment(head); err != nil {
				return nil, err
			}
		}
		return head.bytes()[:n], nil
	}

	newSeg := newHeapSegment(n)
	newSeg.length = n

	copied := 0
	s := b.chain.head
	for s != nil && copied < n {
		if s.flags.fileBacked() && s.data == nil {
			if err := b.materializeFileSegment(s); err != nil {
				return nil, err
			}
		}
		want := minInt(n-copied, s.length)
		copy(newSeg.data[copied:copied+want], s.bytes()[:want])
		copied += want

		if want == s.length {
			dead := s
			s = s.next
			dead.next = nil
			dead.release()
		} else {
			s.misalign += want
			s.length -= want
		}
	}

	newSeg.next = s
	b.chain.head = newSeg
	if s == nil {
		b.chain.tail = newSeg
	}
	b.chain.firstWithData = nil
	b.chain.advanceFirstWithData()
	b.bumpVersion()

	return newSeg.bytes(), nil
}
