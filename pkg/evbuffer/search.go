package evbuffer

// Search finds the first occurrence of needle at or after start, scanning
// segment-by-segment with cross-segment carry (a partial match that runs
// off the end of one segment continues into the next without
// materializing the two into one buffer). Returns a Position with
// Pos == -1 if not found. An empty needle returns start unchanged
// (spec.md §4.3 Search).
func (b *Buffer) Search(needle []byte, start int) (Position, error) {
	var result Position
	err := b.withLock(func() error {
		if start < 0 {
			start = 0
		}
		if len(needle) == 0 {
			return b.ptrSetAbsoluteLocked(&result, start)
		}
		pos, err := b.searchLocked(needle, start)
		if err != nil {
			return err
		}
		if pos < 0 {
			result.Pos = -1
			result.bufferVersion = b.version
			return nil
		}
		return b.ptrSetAbsoluteLocked(&result, pos)
	})
	return result, err
}

// searchLocked returns the absolute offset of the first match at or after
// start, or -1 if none exists.
func (b *Buffer) searchLocked(needle []byte, start int) (int, error) {
	total := b.chain.totalLen
	if start > total-len(needle) {
		return -1, nil
	}

	var startPos Position
	if err := b.ptrSetAbsoluteLocked(&startPos, start); err != nil {
		return -1, err
	}

	outerSeg, outerOff := startPos.seg, startPos.segOffset
	for abs := start; abs <= total-len(needle); abs++ {
		if outerSeg != nil {
			if err := b.materializeIfNeeded(outerSeg); err != nil {
				return -1, err
			}
		}
		if matched, err := b.matchAt(outerSeg, outerOff, needle); err != nil {
			return -1, err
		} else if matched {
			return abs, nil
		}
		outerSeg, outerOff = advanceCursor(outerSeg, outerOff)
	}
	return -1, nil
}

// matchAt reports whether needle matches the bytes starting at (seg, off),
// walking across segment boundaries as needed.
func (b *Buffer) matchAt(seg *segment, off int, needle []byte) (bool, error) {
	s, o := seg, off
	for i := 0; i < len(needle); i++ {
		for s != nil && o >= s.length {
			o -= s.length
			s = s.next
		}
		if s == nil {
			return false, nil
		}
		if err := b.materializeIfNeeded(s); err != nil {
			return false, err
		}
		if s.bytes()[o] != needle[i] {
			return false, nil
		}
		o++
	}
	return true, nil
}

func advanceCursor(seg *segment, off int) (*segment, int) {
	off++
	for seg != nil && off >= seg.length {
		off -= seg.length
		seg = seg.next
	}
	return seg, off
}

func (b *Buffer) materializeIfNeeded(s *segment) error {
	if s.flags.fileBacked() && s.data == nil {
		return b.materializeFileSegment(s)
	}
	return nil
}
