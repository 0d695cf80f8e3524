package evbuffer

// PtrHow selects how Buffer.PtrSet computes a Position's hint, mirroring
// libevent's evbuffer_ptr_how (spec.md §4.3, SPEC_FULL.md §5).
type PtrHow int

const (
	// PtrSetAbsolute recomputes the hint from scratch by walking segments
	// from the head until pos is reached: O(chain length).
	PtrSetAbsolute PtrHow = iota
	// PtrAdd advances the existing hint by a delta in amortized
	// O(delta/segment_size), resuming from wherever the Position already
	// points.
	PtrAdd
)

// Position is a logical, offset-based cursor into a Buffer, plus an opaque
// internal hint for amortized resumed search (spec.md §2 item 3, §3
// Position). Pos is -1 for "not found". A Position is only guaranteed valid
// against the Buffer snapshot that produced it; bufferVersion lets PtrSet
// detect a stale hint and recompute instead of reading through
// a freed or relocated segment (spec.md §9 version-counter note).
type Position struct {
	Pos int

	seg           *segment
	segOffset     int
	bufferVersion uint64
}

// PtrSet repositions p against b according to how. PtrSetAbsolute walks
// from the head; PtrAdd advances the existing hint by delta (spec.md §4.3
// Ptr-set). A stale or zero Position is silently recomputed from scratch.
func (b *Buffer) PtrSet(p *Position, posOrDelta int, how PtrHow) error {
	return b.withLock(func() error {
		switch how {
		case PtrSetAbsolute:
			return b.ptrSetAbsoluteLocked(p, posOrDelta)
		case PtrAdd:
			if p.bufferVersion != b.version || p.seg == nil {
				return b.ptrSetAbsoluteLocked(p, p.Pos+posOrDelta)
			}
			return b.ptrAddLocked(p, posOrDelta)
		default:
			return ErrInvalidArgument
		}
	})
}

func (b *Buffer) ptrSetAbsoluteLocked(p *Position, pos int) error {
	if pos < 0 || pos > b.chain.totalLen {
		p.Pos = -1
		p.seg = nil
		p.segOffset = 0
		p.bufferVersion = b.version
		return nil
	}
	remaining := pos
	for s := b.chain.head; s != nil; s = s.next {
		if remaining <= s.length {
			p.Pos = pos
			p.seg = s
			p.segOffset = remaining
			p.bufferVersion = b.version
			return nil
		}
		remaining -= s.length
	}
	// pos == totalLen: one-past-the-end position with no owning segment.
	p.Pos = pos
	p.seg = nil
	p.segOffset = 0
	p.bufferVersion = b.version
	return nil
}

func (b *Buffer) ptrAddLocked(p *Position, delta int) error {
	newPos := p.Pos + delta
	if newPos < 0 || newPos > b.chain.totalLen {
		p.Pos = -1
		p.seg = nil
		p.segOffset = 0
		return nil
	}
	if delta < 0 {
		// Backward motion is not amortized in this hint scheme; recompute.
		return b.ptrSetAbsoluteLocked(p, newPos)
	}
	s := p.seg
	off := p.segOffset + delta
	for s != nil && off > s.length {
		off -= s.length
		s = s.next
	}
	p.Pos = newPos
	if s == nil {
		p.seg = nil
		p.segOffset = 0
	} else {
		p.seg = s
		p.segOffset = off
	}
	return nil
}
