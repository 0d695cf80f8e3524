package evbuffer

// EOLStyle selects which end-of-line convention Readln scans for, mirroring
// libevent's evbuffer_eol_style (spec.md §4.3, §6).
type EOLStyle int

const (
	// EOLAny matches any non-empty run of CR and LF characters, collapsed
	// into one terminator.
	EOLAny EOLStyle = iota
	// EOLCRLF matches an optional CR followed by a mandatory LF.
	EOLCRLF
	// EOLCRLFStrict matches exactly the two-byte sequence CR LF.
	EOLCRLFStrict
	// EOLLF matches a single LF.
	EOLLF
)

// Readln scans for a line terminator per style, returning a freshly
// allocated copy of the line (without its terminator) and draining the
// line and terminator from the buffer. If no complete terminator is
// present, it returns ErrNotFound and drains nothing (spec.md §4.3 Readln).
func (b *Buffer) Readln(style EOLStyle) ([]byte, error) {
	var line []byte
	err := b.withLock(func() error {
		if b.frontFrozen() {
			return ErrFrozen
		}
		orig := b.chain.totalLen
		linePos, eolLen, found, err := b.findEOLLocked(style)
		if err != nil {
			return err
		}
		if !found {
			return ErrNotFound
		}
		buf := make([]byte, linePos)
		if linePos > 0 {
			b.copyFrontLocked(buf, linePos)
		}
		b.drainLocked(linePos + eolLen)
		b.bumpVersion()
		b.notify(orig, 0, linePos+eolLen)
		line = buf
		return nil
	})
	return line, err
}

// findEOLLocked scans the chain from the front for a terminator matching
// style, returning the byte offset where the line's content ends and the
// terminator's length, without mutating the chain.
func (b *Buffer) findEOLLocked(style EOLStyle) (linePos int, eolLen int, found bool, err error) {
	total := b.chain.totalLen
	seg := b.chain.head
	off := 0
	abs := 0
	prevWasCR := false

	for abs < total {
		for seg != nil && off >= seg.length {
			off -= seg.length
			seg = seg.next
		}
		if seg == nil {
			break
		}
		if err = b.materializeIfNeeded(seg); err != nil {
			return 0, 0, false, err
		}
		c := seg.bytes()[off]

		switch style {
		case EOLAny:
			if c == '\r' || c == '\n' {
				runStart := abs
				s2, o2, a2 := seg, off, abs
				for a2 < total {
					for s2 != nil && o2 >= s2.length {
						o2 -= s2.length
						s2 = s2.next
					}
					if s2 == nil {
						break
					}
					if err = b.materializeIfNeeded(s2); err != nil {
						return 0, 0, false, err
					}
					cc := s2.bytes()[o2]
					if cc != '\r' && cc != '\n' {
						break
					}
					o2++
					a2++
				}
				return runStart, a2 - runStart, true, nil
			}
		case EOLLF:
			if c == '\n' {
				return abs, 1, true, nil
			}
		case EOLCRLF:
			if c == '\n' {
				if prevWasCR {
					return abs - 1, 2, true, nil
				}
				return abs, 1, true, nil
			}
		case EOLCRLFStrict:
			if c == '\r' {
				s2, o2 := seg, off+1
				for s2 != nil && o2 >= s2.length {
					o2 -= s2.length
					s2 = s2.next
				}
				if s2 != nil {
					if err = b.materializeIfNeeded(s2); err != nil {
						return 0, 0, false, err
					}
					if s2.bytes()[o2] == '\n' {
						return abs, 2, true, nil
					}
				}
			}
		}

		prevWasCR = c == '\r'
		off++
		abs++
	}
	return 0, 0, false, nil
}
