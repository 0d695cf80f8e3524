package evbuffer

// segmentFlags tags the ownership and mutability of one segment's backing
// bytes. Read-only segments reject writes; reference and file segments
// never coalesce with a heap tail (see Buffer.AddReference on segment
// coalescing vs. reference preservation).
type segmentFlags uint8

const (
	segFlagReadOnly segmentFlags = 1 << iota
	segFlagReference
	segFlagFile
	segFlagImmutable
	segFlagPooled
)

func (f segmentFlags) readOnly() bool    { return f&segFlagReadOnly != 0 }
func (f segmentFlags) reference() bool   { return f&segFlagReference != 0 }
func (f segmentFlags) fileBacked() bool  { return f&segFlagFile != 0 }
func (f segmentFlags) immutable() bool   { return f&segFlagImmutable != 0 }

// CleanupFunc releases a reference segment's externally-owned bytes. It is
// invoked exactly once, either when the segment's last byte is drained or
// when the owning buffer is freed with the segment still present.
type CleanupFunc func(data []byte, arg interface{})

// segment is one contiguous byte region in a Chain. Invariant:
// misalign + length <= capacity. Heap segments expose capacity-length-misalign
// bytes of writable slack after the live region; reference and file segments
// have no writable slack and are never grown in place.
type segment struct {
	data     []byte // nil for pure file-backed segments that have not been materialized
	pooled   *pooledBuf
	capacity int
	misalign int
	length   int
	flags    segmentFlags

	cleanup    CleanupFunc
	cleanupArg interface{}

	fd      int
	fileOff int64
	// fileRefs is non-nil when this segment's fd is shared via a FileSegment
	// handle (SPEC_FULL.md §5); it is released instead of closing fd directly.
	fileRefs *FileSegment

	next *segment
}

func newHeapSegment(capacity int) *segment {
	pb := getPooledBuf(capacity)
	return &segment{
		data:     pb.buf[:cap(pb.buf)],
		pooled:   pb,
		capacity: cap(pb.buf),
		flags:    segFlagPooled,
	}
}

// writable reports whether n more bytes can be appended into this segment's
// existing slack without reallocation.
func (s *segment) writable(n int) bool {
	if s.flags.readOnly() || s.flags.reference() || s.flags.fileBacked() || s.flags.immutable() {
		return false
	}
	return s.capacity-s.misalign-s.length >= n
}

// tailSlack returns the number of writable bytes after the live region.
func (s *segment) tailSlack() int {
	if s.flags.readOnly() || s.flags.reference() || s.flags.fileBacked() {
		return 0
	}
	return s.capacity - s.misalign - s.length
}

// bytes returns the live region of a materialized segment.
func (s *segment) bytes() []byte {
	return s.data[s.misalign : s.misalign+s.length]
}

// release runs cleanup/close side effects for a segment that has been fully
// drained or is being discarded on buffer free. It must be called at most
// once per segment.
func (s *segment) release() {
	switch {
	case s.flags.reference():
		if s.cleanup != nil {
			s.cleanup(s.data, s.cleanupArg)
			s.cleanup = nil
		}
	case s.flags.fileBacked():
		if s.fileRefs != nil {
			s.fileRefs.release()
		} else if s.fd >= 0 {
			closeFD(s.fd)
		}
		s.fd = -1
	case s.flags.pooled():
		putPooledBuf(s.pooled)
		s.pooled = nil
		s.data = nil
	}
}

func (f segmentFlags) pooled() bool { return f&segFlagPooled != 0 }

// growCapacity rounds n up to a power of two with a 1024-byte floor, matching
// the "grow" sizing rule in SPEC_FULL.md / spec.md §4.1.
func growCapacity(n int) int {
	const min = 1024
	if n < min {
		n = min
	}
	c := min
	for c < n {
		c <<= 1
	}
	return c
}
