package evbuffer

import (
	"sync"
	"syscall"
)

func closeFD(fd int) {
	_ = syscall.Close(fd)
}

// FileSegment is a file-backed region shareable across several buffers —
// an fd opened once and streamed into multiple Buffers without re-opening,
// supplementing spec.md §4.1's single-buffer-owns-fd add_file with
// libevent's richer, independently-refcounted evbuffer_file_segment
// (SPEC_FULL.md §5). A plain Buffer.AddFile remains single-owner.
type FileSegment struct {
	mu       sync.Mutex
	fd       int
	refcount int
}

// NewFileSegment wraps an already-open fd for sharing across buffers via
// AddFileSegment. The fd is closed when the last buffer referencing it
// releases its range.
func NewFileSegment(fd int) *FileSegment {
	return &FileSegment{fd: fd}
}

func (fs *FileSegment) acquire() {
	fs.mu.Lock()
	fs.refcount++
	fs.mu.Unlock()
}

func (fs *FileSegment) release() {
	fs.mu.Lock()
	fs.refcount--
	done := fs.refcount <= 0
	fs.mu.Unlock()
	if done {
		closeFD(fs.fd)
	}
}

// AddFile creates a file-backed segment that exclusively owns fd: no bytes
// are read at this time, and the buffer closes fd when the segment is
// fully drained or the buffer is freed (spec.md §4.1 Append-file, §3
// Ownership summary).
func (b *Buffer) AddFile(fd int, offset int64, n int) error {
	if n < 0 {
		return ErrInvalidArgument
	}
	return b.withLock(func() error {
		if b.closed {
			return ErrClosed
		}
		if b.backFrozen() {
			return ErrFrozen
		}
		orig := b.chain.totalLen
		seg := &segment{
			capacity: n,
			length:   n,
			flags:    segFlagFile | segFlagReadOnly,
			fd:       fd,
			fileOff:  offset,
		}
		b.chain.linkTail(seg)
		b.chain.advanceFirstWithData()
		b.recordSegmentAllocated()
		b.bumpVersion()
		b.notify(orig, n, 0)
		return nil
	})
}

// AddFileSegment adds fs's [offset, offset+n) range to the buffer, sharing
// the already-open fd with any other buffer that also references fs.
func (b *Buffer) AddFileSegment(fs *FileSegment, offset int64, n int) error {
	if n < 0 {
		return ErrInvalidArgument
	}
	return b.withLock(func() error {
		if b.closed {
			return ErrClosed
		}
		if b.backFrozen() {
			return ErrFrozen
		}
		orig := b.chain.totalLen
		fs.acquire()
		seg := &segment{
			capacity: n,
			length:   n,
			flags:    segFlagFile | segFlagReadOnly,
			fd:       fs.fd,
			fileOff:  offset,
			fileRefs: fs,
		}
		b.chain.linkTail(seg)
		b.chain.advanceFirstWithData()
		b.recordSegmentAllocated()
		b.bumpVersion()
		b.notify(orig, n, 0)
		return nil
	})
}

// materializeFileSegment reads a file-backed segment's declared range into
// heap memory in place, turning it into an ordinary materialized segment
// for the purposes of Pullup/Remove/Search/Readln (spec.md §4.1, §4.2:
// "file-backed segments are never readable via pullup/remove without
// materialization"). The segment's fd/cleanup bookkeeping is untouched, so
// release() still closes it exactly once.
func (b *Buffer) materializeFileSegment(s *segment) error {
	if s.data != nil {
		return nil
	}
	buf := make([]byte, s.length)
	n, err := preadFull(s.fd, buf, s.fileOff)
	if err != nil {
		return err
	}
	s.data = buf[:n]
	s.capacity = n
	s.length = n
	s.misalign = 0
	return nil
}

// ReadFromFD ensures at least howmuch (or cfg.DefaultReadSize if <= 0)
// bytes of writable slack in the tail, preferably as two physically
// separate regions so one vectored read can fill them in a single syscall,
// performs the read, and advances the tail length by the bytes returned.
// Returns (0, nil) on EOF (spec.md §4.4 Read-from-fd).
func (b *Buffer) ReadFromFD(fd int, howmuch int) (int, error) {
	if howmuch <= 0 {
		howmuch = b.cfg.DefaultReadSize
	}
	var n int
	err := b.withLock(func() error {
		if b.closed {
			return ErrClosed
		}
		if b.backFrozen() {
			return ErrFrozen
		}
		segs, bufs := b.reserveScatterRegions(howmuch)
		got, rerr := vectorRead(fd, bufs)
		if got > 0 {
			orig := b.chain.totalLen
			b.commitScatterRegions(segs, got)
			b.bumpVersion()
			b.notify(orig, got, 0)
		}
		n = got
		return rerr
	})
	return n, err
}

// reserveScatterRegions ensures howmuch bytes of tail slack and returns up
// to two segments (and the slices spanning their free space): the existing
// tail's remaining slack, and, if that alone is short of howmuch, a freshly
// appended segment's full capacity — giving ReadFromFD two physically
// separate regions for one vectored read (spec.md §4.4).
func (b *Buffer) reserveScatterRegions(howmuch int) ([]*segment, [][]byte) {
	var segs []*segment
	var bufs [][]byte
	tail := b.chain.tail
	if tail != nil && tail.tailSlack() > 0 {
		slack := tail.tailSlack()
		segs = append(segs, tail)
		bufs = append(bufs, tail.data[tail.misalign+tail.length:tail.misalign+tail.length+slack])
		if slack >= howmuch {
			return segs, bufs
		}
		howmuch -= slack
	}
	seg := newHeapSegment(growCapacity(howmuch))
	b.chain.linkTail(seg)
	segs = append(segs, seg)
	bufs = append(bufs, seg.data[:seg.capacity])
	return segs, bufs
}

// commitScatterRegions publishes n bytes across the segments handed out by
// the immediately preceding reserveScatterRegions call, in order, filling
// each segment's offered slack before moving to the next.
func (b *Buffer) commitScatterRegions(segs []*segment, n int) {
	remaining := n
	for _, s := range segs {
		if remaining == 0 {
			break
		}
		slack := s.capacity - s.misalign - s.length
		take := minInt(slack, remaining)
		s.length += take
		b.chain.totalLen += take
		remaining -= take
	}
	b.chain.advanceFirstWithData()
}

// WriteToFD performs a vectored write over the head segments up to howmuch
// (or the whole buffer if howmuch <= 0). For file-backed segments it uses
// sendfile/splice where available and the destination supports it;
// otherwise it falls back to read-then-write. It drains exactly what was
// written (spec.md §4.4 Write-to-fd).
func (b *Buffer) WriteToFD(fd int, howmuch int) (int, error) {
	var written int
	err := b.withLock(func() error {
		if b.closed {
			return ErrClosed
		}
		if b.frontFrozen() {
			return ErrFrozen
		}
		total := b.chain.totalLen
		if howmuch <= 0 || howmuch > total {
			howmuch = total
		}
		n, werr := b.writeLocked(fd, howmuch)
		if n > 0 {
			orig := b.chain.totalLen
			b.drainLocked(n)
			b.bumpVersion()
			b.notify(orig, 0, n)
		}
		written = n
		return werr
	})
	return written, err
}

func (b *Buffer) writeLocked(fd int, howmuch int) (int, error) {
	head := b.chain.head
	if head != nil && head.flags.fileBacked() && head.data == nil {
		want := minInt(howmuch, head.length)
		if n, ok, err := trySendfile(fd, head.fd, head.fileOff, want); ok {
			return n, err
		}
		if n, ok, err := trySplice(fd, head.fd, want); ok {
			return n, err
		}
		// Neither fast path applies here; fall back to read-then-write.
		if err := b.materializeFileSegment(head); err != nil {
			return 0, err
		}
	}
	return b.vectoredWriteLocked(fd, howmuch)
}

func (b *Buffer) vectoredWriteLocked(fd int, howmuch int) (int, error) {
	var bufs [][]byte
	remaining := howmuch
	for s := b.chain.head; s != nil && remaining > 0; s = s.next {
		if s.flags.fileBacked() && s.data == nil {
			break // stop the vector at the next unmaterialized file segment
		}
		take := minInt(remaining, s.length)
		if take == 0 {
			continue
		}
		bufs = append(bufs, s.bytes()[:take])
		remaining -= take
	}
	if len(bufs) == 0 {
		return 0, nil
	}
	return vectorWrite(fd, bufs)
}

func preadFull(fd int, buf []byte, offset int64) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := preadAt(fd, buf[total:], offset+int64(total))
		if n > 0 {
			total += n
		}
		if err != nil {
			if total > 0 {
				return total, nil
			}
			return total, err
		}
		if n == 0 {
			break
		}
	}
	return total, nil
}
