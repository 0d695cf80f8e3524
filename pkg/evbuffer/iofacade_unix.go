//go:build unix

package evbuffer

import "golang.org/x/sys/unix"

// preadAt reads from fd at offset without disturbing the fd's shared file
// offset, used by materializeFileSegment so concurrent buffers referencing
// the same FileSegment never race on a seek+read pair.
func preadAt(fd int, buf []byte, offset int64) (int, error) {
	n, err := unix.Pread(fd, buf, offset)
	if err != nil {
		return n, err
	}
	if n == 0 {
		return 0, nil
	}
	return n, nil
}

// vectorRead issues one readv(2) across bufs.
func vectorRead(fd int, bufs [][]byte) (int, error) {
	if len(bufs) == 1 {
		n, err := unix.Read(fd, bufs[0])
		return n, err
	}
	iovs := make([][]byte, len(bufs))
	copy(iovs, bufs)
	n, err := unix.Readv(fd, iovs)
	return n, err
}

// vectorWrite issues one writev(2) across bufs.
func vectorWrite(fd int, bufs [][]byte) (int, error) {
	if len(bufs) == 1 {
		n, err := unix.Write(fd, bufs[0])
		return n, err
	}
	iovs := make([][]byte, len(bufs))
	copy(iovs, bufs)
	n, err := unix.Writev(fd, iovs)
	return n, err
}

// trySendfile attempts sendfile(2) from srcFD at srcOffset directly into
// dstFD, the zero-copy path for WriteToFD over an unmaterialized file
// segment (spec.md §4.4, §9 sendfile/splice note). ok is false when
// sendfile is not applicable (e.g. dstFD is not a plain descriptor
// sendfile accepts), meaning the caller should fall back.
func trySendfile(dstFD, srcFD int, srcOffset int64, count int) (n int, ok bool, err error) {
	off := srcOffset
	written, serr := unix.Sendfile(dstFD, srcFD, &off, count)
	if serr != nil {
		if serr == unix.EINVAL || serr == unix.ENOSYS {
			return 0, false, nil
		}
		return written, true, serr
	}
	return written, true, nil
}

// trySplice attempts splice(2) from srcFD into dstFD, which the kernel
// accepts only when one of the two is a pipe. WriteToFD tries it only after
// trySendfile has reported sendfile not applicable.
func trySplice(dstFD, srcFD int, count int) (n int, ok bool, err error) {
	written, serr := unix.Splice(srcFD, nil, dstFD, nil, count, 0)
	if serr != nil {
		if serr == unix.EINVAL || serr == unix.ENOSYS {
			return 0, false, nil
		}
		return int(written), true, serr
	}
	return int(written), true, nil
}
