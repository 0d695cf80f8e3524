package evbuffer

import "github.com/valyala/bytebufferpool"

// pooledBuf wraps a bytebufferpool.ByteBuffer so heap segments reuse backing
// arrays across their lifetime instead of returning them to the GC on every
// full drain (spec.md §4.2 "fully drained heap segments may be reused").
type pooledBuf struct {
	bb  *bytebufferpool.ByteBuffer
	buf []byte
}

// segmentPool is the package-default allocator for heap segment backing
// arrays. A single shared pool (mirroring bytebufferpool's own package-level
// default) is sufficient because segments never outlive the process and
// buffers never share a segment's backing array across Buffer instances.
var segmentPool bytebufferpool.Pool

func getPooledBuf(capacity int) *pooledBuf {
	bb := segmentPool.Get()
	if cap(bb.B) < capacity {
		bb.B = make([]byte, capacity)
	} else {
		bb.B = bb.B[:capacity]
	}
	return &pooledBuf{bb: bb, buf: bb.B}
}

func putPooledBuf(p *pooledBuf) {
	if p == nil {
		return
	}
	p.bb.Reset()
	segmentPool.Put(p.bb)
}
