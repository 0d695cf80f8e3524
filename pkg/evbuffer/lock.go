package evbuffer

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"
)

// recursiveMutex is a mutual-exclusion lock that the same goroutine may
// re-acquire without deadlocking itself, matching spec.md §2/§5's
// "recursive mutual-exclusion guard": internal code locks on every public
// entry point, and a callback invoked from inside a synchronous dispatch
// must be able to call back into the buffer's own public API on the same
// goroutine.
//
// Go has no exported goroutine-identity API; this uses the same
// runtime.Stack-parsing trick long used by recursive-lock implementations
// in the wild, since the corpus carries no third-party recursive-mutex
// library (DESIGN.md records this as a deliberate stdlib choice).
type recursiveMutex struct {
	mu    sync.Mutex
	guard sync.Mutex
	owner int64
	count int
}

func currentGoroutineID() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := bytes.TrimPrefix(buf[:n], []byte("goroutine "))
	if idx := bytes.IndexByte(b, ' '); idx >= 0 {
		b = b[:idx]
	}
	id, _ := strconv.ParseInt(string(b), 10, 64)
	return id
}

func (m *recursiveMutex) Lock() {
	gid := currentGoroutineID()

	m.guard.Lock()
	if m.count > 0 && m.owner == gid {
		m.count++
		m.guard.Unlock()
		return
	}
	m.guard.Unlock()

	m.mu.Lock()

	m.guard.Lock()
	m.owner = gid
	m.count = 1
	m.guard.Unlock()
}

func (m *recursiveMutex) Unlock() {
	gid := currentGoroutineID()

	m.guard.Lock()
	if m.count == 0 || m.owner != gid {
		m.guard.Unlock()
		panic("evbuffer: unlock of a lock not held by this goroutine")
	}
	m.count--
	if m.count > 0 {
		m.guard.Unlock()
		return
	}
	m.owner = 0
	m.guard.Unlock()
	m.mu.Unlock()
}
