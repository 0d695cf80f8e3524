package main

import (
	"fmt"
	"net"
	"syscall"
)

// connFD extracts the raw file descriptor behind a *net.TCPConn so the
// evbuffer I/O facade can read/write it directly with ReadFromFD/WriteToFD.
// The returned release func must be called once the fd is no longer needed
// by the caller; it currently has nothing to release (the descriptor is
// still owned by conn and closed when the connection itself closes) but
// keeps the call site correct if that changes.
func connFD(conn net.Conn) (fd int, release func(), err error) {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return 0, nil, fmt.Errorf("bufferevent-demo: connection type %T exposes no raw fd", conn)
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return 0, nil, err
	}
	var gotFD int
	ctrlErr := raw.Control(func(fdv uintptr) {
		gotFD = int(fdv)
	})
	if ctrlErr != nil {
		return 0, nil, ctrlErr
	}
	// Go's runtime poller holds this fd in non-blocking mode for its own
	// epoll/kqueue use; since ReadFromFD/WriteToFD issue raw read/write/
	// sendfile syscalls outside that poller, the fd is switched to blocking
	// mode for the remainder of this connection's handling.
	if serr := syscall.SetNonblock(gotFD, false); serr != nil {
		return 0, nil, serr
	}
	return gotFD, func() {}, nil
}
