// Command bufferevent-demo is a minimal line-echo TCP server demonstrating
// pkg/evbuffer as a connection's read/write staging area: inbound bytes are
// read into an input Buffer, complete lines are pulled out with Readln, and
// the echoed response is staged through an output Buffer before being
// flushed with WriteToFD.
package main

import (
	"flag"
	"log"
	"net"
	"sync/atomic"

	"github.com/fluxorio/evbuffer/pkg/core"
	"github.com/fluxorio/evbuffer/pkg/evbuffer"
)

func main() {
	addr := flag.String("addr", ":9000", "listen address")
	maxConns := flag.Int("max-conns", 256, "maximum concurrent connections, 0 for unlimited")
	flag.Parse()

	logger := core.NewDefaultLogger()

	ln, err := net.Listen("tcp", *addr)
	if err != nil {
		log.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	logger.Infof("bufferevent-demo listening on %s", ln.Addr())
	serve(ln, *maxConns, logger)
}

// serve runs the accept loop, handing each accepted connection to its own
// goroutine. slots, when non-nil, bounds concurrency: Accept stalls once it
// is full rather than letting an unbounded number of goroutines pile up.
func serve(ln net.Listener, maxConns int, logger core.Logger) {
	var slots chan struct{}
	if maxConns > 0 {
		slots = make(chan struct{}, maxConns)
	}

	var accepted, active int64
	for {
		conn, err := ln.Accept()
		if err != nil {
			logger.Errorf("accept: %v", err)
			return
		}
		atomic.AddInt64(&accepted, 1)

		if slots != nil {
			slots <- struct{}{}
		}
		atomic.AddInt64(&active, 1)

		go func() {
			defer func() {
				atomic.AddInt64(&active, -1)
				if slots != nil {
					<-slots
				}
			}()
			handleConn(conn, logger)
		}()
	}
}

// handleConn isolates one connection's panics from the rest of the server,
// the same fail-soft discipline the teacher's connection handlers use.
func handleConn(conn net.Conn, logger core.Logger) {
	defer conn.Close()
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("panic in connection handler (isolated): %v", r)
		}
	}()

	if err := echoLines(conn); err != nil {
		logger.Warnf("connection closed: %v", err)
	}
}

// echoLines reads from conn until EOF, echoing each line (prefixed) back to
// the caller. It holds the connection open across many ReadFromFD/WriteToFD
// round trips, the pattern spec.md's §4.4 I/O facade is built for: no
// per-line allocation beyond what Readln's returned copy needs, and no
// single contiguous read buffer sized for the whole connection lifetime.
func echoLines(conn net.Conn) error {
	in := evbuffer.New(evbuffer.Config{})
	out := evbuffer.New(evbuffer.Config{})
	defer in.Free()
	defer out.Free()

	fd, release, err := connFD(conn)
	if err != nil {
		return err
	}
	defer release()

	for {
		n, err := in.ReadFromFD(fd, 0)
		if n == 0 {
			return err
		}

		for {
			line, lerr := in.Readln(evbuffer.EOLCRLF)
			if lerr != nil {
				break
			}
			if addErr := out.Add([]byte("echo: ")); addErr != nil {
				return addErr
			}
			if addErr := out.Add(line); addErr != nil {
				return addErr
			}
			if addErr := out.Add([]byte("\r\n")); addErr != nil {
				return addErr
			}
		}

		for out.GetLength() > 0 {
			if _, werr := out.WriteToFD(fd, 0); werr != nil {
				return werr
			}
		}

		if err != nil {
			return nil
		}
	}
}
