// Package server serves the line protocol over TCP. Each connection gets its
// own goroutine; every line is parsed, submitted to the router and answered
// with exactly one reply line.
package server

import (
	"bufio"
	"context"
	"net"
	"strings"
	"sync"

	"github.com/chainguard-dev/clog"
	"github.com/cockroachdb/errors"

	"kvshard/internal/protocol"
	"kvshard/internal/router"
)

// maxLineSize bounds a single command line.
const maxLineSize = 1 << 20

// Submitter is the router entry point the server drives.
type Submitter interface {
	Submit(ctx context.Context, req router.Request) router.Response
}

// Server is a line-protocol TCP server.
type Server struct {
	router Submitter

	mu     sync.Mutex
	lis    net.Listener
	conns  map[net.Conn]struct{}
	closed bool
	wg     sync.WaitGroup
}

// New creates a server submitting requests to r.
func New(r Submitter) *Server {
	return &Server{
		router: r,
		conns:  make(map[net.Conn]struct{}),
	}
}

// Serve accepts connections on lis until Close is called or ctx is done.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		lis.Close()
		return net.ErrClosed
	}
	s.lis = lis
	s.mu.Unlock()

	log := clog.FromContext(ctx)
	log.Infof("serving line protocol on %s", lis.Addr())

	stop := context.AfterFunc(ctx, s.Close)
	defer stop()

	for {
		conn, err := lis.Accept()
		if err != nil {
			if s.isClosed() {
				return nil
			}
			return errors.Wrap(err, "accepting connection")
		}
		if !s.track(conn) {
			conn.Close()
			return nil
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(conn)
			s.handle(ctx, conn)
		}()
	}
}

// Addr returns the listening address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lis == nil {
		return nil
	}
	return s.lis.Addr()
}

// Close stops the listener, closes every live connection and waits for their
// handlers to return.
func (s *Server) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.wg.Wait()
		return
	}
	s.closed = true
	if s.lis != nil {
		s.lis.Close()
	}
	for c := range s.conns {
		c.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Server) track(c net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[c] = struct{}{}
	return true
}

func (s *Server) untrack(c net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, c)
	c.Close()
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	log := clog.FromContext(ctx).With("remote", conn.RemoteAddr().String())
	log.Debugf("connection opened")

	// Requests in flight for this client are abandoned when it goes away.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), maxLineSize)
	w := bufio.NewWriter(conn)

	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(line), "QUIT") {
			break
		}

		var reply string
		req, err := protocol.ParseLine(line)
		if err != nil {
			reply = protocol.RenderError(err.Error())
		} else {
			reply = protocol.Render(s.router.Submit(ctx, req))
		}

		if _, err := w.WriteString(reply + "\n"); err != nil {
			log.Warnf("write failed: %v", err)
			return
		}
		if err := w.Flush(); err != nil {
			log.Warnf("flush failed: %v", err)
			return
		}
	}
	switch err := scanner.Err(); {
	case errors.Is(err, bufio.ErrTooLong):
		log.Warnf("line exceeds %d bytes, closing connection", maxLineSize)
		if _, err := w.WriteString(protocol.RenderError("line too long") + "\n"); err == nil {
			w.Flush()
		}
	case err != nil && !errors.Is(err, net.ErrClosed):
		log.Warnf("read failed: %v", err)
	}
	log.Debugf("connection closed")
}
