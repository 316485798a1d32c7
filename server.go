//go:build unix

package reactor

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// Server is the façade composing an Acceptor on a base loop with an
// EventLoopThreadPool of workers and the map of live connections it
// owns. Call Start once; it never blocks, so the caller must separately
// run the base loop (Server.Loop) on whichever goroutine should become
// the base reactor thread.
type Server struct {
	baseLoop *EventLoop
	pool     *EventLoopThreadPool
	acceptor *Acceptor

	addr string
	name string
	opts *serverOptions

	started atomic.Bool

	mu          sync.Mutex
	connections map[string]*Conn
	nextConnID  int

	connectionCB    func(*Conn)
	messageCB       func(*Conn, *Buffer, time.Time)
	writeCompleteCB func(*Conn)
}

// NewServer constructs a Server bound to addr, with a fresh base
// EventLoop. name is used as the connection-naming prefix
// ("<name>-<ipPort>#<counter>").
func NewServer(addr, name string, opts ...ServerOption) (*Server, error) {
	cfg := resolveServerOptions(opts)

	baseLoop, err := NewEventLoop(WithLoopLogger(cfg.logger))
	if err != nil {
		return nil, err
	}

	s := &Server{
		baseLoop:    baseLoop,
		addr:        addr,
		name:        name,
		opts:        cfg,
		connections: make(map[string]*Conn),
	}

	acceptor, err := NewAcceptor(baseLoop, addr, cfg.reusePort, cfg.logger, cfg.acceptRates)
	if err != nil {
		_ = baseLoop.Close()
		return nil, err
	}
	acceptor.SetNewConnectionCallback(s.newConnection)
	s.acceptor = acceptor

	s.pool = NewEventLoopThreadPool(baseLoop, cfg.logger)
	if cfg.threadInitCB != nil {
		s.pool.SetThreadInitCallback(cfg.threadInitCB)
	}

	return s, nil
}

// SetConnectionCallback sets the callback invoked for every connection
// this server owns, on both connect and disconnect.
func (s *Server) SetConnectionCallback(cb func(*Conn)) { s.connectionCB = cb }

// SetMessageCallback sets the callback invoked whenever any connection
// this server owns has inbound bytes ready.
func (s *Server) SetMessageCallback(cb func(*Conn, *Buffer, time.Time)) { s.messageCB = cb }

// SetWriteCompleteCallback sets the callback invoked once a Send's data
// on any connection has been fully handed to the kernel, either directly
// by the Send or when the output buffer later drains.
func (s *Server) SetWriteCompleteCallback(cb func(*Conn)) { s.writeCompleteCB = cb }

// ConnectionCount returns the number of connections currently tracked.
// Safe to call from any goroutine.
func (s *Server) ConnectionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.connections)
}

// Start spins up the worker thread pool and begins listening. Safe to
// call more than once; every call after the first returns
// ErrServerAlreadyStarted without any further effect.
func (s *Server) Start() error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrServerAlreadyStarted
	}

	if err := s.pool.Start(s.opts.threadCount); err != nil {
		return err
	}

	s.baseLoop.RunInLoop(func() {
		if err := s.acceptor.Listen(); err != nil {
			s.opts.logger.Errorf("server %s: listen failed: %v", s.name, err)
		}
	})
	return nil
}

// Loop runs the server's base EventLoop on the calling goroutine. This
// is normally the last call in main(); it blocks until Quit (or the
// loop's own Quit) is called.
func (s *Server) Loop() error {
	return s.baseLoop.Loop()
}

// Quit stops every worker loop and the base loop. Safe to call from any
// goroutine.
func (s *Server) Quit() {
	s.pool.Quit()
	s.baseLoop.Quit()
}

func (s *Server) newConnection(fd int, peerAddr net.Addr) {
	loop := s.pool.GetNextLoop()

	s.mu.Lock()
	connName := fmt.Sprintf("%s-%s#%d", s.name, s.addr, s.nextConnID)
	s.nextConnID++
	s.mu.Unlock()

	localAddr := localAddrForFD(fd)

	conn := NewConn(loop, connName, fd, localAddr, peerAddr, s.opts.logger)
	conn.SetHighWaterMark(s.opts.highWaterMark)
	conn.SetConnectionCallback(s.connectionCB)
	conn.SetMessageCallback(s.messageCB)
	conn.SetWriteCompleteCallback(s.writeCompleteCB)
	conn.setCloseCallback(s.removeConnection)
	_ = conn.SetTCPNoDelay(s.opts.tcpNoDelay)

	s.mu.Lock()
	s.connections[connName] = conn
	s.mu.Unlock()

	loop.RunInLoop(conn.ConnectEstablished)
}

// removeConnection is the "close-to-server" callback every Conn this
// server owns is wired to: it always hops to the base loop to mutate the
// connection map (mirroring muduo's TcpServer::removeConnection), then
// hops back to the connection's own loop to finish tearing its Channel
// down.
func (s *Server) removeConnection(conn *Conn) {
	s.baseLoop.RunInLoop(func() {
		s.mu.Lock()
		delete(s.connections, conn.Name())
		s.mu.Unlock()

		conn.Loop().QueueInLoop(conn.ConnectDestroyed)
	})
}
