//go:build unix

package reactor

import (
	"net"
	"sync/atomic"
	"time"
)

// ConnState is a Conn's position in its connection lifecycle.
type ConnState int32

const (
	StateConnecting ConnState = iota
	StateConnected
	StateDisconnecting
	StateDisconnected
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Conn is one established TCP connection, bound for its entire life to a
// single worker EventLoop. Every method that touches its Channel or
// Buffers must be called on that loop's goroutine; Send is the one
// exception — it is safe from any goroutine and hops onto the loop via
// RunInLoop when called from elsewhere.
type Conn struct {
	loop   *EventLoop
	name   string
	fd     int
	state  atomic.Int32
	closed atomic.Bool

	channel      *Channel
	inputBuffer  *Buffer
	outputBuffer *Buffer

	localAddr net.Addr
	peerAddr  net.Addr

	highWaterMark int

	logger Logger
	ctx    any

	connectionCB    func(*Conn)
	messageCB       func(*Conn, *Buffer, time.Time)
	writeCompleteCB func(*Conn)
	highWaterMarkCB func(*Conn, int)

	// closeCB is set by the Server and invoked from handleClose, so the
	// Server can remove the connection from its map. Not exposed
	// to embedders directly (spec's "close-to-server" callback).
	closeCB func(*Conn)
}

// NewConn wraps fd (already accepted and non-blocking) as a Conn owned by
// loop. The caller must call ConnectEstablished, from loop's own
// goroutine, before the connection is usable.
func NewConn(loop *EventLoop, name string, fd int, localAddr, peerAddr net.Addr, logger Logger) *Conn {
	if logger == nil {
		logger = NewNoOpLogger()
	}

	c := &Conn{
		loop:          loop,
		name:          name,
		fd:            fd,
		inputBuffer:   NewBuffer(),
		outputBuffer:  NewBuffer(),
		localAddr:     localAddr,
		peerAddr:      peerAddr,
		highWaterMark: defaultHighWaterMark,
		logger:        logger,
	}
	c.state.Store(int32(StateConnecting))

	c.channel = NewChannel(loop, fd)
	c.channel.SetReadCallback(c.handleRead)
	c.channel.SetWriteCallback(c.handleWrite)
	c.channel.SetCloseCallback(c.handleClose)
	c.channel.SetErrorCallback(c.handleError)

	_ = socketSetKeepAlive(fd, true)

	return c
}

func (c *Conn) alive() bool { return !c.closed.Load() }

// Name returns the connection's server-assigned identifier.
func (c *Conn) Name() string { return c.name }

// State returns the connection's current lifecycle state.
func (c *Conn) State() ConnState { return ConnState(c.state.Load()) }

// LocalAddr returns the local endpoint address.
func (c *Conn) LocalAddr() net.Addr { return c.localAddr }

// PeerAddr returns the remote endpoint address.
func (c *Conn) PeerAddr() net.Addr { return c.peerAddr }

// Loop returns the worker EventLoop this connection is bound to.
func (c *Conn) Loop() *EventLoop { return c.loop }

// Context returns the embedder-supplied per-connection value previously
// set with SetContext, or nil.
func (c *Conn) Context() any { return c.ctx }

// SetContext stores an embedder-supplied per-connection value.
func (c *Conn) SetContext(v any) { c.ctx = v }

// SetHighWaterMark sets the output-buffer byte threshold above which
// HighWaterMarkCallback fires. Must be called before ConnectEstablished.
func (c *Conn) SetHighWaterMark(bytes int) { c.highWaterMark = bytes }

// SetTCPNoDelay toggles TCP_NODELAY on the underlying socket.
func (c *Conn) SetTCPNoDelay(on bool) error { return socketSetTCPNoDelay(c.fd, on) }

// SetConnectionCallback sets the callback invoked once when the
// connection becomes Connected, and again when it becomes Disconnected.
func (c *Conn) SetConnectionCallback(cb func(*Conn)) { c.connectionCB = cb }

// SetMessageCallback sets the callback invoked whenever inbound bytes
// arrive; the Buffer passed in is the connection's input buffer, still
// holding whatever bytes the callback doesn't retrieve.
func (c *Conn) SetMessageCallback(cb func(*Conn, *Buffer, time.Time)) { c.messageCB = cb }

// SetWriteCompleteCallback sets the callback invoked once a Send's data
// has been fully handed to the kernel: either by the Send's own direct
// write, or when the output buffer later drains.
func (c *Conn) SetWriteCompleteCallback(cb func(*Conn)) { c.writeCompleteCB = cb }

// SetHighWaterMarkCallback sets the callback invoked when the output
// buffer's size crosses the high-water mark going up; it fires exactly
// once per upward crossing, not once per Send while above the mark.
func (c *Conn) SetHighWaterMarkCallback(cb func(*Conn, int)) { c.highWaterMarkCB = cb }

func (c *Conn) setCloseCallback(cb func(*Conn)) { c.closeCB = cb }

// ConnectEstablished transitions the connection to Connected, ties its
// Channel's lifetime to this Conn, arms read interest, and invokes the
// connection callback. Must run on the owning loop's goroutine — Server
// arranges this via RunInLoop when handing the connection to a worker.
func (c *Conn) ConnectEstablished() {
	c.state.Store(int32(StateConnected))
	c.channel.Tie(c)
	c.channel.EnableReading()
	if c.connectionCB != nil {
		c.connectionCB(c)
	}
}

// ConnectDestroyed tears the connection down: disables and removes its
// Channel and closes its fd, transitioning to Disconnected (and invoking
// the connection callback) first if that hasn't already happened via
// handleClose. Must run on the owning loop's goroutine.
func (c *Conn) ConnectDestroyed() {
	if ConnState(c.state.Load()) == StateConnected {
		c.state.Store(int32(StateDisconnected))
		c.channel.DisableAll()
		if c.connectionCB != nil {
			c.connectionCB(c)
		}
	}
	c.channel.Remove()
	c.closed.Store(true)
	_ = socketClose(c.fd)
}

func (c *Conn) handleRead(receiveTime time.Time) {
	n, err := c.inputBuffer.ReadFromFD(c.fd)
	switch {
	case n > 0:
		if c.messageCB != nil {
			c.messageCB(c, c.inputBuffer, receiveTime)
		}
	case n == 0 && err == nil:
		c.handleClose()
	default:
		// n < 0: a real read error, including a spurious EAGAIN wakeup.
		// Never treated as EOF, matching TcpConnection::handleRead.
		c.logger.Errorf("conn %s: read failed: %v", c.name, err)
		c.handleError()
	}
}

func (c *Conn) handleWrite() {
	if !c.channel.IsWriting() {
		c.logger.Warnf("conn %s: fd %d is down, no more writing", c.name, c.fd)
		return
	}

	n, err := c.outputBuffer.WriteToFD(c.fd)
	if err != nil {
		c.logger.Errorf("conn %s: write failed: %v", c.name, err)
		return
	}

	c.outputBuffer.Retrieve(n)
	if c.outputBuffer.ReadableBytes() == 0 {
		c.channel.DisableWriting()
		if c.writeCompleteCB != nil {
			cb, conn := c.writeCompleteCB, c
			c.loop.QueueInLoop(func() { cb(conn) })
		}
		if ConnState(c.state.Load()) == StateDisconnecting {
			c.shutdownInLoop()
		}
	}
}

// handleClose marks the connection Disconnected, clears the Channel's
// interest, and notifies the connection callback and the Server, but
// deliberately leaves the Channel in the poller's map: ConnectDestroyed
// (invoked by the Server once it has removed the connection from its map)
// owns removing it, mirroring muduo's handleClose/connectDestroyed split.
func (c *Conn) handleClose() {
	c.logger.Infof("conn %s: closing, fd=%d state=%s", c.name, c.fd, c.State())
	c.state.Store(int32(StateDisconnected))
	c.channel.DisableAll()

	if c.connectionCB != nil {
		c.connectionCB(c)
	}
	if c.closeCB != nil {
		c.closeCB(c)
	}
}

func (c *Conn) handleError() {
	errCode, err := socketGetError(c.fd)
	if err != nil {
		errCode = err
	}
	c.logger.Errorf("conn %s: socket error: %v", c.name, errCode)
}

// Send queues data for delivery, writing synchronously where possible.
// Safe to call from any goroutine. Returns ErrConnNotConnected if the
// connection is not currently in the Connected state.
func (c *Conn) Send(data []byte) error {
	if ConnState(c.state.Load()) != StateConnected {
		return ErrConnNotConnected
	}
	if c.loop.IsLoopThread() {
		c.sendInLoop(data)
		return nil
	}
	buf := append([]byte(nil), data...)
	c.loop.RunInLoop(func() { c.sendInLoop(buf) })
	return nil
}

// SendString is a convenience wrapper around Send.
func (c *Conn) SendString(s string) error { return c.Send([]byte(s)) }

// sendInLoop implements muduo's TcpConnection::sendInLoop with its two
// documented bugs fixed: the guard for attempting a direct write is
// "channel has no write interest armed AND the output buffer is already
// empty" (the original's code read outputBuffer_.readableBytes() as a
// truthiness check, i.e. the opposite of empty), and the post-shutdown
// guard compares state for equality rather than assigning to it.
func (c *Conn) sendInLoop(data []byte) {
	if ConnState(c.state.Load()) == StateDisconnected {
		c.logger.Warnf("conn %s: disconnected, give up writing", c.name)
		return
	}

	var (
		nwrote    int
		remaining = len(data)
		faultErr  bool
	)

	if !c.channel.IsWriting() && c.outputBuffer.ReadableBytes() == 0 {
		n, err := socketWrite(c.fd, data)
		switch {
		case err == nil:
			nwrote = n
			remaining = len(data) - nwrote
			if remaining == 0 && c.writeCompleteCB != nil {
				cb, conn := c.writeCompleteCB, c
				c.loop.QueueInLoop(func() { cb(conn) })
			}
		case isWouldBlock(err):
			nwrote = 0
		default:
			nwrote = 0
			c.logger.Errorf("conn %s: write failed: %v", c.name, err)
			if isConnReset(err) {
				faultErr = true
			}
		}
	}

	if !faultErr && remaining > 0 {
		oldLen := c.outputBuffer.ReadableBytes()
		if oldLen+remaining >= c.highWaterMark && oldLen < c.highWaterMark && c.highWaterMarkCB != nil {
			cb, conn, total := c.highWaterMarkCB, c, oldLen+remaining
			c.loop.QueueInLoop(func() { cb(conn, total) })
		}
		c.outputBuffer.Append(data[nwrote:])
		if !c.channel.IsWriting() {
			c.channel.EnableWriting()
		}
	}
}

// Shutdown half-closes the connection's write side once any pending
// output has drained; inbound data can still be read until the peer
// closes its end too (which surfaces as the normal EOF/close path).
func (c *Conn) Shutdown() {
	if ConnState(c.state.Load()) == StateConnected {
		c.state.Store(int32(StateDisconnecting))
		c.loop.RunInLoop(c.shutdownInLoop)
	}
}

func (c *Conn) shutdownInLoop() {
	if !c.channel.IsWriting() {
		if err := socketShutdownWrite(c.fd); err != nil {
			c.logger.Errorf("conn %s: shutdown write failed: %v", c.name, err)
		}
	}
}

// ForceClose immediately tears the connection down without waiting for
// pending output to drain.
func (c *Conn) ForceClose() {
	if state := ConnState(c.state.Load()); state == StateConnected || state == StateDisconnecting {
		c.state.Store(int32(StateDisconnecting))
		c.loop.QueueInLoop(func() { c.handleClose() })
	}
}
