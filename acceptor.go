//go:build unix

package reactor

import (
	"fmt"
	"net"
	"time"

	"github.com/joeycumines/go-catrate"
	"golang.org/x/sys/unix"
)

// Acceptor owns a non-blocking listening socket on the base EventLoop and
// hands off each accepted connection's fd and peer address via
// NewConnectionCallback. It never itself creates a Conn; that is the
// Server's job, so the Server can pick a worker loop to own it.
type Acceptor struct {
	loop      *EventLoop
	listenFD  int
	channel   *Channel
	listening bool
	logger    Logger

	newConnectionCB func(fd int, peerAddr net.Addr)

	rateLimiter *catrate.Limiter

	// idleFD is a single reserved descriptor, opened in advance and
	// closed only to make room for an accept() call that would otherwise
	// fail with EMFILE, then immediately reopened. This mirrors the
	// "keep a spare fd" mitigation muduo's own Acceptor does not
	// implement, but which original_source/Acceptor.cc's TODO comment
	// ("Increasing the number of socket fd") gestures at.
	idleFD int
}

// NewAcceptor creates a listening socket bound to addr. The loop passed
// in must be the Server's base loop; the Acceptor's Channel lives there
// for the Acceptor's whole life.
func NewAcceptor(loop *EventLoop, addr string, reusePort bool, logger Logger, rates map[time.Duration]int) (*Acceptor, error) {
	if logger == nil {
		logger = NewNoOpLogger()
	}

	fd, err := createNonblockingSocket()
	if err != nil {
		return nil, err
	}

	if err := socketSetReuseAddr(fd, true); err != nil {
		_ = unix.Close(fd)
		return nil, WrapError("reactor: setsockopt SO_REUSEADDR failed", err)
	}
	if reusePort {
		if err := socketSetReusePort(fd, true); err != nil {
			_ = unix.Close(fd)
			return nil, WrapError("reactor: setsockopt SO_REUSEPORT failed", err)
		}
	}

	resolved, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		_ = unix.Close(fd)
		return nil, WrapError("reactor: resolve listen address failed", err)
	}
	if err := bindTCP(fd, resolved); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}

	idleFD, err := unix.Open("/dev/null", unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		idleFD = -1 // best-effort; EMFILE mitigation is a nicety, not required
	}

	var limiter *catrate.Limiter
	if len(rates) > 0 {
		limiter = catrate.NewLimiter(rates)
	}

	a := &Acceptor{
		loop:        loop,
		listenFD:    fd,
		logger:      logger,
		rateLimiter: limiter,
		idleFD:      idleFD,
	}
	a.channel = NewChannel(loop, fd)
	a.channel.SetReadCallback(a.handleRead)

	return a, nil
}

// SetNewConnectionCallback sets the callback invoked with each accepted
// connection's fd and peer address.
func (a *Acceptor) SetNewConnectionCallback(cb func(fd int, peerAddr net.Addr)) {
	a.newConnectionCB = cb
}

// Listening reports whether Listen has been called.
func (a *Acceptor) Listening() bool { return a.listening }

// Listen starts listening on the bound socket and arms read interest so
// handleRead fires on every inbound connection. Must be called on the
// owning loop's goroutine.
func (a *Acceptor) Listen() error {
	a.listening = true
	if err := unix.Listen(a.listenFD, 1024); err != nil {
		return WrapError("reactor: listen failed", err)
	}
	a.channel.EnableReading()
	return nil
}

// Close tears down the Acceptor's channel and socket.
func (a *Acceptor) Close() error {
	a.channel.DisableAll()
	a.channel.Remove()
	if a.idleFD >= 0 {
		_ = unix.Close(a.idleFD)
	}
	return unix.Close(a.listenFD)
}

func (a *Acceptor) handleRead(time.Time) {
	connFD, sa, err := unix.Accept4(a.listenFD, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		a.handleAcceptError(err)
		return
	}

	peerAddr := sockaddrToTCPAddr(sa)

	if err := a.checkRateLimit(peerAddr); err != nil {
		a.logger.Warnf("rejecting connection from %s: %v", peerAddr, err)
		_ = unix.Close(connFD)
		return
	}

	if a.newConnectionCB != nil {
		a.newConnectionCB(connFD, peerAddr)
	} else {
		_ = unix.Close(connFD)
	}
}

// checkRateLimit returns ErrRateLimited (wrapped with the offending peer)
// if peerAddr's host has exceeded the configured accept rate; nil if no
// rate limiting is configured or the peer is still within its budget.
func (a *Acceptor) checkRateLimit(peerAddr net.Addr) error {
	if a.rateLimiter == nil {
		return nil
	}
	host := ""
	if tcpAddr, ok := peerAddr.(*net.TCPAddr); ok {
		host = tcpAddr.IP.String()
	}
	if _, ok := a.rateLimiter.Allow(host); !ok {
		return WrapError(fmt.Sprintf("accept rate exceeded for %s", host), ErrRateLimited)
	}
	return nil
}

func (a *Acceptor) handleAcceptError(err error) {
	a.logger.Errorf("accept failed: %v", err)
	if err == unix.EMFILE && a.idleFD >= 0 {
		// Drop the reserved fd to free one slot, accept-and-discard the
		// connection the kernel already has queued, then reopen the
		// reserve for next time.
		_ = unix.Close(a.idleFD)
		if connFD, _, acceptErr := unix.Accept(a.listenFD); acceptErr == nil {
			_ = unix.Close(connFD)
		}
		if fd, reopenErr := unix.Open("/dev/null", unix.O_RDONLY|unix.O_CLOEXEC, 0); reopenErr == nil {
			a.idleFD = fd
		} else {
			a.idleFD = -1
		}
	}
}

func createNonblockingSocket() (int, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return -1, WrapError("reactor: socket create failed", err)
	}
	return fd, nil
}

func bindTCP(fd int, addr *net.TCPAddr) error {
	sa := &unix.SockaddrInet4{Port: addr.Port}
	if ip4 := addr.IP.To4(); ip4 != nil {
		copy(sa.Addr[:], ip4)
	}
	if err := unix.Bind(fd, sa); err != nil {
		return WrapError("reactor: bind failed", err)
	}
	return nil
}

func sockaddrToTCPAddr(sa unix.Sockaddr) net.Addr {
	switch addr := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.TCPAddr{IP: append([]byte(nil), addr.Addr[:]...), Port: addr.Port}
	case *unix.SockaddrInet6:
		return &net.TCPAddr{IP: append([]byte(nil), addr.Addr[:]...), Port: addr.Port}
	default:
		return nil
	}
}
