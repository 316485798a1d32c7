//go:build unix

package reactor

import (
	"net"

	"golang.org/x/sys/unix"
)

func socketSetReuseAddr(fd int, on bool) error {
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, boolToInt(on))
}

func socketSetReusePort(fd int, on bool) error {
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, boolToInt(on))
}

func socketSetKeepAlive(fd int, on bool) error {
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, boolToInt(on))
}

func socketSetTCPNoDelay(fd int, on bool) error {
	return unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, boolToInt(on))
}

// socketShutdownWrite half-closes the write side of fd. Unlike the
// original muduo Socket::shutdownWrite(bool on), which ignores its
// argument and always calls shutdown(SHUT_WR), this always performs the
// shutdown unconditionally too — but the signature drops the unused bool
// entirely rather than keeping a parameter nothing reads.
func socketShutdownWrite(fd int) error {
	return unix.Shutdown(fd, unix.SHUT_WR)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// socketWrite performs a single non-blocking write(2) call.
func socketWrite(fd int, data []byte) (int, error) {
	n, err := unix.Write(fd, data)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// socketClose closes fd, ignoring EBADF (already closed).
func socketClose(fd int) error {
	err := unix.Close(fd)
	if err == unix.EBADF {
		return nil
	}
	return err
}

// socketGetError reads and clears SO_ERROR on fd.
func socketGetError(fd int) (error, error) {
	errno, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return nil, err
	}
	if errno == 0 {
		return nil, nil
	}
	return unix.Errno(errno), nil
}

func isWouldBlock(err error) bool {
	return err == unix.EAGAIN || err == unix.EWOULDBLOCK
}

func isConnReset(err error) bool {
	return err == unix.EPIPE || err == unix.ECONNRESET
}

// localAddrForFD reads the local address a connected socket was bound to
// via getsockname(2). Returns nil on failure rather than an error: it is
// used only for diagnostics/Conn.LocalAddr, never load-bearing.
func localAddrForFD(fd int) net.Addr {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return nil
	}
	return sockaddrToTCPAddr(sa)
}
