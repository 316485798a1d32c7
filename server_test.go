//go:build unix

package reactor

import (
	"bufio"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startTestServer(t *testing.T, opts ...ServerOption) (*Server, func()) {
	t.Helper()
	srv, err := NewServer("127.0.0.1:0", "test-server", opts...)
	require.NoError(t, err)

	// The server binds to an ephemeral port ("127.0.0.1:0"); the
	// Acceptor's listenFD is already bound by the time NewServer returns,
	// so callers read the real port back with
	// localAddrForFD(srv.acceptor.listenFD) and dial it.
	require.NoError(t, srv.Start())

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Loop()
	}()

	return srv, func() {
		srv.Quit()
		<-done
	}
}

func dial(t *testing.T, addr net.Addr) net.Conn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr.String(), 2*time.Second)
	require.NoError(t, err)
	return conn
}

func TestServer_Echo(t *testing.T) {
	srv, stop := startTestServer(t)
	defer stop()

	srv.SetMessageCallback(func(c *Conn, buf *Buffer, _ time.Time) {
		c.SendString(buf.RetrieveAllString())
	})

	addr := localAddrForFD(srv.acceptor.listenFD)
	conn := dial(t, addr)
	defer conn.Close()

	_, err := conn.Write([]byte("hello reactor\n"))
	require.NoError(t, err)

	line, err := bufio.NewReader(conn).ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "hello reactor\n", line)
}

func TestServer_FanOut(t *testing.T) {
	srv, stop := startTestServer(t, WithThreadCount(2))
	defer stop()

	var mu sync.Mutex
	var conns []*Conn
	srv.SetConnectionCallback(func(c *Conn) {
		if c.State() == StateConnected {
			mu.Lock()
			conns = append(conns, c)
			mu.Unlock()
		}
	})

	addr := localAddrForFD(srv.acceptor.listenFD)

	const n = 5
	clients := make([]net.Conn, n)
	for i := 0; i < n; i++ {
		clients[i] = dial(t, addr)
		defer clients[i].Close()
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(conns) == n
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	srv.baseLoop.RunInLoop(func() {
		for _, c := range conns {
			c.SendString("broadcast\n")
		}
	})
	mu.Unlock()

	for _, c := range clients {
		line, err := bufio.NewReader(c).ReadString('\n')
		require.NoError(t, err)
		assert.Equal(t, "broadcast\n", line)
	}
}

func TestServer_GracefulShutdownWithPendingWrite(t *testing.T) {
	srv, stop := startTestServer(t)
	defer stop()

	var writeComplete atomic.Bool
	srv.SetConnectionCallback(func(c *Conn) {
		if c.State() == StateConnected {
			c.SetWriteCompleteCallback(func(*Conn) { writeComplete.Store(true) })
			big := make([]byte, 4*1024*1024)
			c.Send(big)
			c.Shutdown()
		}
	})

	addr := localAddrForFD(srv.acceptor.listenFD)
	conn := dial(t, addr)
	defer conn.Close()

	buf := make([]byte, 64*1024)
	total := 0
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		n, err := conn.Read(buf)
		total += n
		if err != nil {
			break
		}
	}
	assert.Equal(t, 4*1024*1024, total, "all queued bytes must be delivered before the half-close lands")
}

func TestServer_ConnectionCount(t *testing.T) {
	srv, stop := startTestServer(t)
	defer stop()

	addr := localAddrForFD(srv.acceptor.listenFD)
	conn := dial(t, addr)
	defer conn.Close()

	require.Eventually(t, func() bool {
		return srv.ConnectionCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	conn.Close()

	require.Eventually(t, func() bool {
		return srv.ConnectionCount() == 0
	}, 2*time.Second, 10*time.Millisecond)
}
