//go:build unix

package reactor

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func newConnPair(t *testing.T, loop *EventLoop) (*Conn, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = unix.Close(fds[1]) })

	addr := &net.UnixAddr{Name: "conn-test", Net: "unix"}
	c := NewConn(loop, "conn-test", fds[0], addr, addr, NewNoOpLogger())
	return c, fds[1]
}

func TestConn_EstablishThenDestroy(t *testing.T) {
	loop, err := NewEventLoop()
	require.NoError(t, err)
	defer loop.Close()
	stop := runLoopInBackground(t, loop)
	defer stop()

	c, peerFD := newConnPair(t, loop)
	defer unix.Close(peerFD)

	established := make(chan struct{})
	c.SetConnectionCallback(func(conn *Conn) {
		if conn.State() == StateConnected {
			close(established)
		}
	})

	loop.RunInLoop(c.ConnectEstablished)
	select {
	case <-established:
	case <-time.After(2 * time.Second):
		t.Fatal("connectionCallback never fired with StateConnected")
	}
	assert.Equal(t, StateConnected, c.State())

	done := make(chan struct{})
	loop.RunInLoop(func() {
		c.ConnectDestroyed()
		close(done)
	})
	<-done
	assert.Equal(t, StateDisconnected, c.State())
}

func TestConn_MessageCallbackFiresOnReadableData(t *testing.T) {
	loop, err := NewEventLoop()
	require.NoError(t, err)
	defer loop.Close()
	stop := runLoopInBackground(t, loop)
	defer stop()

	c, peerFD := newConnPair(t, loop)
	defer unix.Close(peerFD)

	received := make(chan string, 1)
	c.SetMessageCallback(func(_ *Conn, buf *Buffer, _ time.Time) {
		received <- buf.RetrieveAllString()
	})
	loop.RunInLoop(c.ConnectEstablished)

	_, err = unix.Write(peerFD, []byte("ping"))
	require.NoError(t, err)

	select {
	case msg := <-received:
		assert.Equal(t, "ping", msg)
	case <-time.After(2 * time.Second):
		t.Fatal("messageCallback never fired")
	}
}

func TestConn_HighWaterMarkCallback(t *testing.T) {
	loop, err := NewEventLoop()
	require.NoError(t, err)
	defer loop.Close()
	stop := runLoopInBackground(t, loop)
	defer stop()

	c, peerFD := newConnPair(t, loop)
	defer unix.Close(peerFD)
	c.SetHighWaterMark(1024)

	hit := make(chan int, 1)
	c.SetHighWaterMarkCallback(func(_ *Conn, bytes int) { hit <- bytes })
	loop.RunInLoop(c.ConnectEstablished)

	big := make([]byte, 8*1024*1024)
	loop.RunInLoop(func() { c.Send(big) })

	select {
	case bytes := <-hit:
		assert.Greater(t, bytes, 1024)
	case <-time.After(2 * time.Second):
		t.Fatal("highWaterMarkCallback never fired for an oversized send")
	}
}

func TestConn_CloseCallbackInvokedOnPeerHangup(t *testing.T) {
	loop, err := NewEventLoop()
	require.NoError(t, err)
	defer loop.Close()
	stop := runLoopInBackground(t, loop)
	defer stop()

	c, peerFD := newConnPair(t, loop)

	closed := make(chan struct{})
	c.setCloseCallback(func(conn *Conn) {
		conn.ConnectDestroyed()
		close(closed)
	})
	loop.RunInLoop(c.ConnectEstablished)

	require.NoError(t, unix.Close(peerFD))

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("closeCallback never fired after peer hangup")
	}
	assert.Equal(t, StateDisconnected, c.State())
}
