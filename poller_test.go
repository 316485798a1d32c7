//go:build unix

package reactor

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPoller(t *testing.T) poller {
	t.Helper()
	p, err := newEpollPoller()
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.close() })
	return p
}

func TestPoller_RegisterReportsReadiness(t *testing.T) {
	p := newTestPoller(t)

	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	loop := &EventLoop{p: p, logger: NewNoOpLogger()}
	ch := NewChannel(loop, int(r.Fd()))
	ch.EnableReading()

	_, err = w.Write([]byte("x"))
	require.NoError(t, err)

	_, active, err := p.poll(time.Second, nil)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Same(t, ch, active[0])
}

func TestPoller_RemoveChannelStopsReporting(t *testing.T) {
	p := newTestPoller(t)

	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	loop := &EventLoop{p: p, logger: NewNoOpLogger()}
	ch := NewChannel(loop, int(r.Fd()))
	ch.EnableReading()
	ch.DisableAll()
	ch.Remove()

	_, err = w.Write([]byte("x"))
	require.NoError(t, err)

	_, active, err := p.poll(50*time.Millisecond, nil)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestPoller_DuplicateRegisterErrors(t *testing.T) {
	p := newTestPoller(t)

	r, _, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()

	fd := int(r.Fd())
	loop := &EventLoop{p: p, logger: NewNoOpLogger()}
	ch1 := NewChannel(loop, fd)
	require.NoError(t, p.updateChannel(ch1))

	ch2 := NewChannel(loop, fd)
	err = p.updateChannel(ch2)
	assert.ErrorIs(t, err, ErrFDAlreadyRegistered)
}

func TestPoller_HasChannel(t *testing.T) {
	p := newTestPoller(t)

	r, _, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()

	fd := int(r.Fd())
	assert.False(t, p.hasChannel(fd))

	loop := &EventLoop{p: p, logger: NewNoOpLogger()}
	ch := NewChannel(loop, fd)
	ch.EnableReading()
	assert.True(t, p.hasChannel(fd))
}
