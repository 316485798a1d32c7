//go:build unix

package reactor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOwner struct{ live bool }

func (f *fakeOwner) alive() bool { return f.live }

func TestChannel_EnableDisableUpdatesInterest(t *testing.T) {
	loop, err := NewEventLoop()
	require.NoError(t, err)
	defer loop.Close()

	ch := NewChannel(loop, 99)
	assert.True(t, ch.IsNoneEvent())

	ch.EnableReading()
	assert.True(t, ch.IsReading())
	assert.False(t, ch.IsWriting())

	ch.EnableWriting()
	assert.True(t, ch.IsWriting())

	ch.DisableWriting()
	assert.False(t, ch.IsWriting())
	assert.True(t, ch.IsReading())

	ch.DisableAll()
	assert.True(t, ch.IsNoneEvent())
}

func TestChannel_HandleEventDispatchOrder(t *testing.T) {
	loop, err := NewEventLoop()
	require.NoError(t, err)
	defer loop.Close()

	var order []string
	ch := NewChannel(loop, 100)
	ch.SetCloseCallback(func() { order = append(order, "close") })
	ch.SetErrorCallback(func() { order = append(order, "error") })
	ch.SetReadCallback(func(time.Time) { order = append(order, "read") })
	ch.SetWriteCallback(func() { order = append(order, "write") })

	ch.SetRevents(EventHup | EventErr | EventRead | EventWrite)
	ch.HandleEvent(time.Now())

	// READ is set alongside HUP, so the close callback is skipped.
	assert.Equal(t, []string{"error", "read", "write"}, order)
}

func TestChannel_HupSuppressedWhenReadable(t *testing.T) {
	loop, err := NewEventLoop()
	require.NoError(t, err)
	defer loop.Close()

	var closed bool
	ch := NewChannel(loop, 101)
	ch.SetCloseCallback(func() { closed = true })

	ch.SetRevents(EventHup | EventRead)
	ch.HandleEvent(time.Now())

	assert.False(t, closed, "HUP with readable data pending must not fire the close callback")
}

func TestChannel_TieGuardsDeadOwner(t *testing.T) {
	loop, err := NewEventLoop()
	require.NoError(t, err)
	defer loop.Close()

	var called bool
	ch := NewChannel(loop, 102)
	ch.SetReadCallback(func(time.Time) { called = true })

	owner := &fakeOwner{live: false}
	ch.Tie(owner)

	ch.SetRevents(EventRead)
	ch.HandleEvent(time.Now())
	assert.False(t, called, "dead owner must suppress dispatch")

	owner.live = true
	ch.HandleEvent(time.Now())
	assert.True(t, called)
}
