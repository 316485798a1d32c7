//go:build unix

package reactor

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventLoopThreadPool_ZeroThreadsReturnsBaseLoop(t *testing.T) {
	base, err := NewEventLoop()
	require.NoError(t, err)
	defer base.Close()

	pool := NewEventLoopThreadPool(base, nil)
	require.NoError(t, pool.Start(0))

	assert.Same(t, base, pool.GetNextLoop())
	assert.Same(t, base, pool.GetNextLoop())
}

func TestEventLoopThreadPool_RoundRobin(t *testing.T) {
	base, err := NewEventLoop()
	require.NoError(t, err)
	defer base.Close()

	pool := NewEventLoopThreadPool(base, nil)
	require.NoError(t, pool.Start(3))
	defer pool.Quit()

	first := pool.GetNextLoop()
	second := pool.GetNextLoop()
	third := pool.GetNextLoop()
	fourth := pool.GetNextLoop()

	assert.NotSame(t, first, second)
	assert.NotSame(t, second, third)
	assert.Same(t, first, fourth, "round robin must wrap back to the first worker")
}

func TestEventLoopThreadPool_ThreadInitCallback(t *testing.T) {
	base, err := NewEventLoop()
	require.NoError(t, err)
	defer base.Close()

	var initCount atomic.Int32
	pool := NewEventLoopThreadPool(base, nil)
	pool.SetThreadInitCallback(func(*EventLoop) { initCount.Add(1) })
	require.NoError(t, pool.Start(2))
	defer pool.Quit()

	assert.Equal(t, int32(2), initCount.Load())
}
