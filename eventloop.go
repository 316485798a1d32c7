//go:build unix

package reactor

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// pollTimeout bounds how long a single poller.poll call may block, so a
// loop with no armed channels still wakes periodically (matching muduo's
// kPollTimeMs).
const pollTimeout = 10 * time.Second

// pollErrorBackoff bounds how fast the loop retries poll after a
// non-EINTR error, so a persistently failing poller degrades to a slow
// retry loop instead of spinning the goroutine at full CPU.
const pollErrorBackoff = 10 * time.Millisecond

// Task is a callback queued for execution on an EventLoop's own goroutine.
type Task func()

// EventLoop is a single-goroutine I/O reactor: once Loop is called from a
// goroutine, that goroutine owns the loop for its entire life. Every
// Channel registered with it, and every Task submitted via RunInLoop or
// QueueInLoop, executes only on that goroutine.
type EventLoop struct {
	logger Logger

	p poller

	wakeupFD      int
	wakeupChannel *Channel

	goroutineID atomic.Uint64 // 0 until Loop() starts running

	looping atomic.Bool
	quit    atomic.Bool

	mu                  sync.Mutex
	pendingFunctors     []Task
	callingPendingFuncs atomic.Bool
	activeChannels      []*Channel
	pollReturnTime      time.Time
}

// NewEventLoop constructs an EventLoop but does not start it; call Loop to
// run it on the calling goroutine.
func NewEventLoop(opts ...LoopOption) (*EventLoop, error) {
	cfg := resolveLoopOptions(opts)

	p, err := newDefaultPoller()
	if err != nil {
		return nil, err
	}

	wakeupFD, err := newWakeupFD()
	if err != nil {
		_ = p.close()
		return nil, err
	}

	l := &EventLoop{
		logger:   cfg.logger,
		p:        p,
		wakeupFD: wakeupFD,
	}
	l.wakeupChannel = NewChannel(l, wakeupFD)
	l.wakeupChannel.SetReadCallback(l.handleWakeupRead)
	l.wakeupChannel.EnableReading()

	return l, nil
}

func (l *EventLoop) handleWakeupRead(time.Time) {
	wakeupDrain(l.wakeupFD)
}

// IsLoopThread reports whether the calling goroutine is the one running
// this loop. Before Loop has been entered, it always returns false.
func (l *EventLoop) IsLoopThread() bool {
	id := l.goroutineID.Load()
	return id != 0 && id == currentGoroutineID()
}

// Loop runs the reactor loop on the calling goroutine until Quit is
// called. It returns ErrLoopAlreadyRunning if already looping.
func (l *EventLoop) Loop() error {
	if !l.looping.CompareAndSwap(false, true) {
		return ErrLoopAlreadyRunning
	}
	l.goroutineID.Store(currentGoroutineID())
	l.quit.Store(false)

	l.logger.Infof("event loop started")

	for !l.quit.Load() {
		l.activeChannels = l.activeChannels[:0]

		returnTime, active, err := l.p.poll(pollTimeout, l.activeChannels)
		if err != nil {
			l.logger.Errorf("poller error: %v", err)
			// A persistent non-EINTR poll error (closed poller fd, etc.)
			// would otherwise busy-spin this goroutine; back off instead
			// of hammering the syscall and the log.
			time.Sleep(pollErrorBackoff)
			continue
		}
		l.activeChannels = active
		l.pollReturnTime = returnTime

		for _, ch := range l.activeChannels {
			ch.HandleEvent(returnTime)
		}

		l.doPendingFunctors()
	}

	l.logger.Infof("event loop stopped")
	l.looping.Store(false)
	return nil
}

// Quit asks the loop to stop after finishing its current iteration. Safe
// to call from any goroutine; if called from outside the loop's own
// goroutine, it wakes the loop so the quit flag is observed promptly.
func (l *EventLoop) Quit() {
	l.quit.Store(true)
	if !l.IsLoopThread() {
		l.wakeup()
	}
}

// RunInLoop runs fn on the loop's goroutine. If called from that
// goroutine already, fn runs synchronously before RunInLoop returns;
// otherwise it is queued and the loop is woken.
func (l *EventLoop) RunInLoop(fn Task) {
	if l.IsLoopThread() {
		fn()
		return
	}
	l.QueueInLoop(fn)
}

// QueueInLoop always defers fn to run on the loop's next pass through
// doPendingFunctors, even when called from the loop's own goroutine. This
// matters when fn must not run until after the caller's current function
// returns, e.g. a callback that closes the Channel currently dispatching.
func (l *EventLoop) QueueInLoop(fn Task) {
	l.mu.Lock()
	l.pendingFunctors = append(l.pendingFunctors, fn)
	l.mu.Unlock()

	if !l.IsLoopThread() || l.callingPendingFuncs.Load() {
		l.wakeup()
	}
}

func (l *EventLoop) doPendingFunctors() {
	l.mu.Lock()
	functors := l.pendingFunctors
	l.pendingFunctors = nil
	l.mu.Unlock()

	l.callingPendingFuncs.Store(true)
	for _, fn := range functors {
		fn()
	}
	l.callingPendingFuncs.Store(false)
}

func (l *EventLoop) wakeup() {
	if err := wakeupWrite(l.wakeupFD); err != nil {
		l.logger.Errorf("wakeup write failed: %v", err)
	}
}

// updateChannel registers or updates a channel's poller interest. Must be
// called from the loop's own goroutine (enforced by the Channel methods
// that call it, which are themselves loop-confined).
func (l *EventLoop) updateChannel(c *Channel) {
	if err := l.p.updateChannel(c); err != nil {
		l.logger.Errorf("updateChannel failed for fd %d: %v", c.Fd(), err)
	}
}

func (l *EventLoop) removeChannel(c *Channel) {
	if err := l.p.removeChannel(c); err != nil {
		l.logger.Errorf("removeChannel failed for fd %d: %v", c.Fd(), err)
	}
}

// HasChannel reports whether fd is currently registered with this loop's
// poller.
func (l *EventLoop) HasChannel(fd int) bool {
	return l.p.hasChannel(fd)
}

// Close releases the loop's wakeup descriptor and poller. The loop must
// not be looping.
func (l *EventLoop) Close() error {
	l.wakeupChannel.DisableAll()
	l.wakeupChannel.Remove()
	if err := wakeupClose(l.wakeupFD); err != nil {
		return err
	}
	return l.p.close()
}

// currentGoroutineID extracts the calling goroutine's id by parsing the
// "goroutine N [...]" header runtime.Stack prints. This is the same trick
// the teacher's Loop.isLoopThread uses: Go deliberately exposes no public
// goroutine-id API, and thread affinity is load-bearing here (spec.md §5),
// so we pay the parse cost once per Loop()/IsLoopThread call rather than
// skip the check.
func currentGoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] < '0' || buf[i] > '9' {
			break
		}
		id = id*10 + uint64(buf[i]-'0')
	}
	return id
}
