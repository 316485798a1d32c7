package reactor

import "time"

// Events is a bitmask of I/O readiness conditions. The concrete bit values
// mirror unix.EPOLLIN / EPOLLOUT / EPOLLPRI / EPOLLHUP / EPOLLERR so that
// the epoll poller can pass kernel event masks through unchanged; the poll
// poller translates POLLIN/POLLOUT/... into the same bits.
type Events uint32

const (
	EventNone  Events = 0
	EventRead  Events = 0x001 | 0x002 // EPOLLIN | EPOLLPRI
	EventWrite Events = 0x004         // EPOLLOUT
	EventHup   Events = 0x010         // EPOLLHUP
	EventErr   Events = 0x008         // EPOLLERR
)

func (e Events) has(bits Events) bool { return e&bits != 0 }

// pollerIndex tracks a Channel's membership state in a Poller, mirroring
// muduo's Poller::kNew / kAdded / kDeleted.
type pollerIndex int

const (
	indexNew pollerIndex = iota - 1 // not yet added to any poller
	indexAdded
	indexDeleted
)

// Channel binds one file descriptor to a set of interested events and the
// callbacks invoked when the poller reports activity on it. A Channel
// belongs to exactly one EventLoop for its entire life and every method
// except ownership queries must be called from that loop's goroutine.
type Channel struct {
	loop *EventLoop
	fd   int

	events  Events
	revents Events
	index   pollerIndex

	readCallback  func(t time.Time)
	writeCallback func()
	closeCallback func()
	errorCallback func()

	// tied guards against handling an event after the owning Conn has
	// been torn down; it is set by Conn.ConnectEstablished, and the owner
	// reports itself dead once Conn.ConnectDestroyed has run.
	tied     bool
	tieOwner weakOwner

	addedToLoop bool
}

// weakOwner is the narrow interface a Channel needs from whatever object
// ties its lifetime to the channel (normally a *Conn). It mirrors the
// guard muduo's Channel keeps via a std::weak_ptr.
type weakOwner interface {
	alive() bool
}

// NewChannel creates a Channel for fd, owned by loop. The channel starts
// with no interest set; the first EnableReading/EnableWriting call arms it
// and registers it with the loop's poller.
func NewChannel(loop *EventLoop, fd int) *Channel {
	return &Channel{
		loop:  loop,
		fd:    fd,
		index: indexNew,
	}
}

// Fd returns the underlying file descriptor.
func (c *Channel) Fd() int { return c.fd }

// Loop returns the owning EventLoop.
func (c *Channel) Loop() *EventLoop { return c.loop }

// SetReadCallback sets the callback invoked when fd becomes readable,
// receiving the poll timestamp.
func (c *Channel) SetReadCallback(cb func(t time.Time)) { c.readCallback = cb }

// SetWriteCallback sets the callback invoked when fd becomes writable.
func (c *Channel) SetWriteCallback(cb func()) { c.writeCallback = cb }

// SetCloseCallback sets the callback invoked when fd reports HUP with no
// pending read data.
func (c *Channel) SetCloseCallback(cb func()) { c.closeCallback = cb }

// SetErrorCallback sets the callback invoked when fd reports an error
// condition.
func (c *Channel) SetErrorCallback(cb func()) { c.errorCallback = cb }

// Tie ties the channel's lifetime to owner: once Tie has been called,
// HandleEvent refuses to run callbacks once owner reports itself no
// longer alive. This mirrors muduo's Channel::tie, protecting against a
// TcpConnection being destroyed mid-dispatch.
func (c *Channel) Tie(owner weakOwner) {
	c.tieOwner = owner
	c.tied = true
}

// IsNoneEvent reports whether the channel currently has no interest
// registered.
func (c *Channel) IsNoneEvent() bool { return c.events == EventNone }

// IsReading reports whether read interest is armed.
func (c *Channel) IsReading() bool { return c.events.has(EventRead) }

// IsWriting reports whether write interest is armed.
func (c *Channel) IsWriting() bool { return c.events.has(EventWrite) }

// Events returns the currently armed interest mask.
func (c *Channel) Events() Events { return c.events }

// SetRevents stores the readiness mask reported by the poller for the
// current dispatch pass. Called only by the poller/loop machinery.
func (c *Channel) SetRevents(revents Events) { c.revents = revents }

// Index returns the channel's current poller membership state.
func (c *Channel) Index() pollerIndex { return c.index }

// SetIndex sets the channel's poller membership state. Called only by
// the Poller implementations.
func (c *Channel) SetIndex(idx pollerIndex) { c.index = idx }

// EnableReading arms read interest and asks the loop to update the
// poller's registration for this channel.
func (c *Channel) EnableReading() {
	c.events |= EventRead
	c.update()
}

// DisableReading clears read interest.
func (c *Channel) DisableReading() {
	c.events &^= EventRead
	c.update()
}

// EnableWriting arms write interest.
func (c *Channel) EnableWriting() {
	c.events |= EventWrite
	c.update()
}

// DisableWriting clears write interest.
func (c *Channel) DisableWriting() {
	c.events &^= EventWrite
	c.update()
}

// DisableAll clears all interest; the channel stays in the poller's fd map
// (in the Deleted state) until Remove is called.
func (c *Channel) DisableAll() {
	c.events = EventNone
	c.update()
}

func (c *Channel) update() {
	c.addedToLoop = true
	c.loop.updateChannel(c)
}

// Remove detaches the channel from its loop's poller entirely. The
// channel must have no armed interest first. A no-op if the channel was
// never added to the poller in the first place (e.g. update() was never
// called), matching muduo's Channel::remove guard.
func (c *Channel) Remove() {
	if !c.addedToLoop {
		return
	}
	c.addedToLoop = false
	c.loop.removeChannel(c)
}

// HandleEvent dispatches the readiness reported in revents to the
// appropriate callback(s), in the fixed order HUP, ERR, READ, WRITE that
// muduo's Channel::handleEvent uses. receiveTime is the timestamp taken
// when the poller returned.
func (c *Channel) HandleEvent(receiveTime time.Time) {
	if c.tied && !c.tieOwner.alive() {
		return
	}
	c.handleEventWithGuard(receiveTime)
}

func (c *Channel) handleEventWithGuard(receiveTime time.Time) {
	if c.revents.has(EventHup) && !c.revents.has(EventRead) {
		if c.closeCallback != nil {
			c.closeCallback()
		}
	}
	if c.revents.has(EventErr) {
		if c.errorCallback != nil {
			c.errorCallback()
		}
	}
	if c.revents.has(EventRead) {
		if c.readCallback != nil {
			c.readCallback(receiveTime)
		}
	}
	if c.revents.has(EventWrite) {
		if c.writeCallback != nil {
			c.writeCallback()
		}
	}
}
