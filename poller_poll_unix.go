//go:build unix

package reactor

import (
	"time"

	"golang.org/x/sys/unix"
)

// pollPoller is the GOREACTOR_USE_POLL fallback, backed by poll(2). It
// trades epoll's O(active fds) readiness reporting for portability: any
// unix target that lacks (or sandboxes away) epoll can still run the
// reactor.
type pollPoller struct {
	channels map[int]*Channel
	fds      []unix.PollFd
	closed   bool
}

func newPollPoller() (poller, error) {
	return &pollPoller{
		channels: make(map[int]*Channel),
	}, nil
}

func (p *pollPoller) poll(timeout time.Duration, activeChannels []*Channel) (time.Time, []*Channel, error) {
	if p.closed {
		return time.Time{}, activeChannels, ErrPollerClosed
	}

	p.rebuildFds()

	ms := int(timeout / time.Millisecond)
	if timeout > 0 && ms == 0 {
		ms = 1
	}

	n, err := unix.Poll(p.fds, ms)
	now := time.Now()
	if err != nil {
		if err == unix.EINTR {
			return now, activeChannels, nil
		}
		return now, activeChannels, WrapError("reactor: poll failed", err)
	}
	if n == 0 {
		return now, activeChannels, nil
	}

	for _, pfd := range p.fds {
		if pfd.Revents == 0 {
			continue
		}
		ch, ok := p.channels[int(pfd.Fd)]
		if !ok {
			continue
		}
		ch.SetRevents(pollEventsToEvents(pfd.Revents))
		activeChannels = append(activeChannels, ch)
	}

	return now, activeChannels, nil
}

func (p *pollPoller) rebuildFds() {
	p.fds = p.fds[:0]
	for fd, ch := range p.channels {
		p.fds = append(p.fds, unix.PollFd{
			Fd:     int32(fd),
			Events: eventsToPollEvents(ch.Events()),
		})
	}
}

func eventsToPollEvents(e Events) int16 {
	var pe int16
	if e.has(EventRead) {
		pe |= unix.POLLIN | unix.POLLPRI
	}
	if e.has(EventWrite) {
		pe |= unix.POLLOUT
	}
	return pe
}

func pollEventsToEvents(pe int16) Events {
	var e Events
	if pe&(unix.POLLIN|unix.POLLPRI) != 0 {
		e |= EventRead
	}
	if pe&unix.POLLOUT != 0 {
		e |= EventWrite
	}
	if pe&unix.POLLHUP != 0 {
		e |= EventHup
	}
	if pe&(unix.POLLERR|unix.POLLNVAL) != 0 {
		e |= EventErr
	}
	return e
}

func (p *pollPoller) updateChannel(c *Channel) error {
	if p.closed {
		return ErrPollerClosed
	}
	fd := c.Fd()
	switch c.Index() {
	case indexNew:
		if _, exists := p.channels[fd]; exists {
			return ErrFDAlreadyRegistered
		}
		p.channels[fd] = c
		c.SetIndex(indexAdded)
	case indexDeleted:
		c.SetIndex(indexAdded)
	default: // indexAdded
		if _, exists := p.channels[fd]; !exists {
			return ErrFDNotRegistered
		}
		if c.IsNoneEvent() {
			c.SetIndex(indexDeleted)
		}
	}
	return nil
}

func (p *pollPoller) removeChannel(c *Channel) error {
	if p.closed {
		return ErrPollerClosed
	}
	fd := c.Fd()
	if _, exists := p.channels[fd]; !exists {
		return ErrFDNotRegistered
	}
	delete(p.channels, fd)
	c.SetIndex(indexNew)
	return nil
}

func (p *pollPoller) hasChannel(fd int) bool {
	_, ok := p.channels[fd]
	return ok
}

func (p *pollPoller) close() error {
	p.closed = true
	return nil
}
