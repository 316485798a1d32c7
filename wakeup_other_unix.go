//go:build unix && !linux

package reactor

import "golang.org/x/sys/unix"

// newWakeupFD creates the cross-goroutine wakeup descriptor on non-Linux
// unix targets using a self-pipe, per spec.md's Design Notes: "a self-pipe
// is functionally identical" to eventfd for this purpose. Only the read end
// is returned; writes go to the paired fd stashed in selfPipeWrite.
var selfPipeWrite = map[int]int{}

func newWakeupFD() (int, error) {
	fds := make([]int, 2)
	if err := unix.Pipe2(fds, unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return -1, WrapError("reactor: self-pipe create failed", err)
	}
	selfPipeWrite[fds[0]] = fds[1]
	return fds[0], nil
}

func wakeupWrite(fd int) error {
	w, ok := selfPipeWrite[fd]
	if !ok {
		return ErrFDNotRegistered
	}
	_, err := unix.Write(w, []byte{1})
	if err != nil && err != unix.EAGAIN {
		return WrapError("reactor: wakeup write failed", err)
	}
	return nil
}

func wakeupDrain(fd int) {
	var buf [256]byte
	for {
		_, err := unix.Read(fd, buf[:])
		if err != nil {
			return
		}
	}
}

func wakeupClose(fd int) error {
	w, ok := selfPipeWrite[fd]
	if ok {
		delete(selfPipeWrite, fd)
		_ = unix.Close(w)
	}
	return unix.Close(fd)
}
