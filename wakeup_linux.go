//go:build linux

package reactor

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// newWakeupFD creates the cross-goroutine wakeup descriptor an EventLoop
// uses to break out of a blocked poll call from QueueInLoop. On Linux this
// is a single eventfd, following both the teacher's wakeup_linux.go and
// muduo's EventLoop::createEventfd.
func newWakeupFD() (int, error) {
	fd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		return -1, WrapError("reactor: eventfd create failed", err)
	}
	return fd, nil
}

func wakeupWrite(fd int) error {
	one := uint64(1)
	buf := (*(*[8]byte)(unsafe.Pointer(&one)))[:]
	_, err := unix.Write(fd, buf)
	if err != nil && err != unix.EAGAIN {
		return WrapError("reactor: wakeup write failed", err)
	}
	return nil
}

func wakeupDrain(fd int) {
	var buf [8]byte
	for {
		_, err := unix.Read(fd, buf[:])
		if err != nil {
			return
		}
	}
}

func wakeupClose(fd int) error {
	return unix.Close(fd)
}
