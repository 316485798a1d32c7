//go:build unix

package reactor

import (
	"errors"

	"golang.org/x/sys/unix"
)

const (
	cheapPrepend = 8
	initialSize  = 1024
)

// Buffer is a growable byte buffer for one direction of a connection's
// I/O, split into three regions: prependable [0, readerIndex), readable
// [readerIndex, writerIndex), and writable [writerIndex, len(buf)). The
// invariant readerIndex <= writerIndex <= len(buf) holds across every
// operation. The first cheapPrepend bytes are always reserved so a
// protocol header can be cheaply prepended to already-written data
// without a copy.
//
// Buffer is not safe for concurrent use; each Conn owns two (input and
// output) and only its owning loop's goroutine touches them.
type Buffer struct {
	buf         []byte
	readerIndex int
	writerIndex int
}

// NewBuffer returns an empty Buffer with its prependable region reserved.
func NewBuffer() *Buffer {
	return &Buffer{
		buf:         make([]byte, cheapPrepend+initialSize),
		readerIndex: cheapPrepend,
		writerIndex: cheapPrepend,
	}
}

// ReadableBytes returns the number of bytes available to read.
func (b *Buffer) ReadableBytes() int { return b.writerIndex - b.readerIndex }

// WritableBytes returns the number of bytes that can be appended without
// growing the underlying slice.
func (b *Buffer) WritableBytes() int { return len(b.buf) - b.writerIndex }

// PrependableBytes returns the number of bytes currently free before
// readerIndex.
func (b *Buffer) PrependableBytes() int { return b.readerIndex }

// Peek returns the readable region without consuming it. The returned
// slice aliases the Buffer's storage and is invalidated by any mutating
// call.
func (b *Buffer) Peek() []byte { return b.buf[b.readerIndex:b.writerIndex] }

// Retrieve consumes n bytes from the front of the readable region.
func (b *Buffer) Retrieve(n int) {
	if n < b.ReadableBytes() {
		b.readerIndex += n
		return
	}
	b.RetrieveAll()
}

// RetrieveAll consumes the entire readable region, resetting both indices
// back to the start of the prependable boundary.
func (b *Buffer) RetrieveAll() {
	b.readerIndex = cheapPrepend
	b.writerIndex = cheapPrepend
}

// RetrieveAllString consumes and returns the entire readable region as a
// string.
func (b *Buffer) RetrieveAllString() string {
	s := string(b.Peek())
	b.RetrieveAll()
	return s
}

// RetrieveAsBytes consumes and returns the entire readable region as a
// freshly allocated slice (safe to retain past further Buffer mutation).
func (b *Buffer) RetrieveAsBytes() []byte {
	out := append([]byte(nil), b.Peek()...)
	b.RetrieveAll()
	return out
}

// Append appends data to the writable region, growing the underlying
// slice if necessary.
func (b *Buffer) Append(data []byte) {
	b.ensureWritable(len(data))
	copy(b.buf[b.writerIndex:], data)
	b.writerIndex += len(data)
}

// AppendString is a convenience wrapper around Append.
func (b *Buffer) AppendString(s string) { b.Append([]byte(s)) }

// ensureWritable grows or compacts the buffer so at least n more bytes
// can be written, matching muduo's makeSpace: prefer sliding the
// readable region down over the prependable gap before reallocating.
func (b *Buffer) ensureWritable(n int) {
	if b.WritableBytes() >= n {
		return
	}
	if b.WritableBytes()+b.PrependableBytes()-cheapPrepend >= n {
		readable := b.ReadableBytes()
		copy(b.buf[cheapPrepend:], b.buf[b.readerIndex:b.writerIndex])
		b.readerIndex = cheapPrepend
		b.writerIndex = cheapPrepend + readable
		return
	}
	newBuf := make([]byte, b.writerIndex+n)
	copy(newBuf, b.buf)
	b.buf = newBuf
}

// ReadFromFD fills the buffer from a single readv(2) call, using a 64KiB
// on-stack-sized scratch region as the second iovec so a single syscall
// can absorb a read larger than the buffer's current writable space
// without first growing it — the buffer only grows afterward, to fit
// whatever ended up in the scratch region. Mirrors muduo's
// Buffer::readFd, with the original's readv result (signed, -1 on error)
// kept signed throughout instead of being stored into an unsigned
// counter that can never observe the error.
func (b *Buffer) ReadFromFD(fd int) (int, error) {
	var extraBuf [65536]byte

	writable := b.WritableBytes()
	var iovs []unix.Iovec
	if writable > 0 {
		iovs = append(iovs, unix.Iovec{Base: &b.buf[b.writerIndex], Len: uint64(writable)})
	}
	if writable < len(extraBuf) {
		iovs = append(iovs, unix.Iovec{Base: &extraBuf[0], Len: uint64(len(extraBuf))})
	}

	n, err := unix.Readv(fd, iovs)
	if err != nil {
		// Mirrors Buffer::readFd returning a negative ssize_t with
		// savedErrno set: every error, including EAGAIN/EWOULDBLOCK on a
		// spurious readable wakeup, is surfaced as a negative count so
		// handleRead routes it to handleError rather than treating it as
		// the zero-byte EOF case.
		return -1, WrapError("reactor: readv failed", err)
	}

	if n <= writable {
		b.writerIndex += n
	} else {
		b.writerIndex = len(b.buf)
		b.Append(extraBuf[:n-writable])
	}

	return n, nil
}

// WriteToFD writes the entire readable region to fd in a single write(2)
// call, without retrieving what was written: the caller (Conn) decides
// how much of the return value was actually consumed and retrieves that
// much itself, matching muduo's Buffer::writeFd.
func (b *Buffer) WriteToFD(fd int) (int, error) {
	n, err := unix.Write(fd, b.Peek())
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
			return 0, nil
		}
		return 0, WrapError("reactor: write failed", err)
	}
	return n, nil
}
