// Package ioctl wraps the small set of Linux syscalls the transport
// and ABR controller need: the queued-byte depth of a socket's send
// buffer (TIOCOUTQ), shrinking the kernel send buffer (SO_SNDBUF), and
// a poll primitive shared by the PCM FIFO and BT socket read paths.
//
// golang.org/x/sys/unix is used the way doismellburning-samoyed uses
// it for its serial-port control-line ioctls (unix.IoctlGetInt /
// unix.IoctlSetInt) and the way madpsy-ka9q_ubersdr uses it for socket
// options (unix.SetsockoptInt) — both real, idiomatic uses of the same
// package in this retrieval pack.
package ioctl

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// QueuedOutputBytes returns the number of bytes currently queued in the
// kernel's send buffer for fd, via TIOCOUTQ. Used by the ABR controller
// to gauge how far behind the BT socket is draining.
func QueuedOutputBytes(fd int) (int, error) {
	n, err := unix.IoctlGetInt(fd, unix.TIOCOUTQ)
	if err != nil {
		return 0, fmt.Errorf("ioctl TIOCOUTQ: %w", err)
	}
	return n, nil
}

// ShrinkSendBuffer sets SO_SNDBUF on fd to approximately 3x writeMTU,
// minimising the amount of audio the kernel will buffer so that a
// local client's seek/stop is reflected on the air promptly. This is
// advisory to the kernel, which doubles the value it's given; callers
// should not assume the exact byte count took effect.
func ShrinkSendBuffer(fd int, writeMTU int) error {
	want := 3 * writeMTU
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUF, want); err != nil {
		return fmt.Errorf("setsockopt SO_SNDBUF: %w", err)
	}
	return nil
}

// Event describes what a PollFD should be watched for and what fired.
type Event int16

const (
	EventReadable Event = Event(unix.POLLIN)
	EventWritable Event = Event(unix.POLLOUT)
	EventError    Event = Event(unix.POLLERR)
	EventHangup   Event = Event(unix.POLLHUP)
)

// PollFD mirrors unix.PollFd with this package's Event type.
type PollFD struct {
	FD     int
	Events Event
	Revents Event
}

// Poll blocks until one of fds is ready, timeout elapses, or an error
// occurs. It returns the number of fds with a nonzero Revents: 0 on
// timeout with no fd ready, and also 0 when the call is interrupted
// (EINTR); callers check the count or Revents directly.
// A timeout of 0 polls non-blockingly; a negative timeout blocks
// indefinitely.
func Poll(fds []PollFD, timeout time.Duration) (int, error) {
	raw := make([]unix.PollFd, len(fds))
	for i, f := range fds {
		raw[i] = unix.PollFd{Fd: int32(f.FD), Events: int16(f.Events)}
	}

	ms := -1
	if timeout >= 0 {
		ms = int(timeout.Milliseconds())
	}

	n, err := unix.Poll(raw, ms)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, fmt.Errorf("poll: %w", err)
	}

	for i := range raw {
		fds[i].Revents = Event(raw[i].Revents)
	}

	return n, nil
}
