package ioctl

import (
	"os"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

func TestPollDetectsReadablePipe(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe() error: %v", err)
	}
	defer r.Close()
	defer w.Close()

	if _, err := w.Write([]byte("x")); err != nil {
		t.Fatalf("Write() error: %v", err)
	}

	fds := []PollFD{{FD: int(r.Fd()), Events: EventReadable}}
	n, err := Poll(fds, 500*time.Millisecond)
	if err != nil {
		t.Fatalf("Poll() error: %v", err)
	}
	if n != 1 {
		t.Fatalf("Poll() n = %d, want 1", n)
	}
	if fds[0].Revents&EventReadable == 0 {
		t.Fatalf("Revents = %v, want EventReadable set", fds[0].Revents)
	}
}

func TestPollTimesOutWithNoData(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe() error: %v", err)
	}
	defer r.Close()
	defer w.Close()

	fds := []PollFD{{FD: int(r.Fd()), Events: EventReadable}}
	n, err := Poll(fds, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("Poll() error: %v", err)
	}
	if n != 0 {
		t.Fatalf("Poll() n = %d, want 0 (timeout)", n)
	}
}

func TestQueuedOutputBytesOnSocketpair(t *testing.T) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("Socketpair() error: %v", err)
	}
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	if _, err := unix.Write(fds[0], []byte("hello")); err != nil {
		t.Fatalf("Write() error: %v", err)
	}

	// TIOCOUTQ reports bytes queued in fds[0]'s send buffer; since the
	// peer hasn't read yet, it should report at least the bytes sent
	// (subject to immediate kernel drain on loopback, so just assert
	// the call succeeds and returns a non-negative count).
	n, err := QueuedOutputBytes(fds[0])
	if err != nil {
		t.Fatalf("QueuedOutputBytes() error: %v", err)
	}
	if n < 0 {
		t.Fatalf("QueuedOutputBytes() = %d, want >= 0", n)
	}
}

func TestShrinkSendBuffer(t *testing.T) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("Socketpair() error: %v", err)
	}
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	if err := ShrinkSendBuffer(fds[0], 400); err != nil {
		t.Fatalf("ShrinkSendBuffer() error: %v", err)
	}
}
