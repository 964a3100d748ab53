// Package pcmio implements the two cancellable poll-and-read
// primitives every codec worker is built on (spec.md C5):
// poll_and_read_pcm, which multiplexes an endpoint's PCM FIFO against
// its control channel, and poll_and_read_bt, which reads one SEQPACKET
// datagram at a time off the transport's BT socket.
//
// The shape is the teacher's relay forward() loop generalised: check a
// "stopped" flag before blocking, block with a bounded timeout instead
// of forever so the cooperative-cancellation check gets a chance to
// run again, and treat "nothing arrived" as a normal, non-error
// outcome rather than plumbing a deadline error up the stack.
package pcmio

import (
	"errors"
	"io"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"bluealsa-go/internal/ioctl"
)

// ErrStopping is returned when the caller's stopping flag was observed
// set; the worker must run its cleanup chain and exit.
var ErrStopping = errors.New("pcmio: stopping")

// ErrESTALE is returned from poll_and_read_pcm when a control signal
// requires the caller to rebuild its codec state (a codec
// renegotiation) before reading further.
var ErrESTALE = errors.New("pcmio: codec state is stale, reinitialise")

// Signal is a control-channel byte, single-reader single-writer per
// endpoint.
type Signal byte

const (
	SigPCMOpen Signal = iota
	SigPCMClose
	SigPCMDrop
	SigPCMPause
	SigPCMResume
	SigCodecChange
)

// Filter observes a control signal before poll_and_read_pcm decides
// whether to keep waiting for PCM data. It returns consumed=true if
// the signal fully explains this call's outcome (e.g. CODEC_CHANGE
// should surface as ESTALE instead of continuing to wait for PCM).
type Filter func(sig Signal) (consumed bool, err error)

// defaultPollTimeout bounds a single poll() call so a stopping flag
// set mid-wait is observed promptly rather than blocking forever.
const defaultPollTimeout = 200 * time.Millisecond

// PollAndReadPCM polls pcmFD (an endpoint's PCM FIFO, readable end)
// together with ctrlFD (the endpoint's single-byte control channel).
// If a control signal arrives, filter is invoked; a consumed signal
// either loops back to poll again or returns the filter's error
// (ErrESTALE on CODEC_CHANGE, by convention). Once pcmFD is readable,
// reads into buf and returns the count. Returns 0, nil on an overall
// timeout with nothing ready. Returns ErrStopping as soon as stopping
// is observed set, checked both before and after each poll.
func PollAndReadPCM(pcmFD, ctrlFD int, buf []byte, timeout time.Duration, filter Filter, stopping *atomic.Bool) (int, error) {
	deadline := time.Now().Add(timeout)

	for {
		if stopping.Load() {
			return 0, ErrStopping
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return 0, nil
		}
		wait := remaining
		if wait > defaultPollTimeout {
			wait = defaultPollTimeout
		}

		fds := []ioctl.PollFD{
			{FD: pcmFD, Events: ioctl.EventReadable},
			{FD: ctrlFD, Events: ioctl.EventReadable},
		}
		n, err := ioctl.Poll(fds, wait)
		if err != nil {
			return -1, err
		}
		if stopping.Load() {
			return 0, ErrStopping
		}
		if n == 0 {
			continue
		}

		if fds[1].Revents&ioctl.EventReadable != 0 {
			var sigBuf [1]byte
			m, err := readFD(ctrlFD, sigBuf[:])
			if err != nil {
				return -1, err
			}
			if m == 1 && filter != nil {
				consumed, ferr := filter(Signal(sigBuf[0]))
				if ferr != nil {
					return -1, ferr
				}
				if consumed {
					continue
				}
			}
		}

		if fds[0].Revents&ioctl.EventReadable != 0 {
			n, err := readFD(pcmFD, buf)
			if err != nil {
				return -1, err
			}
			return n, nil
		}
	}
}

// PollAndReadBT polls btFD (the transport's BT socket) and, on
// readiness, reads exactly one SEQPACKET datagram into buf. Returns
// the datagram length, 0 on remote close (EOF), or an error. Returns
// ErrStopping as soon as stopping is observed set.
func PollAndReadBT(btFD int, buf []byte, timeout time.Duration, stopping *atomic.Bool) (int, error) {
	if stopping.Load() {
		return 0, ErrStopping
	}

	fds := []ioctl.PollFD{{FD: btFD, Events: ioctl.EventReadable}}
	n, err := ioctl.Poll(fds, timeout)
	if err != nil {
		return -1, err
	}
	if n == 0 {
		return 0, nil
	}

	if stopping.Load() {
		return 0, ErrStopping
	}

	m, err := readFD(btFD, buf)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return 0, nil
		}
		return -1, err
	}
	return m, nil
}

// readFD is a small indirection point so tests can substitute a fake
// reader; production callers always pass a real fd. It reads directly
// via the raw syscall rather than wrapping the fd in an *os.File,
// which would attach a GC finalizer that closes the fd out from under
// whoever else owns it (the transport, in the real fd case).
var readFD = func(fd int, buf []byte) (int, error) {
	n, err := unix.Read(fd, buf)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}
