package transport

import (
	"fmt"
	"os"

	"bluealsa-go/internal/pcmio"
)

// ControlChannel is the per-endpoint single-reader, single-writer
// signalling byte-channel spec.md §5 describes: the control thread
// writes signal bytes, the worker's poll loop observes them via
// internal/pcmio.PollAndReadPCM. Grounded on the teacher's
// internal/media/callbuf.go per-call channel registry, generalised
// from a buffered Go channel (suitable for in-process DTMF digits) to
// an os.Pipe (suitable for cross-goroutine poll()-based signalling,
// which is what the shared poll primitive needs to multiplex against
// the PCM FIFO fd).
type ControlChannel struct {
	r *os.File
	w *os.File
}

// NewControlChannel creates a control channel backed by an OS pipe.
func NewControlChannel() (*ControlChannel, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("control channel pipe: %w", err)
	}
	return &ControlChannel{r: r, w: w}, nil
}

// ReadFd returns the read end's file descriptor, for use with
// internal/pcmio's poll primitives.
func (c *ControlChannel) ReadFd() int {
	return int(c.r.Fd())
}

// Send writes one control signal. Errors are swallowed to a log-only
// concern by callers — a full or closed control pipe means the worker
// is already gone, which is not itself an error condition for the
// sender.
func (c *ControlChannel) Send(sig pcmio.Signal) error {
	_, err := c.w.Write([]byte{byte(sig)})
	return err
}

// Close closes both ends of the pipe.
func (c *ControlChannel) Close() error {
	err1 := c.r.Close()
	err2 := c.w.Close()
	if err1 != nil {
		return err1
	}
	return err2
}
