// Package mixer implements the multi-client PCM mixer (spec.md C9)
// that sits between local clients and a transport endpoint: N-client
// playback fan-in into one codec worker, and one decoded stream
// fanned out to N capture clients.
//
// Grounded on internal/media/conference.go/mixer.go's
// participant-map-plus-mix-cycle shape, generalised from "N-1 mix
// every participant hears everyone but themselves" (a conference
// bridge) to "every client hears/contributes to one shared encoder or
// decoder stream" (spec.md's mixer sits next to a single BT transport,
// not between peers).
package mixer

import (
	"sync"
	"sync/atomic"
	"time"
)

// ClientState is a mixer client's per-client FSM state (spec.md §4.9).
type ClientState int32

const (
	ClientIdle ClientState = iota
	ClientRunning
	ClientPaused
	ClientDraining
	ClientFinished
)

func (s ClientState) String() string {
	switch s {
	case ClientIdle:
		return "IDLE"
	case ClientRunning:
		return "RUNNING"
	case ClientPaused:
		return "PAUSED"
	case ClientDraining:
		return "DRAINING"
	case ClientFinished:
		return "FINISHED"
	default:
		return "UNKNOWN"
	}
}

// drainTimeout is the literal DRAIN acknowledgement delay spec.md
// names.
const drainTimeout = 400 * time.Millisecond

// Client is one local playback or capture consumer attached to a
// Mixer. Playback clients write PCM into Buffer and the mixer reads
// it; capture clients have PCM written into Buffer by the mixer and
// read it out.
type Client struct {
	ID string

	mu     sync.Mutex
	buffer []byte // client-local ring, periods*periodBytes sized
	// outOffset is the playback client's pre-roll/pause counter,
	// relative to the mix cycle: negative while pre-buffering (spec.md
	// "pre-buffer threshold ... stored as a negative out_offset"),
	// reaching 0 once RUNNING starts contributing to the mix. It is a
	// logical counter only and never indexes into buffer directly.
	outOffset int
	// writeOffset/readOffset are the playback side's ring cursors:
	// writeOffset%len(buffer) is where the next Write lands,
	// readOffset%len(buffer) is where the next ReadForMix resumes.
	// Both are monotonic and non-negative, the playback-side mirror of
	// inOffset below.
	writeOffset int
	readOffset  int
	// inOffset is the capture client's write position into buffer
	// (the mixer's fan-out side).
	inOffset int

	preRollThreshold int // bytes of buffered data required before RUNNING
	mixDelay         int // bytes; PAUSE rewinds outOffset to -mixDelay

	state atomic.Int32

	drainTimer *time.Timer
	onDrainAck func(id string)
}

// NewClient creates a mixer client with the given period-sized ring
// buffer capacity and pre-roll threshold (spec.md: "approximately 2
// periods of pre-roll").
func NewClient(id string, bufBytes, preRollThreshold, mixDelay int) *Client {
	c := &Client{
		ID:               id,
		buffer:           make([]byte, bufBytes),
		preRollThreshold: preRollThreshold,
		mixDelay:         mixDelay,
	}
	c.outOffset = -preRollThreshold
	c.state.Store(int32(ClientIdle))
	return c
}

// State returns the client's current FSM state.
func (c *Client) State() ClientState {
	return ClientState(c.state.Load())
}

func (c *Client) setState(s ClientState) {
	c.state.Store(int32(s))
}

// Write appends playback PCM bytes from the client into its ring
// buffer at the current write cursor, advancing it modulo the buffer
// length (matching FanOutWrite's pattern on the capture side). Once
// enough bytes have accumulated to cross the pre-roll threshold, the
// client transitions IDLE -> RUNNING.
func (c *Client) Write(data []byte) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := copy(c.buffer[c.writeOffset%len(c.buffer):], data)
	c.writeOffset += n
	c.outOffset += n

	if c.State() == ClientIdle && c.outOffset >= 0 {
		c.setState(ClientRunning)
	}
	return n
}

// Pause resets outOffset to -mixDelay so the client re-buffers before
// resuming (spec.md's literal PAUSE semantics) and moves to PAUSED.
func (c *Client) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outOffset = -c.mixDelay
	c.setState(ClientPaused)
}

// Resume moves a PAUSED client back to RUNNING; it will re-cross the
// pre-roll threshold naturally as Write accumulates bytes.
func (c *Client) Resume() {
	if c.State() == ClientPaused {
		c.setState(ClientRunning)
	}
}

// Drain arms the 400ms drain timer (spec.md literal) and transitions
// to DRAINING; onAck is invoked when the timer fires, the caller's cue
// to write "OK" to the client's control channel.
func (c *Client) Drain(onAck func(id string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setState(ClientDraining)
	c.onDrainAck = onAck
	c.drainTimer = time.AfterFunc(drainTimeout, func() {
		c.setState(ClientIdle)
		if c.onDrainAck != nil {
			c.onDrainAck(c.ID)
		}
	})
}

// Drop immediately discards the client's buffered data and moves to
// FINISHED; the caller is responsible for the "flush to a sink null-fd
// via splice" disposal spec.md names (internal/mixer does not itself
// own a null-fd splice target).
func (c *Client) Drop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.drainTimer != nil {
		c.drainTimer.Stop()
	}
	c.outOffset = 0
	c.writeOffset = 0
	c.readOffset = 0
	c.inOffset = 0
	c.setState(ClientFinished)
}

// ReadForMix returns up to n bytes of this client's buffered PCM for
// the current mix cycle, consuming them from the read cursor so a
// later call without an intervening Write does not return the same
// bytes again, and reports how many bytes were actually available
// (fewer than n signals an underrun; the mixer still advances,
// substituting silence for the shortfall).
func (c *Client) ReadForMix(n int) (data []byte, underrun bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.outOffset < 0 {
		return nil, false // still pre-buffering, contributes nothing yet
	}

	avail := c.writeOffset - c.readOffset
	if avail < 0 {
		avail = 0
	}
	if avail > len(c.buffer) {
		// writer has lapped the reader; the oldest unread bytes are
		// already overwritten, so skip the cursor forward to the
		// oldest bytes still actually present.
		c.readOffset = c.writeOffset - len(c.buffer)
		avail = len(c.buffer)
	}
	if avail > n {
		avail = n
	}

	data = make([]byte, avail)
	copy(data, c.buffer[c.readOffset%len(c.buffer):])
	c.readOffset += avail
	return data, avail < n
}

// FanOutWrite writes decoded PCM into a capture client's buffer at its
// current inOffset; a full buffer is a non-blocking drop, mirroring
// spec.md's "non-blocking writes; partial write arms EPOLLOUT watch"
// rule at the level this in-process mixer can express it (no real fd
// to arm an epoll watch on; the caller retries on the next cycle
// instead).
func (c *Client) FanOutWrite(pcm []byte) (n int, short bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.State() == ClientPaused {
		return 0, false // paused clients receive no data
	}
	n = copy(c.buffer[c.inOffset%len(c.buffer):], pcm)
	c.inOffset += n
	return n, n < len(pcm)
}
