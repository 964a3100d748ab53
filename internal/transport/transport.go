// Package transport implements the per-connection hard-state unit
// (spec.md C7, C6): a Transport pairs a BT socket with up to two
// Endpoints and drives the lifecycle FSM that governs when codec
// workers run. Grounded on flowpbx-flowpbx's internal/media/session.go
// (SessionState, atomic counters, mutex-guarded state transitions) and
// lifecycle.go (tying a session, its sockets, and worker handles
// together behind a small facade).
package transport

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"bluealsa-go/internal/ioctl"
)

// State is a transport lifecycle state (spec.md §4.7 FSM).
type State int

const (
	StateIdle State = iota
	StatePending
	StateActive
	StatePaused
	StateReleasing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StatePending:
		return "PENDING"
	case StateActive:
		return "ACTIVE"
	case StatePaused:
		return "PAUSED"
	case StateReleasing:
		return "RELEASING"
	default:
		return "UNKNOWN"
	}
}

// Profile identifies the negotiated Bluetooth audio profile.
type Profile int

const (
	ProfileA2DPSource Profile = iota
	ProfileA2DPSink
	ProfileHFPAudioGateway
	ProfileHFPHandsFree
	ProfileHSPAudioGateway
	ProfileHSPHeadset
)

// ErrInvalidTransition is returned when an FSM transition is attempted
// from a state that does not permit it.
var ErrInvalidTransition = errors.New("transport: invalid state transition")

// ErrTransportReleasing is returned by operations that cannot proceed
// because the transport is mid-release.
var ErrTransportReleasing = errors.New("transport: releasing")

// Transport is the hard-state unit: one BT socket, its negotiated
// codec/profile, the MTUs captured at acquire time, and up to two
// endpoints (main and, for bidirectional codecs, a back-channel).
type Transport struct {
	ID          uuid.UUID
	RemoteAddr  string // remote BT address, e.g. "AA:BB:CC:DD:EE:FF"
	LogicalPath string // BlueZ D-Bus object path equivalent
	Profile     Profile
	CodecName   string
	ConfigBlob  []byte // agreed raw codec configuration bytes

	logger *slog.Logger

	mu         sync.Mutex
	state      State
	fd         int
	readMTU    int
	writeMTU   int
	baselineOQ int // TIOCOUTQ snapshot captured at acquire

	Main *Endpoint
	Back *Endpoint // only set for bidirectional codecs (FastStream, HFP)
}

// New creates a transport in the IDLE state. fd is not yet valid until
// Acquire is called.
func New(remoteAddr, logicalPath string, profile Profile, codecName string, configBlob []byte, logger *slog.Logger) *Transport {
	return &Transport{
		ID:          uuid.New(),
		RemoteAddr:  remoteAddr,
		LogicalPath: logicalPath,
		Profile:     profile,
		CodecName:   codecName,
		ConfigBlob:  configBlob,
		logger: logger.With(
			"subsystem", "transport",
			"remote_addr", remoteAddr,
			"path", logicalPath,
		),
		state: StateIdle,
		fd:    -1,
	}
}

// State returns the current lifecycle state.
func (t *Transport) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// transitions enumerates the FSM edges spec.md §4.7 draws. Any edge
// not listed here is rejected.
var transitions = map[State]map[State]bool{
	StateIdle:      {StatePending: true},
	StatePending:   {StateActive: true, StateReleasing: true},
	StateActive:    {StatePaused: true, StateReleasing: true},
	StatePaused:    {StateActive: true, StateReleasing: true},
	StateReleasing: {StateIdle: true},
}

// transition moves the FSM to next, rejecting edges not in the table.
func (t *Transport) transition(next State) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !transitions[t.state][next] {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.state, next)
	}

	t.logger.Info("transport state transition", "from", t.state, "to", next)
	t.state = next
	return nil
}

// Open signals a first-client-opens-PCM (SOURCE) or BlueZ state=PENDING
// (SINK) event: IDLE -> PENDING.
func (t *Transport) Open() error {
	return t.transition(StatePending)
}

// Acquire performs the BlueZ transport-acquire RPC equivalent: given
// an already-connected fd (real in production, a bttest.Pair end in
// tests) and the negotiated read/write MTUs, it shrinks the kernel
// send buffer to roughly 3x writeMTU and snapshots the TIOCOUTQ
// baseline, then transitions PENDING -> ACTIVE.
func (t *Transport) Acquire(fd, readMTU, writeMTU int) error {
	if err := ioctl.ShrinkSendBuffer(fd, writeMTU); err != nil {
		t.logger.Warn("shrink send buffer failed", "error", err)
	}

	baseline, err := ioctl.QueuedOutputBytes(fd)
	if err != nil {
		t.logger.Warn("TIOCOUTQ baseline failed", "error", err)
	}

	t.mu.Lock()
	t.fd = fd
	t.readMTU = readMTU
	t.writeMTU = writeMTU
	t.baselineOQ = baseline
	t.mu.Unlock()

	return t.transition(StateActive)
}

// Pause moves ACTIVE -> PAUSED (PCM drop / inactive).
func (t *Transport) Pause() error {
	return t.transition(StatePaused)
}

// Resume moves PAUSED -> ACTIVE.
func (t *Transport) Resume() error {
	return t.transition(StateActive)
}

// FD returns the transport's BT socket file descriptor, or -1 if not
// yet acquired.
func (t *Transport) FD() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fd
}

// MTUs returns the read and write MTUs captured at acquire time.
func (t *Transport) MTUs() (readMTU, writeMTU int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.readMTU, t.writeMTU
}

// BaselineQueuedBytes returns the TIOCOUTQ snapshot captured at
// acquire time, the reference point ABR measures drift against.
func (t *Transport) BaselineQueuedBytes() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.baselineOQ
}

// closeFD is overridable in tests so Release doesn't need a real fd.
var closeFD = func(fd int) error {
	return unix.Close(fd)
}

// Release closes the BT socket and cancels any workers attached to
// this transport's endpoints, then returns to IDLE. release is the
// only operation permitted to close the transport's fd (spec.md §3
// invariant).
func (t *Transport) Release() error {
	if err := t.transition(StateReleasing); err != nil {
		return err
	}

	for _, ep := range t.endpoints() {
		ep.Stop()
	}

	t.mu.Lock()
	fd := t.fd
	t.fd = -1
	t.mu.Unlock()

	if fd >= 0 {
		if err := closeFD(fd); err != nil {
			t.logger.Warn("closing bt socket failed", "error", err)
		}
	}

	return t.transition(StateIdle)
}

func (t *Transport) endpoints() []*Endpoint {
	t.mu.Lock()
	defer t.mu.Unlock()
	var eps []*Endpoint
	if t.Main != nil {
		eps = append(eps, t.Main)
	}
	if t.Back != nil {
		eps = append(eps, t.Back)
	}
	return eps
}

// CodecChange notifies the transport's endpoints that the codec has
// been renegotiated while ACTIVE; workers observe ESTALE from the poll
// primitives and reinitialise in place rather than restarting
// (spec.md §4.10, §7).
func (t *Transport) CodecChange(newCodec string, newConfig []byte) {
	t.mu.Lock()
	t.CodecName = newCodec
	t.ConfigBlob = newConfig
	t.mu.Unlock()

	for _, ep := range t.endpoints() {
		ep.SignalCodecChange()
	}
}

// acquireTimeout bounds how long Acquire waits for ioctls to settle in
// degraded environments (e.g. a socket type that doesn't support
// SO_SNDBUF); currently informational only, kept for future use by a
// real BlueZ RPC client.
const acquireTimeout = 5 * time.Second
