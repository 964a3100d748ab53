package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"bluealsa-go/internal/pcmio"
)

// Direction distinguishes a playback (write-to-FIFO-from-clients,
// encode) endpoint from a capture (decode, write-to-FIFO-to-clients)
// endpoint.
type Direction int

const (
	DirectionPlayback Direction = iota
	DirectionCapture
)

// WorkerState mirrors spec.md §3's endpoint worker state machine.
type WorkerState int32

const (
	WorkerStopped WorkerState = iota
	WorkerRunning
	WorkerStopping
)

func (s WorkerState) String() string {
	switch s {
	case WorkerStopped:
		return "STOPPED"
	case WorkerRunning:
		return "RUNNING"
	case WorkerStopping:
		return "STOPPING"
	default:
		return "UNKNOWN"
	}
}

// maxChannels bounds the per-channel volume/mute arrays; no supported
// codec here exceeds stereo.
const maxChannels = 2

// ErrShortWrite is returned by Write when fewer frames were written
// than requested, the endpoint-level equivalent of EAGAIN on a full
// FIFO.
var ErrShortWrite = errors.New("transport: short write (EAGAIN)")

// Endpoint is one logical PCM direction of a transport (spec.md C6).
// Volume, mute, and delay fields are mutated by the control thread and
// read by codec workers without a lock — spec.md §5 accepts eventual
// consistency here since these fields only affect future samples.
type Endpoint struct {
	Direction  Direction
	Format     SampleFormat
	Channels   int
	ChannelMap []string
	Rate       uint32

	logger *slog.Logger

	volume [maxChannels]atomic.Int32 // 0-127
	mute   [maxChannels]atomic.Bool

	delayCodecIntrinsic atomic.Int64 // deci-milliseconds
	delayProcessing     atomic.Int64
	delayLink           atomic.Int64
	delayTotal          atomic.Int64

	fifoFD int

	ctrl *ControlChannel

	workerState atomic.Int32
	stopping    atomic.Bool

	Level *LevelMeter

	onDelayChange func(totalDeciMs int64)
}

// SampleFormat is the PCM sample representation.
type SampleFormat int

const (
	FormatS16LE SampleFormat = iota
	FormatS24LE
	FormatS32LE
)

// NewEndpoint creates an endpoint. fifoFD is the FIFO file descriptor
// already connected to local clients or a mixer; ownership (closing)
// remains with the caller, matching the "exactly one worker may hold
// the endpoint FIFO read/write end at a time" invariant — this
// constructor does not itself take that lock, callers must not share
// fifoFD across two live endpoints.
func NewEndpoint(dir Direction, format SampleFormat, channels int, channelMap []string, rate uint32, fifoFD int, logger *slog.Logger) (*Endpoint, error) {
	ctrl, err := NewControlChannel()
	if err != nil {
		return nil, fmt.Errorf("creating control channel: %w", err)
	}

	ep := &Endpoint{
		Direction:  dir,
		Format:     format,
		Channels:   channels,
		ChannelMap: channelMap,
		Rate:       rate,
		fifoFD:     fifoFD,
		ctrl:       ctrl,
		logger:     logger.With("subsystem", "endpoint"),
		Level:      NewLevelMeter(int(rate)),
	}
	for i := range ep.volume {
		ep.volume[i].Store(127)
	}
	ep.workerState.Store(int32(WorkerStopped))
	return ep, nil
}

// Volume returns the software gain (0-127) for channel ch.
func (e *Endpoint) Volume(ch int) int {
	if ch < 0 || ch >= maxChannels {
		return 0
	}
	return int(e.volume[ch].Load())
}

// SetVolume sets the software gain (0-127, clamped) for channel ch.
func (e *Endpoint) SetVolume(ch int, v int) {
	if ch < 0 || ch >= maxChannels {
		return
	}
	if v < 0 {
		v = 0
	}
	if v > 127 {
		v = 127
	}
	e.volume[ch].Store(int32(v))
}

// Mute reports the mute bit for channel ch.
func (e *Endpoint) Mute(ch int) bool {
	if ch < 0 || ch >= maxChannels {
		return false
	}
	return e.mute[ch].Load()
}

// SetMute sets the mute bit for channel ch.
func (e *Endpoint) SetMute(ch int, muted bool) {
	if ch < 0 || ch >= maxChannels {
		return
	}
	e.mute[ch].Store(muted)
}

// Scale applies per-channel gain and mute to an interleaved int32 PCM
// buffer in place (int32 is the canonical working format regardless
// of wire bit depth; 16/24-bit samples are promoted before Scale and
// demoted after, at the codec boundary). n is the number of frames
// (not samples) in samples.
func (e *Endpoint) Scale(samples []int32, n int) {
	channels := e.Channels
	if channels <= 0 {
		channels = 1
	}
	for frame := 0; frame < n; frame++ {
		for ch := 0; ch < channels && ch < maxChannels; ch++ {
			idx := frame*channels + ch
			if idx >= len(samples) {
				return
			}
			if e.Mute(ch) {
				samples[idx] = 0
				continue
			}
			gain := e.Volume(ch)
			// Linear 0-127 gain scaled against full-scale (127).
			samples[idx] = int32((int64(samples[idx]) * int64(gain)) / 127)
		}
	}
}

// Write writes raw bytes into the endpoint's FIFO. A short write
// (fewer bytes written than requested) returns ErrShortWrite; a failed
// write returns the underlying error wrapped. This mirrors the
// upstream EAGAIN-propagation contract.
func (e *Endpoint) Write(data []byte) (int, error) {
	n, err := unix.Write(e.fifoFD, data)
	if err != nil {
		return n, fmt.Errorf("endpoint write: %w", err)
	}
	if n < len(data) {
		return n, ErrShortWrite
	}
	return n, nil
}

// FIFOFd returns the endpoint's FIFO file descriptor, for use with
// internal/pcmio's poll primitives.
func (e *Endpoint) FIFOFd() int {
	return e.fifoFD
}

// ControlFd returns the read end of the control channel, for use with
// internal/pcmio.PollAndReadPCM.
func (e *Endpoint) ControlFd() int {
	return e.ctrl.ReadFd()
}

// StoppingFlag returns the endpoint's stopping flag, set once the
// endpoint has been signalled to stop. Pass it directly as the
// *atomic.Bool internal/pcmio's poll primitives check.
func (e *Endpoint) StoppingFlag() *atomic.Bool {
	return &e.stopping
}

// WorkerState returns the endpoint's worker lifecycle state.
func (e *Endpoint) WorkerState() WorkerState {
	return WorkerState(e.workerState.Load())
}

// SetWorkerState transitions the worker state. Called by the
// transport manager when it spawns or observes the exit of a worker.
func (e *Endpoint) SetWorkerState(s WorkerState) {
	e.workerState.Store(int32(s))
}

// Stop signals the endpoint's worker to stop cooperatively: the
// stopping flag is set so the next poll primitive call returns
// pcmio.ErrStopping, and the endpoint transitions to STOPPING until
// the worker observes it and the transport manager marks it STOPPED.
func (e *Endpoint) Stop() {
	e.stopping.Store(true)
	e.SetWorkerState(WorkerStopping)
	e.ctrl.Send(pcmio.SigPCMClose)
}

// SignalCodecChange notifies the worker's poll loop of a codec
// renegotiation (ESTALE path) without restarting the worker.
func (e *Endpoint) SignalCodecChange() {
	e.ctrl.Send(pcmio.SigCodecChange)
}

// DelaySync recomputes total delay as codec-intrinsic + processing +
// link latency (all in deci-milliseconds) and invokes the registered
// observer, if any (see spec.md §6 external delay-reporting
// interface).
func (e *Endpoint) DelaySync(codecIntrinsic, processing, link int64) {
	e.delayCodecIntrinsic.Store(codecIntrinsic)
	e.delayProcessing.Store(processing)
	e.delayLink.Store(link)
	total := codecIntrinsic + processing + link
	e.delayTotal.Store(total)
	if e.onDelayChange != nil {
		e.onDelayChange(total)
	}
}

// TotalDelayDeciMs returns the most recently computed total delay.
func (e *Endpoint) TotalDelayDeciMs() int64 {
	return e.delayTotal.Load()
}

// OnDelayChange registers a callback invoked on every DelaySync.
func (e *Endpoint) OnDelayChange(fn func(totalDeciMs int64)) {
	e.onDelayChange = fn
}

// Close releases the endpoint's control channel. The FIFO fd is owned
// by the caller of NewEndpoint and is not closed here.
func (e *Endpoint) Close() error {
	return e.ctrl.Close()
}

// FeedLevel promotes a block of wire-format PCM bytes to the meter's
// int32 working format and hands it to the endpoint's LevelMeter.
// Called from the codec worker's hot path (once per encoded or decoded
// block), so Level.Snapshot reflects live audio rather than staying
// permanently at its zero value.
func (e *Endpoint) FeedLevel(pcm []byte) {
	if e.Level == nil || len(pcm) == 0 {
		return
	}
	e.Level.Feed(promoteToInt32(pcm, e.Format))
}

// promoteToInt32 widens wire-format PCM bytes to int32 samples at full
// 32-bit scale, the same promotion Scale's doc comment describes at
// the codec boundary.
func promoteToInt32(data []byte, format SampleFormat) []int32 {
	switch format {
	case FormatS24LE:
		n := len(data) / 3
		out := make([]int32, n)
		for i := 0; i < n; i++ {
			b := data[i*3:]
			v := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
			if v&0x800000 != 0 {
				v |= -1 << 24 // sign-extend the 24-bit value
			}
			out[i] = v << 8
		}
		return out
	case FormatS32LE:
		n := len(data) / 4
		out := make([]int32, n)
		for i := 0; i < n; i++ {
			out[i] = int32(binary.LittleEndian.Uint32(data[i*4:]))
		}
		return out
	default: // FormatS16LE
		n := len(data) / 2
		out := make([]int32, n)
		for i := 0; i < n; i++ {
			out[i] = int32(int16(binary.LittleEndian.Uint16(data[i*2:]))) << 16
		}
		return out
	}
}
