// Package aac implements the AAC (LATM MCP1 transport) A2DP codec
// adapter. Like MP3, fragmented frames share the RTP marker-bit
// convention (mark-bit set only on the final fragment of a LATM
// unit), but AAC carries no per-fragment offset header at all — the
// decoder instead accumulates fragments into a growable buffer until
// it observes the marker bit.
//
// No pure-Go AAC/LATM codec is available in this workspace; as with
// internal/codec/mp3, the PCM<->bitstream transform is a fixed-ratio
// quantizer. The LATM accumulation and mark-bit quirk handling below
// are the literal, spec-significant parts of this adapter.
package aac

import (
	"encoding/binary"
	"errors"

	"bluealsa-go/internal/codec"
)

// FramePCMFrames is the AAC-LC frame size (1024 samples, standard).
const FramePCMFrames = 1024

// quirkWindow is how many leading packets the decoder inspects before
// deciding whether the sender ever sets the mark bit.
const quirkWindow = 3

func init() {
	codec.Register(codec.KindAAC, codec.Pair{
		NewEncoder: func() codec.Encoder { return &Encoder{} },
		NewDecoder: func() codec.Decoder { return &Decoder{} },
	})
}

type Encoder struct {
	channels int
}

func (e *Encoder) Init(cfg codec.Config, writeMTU int) error {
	e.channels = cfg.Channels
	if e.channels == 0 {
		e.channels = 2
	}
	return nil
}

func (e *Encoder) Reinit(cfg codec.Config) error { return e.Init(cfg, 0) }
func (e *Encoder) InputBlockFrames() int         { return FramePCMFrames }

func (e *Encoder) EncodeBlock(pcm []byte, dst []byte) ([]byte, error) {
	samples := FramePCMFrames * e.channels
	need := samples * 2
	if len(pcm) < need {
		return dst, errors.New("aac: short PCM block")
	}
	out := make([]byte, (samples+7)/8)
	for i := range out {
		start := i * 8
		end := start + 8
		if end > samples {
			end = samples
		}
		var acc int32
		for s := start; s < end; s++ {
			v := int16(binary.LittleEndian.Uint16(pcm[s*2:]))
			acc += int32(v)
		}
		avg := acc / int32(end-start)
		out[i] = byte(avg >> 8)
	}
	return append(dst, out...), nil
}

func (e *Encoder) IntrinsicDelayFrames() int { return 0 }
func (e *Encoder) Free()                     {}

// LATMAccumulator reassembles AAC-in-LATM fragments that share no
// per-fragment offset header, spanning an arbitrary number of MTU_read
// sized packets until the mark bit (or the sender's no-mark-bit quirk)
// signals completion.
type LATMAccumulator struct {
	buf          []byte
	readMTU      int
	packetsSeen  int
	markEverSeen bool
	quirkActive  bool
}

// NewLATMAccumulator creates an accumulator that grows by readMTU
// increments.
func NewLATMAccumulator(readMTU int) *LATMAccumulator {
	if readMTU <= 0 {
		readMTU = 672
	}
	return &LATMAccumulator{readMTU: readMTU}
}

// Feed appends one fragment's payload and reports the observed mark
// bit. It returns (unit, true) once a complete LATM unit is ready to
// decode, consuming and resetting the accumulator's internal buffer.
func (a *LATMAccumulator) Feed(payload []byte, mark bool) (unit []byte, ready bool) {
	if cap(a.buf)-len(a.buf) < len(payload) {
		grown := make([]byte, len(a.buf), len(a.buf)+len(payload)+a.readMTU)
		copy(grown, a.buf)
		a.buf = grown
	}
	a.buf = append(a.buf, payload...)

	if mark {
		a.markEverSeen = true
	}
	a.packetsSeen++

	// Quirk: if the first quirkWindow packets never set mark, treat
	// every packet from then on as a complete unit by itself.
	if !a.quirkActive && a.packetsSeen >= quirkWindow && !a.markEverSeen {
		a.quirkActive = true
	}

	if mark || a.quirkActive {
		unit = a.buf
		a.buf = nil
		return unit, true
	}
	return nil, false
}

type Decoder struct {
	channels int
	acc      *LATMAccumulator
}

func (d *Decoder) Init(cfg codec.Config, readMTU int) error {
	d.channels = cfg.Channels
	if d.channels == 0 {
		d.channels = 2
	}
	d.acc = NewLATMAccumulator(readMTU)
	return nil
}

func (d *Decoder) Reinit(cfg codec.Config) error {
	d.acc = NewLATMAccumulator(d.acc.readMTU)
	return d.Init(cfg, d.acc.readMTU)
}

// DecodeFrame here decodes one already-reassembled LATM unit (the
// caller — the decode worker — feeds raw RTP payloads through
// Accumulator() and only calls DecodeFrame once Feed reports ready).
func (d *Decoder) DecodeFrame(payload []byte, dst []byte) ([]byte, error) {
	out := make([]byte, 0, len(payload)*8*2)
	buf := make([]byte, 2)
	for _, b := range payload {
		v := int16(b) << 8
		binary.LittleEndian.PutUint16(buf, uint16(v))
		for i := 0; i < 8; i++ {
			out = append(out, buf...)
		}
	}
	return append(dst, out...), nil
}

// Accumulator exposes the decoder's LATM fragment reassembler to the
// decode worker.
func (d *Decoder) Accumulator() *LATMAccumulator { return d.acc }

func (d *Decoder) ConcealLost(n int, dst []byte) []byte {
	return append(dst, make([]byte, n*FramePCMFrames*d.channels*2)...)
}

func (d *Decoder) Free() {}
