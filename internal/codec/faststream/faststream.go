// Package faststream implements the FastStream codec adapter: a
// bidirectional SBC variant used for simultaneous 48kHz stereo music
// playback and 16kHz mono voice capture, with no RTP framing. The
// encoder packs up to 3 SBC-shaped frames into one BT datagram.
//
// Grounded on internal/codec/sbc's quantizer for the per-frame
// transform; FastStream's distinguishing feature implemented here
// literally is the multi-frame-per-datagram packing and the two
// independent sample rates per direction.
package faststream

import (
	"encoding/binary"
	"errors"

	"bluealsa-go/internal/codec"
)

// MaxFramesPerDatagram is the literal FastStream packing limit spec.md
// names.
const MaxFramesPerDatagram = 3

// MusicFramePCMFrames / VoiceFramePCMFrames are the per-direction PCM
// frame counts one SBC-shaped sub-frame covers.
const (
	MusicFramePCMFrames = 128 // 48kHz stereo music
	VoiceFramePCMFrames = 64  // 16kHz mono voice
)

func init() {
	codec.Register(codec.KindFastStream, codec.Pair{
		NewEncoder: func() codec.Encoder { return &Encoder{} },
		NewDecoder: func() codec.Decoder { return &Decoder{} },
	})
}

// Encoder packs music (playback) frames; a second Encoder instance
// (with Voice: true) handles the voice direction, since FastStream
// spawns both directions as independent workers (spec.md §4.10).
type Encoder struct {
	Voice      bool
	channels   int
	framesLeft int // frames buffered for the current datagram, 0..3
	pending    []byte
}

func (e *Encoder) Init(cfg codec.Config, writeMTU int) error {
	if e.Voice {
		e.channels = 1
	} else {
		e.channels = 2
	}
	e.pending = nil
	e.framesLeft = 0
	return nil
}

func (e *Encoder) Reinit(cfg codec.Config) error { return e.Init(cfg, 0) }

func (e *Encoder) InputBlockFrames() int {
	if e.Voice {
		return VoiceFramePCMFrames
	}
	return MusicFramePCMFrames
}

// EncodeBlock quantizes one sub-frame and appends it to an internal
// staging buffer; every MaxFramesPerDatagram calls it flushes the
// accumulated bytes to dst as one datagram payload, returning dst
// unchanged (with nil added) on the calls in between.
func (e *Encoder) EncodeBlock(pcm []byte, dst []byte) ([]byte, error) {
	blockFrames := e.InputBlockFrames()
	need := blockFrames * e.channels * 2
	if len(pcm) < need {
		return dst, errors.New("faststream: short PCM block")
	}

	var peak int16
	samples := make([]int16, blockFrames*e.channels)
	for i := range samples {
		v := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		samples[i] = v
		if a := abs16(v); a > peak {
			peak = a
		}
	}

	e.pending = append(e.pending, byte(peak>>8), byte(peak))
	var packed byte
	for i, v := range samples {
		nib := quantize(v, peak)
		if i%2 == 0 {
			packed = nib << 4
		} else {
			packed |= nib
			e.pending = append(e.pending, packed)
		}
	}
	if len(samples)%2 == 1 {
		e.pending = append(e.pending, packed)
	}

	e.framesLeft++
	if e.framesLeft < MaxFramesPerDatagram {
		return dst, nil
	}

	dst = append(dst, e.pending...)
	e.pending = nil
	e.framesLeft = 0
	return dst, nil
}

func abs16(v int16) int16 {
	if v < 0 {
		return -v
	}
	return v
}

func quantize(v, peak int16) byte {
	if peak == 0 {
		return 8
	}
	scaled := (int32(v)*7)/int32(peak) + 8
	if scaled < 0 {
		scaled = 0
	} else if scaled > 15 {
		scaled = 15
	}
	return byte(scaled)
}

func (e *Encoder) IntrinsicDelayFrames() int { return 0 }
func (e *Encoder) Free()                     {}

type Decoder struct {
	Voice    bool
	channels int
}

func (d *Decoder) Init(cfg codec.Config, readMTU int) error {
	if d.Voice {
		d.channels = 1
	} else {
		d.channels = 2
	}
	return nil
}

func (d *Decoder) Reinit(cfg codec.Config) error { return d.Init(cfg, 0) }

func (d *Decoder) blockFrames() int {
	if d.Voice {
		return VoiceFramePCMFrames
	}
	return MusicFramePCMFrames
}

// DecodeFrame decodes up to MaxFramesPerDatagram concatenated
// sub-frames out of one datagram payload.
func (d *Decoder) DecodeFrame(payload []byte, dst []byte) ([]byte, error) {
	blockFrames := d.blockFrames()
	subFrameBytes := 2 + (blockFrames*d.channels+1)/2
	off := 0
	for off+subFrameBytes <= len(payload) {
		sub := payload[off : off+subFrameBytes]
		off += subFrameBytes

		peak := int16(uint16(sub[0])<<8 | uint16(sub[1]))
		body := sub[2:]
		out := make([]int16, blockFrames*d.channels)
		bi := 0
		for i := range out {
			if i%2 == 0 {
				b := body[bi]
				out[i] = dequantize((b>>4)&0x0F, peak)
				if i+1 < len(out) {
					out[i+1] = dequantize(b&0x0F, peak)
				}
				bi++
			}
		}
		buf := make([]byte, len(out)*2)
		for i, s := range out {
			binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
		}
		dst = append(dst, buf...)
	}
	if off == 0 {
		return dst, errors.New("faststream: short datagram")
	}
	return dst, nil
}

func dequantize(n byte, peak int16) int16 {
	centered := int32(n) - 8
	return int16((centered * int32(peak)) / 7)
}

func (d *Decoder) ConcealLost(n int, dst []byte) []byte {
	return append(dst, make([]byte, n*d.blockFrames()*d.channels*2)...)
}

func (d *Decoder) Free() {}
