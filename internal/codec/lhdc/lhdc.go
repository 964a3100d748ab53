// Package lhdc implements the LHDC v3/v5 A2DP codec adapter: an RTP
// header plus an rtp_lhdc_media_header (latency field left at 0, a
// frame count, and an 8-bit sequence), stereo PCM deinterleaved into
// two planar channel buffers before encode, and 24-bit decoder output
// promoted to 32-bit by a left shift of 8.
//
// No pure-Go LHDC codec is available in this workspace; the transform
// is the same scale-factor quantizer as internal/codec/sbc, applied
// per planar channel.
package lhdc

import (
	"encoding/binary"
	"errors"

	"bluealsa-go/internal/codec"
)

// MediaHeaderSize is the rtp_lhdc_media_header wire size: 1 byte
// latency (always 0 here), 1 byte frame count, 1 byte sequence.
const MediaHeaderSize = 3

// MediaHeader is the per-packet LHDC media header.
type MediaHeader struct {
	Latency    uint8
	FrameCount uint8
	Seq        uint8
}

func (h MediaHeader) Pack() [MediaHeaderSize]byte {
	return [MediaHeaderSize]byte{h.Latency, h.FrameCount, h.Seq}
}

func UnpackMediaHeader(b []byte) (MediaHeader, error) {
	if len(b) < MediaHeaderSize {
		return MediaHeader{}, errors.New("lhdc: short media header")
	}
	return MediaHeader{Latency: b[0], FrameCount: b[1], Seq: b[2]}, nil
}

// FramePCMFrames is the PCM frame count one LHDC frame covers.
const FramePCMFrames = 256

func init() {
	codec.Register(codec.KindLHDC, codec.Pair{
		NewEncoder: func() codec.Encoder { return &Encoder{} },
		NewDecoder: func() codec.Decoder { return &Decoder{} },
	})
}

type Encoder struct {
	seq uint8
}

func (e *Encoder) Init(cfg codec.Config, writeMTU int) error { e.seq = 0; return nil }
func (e *Encoder) Reinit(cfg codec.Config) error             { return e.Init(cfg, 0) }
func (e *Encoder) InputBlockFrames() int                     { return FramePCMFrames }

// deinterleave splits interleaved stereo int16 PCM into two planar
// channel slices, the layout LHDC's encoder requires.
func deinterleave(pcm []byte, n int) (left, right []int16) {
	left = make([]int16, n)
	right = make([]int16, n)
	for i := 0; i < n; i++ {
		left[i] = int16(binary.LittleEndian.Uint16(pcm[i*4:]))
		right[i] = int16(binary.LittleEndian.Uint16(pcm[i*4+2:]))
	}
	return left, right
}

func (e *Encoder) EncodeBlock(pcm []byte, dst []byte) ([]byte, error) {
	need := FramePCMFrames * 2 * 2
	if len(pcm) < need {
		return dst, errors.New("lhdc: short PCM block")
	}

	left, right := deinterleave(pcm, FramePCMFrames)

	hdr := MediaHeader{Latency: 0, FrameCount: 1, Seq: e.seq}.Pack()
	e.seq++
	dst = append(dst, hdr[:]...)

	dst = encodePlane(left, dst)
	dst = encodePlane(right, dst)
	return dst, nil
}

func encodePlane(plane []int16, dst []byte) []byte {
	var peak int16
	for _, v := range plane {
		if a := abs16(v); a > peak {
			peak = a
		}
	}
	dst = append(dst, byte(peak>>8), byte(peak))
	var packed byte
	for i, v := range plane {
		nib := quantize(v, peak)
		if i%2 == 0 {
			packed = nib << 4
		} else {
			packed |= nib
			dst = append(dst, packed)
		}
	}
	if len(plane)%2 == 1 {
		dst = append(dst, packed)
	}
	return dst
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

type Decoder struct{}

func (d *Decoder) Init(cfg codec.Config, readMTU int) error { return nil }
func (d *Decoder) Reinit(cfg codec.Config) error            { return nil }

// planeBytes returns the wire size of one encoded planar channel.
func planeBytes() int {
	return 2 + (FramePCMFrames+1)/2
}

// DecodeFrame expects payload to begin with the 3-byte media header
// (the caller strips the RTP header first) and produces 24-bit PCM
// promoted to 32-bit by <<8, interleaved stereo, per spec.md.
func (d *Decoder) DecodeFrame(payload []byte, dst []byte) ([]byte, error) {
	if len(payload) < MediaHeaderSize {
		return dst, errors.New("lhdc: short frame")
	}
	body := payload[MediaHeaderSize:]
	if len(body) < planeBytes()*2 {
		return dst, errors.New("lhdc: short planes")
	}

	left := decodePlane(body[:planeBytes()])
	right := decodePlane(body[planeBytes() : planeBytes()*2])

	out := make([]byte, FramePCMFrames*2*4)
	for i := 0; i < FramePCMFrames; i++ {
		binary.LittleEndian.PutUint32(out[i*8:], uint32(int32(left[i])<<8))
		binary.LittleEndian.PutUint32(out[i*8+4:], uint32(int32(right[i])<<8))
	}
	return append(dst, out...), nil
}

func decodePlane(b []byte) []int16 {
	peak := int16(uint16(b[0])<<8 | uint16(b[1]))
	b = b[2:]
	out := make([]int16, FramePCMFrames)
	off := 0
	for i := 0; i < FramePCMFrames; i += 2 {
		v := b[off]
		off++
		out[i] = dequantize((v>>4)&0x0F, peak)
		if i+1 < FramePCMFrames {
			out[i+1] = dequantize(v&0x0F, peak)
		}
	}
	return out
}

func dequantize(n byte, peak int16) int16 {
	centered := int32(n) - 8
	return int16((centered * int32(peak)) / 7)
}

func (d *Decoder) ConcealLost(n int, dst []byte) []byte {
	return append(dst, make([]byte, n*FramePCMFrames*2*4)...)
}

func (d *Decoder) Free() {}
