// Package msbc implements the mSBC codec adapter used over SCO by the
// HFP wideband-speech profile: fixed 16kHz mono, H2-framed, no RTP.
//
// As with internal/codec/sbc, no pure-Go mSBC bitstream library is
// available in this workspace; the quantizer here reuses the same
// scale-factor-plus-nibble shape: a 2-byte peak followed by 60 bytes of
// packed 4-bit samples, a 62-byte body (64 bytes with the H2 header).
// That body is not the 57-byte FrameBytes length.
package msbc

import (
	"encoding/binary"
	"errors"

	"bluealsa-go/internal/codec"
	"bluealsa-go/internal/h2"
)

// FrameBytes is the mSBC body length spec.md names literally (57
// bytes), excluding the 2-byte H2 header. EncodeBlock's stand-in body
// is 62 bytes, not this length.
const FrameBytes = 57

// FramePCMFrames is the number of 16kHz mono PCM samples one mSBC
// frame covers (7.5ms at 16kHz).
const FramePCMFrames = 120

// SCOWriteMTU is the actual SCO socket write MTU spec.md names (24
// bytes). Neither this package nor internal/txmanager splits a frame
// into writes of this size: each encoded frame (64 bytes with its H2
// header) is handed on whole.
const SCOWriteMTU = 24

func init() {
	codec.Register(codec.KindMSBC, codec.Pair{
		NewEncoder: func() codec.Encoder { return &Encoder{} },
		NewDecoder: func() codec.Decoder { return &Decoder{} },
	})
}

type Encoder struct {
	seq uint32
}

func (e *Encoder) Init(cfg codec.Config, writeMTU int) error { e.seq = 0; return nil }
func (e *Encoder) Reinit(cfg codec.Config) error             { return e.Init(cfg, 0) }
func (e *Encoder) InputBlockFrames() int                     { return FramePCMFrames }

// EncodeBlock quantizes one mSBC frame and prepends its H2 header.
func (e *Encoder) EncodeBlock(pcm []byte, dst []byte) ([]byte, error) {
	need := FramePCMFrames * 2
	if len(pcm) < need {
		return dst, errors.New("msbc: short PCM block")
	}

	var peak int16
	samples := make([]int16, FramePCMFrames)
	for i := range samples {
		v := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		samples[i] = v
		if a := abs16(v); a > peak {
			peak = a
		}
	}

	hdr := h2.Pack(e.seq)
	e.seq++
	dst = append(dst, hdr[:]...)

	dst = append(dst, byte(peak>>8), byte(peak))
	var packed byte
	for i, v := range samples {
		nib := quantize(v, peak)
		if i%2 == 0 {
			packed = nib << 4
		} else {
			packed |= nib
			dst = append(dst, packed)
		}
	}
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
	expectedSeq uint32
	have        bool
}

func (d *Decoder) Init(cfg codec.Config, readMTU int) error { d.have = false; return nil }
func (d *Decoder) Reinit(cfg codec.Config) error            { return d.Init(cfg, 0) }

// DecodeFrame expects payload to begin with a 2-byte H2 header (the
// caller is responsible for locating it via internal/h2.Find on the
// raw BT read, since H2 framing, unlike RTP, carries no length field).
func (d *Decoder) DecodeFrame(payload []byte, dst []byte) ([]byte, error) {
	if len(payload) < 2 {
		return dst, errors.New("msbc: short frame")
	}
	var hdr [2]byte
	copy(hdr[:], payload[:2])
	if _, ok := h2.Unpack(hdr); !ok {
		return dst, errors.New("msbc: bad H2 header")
	}
	body := payload[2:]
	if len(body) < 2+(FramePCMFrames+1)/2 {
		return dst, errors.New("msbc: short body")
	}

	peak := int16(uint16(body[0])<<8 | uint16(body[1]))
	body = body[2:]

	out := make([]int16, FramePCMFrames)
	off := 0
	for i := 0; i < FramePCMFrames; i += 2 {
		b := body[off]
		off++
		out[i] = dequantize((b>>4)&0x0F, peak)
		if i+1 < FramePCMFrames {
			out[i+1] = dequantize(b&0x0F, peak)
		}
	}

	buf := make([]byte, len(out)*2)
	for i, s := range out {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return append(dst, buf...), nil
}

func dequantize(n byte, peak int16) int16 {
	centered := int32(n) - 8
	return int16((centered * int32(peak)) / 7)
}

// ConcealLost emits n frames of silence; mSBC carries no native PLC
// (spec.md reserves explicit PLC handling for LC3-SWB only).
func (d *Decoder) ConcealLost(n int, dst []byte) []byte {
	return append(dst, make([]byte, n*FramePCMFrames*2)...)
}

func (d *Decoder) Free() {}
