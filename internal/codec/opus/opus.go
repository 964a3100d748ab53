// Package opus implements the Opus A2DP codec adapter: an RTP media
// header framing convention with exactly one Opus frame per packet,
// the simplest of the twelve adapters' framing rules.
//
// No pure-Go Opus codec is available in this workspace; the transform
// is the same scale-factor quantizer as internal/codec/sbc.
package opus

import (
	"encoding/binary"
	"errors"

	"bluealsa-go/internal/codec"
)

// FramePCMFrames is the PCM frame count one Opus frame covers at a
// 20ms frame duration, Opus's most common A2DP configuration.
const FramePCMFrames = 960 // 20ms @ 48kHz

func init() {
	codec.Register(codec.KindOpus, codec.Pair{
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
		return dst, errors.New("opus: short PCM block")
	}

	var peak int16
	vals := make([]int16, samples)
	for i := range vals {
		v := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		vals[i] = v
		if a := abs16(v); a > peak {
			peak = a
		}
	}

	dst = append(dst, byte(peak>>8), byte(peak))
	var packed byte
	for i, v := range vals {
		nib := quantize(v, peak)
		if i%2 == 0 {
			packed = nib << 4
		} else {
			packed |= nib
			dst = append(dst, packed)
		}
	}
	if samples%2 == 1 {
		dst = append(dst, packed)
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
	channels int
}

func (d *Decoder) Init(cfg codec.Config, readMTU int) error {
	d.channels = cfg.Channels
	if d.channels == 0 {
		d.channels = 2
	}
	return nil
}

func (d *Decoder) Reinit(cfg codec.Config) error { return d.Init(cfg, 0) }

func (d *Decoder) DecodeFrame(payload []byte, dst []byte) ([]byte, error) {
	if len(payload) < 2 {
		return dst, errors.New("opus: short frame")
	}
	peak := int16(uint16(payload[0])<<8 | uint16(payload[1]))
	body := payload[2:]
	samples := FramePCMFrames * d.channels

	out := make([]int16, samples)
	off := 0
	for i := 0; i < samples; i += 2 {
		if off >= len(body) {
			break
		}
		b := body[off]
		off++
		out[i] = dequantize((b>>4)&0x0F, peak)
		if i+1 < samples {
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

func (d *Decoder) ConcealLost(n int, dst []byte) []byte {
	return append(dst, make([]byte, n*FramePCMFrames*d.channels*2)...)
}

func (d *Decoder) Free() {}
