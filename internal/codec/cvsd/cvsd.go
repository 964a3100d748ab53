// Package cvsd implements the CVSD codec adapter: raw signed-16 LE
// PCM passthrough over SCO at 8kHz mono with a fixed 48-byte SCO MTU.
// CVSD needs no vendor library at all — "encode" and "decode" are
// identity copies, matching upstream's own treatment of CVSD as a
// pass-through transport codec.
package cvsd

import (
	"errors"

	"bluealsa-go/internal/codec"
)

// FrameBytes is the fixed SCO MTU spec.md names for CVSD.
const FrameBytes = 48

// FramePCMFrames is FrameBytes worth of mono 16-bit PCM frames.
const FramePCMFrames = FrameBytes / 2

func init() {
	codec.Register(codec.KindCVSD, codec.Pair{
		NewEncoder: func() codec.Encoder { return &Encoder{} },
		NewDecoder: func() codec.Decoder { return &Decoder{} },
	})
}

type Encoder struct{}

func (e *Encoder) Init(cfg codec.Config, writeMTU int) error { return nil }
func (e *Encoder) Reinit(cfg codec.Config) error             { return nil }
func (e *Encoder) InputBlockFrames() int                     { return FramePCMFrames }

func (e *Encoder) EncodeBlock(pcm []byte, dst []byte) ([]byte, error) {
	if len(pcm) < FrameBytes {
		return dst, errors.New("cvsd: short PCM block")
	}
	return append(dst, pcm[:FrameBytes]...), nil
}

func (e *Encoder) IntrinsicDelayFrames() int { return 0 }
func (e *Encoder) Free()                     {}

// Decoder drops input when there is no capture client (spec.md's
// literal rule); that policy lives in the transport worker that owns
// endpoint activity, not here — Decoder itself always decodes what it
// is handed.
type Decoder struct{}

func (d *Decoder) Init(cfg codec.Config, readMTU int) error { return nil }
func (d *Decoder) Reinit(cfg codec.Config) error            { return nil }

func (d *Decoder) DecodeFrame(payload []byte, dst []byte) ([]byte, error) {
	return append(dst, payload...), nil
}

func (d *Decoder) ConcealLost(n int, dst []byte) []byte {
	return append(dst, make([]byte, n*FrameBytes)...)
}

func (d *Decoder) Free() {}
