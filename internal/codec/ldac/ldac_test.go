package ldac

import (
	"encoding/binary"
	"testing"

	"golang.org/x/time/rate"

	"bluealsa-go/internal/codec"
)

func genBlock(frames, channels int, amp int32) []byte {
	buf := make([]byte, frames*channels*4)
	for i := 0; i < frames*channels; i++ {
		v := amp
		if i%2 == 1 {
			v = -amp
		}
		binary.LittleEndian.PutUint32(buf[i*4:], uint32(v))
	}
	return buf
}

func newTestEncoder() *Encoder {
	return &Encoder{eqmid: EQMIDHigh, limiter: rate.NewLimiter(rate.Inf, 1)}
}

func TestEncodeDecodeRoundtripAtHighQuality(t *testing.T) {
	enc := newTestEncoder()
	enc.Init(codec.Config{Channels: 2}, 672)

	pcm := genBlock(FramePCMFrames, 2, 1<<20)
	frame, err := enc.EncodeBlock(pcm, nil)
	if err != nil {
		t.Fatalf("EncodeBlock() error: %v", err)
	}

	dec := &Decoder{}
	dec.Init(codec.Config{Channels: 2}, 672)
	out, err := dec.DecodeFrame(frame, nil)
	if err != nil {
		t.Fatalf("DecodeFrame() error: %v", err)
	}
	if len(out) != FramePCMFrames*2*4 {
		t.Fatalf("decoded len = %d, want %d", len(out), FramePCMFrames*2*4)
	}
}

func TestABRStepsDownUnderHighLoad(t *testing.T) {
	enc := newTestEncoder()
	enc.Init(codec.Config{Channels: 2}, 672)

	enc.UpdateABR(7)
	if enc.Quality() != EQMIDMobile {
		t.Fatalf("Quality() after load=7 = %v, want EQMIDMobile", enc.Quality())
	}
}

func TestABRRecoversUnderLowLoad(t *testing.T) {
	enc := newTestEncoder()
	enc.Init(codec.Config{Channels: 2}, 672)

	enc.UpdateABR(7)
	enc.UpdateABR(0)
	if enc.Quality() != EQMIDHigh {
		t.Fatalf("Quality() after load drop to 0 = %v, want EQMIDHigh", enc.Quality())
	}
}

func TestABRRespectsCooldown(t *testing.T) {
	enc := &Encoder{eqmid: EQMIDHigh, limiter: rate.NewLimiter(rate.Every(1000*abrCooldown), 1)}
	enc.Init(codec.Config{Channels: 2}, 672)

	enc.UpdateABR(7) // consumes the single token
	if enc.Quality() != EQMIDMobile {
		t.Fatalf("Quality() after first UpdateABR = %v, want EQMIDMobile", enc.Quality())
	}
	enc.UpdateABR(0) // should be rate-limited, no change
	if enc.Quality() != EQMIDMobile {
		t.Fatalf("Quality() after rate-limited UpdateABR = %v, want still EQMIDMobile", enc.Quality())
	}
}

func TestThresholdsMatchSpec(t *testing.T) {
	want := [3]float64{6, 4, 2}
	if abrThresholds != want {
		t.Fatalf("abrThresholds = %v, want %v", abrThresholds, want)
	}
}
