package lc3swb

import (
	"encoding/binary"
	"testing"

	"bluealsa-go/internal/codec"
	"bluealsa-go/internal/h2"
)

func genFrame(amp int16) []byte {
	buf := make([]byte, FramePCMFrames*2)
	for i := 0; i < FramePCMFrames; i++ {
		v := amp
		if i%2 == 1 {
			v = -amp
		}
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}
	return buf
}

func TestEncodeDecodeRoundtrip(t *testing.T) {
	enc := &Encoder{}
	enc.Init(codec.Config{}, 0)
	encoded, err := enc.EncodeBlock(genFrame(15000), nil)
	if err != nil {
		t.Fatalf("EncodeBlock() error: %v", err)
	}

	var hdr [2]byte
	copy(hdr[:], encoded[:2])
	if _, ok := h2.Unpack(hdr); !ok {
		t.Fatal("H2 header missing from encoded frame")
	}

	dec := &Decoder{}
	dec.Init(codec.Config{}, 0)
	pcm, err := dec.DecodeFrame(encoded, nil)
	if err != nil {
		t.Fatalf("DecodeFrame() error: %v", err)
	}
	if len(pcm) != FramePCMFrames*2 {
		t.Fatalf("decoded len = %d, want %d", len(pcm), FramePCMFrames*2)
	}
}

func TestConcealLostClampsToThreeFrames(t *testing.T) {
	dec := &Decoder{}
	out := dec.ConcealLost(10, nil)
	want := MaxConcealedFrames * FramePCMFrames * 2
	if len(out) != want {
		t.Fatalf("ConcealLost(10) len = %d, want %d (clamped to %d frames)", len(out), want, MaxConcealedFrames)
	}
}

func TestConcealLostUnderLimit(t *testing.T) {
	dec := &Decoder{}
	out := dec.ConcealLost(2, nil)
	want := 2 * FramePCMFrames * 2
	if len(out) != want {
		t.Fatalf("ConcealLost(2) len = %d, want %d", len(out), want)
	}
}

func TestFrameBytesMatchesSpec(t *testing.T) {
	if FrameBytes != 58 {
		t.Fatalf("FrameBytes = %d, want 58", FrameBytes)
	}
}
