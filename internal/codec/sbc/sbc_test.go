package sbc

import (
	"encoding/binary"
	"testing"

	"bluealsa-go/internal/codec"
)

func genBlock(t *testing.T, frames, channels int, amp int16) []byte {
	t.Helper()
	buf := make([]byte, frames*channels*2)
	for i := 0; i < frames*channels; i++ {
		v := amp
		if i%2 == 1 {
			v = -amp
		}
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}
	return buf
}

func TestEncodeDecodeRoundtripShapeStereo(t *testing.T) {
	enc := &Encoder{}
	if err := enc.Init(codec.Config{Channels: 2}, 672); err != nil {
		t.Fatalf("Init() error: %v", err)
	}
	if enc.InputBlockFrames() != blockFrames {
		t.Fatalf("InputBlockFrames() = %d, want %d", enc.InputBlockFrames(), blockFrames)
	}

	pcm := genBlock(t, blockFrames, 2, 10000)
	out, err := enc.EncodeBlock(pcm, nil)
	if err != nil {
		t.Fatalf("EncodeBlock() error: %v", err)
	}
	wantLen := 2 * (1 + (blockFrames+1)/2)
	if len(out) != wantLen {
		t.Fatalf("encoded len = %d, want %d", len(out), wantLen)
	}

	dec := &Decoder{}
	if err := dec.Init(codec.Config{Channels: 2}, 672); err != nil {
		t.Fatalf("decoder Init() error: %v", err)
	}
	pcmOut, err := dec.DecodeFrame(out, nil)
	if err != nil {
		t.Fatalf("DecodeFrame() error: %v", err)
	}
	if len(pcmOut) != len(pcm) {
		t.Fatalf("decoded len = %d, want %d", len(pcmOut), len(pcm))
	}
}

func TestEncodeBlockShortInputErrors(t *testing.T) {
	enc := &Encoder{}
	enc.Init(codec.Config{Channels: 2}, 672)
	_, err := enc.EncodeBlock(make([]byte, 4), nil)
	if err == nil {
		t.Fatal("EncodeBlock() with short input succeeded, want error")
	}
}

func TestIntrinsicDelayMatchesSpec(t *testing.T) {
	enc := &Encoder{}
	if d := enc.IntrinsicDelayFrames(); d != intrinsicDelayFrames {
		t.Fatalf("IntrinsicDelayFrames() = %d, want %d", d, intrinsicDelayFrames)
	}
}

func TestRegisteredInCodecRegistry(t *testing.T) {
	pair, err := codec.Lookup(codec.KindSBC)
	if err != nil {
		t.Fatalf("Lookup(KindSBC) error: %v", err)
	}
	if pair.NewEncoder() == nil || pair.NewDecoder() == nil {
		t.Fatal("registered constructors returned nil")
	}
}

func TestConcealLostSizing(t *testing.T) {
	dec := &Decoder{channels: 2}
	out := dec.ConcealLost(3, nil)
	want := 3 * blockFrames * 2 * 2
	if len(out) != want {
		t.Fatalf("ConcealLost(3) len = %d, want %d", len(out), want)
	}
}
