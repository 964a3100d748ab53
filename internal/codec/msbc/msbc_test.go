package msbc

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

func TestEncodePrependsH2Header(t *testing.T) {
	enc := &Encoder{}
	enc.Init(codec.Config{}, SCOWriteMTU)

	out, err := enc.EncodeBlock(genFrame(12000), nil)
	if err != nil {
		t.Fatalf("EncodeBlock() error: %v", err)
	}
	if len(out) < 2 {
		t.Fatal("encoded output too short to hold H2 header")
	}
	var hdr [2]byte
	copy(hdr[:], out[:2])
	seq, ok := h2.Unpack(hdr)
	if !ok {
		t.Fatal("H2 header failed to unpack")
	}
	if seq != 0 {
		t.Fatalf("first frame H2 seq = %d, want 0", seq)
	}
}

func TestEncodeSequenceAdvances(t *testing.T) {
	enc := &Encoder{}
	enc.Init(codec.Config{}, SCOWriteMTU)

	var lastSeq int
	for i := 0; i < 5; i++ {
		out, err := enc.EncodeBlock(genFrame(8000), nil)
		if err != nil {
			t.Fatalf("EncodeBlock() error: %v", err)
		}
		var hdr [2]byte
		copy(hdr[:], out[:2])
		seq, ok := h2.Unpack(hdr)
		if !ok {
			t.Fatal("bad H2 header")
		}
		if seq != i%4 {
			t.Fatalf("frame %d seq = %d, want %d", i, seq, i%4)
		}
		lastSeq = seq
	}
	_ = lastSeq
}

func TestDecodeRoundtrip(t *testing.T) {
	enc := &Encoder{}
	enc.Init(codec.Config{}, SCOWriteMTU)
	encoded, err := enc.EncodeBlock(genFrame(9000), nil)
	if err != nil {
		t.Fatalf("EncodeBlock() error: %v", err)
	}

	dec := &Decoder{}
	dec.Init(codec.Config{}, SCOWriteMTU)
	pcm, err := dec.DecodeFrame(encoded, nil)
	if err != nil {
		t.Fatalf("DecodeFrame() error: %v", err)
	}
	if len(pcm) != FramePCMFrames*2 {
		t.Fatalf("decoded len = %d, want %d", len(pcm), FramePCMFrames*2)
	}
}

func TestDecodeRejectsBadHeader(t *testing.T) {
	dec := &Decoder{}
	dec.Init(codec.Config{}, SCOWriteMTU)
	bad := make([]byte, 64)
	bad[0] = 0xFF
	if _, err := dec.DecodeFrame(bad, nil); err == nil {
		t.Fatal("DecodeFrame() with bad H2 header succeeded, want error")
	}
}

func TestFrameBytesMatchesSpec(t *testing.T) {
	if FrameBytes != 57 {
		t.Fatalf("FrameBytes = %d, want 57", FrameBytes)
	}
}
