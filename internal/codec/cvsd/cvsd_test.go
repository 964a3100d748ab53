package cvsd

import (
	"bytes"
	"testing"

	"bluealsa-go/internal/codec"
)

func TestEncodeIsIdentityPassthrough(t *testing.T) {
	enc := &Encoder{}
	enc.Init(codec.Config{}, 0)

	pcm := make([]byte, FrameBytes)
	for i := range pcm {
		pcm[i] = byte(i)
	}

	out, err := enc.EncodeBlock(pcm, nil)
	if err != nil {
		t.Fatalf("EncodeBlock() error: %v", err)
	}
	if !bytes.Equal(out, pcm) {
		t.Fatal("CVSD encoder did not pass PCM through unchanged")
	}
}

func TestDecodeIsIdentityPassthrough(t *testing.T) {
	dec := &Decoder{}
	dec.Init(codec.Config{}, 0)

	payload := make([]byte, FrameBytes)
	for i := range payload {
		payload[i] = byte(255 - i)
	}
	out, err := dec.DecodeFrame(payload, nil)
	if err != nil {
		t.Fatalf("DecodeFrame() error: %v", err)
	}
	if !bytes.Equal(out, payload) {
		t.Fatal("CVSD decoder did not pass bytes through unchanged")
	}
}

func TestEncodeShortBlockErrors(t *testing.T) {
	enc := &Encoder{}
	enc.Init(codec.Config{}, 0)
	if _, err := enc.EncodeBlock(make([]byte, FrameBytes-1), nil); err == nil {
		t.Fatal("EncodeBlock() with short block succeeded, want error")
	}
}

func TestFrameBytesMatchesFixedSCOMTU(t *testing.T) {
	if FrameBytes != 48 {
		t.Fatalf("FrameBytes = %d, want 48", FrameBytes)
	}
}
