package aptx

import (
	"encoding/binary"
	"testing"

	"bluealsa-go/internal/codec"
)

func TestClassicEncodeProducesFixedCodewordSize(t *testing.T) {
	enc := &Encoder{hd: false}
	enc.Init(codec.Config{}, 0)

	pcm := make([]byte, samplesPerCodeword*2*2)
	for i := 0; i < samplesPerCodeword*2; i++ {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(1000*(i+1))))
	}

	out, err := enc.EncodeBlock(pcm, nil)
	if err != nil {
		t.Fatalf("EncodeBlock() error: %v", err)
	}
	if len(out) != ClassicCodewordBytes {
		t.Fatalf("codeword len = %d, want %d", len(out), ClassicCodewordBytes)
	}
}

func TestHDEncodeProducesFixedCodewordSize(t *testing.T) {
	enc := &Encoder{hd: true}
	enc.Init(codec.Config{}, 0)

	pcm := make([]byte, samplesPerCodeword*2*4)
	for i := 0; i < samplesPerCodeword*2; i++ {
		binary.LittleEndian.PutUint32(pcm[i*4:], uint32(int32(100000*(i+1))))
	}

	out, err := enc.EncodeBlock(pcm, nil)
	if err != nil {
		t.Fatalf("EncodeBlock() error: %v", err)
	}
	if len(out) != HDCodewordBytes {
		t.Fatalf("codeword len = %d, want %d", len(out), HDCodewordBytes)
	}
}

func TestClassicDecodeProducesExpectedPCMLength(t *testing.T) {
	dec := &Decoder{hd: false}
	dec.Init(codec.Config{}, 0)

	codeword := make([]byte, ClassicCodewordBytes)
	out, err := dec.DecodeFrame(codeword, nil)
	if err != nil {
		t.Fatalf("DecodeFrame() error: %v", err)
	}
	want := samplesPerCodeword * 2 * 2
	if len(out) != want {
		t.Fatalf("decoded len = %d, want %d", len(out), want)
	}
}

func TestHDDecodeProducesExpectedPCMLength(t *testing.T) {
	dec := &Decoder{hd: true}
	dec.Init(codec.Config{}, 0)

	codeword := make([]byte, HDCodewordBytes)
	out, err := dec.DecodeFrame(codeword, nil)
	if err != nil {
		t.Fatalf("DecodeFrame() error: %v", err)
	}
	want := samplesPerCodeword * 2 * 4
	if len(out) != want {
		t.Fatalf("decoded len = %d, want %d", len(out), want)
	}
}

func TestDecodeShortCodewordErrors(t *testing.T) {
	dec := &Decoder{hd: false}
	dec.Init(codec.Config{}, 0)
	if _, err := dec.DecodeFrame([]byte{0x01}, nil); err == nil {
		t.Fatal("DecodeFrame() with short codeword succeeded, want error")
	}
}

func TestBothVariantsRegistered(t *testing.T) {
	for _, kind := range []codec.Kind{codec.KindAptX, codec.KindAptXHD} {
		pair, err := codec.Lookup(kind)
		if err != nil {
			t.Fatalf("Lookup(%v) error: %v", kind, err)
		}
		if pair.NewEncoder() == nil || pair.NewDecoder() == nil {
			t.Fatalf("registered constructors for %v returned nil", kind)
		}
	}
}
