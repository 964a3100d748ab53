package mp3

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bluealsa-go/internal/codec"
)

func genBlock(frames, channels int, amp int16) []byte {
	buf := make([]byte, frames*channels*2)
	for i := 0; i < frames*channels; i++ {
		v := amp
		if i%3 == 0 {
			v = -amp
		}
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}
	return buf
}

func TestMediaHeaderPackUnpackRoundtrip(t *testing.T) {
	h := MediaHeader{Offset: 1234}
	packed := h.Pack()
	got, err := UnpackMediaHeader(packed[:])
	if err != nil {
		t.Fatalf("UnpackMediaHeader() error: %v", err)
	}
	if got.Offset != h.Offset {
		t.Fatalf("Offset = %d, want %d", got.Offset, h.Offset)
	}
}

func TestUnpackMediaHeaderShortErrors(t *testing.T) {
	if _, err := UnpackMediaHeader([]byte{1, 2}); err == nil {
		t.Fatal("UnpackMediaHeader() with short input succeeded, want error")
	}
}

func TestEncodeDecodeRoundtripShape(t *testing.T) {
	enc := &Encoder{}
	enc.Init(codec.Config{Channels: 2}, 0)

	pcm := genBlock(FramePCMFrames, 2, 9000)
	frame, err := enc.EncodeBlock(pcm, nil)
	if err != nil {
		t.Fatalf("EncodeBlock() error: %v", err)
	}
	if len(frame) == 0 {
		t.Fatal("encoded frame is empty")
	}

	dec := &Decoder{}
	dec.Init(codec.Config{Channels: 2}, 0)
	out, err := dec.DecodeFrame(frame, nil)
	if err != nil {
		t.Fatalf("DecodeFrame() error: %v", err)
	}
	if len(out) == 0 {
		t.Fatal("decoded PCM is empty")
	}
}

func TestFragmentFitsInOnePacketWhenSmallerThanMTU(t *testing.T) {
	frame := make([]byte, 32)
	fragments := Fragment(frame, 64)
	if len(fragments) != 1 {
		t.Fatalf("Fragment() = %d fragments, want 1", len(fragments))
	}
	hdr, err := UnpackMediaHeader(fragments[0])
	if err != nil {
		t.Fatalf("UnpackMediaHeader() error: %v", err)
	}
	if hdr.Offset != 0 {
		t.Fatalf("Offset = %d, want 0", hdr.Offset)
	}
	if len(fragments[0]) != MediaHeaderSize+len(frame) {
		t.Fatalf("fragment len = %d, want %d", len(fragments[0]), MediaHeaderSize+len(frame))
	}
}

func TestFragmentSplitsOversizedFrameWithRunningOffset(t *testing.T) {
	frame := make([]byte, 100)
	for i := range frame {
		frame[i] = byte(i)
	}

	room := 40 // leaves 40-MediaHeaderSize bytes of payload per fragment
	fragments := Fragment(frame, room)
	require.Greater(t, len(fragments), 1, "frame larger than room must split")

	var reassembled []byte
	for i, frag := range fragments {
		assert.LessOrEqualf(t, len(frag), room, "fragment %d exceeds room", i)
		hdr, err := UnpackMediaHeader(frag)
		require.NoError(t, err)
		assert.Equalf(t, len(reassembled), int(hdr.Offset), "fragment %d offset", i)
		reassembled = append(reassembled, frag[MediaHeaderSize:]...)
	}
	assert.Equal(t, frame, reassembled, "reassembled fragments must reproduce the original frame")
}

func TestEncodeShortBlockErrors(t *testing.T) {
	enc := &Encoder{}
	enc.Init(codec.Config{Channels: 2}, 0)
	if _, err := enc.EncodeBlock(make([]byte, 16), nil); err == nil {
		t.Fatal("EncodeBlock() with short block succeeded, want error")
	}
}
