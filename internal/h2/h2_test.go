package h2

import (
	"testing"

	"pgregory.net/rapid"
)

func TestPackTableValues(t *testing.T) {
	cases := []struct {
		seq  uint32
		want byte
	}{
		{0, 0x08},
		{1, 0x38},
		{2, 0xC8},
		{3, 0xF8},
		{4, 0x08}, // wraps
	}
	for _, c := range cases {
		hdr := Pack(c.seq)
		if hdr[0] != firstByte {
			t.Fatalf("Pack(%d)[0] = %#x, want %#x", c.seq, hdr[0], firstByte)
		}
		if hdr[1] != c.want {
			t.Fatalf("Pack(%d)[1] = %#x, want %#x", c.seq, hdr[1], c.want)
		}
	}
}

func TestUnpackRejectsBadFirstByte(t *testing.T) {
	_, ok := Unpack([2]byte{0x02, 0x08})
	if ok {
		t.Fatal("Unpack() ok = true for invalid first byte")
	}
}

func TestUnpackRejectsUnknownSecondByte(t *testing.T) {
	_, ok := Unpack([2]byte{0x01, 0xAA})
	if ok {
		t.Fatal("Unpack() ok = true for unknown second byte")
	}
}

func TestFindLocatesHeaderMidBuffer(t *testing.T) {
	buf := append([]byte{0xFF, 0xFF, 0xFF}, Pack(2)[:]...)
	buf = append(buf, []byte("payload")...)

	found := Find(buf)
	if found == nil {
		t.Fatal("Find() = nil, want a match")
	}
	if found[0] != 0x01 || found[1] != 0xC8 {
		t.Fatalf("Find() = %v, want header 0x01 0xC8 prefix", found[:2])
	}
}

func TestFindNoMatch(t *testing.T) {
	buf := []byte{0xFF, 0xFF, 0xFF, 0xFF}
	if found := Find(buf); found != nil {
		t.Fatalf("Find() = %v, want nil", found)
	}
}

// TestH2Roundtrip is the rapid property spec.md §8 names: Pack followed
// by Unpack recovers the original sequence mod 4.
func TestH2Roundtrip(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		seq := uint32(rapid.IntRange(0, 1_000_000).Draw(rt, "seq"))

		hdr := Pack(seq)
		got, ok := Unpack(hdr)
		if !ok {
			rt.Fatalf("Unpack(%v) ok = false", hdr)
		}
		if uint32(got) != seq%4 {
			rt.Fatalf("Unpack(Pack(%d)) = %d, want %d", seq, got, seq%4)
		}
	})
}
