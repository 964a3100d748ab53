// Package h2 implements the 2-byte H2 header used by SCO transport
// (mSBC and LC3-SWB): a rolling 2-bit sequence nibble prepended to
// each codec payload, in the same fixed-bit-pattern style the
// teacher's RFC 2833 DTMF payload parser (internal/media/dtmf.go)
// uses for its own small, fixed-layout header.
package h2

import "bytes"

// seqTable maps a 2-bit rolling sequence (0..3) onto the second H2
// header byte. The values are literal per spec.md §4.4.
var seqTable = [4]byte{0x08, 0x38, 0xC8, 0xF8}

// firstByte is the constant first byte of every H2 header.
const firstByte = 0x01

// HeaderSize is the fixed size in bytes of an H2 header.
const HeaderSize = 2

// Pack returns the 2-byte H2 header for the given rolling sequence
// counter. Only seq mod 4 matters; callers pass a free-running counter.
func Pack(seq uint32) [2]byte {
	return [2]byte{firstByte, seqTable[seq%4]}
}

// Unpack reverses the sequence-table lookup, returning seq in [0,3]
// and ok=false if header is not a valid H2 header.
func Unpack(header [2]byte) (seq int, ok bool) {
	if header[0] != firstByte {
		return 0, false
	}
	for i, b := range seqTable {
		if b == header[1] {
			return i, true
		}
	}
	return 0, false
}

// Find scans buf for the first occurrence of a valid H2 header
// (0x01 followed by one of the four table bytes) and returns the
// slice starting at that header, or nil if none is found. This
// mirrors the upstream find-by-scanning contract used to resynchronise
// after a dropped or corrupted SCO frame.
func Find(buf []byte) []byte {
	for i := 0; i+1 < len(buf); i++ {
		if buf[i] != firstByte {
			continue
		}
		if bytes.IndexByte(seqTable[:], buf[i+1]) >= 0 {
			return buf[i:]
		}
	}
	return nil
}
