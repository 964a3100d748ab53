// Package rtpstate implements the outbound RTP header builder and the
// inbound sequence/timestamp synchroniser (spec.md C3). Wire marshal
// is delegated to github.com/pion/rtp, the same library and calling
// convention used across the retrieval pack (sebacius-switchboard's
// media-service builds rtp.Packet{Header: rtp.Header{...}} and calls
// Marshal; madpsy-ka9q_ubersdr's receive loop calls Unmarshal) rather
// than hand-writing the 12-byte header.
package rtpstate

import (
	"math/rand/v2"

	"github.com/pion/rtp"
)

// payloadType is the fixed RTP payload type used for all dynamic audio
// payloads carried by this engine.
const payloadType = 96

// Outbound tracks the sequence counter and timestamp counter for one
// direction of one transport's RTP stream.
type Outbound struct {
	ClockRate uint32 // RTP clock rate, may differ from the PCM rate
	PCMRate   uint32 // PCM sample rate frames are counted at

	ssrc uint32
	seq  uint16
	ts   uint32
}

// NewOutbound creates an outbound RTP state with a randomised initial
// sequence number and timestamp, per RFC 3550 §5.1 (initial values
// should be random to make known-plaintext attacks on encrypted
// streams harder, and to avoid two streams colliding on prior-session
// leftovers).
func NewOutbound(clockRate, pcmRate uint32) *Outbound {
	return &Outbound{
		ClockRate: clockRate,
		PCMRate:   pcmRate,
		ssrc:      rand.Uint32(),
		seq:       uint16(rand.Uint32()),
		ts:        rand.Uint32(),
	}
}

// NewFrame stamps a new RTP packet: sequence = ++seq, timestamp =
// current running timestamp, payload type = 96, version = 2. marker
// should be true for the first packet of a talkspurt (e.g. after a
// PAUSED→RUNNING transition). The caller owns payload's lifetime.
func (o *Outbound) NewFrame(payload []byte, marker bool) *rtp.Packet {
	o.seq++
	pkt := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			Marker:         marker,
			PayloadType:    payloadType,
			SequenceNumber: o.seq,
			Timestamp:      o.ts,
			SSRC:           o.ssrc,
		},
		Payload: payload,
	}
	return pkt
}

// Update advances the running timestamp by nFrames worth of RTP clock
// ticks: ts += nFrames * clockRate / pcmRate. Call this once per
// NewFrame to account for the frames that packet carries, so the next
// NewFrame's timestamp reflects elapsed media time rather than packet
// count.
func (o *Outbound) Update(nFrames uint32) {
	if o.PCMRate == 0 {
		return
	}
	o.ts += nFrames * o.ClockRate / o.PCMRate
}

// SSRC returns the synchronisation source identifier for this stream.
func (o *Outbound) SSRC() uint32 {
	return o.ssrc
}

// Seq returns the most recently stamped sequence number.
func (o *Outbound) Seq() uint16 {
	return o.seq
}

// Timestamp returns the current running RTP timestamp.
func (o *Outbound) Timestamp() uint32 {
	return o.ts
}

// Inbound synchronises an incoming RTP stream, tracking the expected
// next sequence number and accounting for missing frames (gaps) so the
// codec's packet-loss-concealment path, if any, can be invoked.
type Inbound struct {
	synced      bool
	expectedSeq uint16
	ts          uint32
}

// NewInbound creates an unsynchronised inbound RTP state. The first
// call to SyncStream latches the remote stream's sequence/timestamp.
func NewInbound() *Inbound {
	return &Inbound{}
}

// Synced reports whether the first packet has been observed yet.
func (in *Inbound) Synced() bool {
	return in.synced
}

// Reset clears synchronisation state, forcing the next SyncStream call
// to re-latch as if this were the first packet. Used on PCM_CLOSE / a
// codec reinitialisation (ESTALE).
func (in *Inbound) Reset() {
	in.synced = false
	in.expectedSeq = 0
	in.ts = 0
}

// SyncStream processes one inbound packet's header. On the first
// accepted packet it latches expected_seq = header.seq+1, ts =
// header.ts, and reports synced with missing=0. On subsequent packets
// it computes missing = header.seq - expected_seq (mod 2^16, treating
// results above 32767 as negative — i.e. duplicate or reordered old
// packets, which are dropped without advancing state) and advances
// expected_seq accordingly.
//
// Returns the number of missing frames (0 = in order, >0 = gap, <0 =
// duplicate/stale and the packet should be dropped by the caller).
func (in *Inbound) SyncStream(pkt *rtp.Packet) (missing int) {
	seq := pkt.SequenceNumber

	if !in.synced {
		in.expectedSeq = seq + 1
		in.ts = pkt.Timestamp
		in.synced = true
		return 0
	}

	delta := int32(seq) - int32(in.expectedSeq)
	// Wrap delta into the signed 16-bit range so a seq that wrapped
	// around 65536 still reads as a small positive gap.
	if delta > 0x7FFF {
		delta -= 0x10000
	} else if delta < -0x7FFF {
		delta += 0x10000
	}

	if delta < 0 {
		// Stale/duplicate/reordered packet: do not advance state.
		return int(delta)
	}

	missing = int(delta)
	in.expectedSeq = seq + 1
	in.ts = pkt.Timestamp
	return missing
}

// Timestamp returns the last latched inbound RTP timestamp.
func (in *Inbound) Timestamp() uint32 {
	return in.ts
}

// ExpectedSeq returns the next sequence number the stream expects.
func (in *Inbound) ExpectedSeq() uint16 {
	return in.expectedSeq
}
