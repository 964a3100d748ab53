// Package txmanager implements the transport manager (spec.md C10):
// given a transport and its negotiated (profile, codec), it selects
// the matching codec adapter pair from internal/codec's registry,
// spawns exactly the encoder/decoder workers the profile calls for,
// and drives their cooperative-cancel-then-join lifecycle across
// Release and CODEC_CHANGE.
//
// Grounded on flowpbx-flowpbx's internal/media/lifecycle.go
// (MediaSession tying a session, its sockets, and a relay's lifecycle
// together behind Start/Stop/Release) generalised from "one relay
// goroutine pair per call" to "one encoder and/or decoder worker
// goroutine per transport endpoint".
package txmanager

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pion/rtp"
	"golang.org/x/sys/unix"

	"bluealsa-go/internal/asrs"
	"bluealsa-go/internal/codec"
	"bluealsa-go/internal/codec/mp3"
	"bluealsa-go/internal/ffb"
	"bluealsa-go/internal/ioctl"
	"bluealsa-go/internal/pcmio"
	"bluealsa-go/internal/rtpstate"
	"bluealsa-go/internal/transport"
)

// pollTimeout bounds a single poll cycle inside a worker loop so the
// stopping flag is re-checked promptly, matching internal/pcmio's own
// cooperative-cancellation cadence.
const pollTimeout = 250 * time.Millisecond

// btReadBuf and pcmReadBuf size the staging buffers workers read BT
// datagrams and PCM blocks into before handing them to the codec.
const (
	btReadBufSize  = 4096
	pcmReadBufSize = 8192
)

// rtpHeaderSize is the fixed, bit-exact RTP header width spec.md §6
// names; every encoded payload leaves room for it inside writeMTU.
const rtpHeaderSize = 12

// fragmentPayload splits one EncodeBlock payload into the RTP payloads
// that actually go on the wire. Only MP3 carries a documented
// MTU-fragmentation scheme (rtp_mpeg_audio_header's running offset);
// every other adapter's frame is small enough relative to a typical
// A2DP MTU to go out as a single RTP payload.
func fragmentPayload(kind codec.Kind, payload []byte, room int) [][]byte {
	if kind == codec.KindMP3 {
		return mp3.Fragment(payload, room)
	}
	return [][]byte{payload}
}

// codecChangeFilter adapts a pcmio.Filter to the "CODEC_CHANGE ->
// ESTALE, everything else -> keep waiting" contract every worker loop
// in this package shares.
func codecChangeFilter(sig pcmio.Signal) (consumed bool, err error) {
	if sig == pcmio.SigCodecChange {
		return true, pcmio.ErrESTALE
	}
	return true, nil
}

// runEncoder is the SOURCE-direction worker: poll the endpoint's PCM
// FIFO, encode each block, frame the payload in a bit-exact 12-byte
// RTP header (spec.md §6) — fragmenting across multiple packets first
// where the codec adapter calls for it — and write the result to the
// BT socket, paced by an asrs.Clock so output stays CBR even if the
// upstream client bursts. reinit is invoked in place of a restart when
// CODEC_CHANGE surfaces as pcmio.ErrESTALE, and returns the sample
// rate to re-latch the pacing clock and RTP timestamp base against
// (spec.md §4.10).
func runEncoder(ep *transport.Endpoint, btFD int, writeMTU int, kind codec.Kind, enc codec.Encoder, sampleRate uint32, reinit func(codec.Encoder) (uint32, error), onExit func(), log *slog.Logger) {
	defer close0(onExit)

	clock := asrs.New(sampleRate)
	pcmBuf := ffb.New[byte](pcmReadBufSize)
	out := make([]byte, 0, writeMTU)

	blockBytes := enc.InputBlockFrames() * 2 // stand-in quantizers pack 16-bit PCM at the FIFO boundary

	rtpOut := rtpstate.NewOutbound(sampleRate, sampleRate)
	talkspurtStart := true // marker bit on the first packet after start/reinit

	for {
		if ep.StoppingFlag().Load() {
			return
		}

		n, err := pcmio.PollAndReadPCM(ep.FIFOFd(), ep.ControlFd(), pcmBuf.TailIn(), pollTimeout, codecChangeFilter, ep.StoppingFlag())
		if err != nil {
			if errors.Is(err, pcmio.ErrStopping) {
				return
			}
			if errors.Is(err, pcmio.ErrESTALE) {
				pcmBuf.Rewind()
				if reinit != nil {
					rate, rerr := reinit(enc)
					if rerr != nil {
						log.Warn("encoder reinit failed", "error", rerr)
						return
					}
					clock.SetRate(rate)
					blockBytes = enc.InputBlockFrames() * 2
					rtpOut = rtpstate.NewOutbound(rate, rate)
					talkspurtStart = true
				}
				log.Info("encoder observed codec change, reinitialised in place")
				continue
			}
			log.Warn("encoder poll_and_read_pcm failed", "error", err)
			return
		}
		if n == 0 {
			continue
		}
		pcmBuf.Seek(n)

		for pcmBuf.LenOut() >= blockBytes {
			block := pcmBuf.Data()[:blockBytes]
			ep.FeedLevel(block)
			out = out[:0]
			blockFrames := enc.InputBlockFrames()
			payload, encErr := enc.EncodeBlock(block, out)
			pcmBuf.Shift(blockBytes)
			if encErr != nil {
				log.Warn("encode failed", "error", encErr)
				continue
			}
			if len(payload) == 0 {
				continue // e.g. FastStream buffering below its per-datagram threshold
			}

			fragments := fragmentPayload(kind, payload, writeMTU-rtpHeaderSize)
			for i, frag := range fragments {
				marker := false
				if len(fragments) > 1 {
					marker = i == len(fragments)-1 // mp3: marker only on the final fragment
				} else {
					marker = talkspurtStart
					talkspurtStart = false
				}
				pkt := rtpOut.NewFrame(frag, marker)
				wire, merr := pkt.Marshal()
				if merr != nil {
					log.Warn("rtp marshal failed", "error", merr)
					continue
				}
				if _, werr := writeFD(btFD, wire); werr != nil {
					log.Warn("bt socket write failed", "error", werr)
				}
			}
			rtpOut.Update(uint32(blockFrames))
			clock.Sync(uint64(blockFrames))
		}
	}
}

// runDecoder is the SINK-direction worker: poll the transport's BT
// socket, parse the bit-exact 12-byte RTP header off each datagram
// (spec.md §6), reassemble MTU-fragmented frames where the codec
// adapter calls for it, decode, and write the resulting PCM to the
// endpoint's FIFO (a local client or the mixer's capture fan-in).
// reinit mirrors runEncoder's CODEC_CHANGE handling; unlike the
// encoder side, pcmio has no poll_and_read_bt-plus-control-channel
// primitive (the BT socket carries no per-direction control signal of
// its own), so the decoder multiplexes the transport's BT fd against
// the endpoint's control fd directly via internal/ioctl.
func runDecoder(ep *transport.Endpoint, btFD int, kind codec.Kind, dec codec.Decoder, reinit func(codec.Decoder) error, onExit func(), log *slog.Logger) {
	defer close0(onExit)

	buf := make([]byte, btReadBufSize)
	out := make([]byte, 0, pcmReadBufSize)

	rtpIn := rtpstate.NewInbound()
	var reassembly []byte

	for {
		if ep.StoppingFlag().Load() {
			return
		}

		fds := []ioctl.PollFD{
			{FD: btFD, Events: ioctl.EventReadable},
			{FD: ep.ControlFd(), Events: ioctl.EventReadable},
		}
		nready, perr := ioctl.Poll(fds, pollTimeout)
		if perr != nil {
			log.Warn("decoder poll failed", "error", perr)
			return
		}
		if nready == 0 {
			continue
		}

		if fds[1].Revents&ioctl.EventReadable != 0 {
			var sigBuf [1]byte
			if _, rerr := unix.Read(ep.ControlFd(), sigBuf[:]); rerr == nil && pcmio.Signal(sigBuf[0]) == pcmio.SigCodecChange {
				if reinit != nil {
					if rerr := reinit(dec); rerr != nil {
						log.Warn("decoder reinit failed", "error", rerr)
						return
					}
				}
				rtpIn.Reset()
				reassembly = nil
				log.Info("decoder observed codec change, reinitialised in place")
			}
		}

		if fds[0].Revents&ioctl.EventReadable == 0 {
			continue
		}

		n, err := pcmio.PollAndReadBT(btFD, buf, 0, ep.StoppingFlag())
		if err != nil {
			if errors.Is(err, pcmio.ErrStopping) {
				return
			}
			log.Warn("decoder poll_and_read_bt failed", "error", err)
			return
		}
		if n == 0 {
			continue
		}

		var pkt rtp.Packet
		if perr := pkt.Unmarshal(buf[:n]); perr != nil {
			log.Warn("rtp unmarshal failed", "error", perr)
			continue
		}

		if missing := rtpIn.SyncStream(&pkt); missing < 0 {
			continue // stale, duplicate, or reordered packet
		} else if missing > 0 {
			log.Warn("rtp gap detected", "missing_frames", missing)
			out = out[:0]
			if pcm := dec.ConcealLost(missing, out); len(pcm) > 0 {
				ep.FeedLevel(pcm)
				if _, werr := ep.Write(pcm); werr != nil && !errors.Is(werr, transport.ErrShortWrite) {
					log.Warn("endpoint fifo write failed", "error", werr)
				}
			}
		}

		frame := pkt.Payload
		if kind == codec.KindMP3 {
			hdr, herr := mp3.UnpackMediaHeader(pkt.Payload)
			if herr != nil {
				log.Warn("mp3 media header parse failed", "error", herr)
				continue
			}
			body := pkt.Payload[mp3.MediaHeaderSize:]
			if int(hdr.Offset) != len(reassembly) {
				reassembly = nil // out-of-order fragment, drop what we had
			}
			reassembly = append(reassembly, body...)
			if !pkt.Marker {
				continue // more fragments to come before this frame is complete
			}
			frame = reassembly
			reassembly = nil
		}

		out = out[:0]
		pcm, decErr := dec.DecodeFrame(frame, out)
		if decErr != nil {
			log.Warn("decode failed, concealing", "error", decErr)
			pcm = dec.ConcealLost(1, out)
		}
		if len(pcm) == 0 {
			continue
		}
		ep.FeedLevel(pcm)
		if _, werr := ep.Write(pcm); werr != nil && !errors.Is(werr, transport.ErrShortWrite) {
			log.Warn("endpoint fifo write failed", "error", werr)
		}
	}
}

func close0(onExit func()) {
	if onExit != nil {
		onExit()
	}
}

// writeFD funnels every BT-socket write a worker performs through a
// package var so tests can substitute a fake socket without a real fd.
var writeFD = func(fd int, data []byte) (int, error) {
	n, err := unix.Write(fd, data)
	if err != nil {
		return n, fmt.Errorf("txmanager: bt socket write: %w", err)
	}
	return n, nil
}
