// Package codec defines the narrow interface every codec adapter
// (spec.md C8) implements, plus a name-keyed registry the transport
// manager uses to select an adapter pair from a negotiated
// (profile, codec) pair.
//
// Each vendor codec library is treated as an opaque external capability
// (spec.md §9): the adapter owns codec-specific framing (RTP media
// headers, H2 prefixes, fragmentation, frame counting) and calls
// through Encoder/Decoder only for the actual PCM<->bitstream
// transform. None of the twelve vendor libraries this module targets
// (SBC, mSBC, LC3, MP3, AAC, aptX, aptX-HD, LDAC, LHDC, Opus, G.722,
// CVSD passthrough) ship as pure-Go packages reachable from this
// workspace, so each adapter's transform is a small Go-native
// quantizer/framer built the way the teacher hand-rolls its own G.711
// mu-law/a-law tables in internal/media/mixer.go, rather than a cgo
// binding — the wire contract (frame sizes, header bytes, RTP/H2
// framing, delay figures) matches spec.md literally; the bit-exactness
// of the compressed payload against a real vendor encoder does not,
// since no such library is available to bind against.
package codec

import "fmt"

// Kind names one of the twelve supported codec families.
type Kind string

const (
	KindSBC        Kind = "sbc"
	KindMSBC       Kind = "msbc"
	KindLC3SWB     Kind = "lc3-swb"
	KindCVSD       Kind = "cvsd"
	KindMP3        Kind = "mp3"
	KindAAC        Kind = "aac"
	KindAptX       Kind = "aptx"
	KindAptXHD     Kind = "aptx-hd"
	KindLDAC       Kind = "ldac"
	KindLHDC       Kind = "lhdc"
	KindFastStream Kind = "faststream"
	KindOpus       Kind = "opus"
	KindG722       Kind = "g722"
)

// PCMFormat describes the working PCM representation an adapter reads
// from (encoder) or writes to (decoder) its endpoint's FFB.
type PCMFormat int

const (
	PCMS16LE PCMFormat = iota
	PCMS24LE
	PCMS32LE
)

// BytesPerSample returns the wire width of one PCM sample in this
// format.
func (f PCMFormat) BytesPerSample() int {
	switch f {
	case PCMS16LE:
		return 2
	case PCMS24LE:
		return 3
	case PCMS32LE:
		return 4
	default:
		return 2
	}
}

// Config is the parsed, codec-agnostic subset of a transport's agreed
// configuration blob. Adapters that need more (bit-pool, EQMID, LHDC
// version) parse ConfigBlob themselves in Init.
type Config struct {
	SampleRate int
	Channels   int
	ConfigBlob []byte
}

// Encoder is the per-codec PCM-to-bitstream transform. One instance is
// bound to one encode_worker (spec.md §4.8); Init is called once, and
// Reinit on every ESTALE codec renegotiation.
type Encoder interface {
	// Init (re)configures the encoder from cfg and the agreed write
	// MTU, discarding any buffered state.
	Init(cfg Config, writeMTU int) error
	// Reinit reconfigures in place without losing the adapter's RTP
	// sequence/timestamp state (only the codec handle is rebuilt).
	Reinit(cfg Config) error
	// InputBlockFrames is the number of PCM frames EncodeBlock expects
	// per call (spec.md's codec_input_block).
	InputBlockFrames() int
	// EncodeBlock consumes exactly InputBlockFrames() PCM frames from
	// pcm and appends one codec frame's bitstream bytes to dst,
	// returning the extended slice.
	EncodeBlock(pcm []byte, dst []byte) ([]byte, error)
	// IntrinsicDelayFrames reports the codec's algorithmic delay in PCM
	// frames, for the endpoint's delay report (spec.md §6).
	IntrinsicDelayFrames() int
	// Free releases codec-handle resources. Idempotent.
	Free()
}

// Decoder is the per-codec bitstream-to-PCM transform.
type Decoder interface {
	Init(cfg Config, readMTU int) error
	Reinit(cfg Config) error
	// DecodeFrame decodes exactly one codec frame from payload and
	// appends the resulting PCM bytes to dst, returning the extended
	// slice.
	DecodeFrame(payload []byte, dst []byte) ([]byte, error)
	// ConcealLost synthesizes replacement PCM for n consecutive lost
	// frames (packet-loss concealment), appended to dst. Codecs
	// without PLC support (spec.md names LC3-SWB explicitly) return
	// silence.
	ConcealLost(n int, dst []byte) []byte
	Free()
}

// Pair bundles the encoder and decoder constructors for one codec
// kind; FastStream and HFP's mSBC both need both directions wired
// into one transport, the rest need only one.
type Pair struct {
	NewEncoder func() Encoder
	NewDecoder func() Decoder
}

var registry = map[Kind]Pair{}

// Register adds a codec pair to the registry. Called from each codec
// subpackage's init().
func Register(kind Kind, pair Pair) {
	registry[kind] = pair
}

// Lookup returns the registered pair for kind.
func Lookup(kind Kind) (Pair, error) {
	p, ok := registry[kind]
	if !ok {
		return Pair{}, fmt.Errorf("codec: unknown codec %q", kind)
	}
	return p, nil
}
