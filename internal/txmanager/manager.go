package txmanager

import (
	"fmt"
	"log/slog"
	"sync"

	"bluealsa-go/internal/codec"
	"bluealsa-go/internal/transport"
)

// direction returns which codec roles a profile needs running, mirroring
// spec.md §4.8's "one encoder worker per SOURCE+encoder endpoint, one
// decoder worker per SINK+decoder endpoint, both directions for
// FastStream" rule.
type direction int

const (
	dirEncodeOnly direction = iota
	dirDecodeOnly
	dirBoth
)

func directionFor(profile transport.Profile, kind codec.Kind) direction {
	if kind == codec.KindFastStream {
		return dirBoth
	}
	switch profile {
	case transport.ProfileA2DPSource:
		return dirEncodeOnly
	case transport.ProfileA2DPSink:
		return dirDecodeOnly
	case transport.ProfileHFPAudioGateway, transport.ProfileHFPHandsFree,
		transport.ProfileHSPAudioGateway, transport.ProfileHSPHeadset:
		return dirBoth
	default:
		return dirEncodeOnly
	}
}

// session is one transport's spawned worker set.
type session struct {
	tr  *transport.Transport
	enc codec.Encoder
	dec codec.Decoder

	wg sync.WaitGroup
}

// Manager selects codec adapters from the shared registry and spawns
// exactly the workers each transport's profile and negotiated codec
// require, tracking their lifecycle through Release. Grounded on
// internal/media/lifecycle.go's MediaSession, which performs the same
// allocate-state/start-relay/stop/release sequencing for one RTP
// session instead of one BT transport.
type Manager struct {
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]*session // keyed by transport.LogicalPath
}

// NewManager creates an empty transport manager.
func NewManager(logger *slog.Logger) *Manager {
	return &Manager{
		logger:   logger.With("subsystem", "txmanager"),
		sessions: make(map[string]*session),
	}
}

// Start selects the codec pair registered for tr's negotiated codec
// and spawns the encoder and/or decoder workers the transport's
// profile requires. The encoder reads PCM from tr.Main; the decoder
// writes PCM to tr.Main, or to tr.Back when the profile is
// bidirectional.
func (mgr *Manager) Start(tr *transport.Transport) error {
	kind := codec.Kind(tr.CodecName)
	pair, err := codec.Lookup(kind)
	if err != nil {
		return fmt.Errorf("txmanager: starting transport %s: %w", tr.LogicalPath, err)
	}

	dir := directionFor(tr.Profile, kind)
	sess := &session{tr: tr}

	readMTU, writeMTU := tr.MTUs()
	cfg := codec.Config{ConfigBlob: tr.ConfigBlob}

	if dir == dirEncodeOnly || dir == dirBoth {
		if tr.Main == nil {
			return fmt.Errorf("txmanager: transport %s has no Main endpoint for encoder", tr.LogicalPath)
		}
		enc := pair.NewEncoder()
		if ierr := enc.Init(cfg, writeMTU); ierr != nil {
			return fmt.Errorf("txmanager: encoder init: %w", ierr)
		}
		sess.enc = enc

		sess.wg.Add(1)
		go runEncoder(tr.Main, tr.FD(), writeMTU, kind, enc, uint32(tr.Main.Rate), mgr.reinitEncoder(tr, pair), sess.wg.Done, mgr.logger)
	}

	if dir == dirDecodeOnly || dir == dirBoth {
		ep := tr.Main
		if dir == dirBoth {
			ep = tr.Back
		}
		if ep == nil {
			return fmt.Errorf("txmanager: transport %s has no endpoint for decoder", tr.LogicalPath)
		}
		dec := pair.NewDecoder()
		if ierr := dec.Init(cfg, readMTU); ierr != nil {
			return fmt.Errorf("txmanager: decoder init: %w", ierr)
		}
		sess.dec = dec

		sess.wg.Add(1)
		go runDecoder(ep, tr.FD(), kind, dec, mgr.reinitDecoder(tr, pair), sess.wg.Done, mgr.logger)
	}

	mgr.mu.Lock()
	mgr.sessions[tr.LogicalPath] = sess
	mgr.mu.Unlock()

	mgr.logger.Info("transport workers started", "path", tr.LogicalPath, "codec", kind, "direction", dir)
	return nil
}

// reinitEncoder builds the ESTALE-path callback an encoder worker
// invokes once it observes CODEC_CHANGE: read the transport's current
// (possibly just-renegotiated) codec config and reinitialise the
// existing encoder instance in place.
func (mgr *Manager) reinitEncoder(tr *transport.Transport, pair codec.Pair) func(codec.Encoder) (uint32, error) {
	return func(enc codec.Encoder) (uint32, error) {
		cfg := codec.Config{ConfigBlob: tr.ConfigBlob}
		if err := enc.Reinit(cfg); err != nil {
			return 0, err
		}
		rate := uint32(44100)
		if tr.Main != nil {
			rate = tr.Main.Rate
		}
		return rate, nil
	}
}

// reinitDecoder is the decoder-side analogue of reinitEncoder.
func (mgr *Manager) reinitDecoder(tr *transport.Transport, pair codec.Pair) func(codec.Decoder) error {
	return func(dec codec.Decoder) error {
		cfg := codec.Config{ConfigBlob: tr.ConfigBlob}
		return dec.Reinit(cfg)
	}
}

// Stop signals the transport's workers to stop cooperatively (via the
// endpoint's stopping flag, set by Transport.Release/Endpoint.Stop)
// and waits for them to exit, then frees the codec handles and drops
// the session — the transport-manager half of spec.md §3's
// cooperative-cancel-then-join rule.
func (mgr *Manager) Stop(logicalPath string) error {
	mgr.mu.Lock()
	sess, ok := mgr.sessions[logicalPath]
	if ok {
		delete(mgr.sessions, logicalPath)
	}
	mgr.mu.Unlock()

	if !ok {
		return fmt.Errorf("txmanager: no session for transport %q", logicalPath)
	}

	sess.wg.Wait()

	if sess.enc != nil {
		sess.enc.Free()
	}
	if sess.dec != nil {
		sess.dec.Free()
	}

	mgr.logger.Info("transport workers stopped", "path", logicalPath)
	return nil
}

// Count returns the number of transports with live workers.
func (mgr *Manager) Count() int {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	return len(mgr.sessions)
}
