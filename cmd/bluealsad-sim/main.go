// Command bluealsad-sim is a standalone harness for the transport
// engine: it wires a transport manager to the test double BT
// transport (internal/bttest) and a synthetic PCM source/sink, in the
// shape of the teacher's cmd/flowpbx/main.go (config, then logger,
// then the component graph, then signal-driven shutdown). There is no
// real Bluetooth adapter or ALSA client on the other end of either
// socket; this binary exists to exercise the engine end-to-end.
package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bluealsa-go/internal/bttest"
	"bluealsa-go/internal/codec"
	"bluealsa-go/internal/config"
	"bluealsa-go/internal/metrics"
	"bluealsa-go/internal/mixer"
	"bluealsa-go/internal/transport"
	"bluealsa-go/internal/txmanager"

	_ "bluealsa-go/internal/codec/aac"
	_ "bluealsa-go/internal/codec/aptx"
	_ "bluealsa-go/internal/codec/cvsd"
	_ "bluealsa-go/internal/codec/faststream"
	_ "bluealsa-go/internal/codec/g722"
	_ "bluealsa-go/internal/codec/lc3swb"
	_ "bluealsa-go/internal/codec/ldac"
	_ "bluealsa-go/internal/codec/lhdc"
	_ "bluealsa-go/internal/codec/mp3"
	_ "bluealsa-go/internal/codec/msbc"
	_ "bluealsa-go/internal/codec/opus"
	_ "bluealsa-go/internal/codec/sbc"
)

const simTransportPath = "/sim/transport0"

func profileFromString(s string) transport.Profile {
	switch s {
	case "a2dp-sink":
		return transport.ProfileA2DPSink
	case "hfp-ag":
		return transport.ProfileHFPAudioGateway
	case "hfp-hf":
		return transport.ProfileHFPHandsFree
	case "hsp-ag":
		return transport.ProfileHSPAudioGateway
	case "hsp-hs":
		return transport.ProfileHSPHeadset
	default:
		return transport.ProfileA2DPSource
	}
}

func bidirectional(profile transport.Profile, kind codec.Kind) bool {
	if kind == codec.KindFastStream {
		return true
	}
	switch profile {
	case transport.ProfileHFPAudioGateway, transport.ProfileHFPHandsFree,
		transport.ProfileHSPAudioGateway, transport.ProfileHSPHeadset:
		return true
	default:
		return false
	}
}

func encodes(profile transport.Profile, kind codec.Kind) bool {
	return bidirectional(profile, kind) || profile == transport.ProfileA2DPSource
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(cfg.SlogHandler(os.Stdout))
	slog.SetDefault(logger)

	slog.Info("starting bluealsad-sim",
		"profile", cfg.Profile,
		"codec", cfg.Codec,
		"sample_rate", cfg.SampleRate,
		"channels", cfg.Channels,
		"multi_client", cfg.MultiClient,
	)

	kind := codec.Kind(cfg.Codec)
	profile := profileFromString(cfg.Profile)
	biDi := bidirectional(profile, kind)
	doesEncode := encodes(profile, kind)

	bt, err := bttest.NewPair()
	if err != nil {
		slog.Error("failed to create test BT socket pair", "error", err)
		os.Exit(1)
	}
	defer bt.Close()

	mainFIFO, sourceOrSink, err := os.Pipe()
	if err != nil {
		slog.Error("failed to create main fifo", "error", err)
		os.Exit(1)
	}
	// For an encoding Main endpoint the app writes into the FIFO and the
	// engine reads from it; for a decoding Main endpoint it's the
	// reverse. os.Pipe()'s two ends are fixed (read, write), so swap
	// which end the endpoint owns based on direction.
	var mainEndpointFd, mainAppFd *os.File
	if doesEncode {
		mainEndpointFd, mainAppFd = mainFIFO, sourceOrSink
	} else {
		mainEndpointFd, mainAppFd = sourceOrSink, mainFIFO
	}
	defer mainEndpointFd.Close()
	defer mainAppFd.Close()

	var backEndpointFd, backAppFd *os.File
	if biDi {
		backRead, backWrite, berr := os.Pipe()
		if berr != nil {
			slog.Error("failed to create back fifo", "error", berr)
			os.Exit(1)
		}
		// Main always carries the encode direction in this harness's
		// bidirectional profiles; Back always carries decode, so (unlike
		// Main) the engine owns the write end and the app reads from it.
		backEndpointFd, backAppFd = backWrite, backRead
		defer backEndpointFd.Close()
		defer backAppFd.Close()
	}

	tr := transport.New("AA:BB:CC:DD:EE:FF", simTransportPath, profile, string(kind), nil, logger)
	if err := tr.Open(); err != nil {
		slog.Error("failed to open transport", "error", err)
		os.Exit(1)
	}
	if err := tr.Acquire(int(bt.Local.Fd()), cfg.ReadMTU, cfg.WriteMTU); err != nil {
		slog.Error("failed to acquire transport", "error", err)
		os.Exit(1)
	}

	mainDir := transport.DirectionCapture
	if doesEncode {
		mainDir = transport.DirectionPlayback
	}
	mainEP, err := transport.NewEndpoint(mainDir, transport.FormatS16LE, cfg.Channels, channelMap(cfg.Channels), uint32(cfg.SampleRate), int(mainEndpointFd.Fd()), logger)
	if err != nil {
		slog.Error("failed to create main endpoint", "error", err)
		os.Exit(1)
	}
	tr.Main = mainEP

	if biDi {
		backEP, err := transport.NewEndpoint(transport.DirectionCapture, transport.FormatS16LE, cfg.Channels, channelMap(cfg.Channels), uint32(cfg.SampleRate), int(backEndpointFd.Fd()), logger)
		if err != nil {
			slog.Error("failed to create back endpoint", "error", err)
			os.Exit(1)
		}
		tr.Back = backEP
	}

	txMgr := txmanager.NewManager(logger)
	if err := txMgr.Start(tr); err != nil {
		slog.Error("failed to start transport workers", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var mixMgr *mixer.Manager
	if cfg.MultiClient && doesEncode {
		periodBytes := cfg.SampleRate * cfg.Channels * 2 * cfg.MixerPeriodMS / 1000
		mixMgr = mixer.NewManager(logger, time.Duration(cfg.MixerPeriodMS)*time.Millisecond, periodBytes, 8)
		mx := mixMgr.Acquire(tr.LogicalPath, func(m *mixer.Mixer) {
			buf := make([]int16, periodBytes/2)
			m.MixPlayback(buf)
			writePCM(mainAppFd, buf)
		})
		runSyntheticMixClients(ctx, mx, cfg)
	} else if doesEncode {
		go runSyntheticSource(ctx, mainAppFd, cfg)
	}

	if biDi || !doesEncode {
		sinkFd := backAppFd
		if !doesEncode {
			sinkFd = mainAppFd
		}
		go runSyntheticSink(ctx, sinkFd, logger)
	}

	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(metrics.NewCollector(
			&transportStatsAdapter{tr: tr},
			nil,
			mixerStatsAdapter{mgr: mixMgr},
			time.Now(),
		))
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		metricsSrv = &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		go func() {
			slog.Info("metrics server listening", "addr", cfg.MetricsAddr)
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("metrics server error", "error", err)
			}
		}()
	}

	<-ctx.Done()
	slog.Info("shutting down")

	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		metricsSrv.Shutdown(shutdownCtx)
		cancel()
	}
	if mixMgr != nil {
		mixMgr.Release(tr.LogicalPath)
	}
	if err := tr.Release(); err != nil {
		slog.Error("transport release error", "error", err)
	}
	if err := txMgr.Stop(tr.LogicalPath); err != nil {
		slog.Error("transport manager stop error", "error", err)
	}
	slog.Info("shutdown complete")
}

func channelMap(channels int) []string {
	if channels >= 2 {
		return []string{"FL", "FR"}
	}
	return []string{"FC"}
}

// runSyntheticSource feeds a continuous sine wave into the encode path
// until ctx is cancelled, paced so the FIFO never runs too far ahead.
func runSyntheticSource(ctx context.Context, w *os.File, cfg *config.Config) {
	const periodMS = 20
	frames := cfg.SampleRate * periodMS / 1000
	buf := make([]int16, frames*cfg.Channels)
	var phase float64
	step := 2 * math.Pi * 440 / float64(cfg.SampleRate)

	ticker := time.NewTicker(periodMS * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for i := 0; i < frames; i++ {
				sample := int16(8000 * math.Sin(phase))
				phase += step
				for ch := 0; ch < cfg.Channels; ch++ {
					buf[i*cfg.Channels+ch] = sample
				}
			}
			writePCM(w, buf)
		}
	}
}

// runSyntheticSink drains decoded PCM so the decode path never blocks
// on a full FIFO, discarding the audio (there is no real speaker).
func runSyntheticSink(ctx context.Context, r *os.File, logger *slog.Logger) {
	buf := make([]byte, 8192)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		r.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		if _, err := r.Read(buf); err != nil {
			continue
		}
	}
}

// runSyntheticMixClients demonstrates the N-way mixer by registering
// two synthetic playback clients at different tones. The mixer's tick
// loop is already running (mixer.Manager.Acquire starts it); this only
// attaches clients that feed it.
func runSyntheticMixClients(ctx context.Context, mx *mixer.Mixer, cfg *config.Config) {
	tones := []struct {
		id   string
		freq float64
	}{
		{"sim-client-a", 440},
		{"sim-client-b", 660},
	}
	for _, tone := range tones {
		c := mx.AddPlaybackClient(tone.id)
		go func(c *mixer.Client, freq float64) {
			const periodMS = 10
			frames := cfg.SampleRate * periodMS / 1000
			buf := make([]int16, frames*cfg.Channels)
			var phase float64
			step := 2 * math.Pi * freq / float64(cfg.SampleRate)
			ticker := time.NewTicker(periodMS * time.Millisecond)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					for i := 0; i < frames; i++ {
						sample := int16(4000 * math.Sin(phase))
						phase += step
						for ch := 0; ch < cfg.Channels; ch++ {
							buf[i*cfg.Channels+ch] = sample
						}
					}
					raw := make([]byte, len(buf)*2)
					for i, s := range buf {
						binary.LittleEndian.PutUint16(raw[i*2:], uint16(s))
					}
					c.Write(raw)
				}
			}
		}(c, tone.freq)
	}
}

func writePCM(w *os.File, samples []int16) {
	raw := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(raw[i*2:], uint16(s))
	}
	w.Write(raw)
}

// transportStatsAdapter exposes the one simulated transport's coarse
// state to the metrics collector; this harness does not keep byte/xrun
// counters itself so those fields report zero rather than invented
// values.
type transportStatsAdapter struct {
	tr *transport.Transport
}

func (a *transportStatsAdapter) TransportStats() []metrics.TransportStatsEntry {
	peakDB, rmsDB := -120.0, -120.0
	if a.tr.Main != nil && a.tr.Main.Level != nil {
		peakDB, rmsDB = a.tr.Main.Level.Snapshot()
	}
	return []metrics.TransportStatsEntry{{
		LogicalPath:       a.tr.LogicalPath,
		RemoteAddr:        a.tr.RemoteAddr,
		Profile:           profileName(a.tr.Profile),
		Codec:             a.tr.CodecName,
		State:             a.tr.State().String(),
		QueuedOutputBytes: a.tr.BaselineQueuedBytes(),
		PeakDB:            peakDB,
		RMSDB:             rmsDB,
	}}
}

func profileName(p transport.Profile) string {
	switch p {
	case transport.ProfileA2DPSource:
		return "a2dp-source"
	case transport.ProfileA2DPSink:
		return "a2dp-sink"
	case transport.ProfileHFPAudioGateway:
		return "hfp-ag"
	case transport.ProfileHFPHandsFree:
		return "hfp-hf"
	case transport.ProfileHSPAudioGateway:
		return "hsp-ag"
	case transport.ProfileHSPHeadset:
		return "hsp-hs"
	default:
		return "unknown"
	}
}

type mixerStatsAdapter struct {
	mgr *mixer.Manager
}

func (a mixerStatsAdapter) ActiveMixerCount() int {
	if a.mgr == nil {
		return 0
	}
	return a.mgr.Count()
}

func (a mixerStatsAdapter) ActivePlaybackClients() int {
	if a.mgr == nil {
		return 0
	}
	mx, ok := a.mgr.Get(simTransportPath)
	if !ok {
		return 0
	}
	return mx.ActivePlaybackCount()
}

func (a mixerStatsAdapter) ActiveCaptureClients() int {
	return 0
}
