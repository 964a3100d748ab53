// Package metrics implements the Prometheus collector exposing
// per-transport and per-worker audio engine counters: bytes/packets
// moved, xruns, ABR quality level, and BT socket queue depth.
//
// Grounded on flowpbx-flowpbx's own internal/metrics package: a
// provider-interface-per-concern design (the collector never reaches
// into concrete types, only small interfaces a transport manager
// implements) and a single Collect() querying every provider at
// scrape time rather than keeping its own counters.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// TransportStatsEntry is one transport's point-in-time counters.
type TransportStatsEntry struct {
	LogicalPath string
	RemoteAddr  string
	Profile     string
	Codec       string
	State       string

	BytesEncoded uint64
	BytesDecoded uint64
	FramesSent   uint64
	FramesRecv   uint64

	XRuns int64

	// QueuedOutputBytes is the last TIOCOUTQ sample for the transport's
	// BT socket, the send-side backpressure signal spec.md's CBR pacer
	// watches.
	QueuedOutputBytes int

	// PeakDB and RMSDB are the transport endpoint's most recently
	// flushed audio level, in dBFS, from internal/transport.LevelMeter.
	// Both report -120 (silence floor) before the first window flushes.
	PeakDB float64
	RMSDB  float64
}

// TransportStatsProvider exposes a snapshot of every live transport's
// counters, analogous to the teacher's RTPStatsProvider but scoped to
// one BT transport instead of one RTP session.
type TransportStatsProvider interface {
	TransportStats() []TransportStatsEntry
}

// ABRStatusEntry is one transport's adaptive-bitrate state, relevant
// only to codecs that support it (LDAC in this engine).
type ABRStatusEntry struct {
	LogicalPath string
	EQMID       int // 0 (highest) .. N (lowest); see internal/codec/ldac.EQMID
}

// ABRStatusProvider exposes the current ABR quality level per
// transport.
type ABRStatusProvider interface {
	ABRStatus() []ABRStatusEntry
}

// MixerStatsProvider exposes the mixer's client counts.
type MixerStatsProvider interface {
	ActiveMixerCount() int
	ActivePlaybackClients() int
	ActiveCaptureClients() int
}

// Collector is a prometheus.Collector gathering this engine's metrics
// at scrape time; every provider may be nil if that subsystem is not
// wired up (e.g. running without a mixer).
type Collector struct {
	transports TransportStatsProvider
	abr        ABRStatusProvider
	mixer      MixerStatsProvider
	startTime  time.Time

	bytesEncodedDesc    *prometheus.Desc
	bytesDecodedDesc    *prometheus.Desc
	framesSentDesc      *prometheus.Desc
	framesRecvDesc      *prometheus.Desc
	xrunsDesc           *prometheus.Desc
	queuedOutputDesc    *prometheus.Desc
	transportStateDesc  *prometheus.Desc
	levelPeakDesc       *prometheus.Desc
	levelRMSDesc        *prometheus.Desc
	abrQualityDesc      *prometheus.Desc
	mixersActiveDesc    *prometheus.Desc
	playbackClientsDesc *prometheus.Desc
	captureClientsDesc  *prometheus.Desc
	uptimeDesc          *prometheus.Desc
}

// NewCollector creates a metrics collector. Any provider may be nil.
func NewCollector(transports TransportStatsProvider, abr ABRStatusProvider, mixer MixerStatsProvider, startTime time.Time) *Collector {
	transportLabels := []string{"path", "remote_addr", "profile", "codec"}
	return &Collector{
		transports: transports,
		abr:        abr,
		mixer:      mixer,
		startTime:  startTime,

		bytesEncodedDesc: prometheus.NewDesc(
			"bluealsa_transport_bytes_encoded_total",
			"Total PCM bytes encoded and written to the BT socket for this transport",
			transportLabels, nil,
		),
		bytesDecodedDesc: prometheus.NewDesc(
			"bluealsa_transport_bytes_decoded_total",
			"Total codec bytes decoded from the BT socket for this transport",
			transportLabels, nil,
		),
		framesSentDesc: prometheus.NewDesc(
			"bluealsa_transport_frames_sent_total",
			"Total codec frames written to the BT socket for this transport",
			transportLabels, nil,
		),
		framesRecvDesc: prometheus.NewDesc(
			"bluealsa_transport_frames_received_total",
			"Total codec frames read from the BT socket for this transport",
			transportLabels, nil,
		),
		xrunsDesc: prometheus.NewDesc(
			"bluealsa_transport_xruns_total",
			"Total underrun/overrun events observed on this transport's PCM path",
			transportLabels, nil,
		),
		queuedOutputDesc: prometheus.NewDesc(
			"bluealsa_transport_queued_output_bytes",
			"Last TIOCOUTQ sample for this transport's BT socket send buffer",
			transportLabels, nil,
		),
		transportStateDesc: prometheus.NewDesc(
			"bluealsa_transport_state",
			"Transport lifecycle state (1=IDLE, 2=PENDING, 3=ACTIVE, 4=PAUSED, 5=RELEASING)",
			append(transportLabels, "state"), nil,
		),
		levelPeakDesc: prometheus.NewDesc(
			"bluealsa_transport_level_peak_dbfs",
			"Most recently flushed peak audio level for this transport, in dBFS",
			transportLabels, nil,
		),
		levelRMSDesc: prometheus.NewDesc(
			"bluealsa_transport_level_rms_dbfs",
			"Most recently flushed RMS audio level for this transport, in dBFS",
			transportLabels, nil,
		),
		abrQualityDesc: prometheus.NewDesc(
			"bluealsa_transport_abr_eqmid",
			"Current ABR quality level for codecs that support it (lower is higher quality)",
			[]string{"path"}, nil,
		),
		mixersActiveDesc: prometheus.NewDesc(
			"bluealsa_mixers_active",
			"Number of active PCM mixers",
			nil, nil,
		),
		playbackClientsDesc: prometheus.NewDesc(
			"bluealsa_mixer_playback_clients_active",
			"Number of playback clients currently contributing to a mix",
			nil, nil,
		),
		captureClientsDesc: prometheus.NewDesc(
			"bluealsa_mixer_capture_clients_active",
			"Number of capture clients currently receiving decoded audio",
			nil, nil,
		),
		uptimeDesc: prometheus.NewDesc(
			"bluealsa_uptime_seconds",
			"Seconds since the engine process started",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.bytesEncodedDesc
	ch <- c.bytesDecodedDesc
	ch <- c.framesSentDesc
	ch <- c.framesRecvDesc
	ch <- c.xrunsDesc
	ch <- c.queuedOutputDesc
	ch <- c.transportStateDesc
	ch <- c.levelPeakDesc
	ch <- c.levelRMSDesc
	ch <- c.abrQualityDesc
	ch <- c.mixersActiveDesc
	ch <- c.playbackClientsDesc
	ch <- c.captureClientsDesc
	ch <- c.uptimeDesc
}

// stateOrdinal maps a transport's textual FSM state to the integer
// spec.md's transport_state metric reports (see the metric's help
// text for the mapping); unrecognised states report 0.
func stateOrdinal(state string) float64 {
	switch state {
	case "IDLE":
		return 1
	case "PENDING":
		return 2
	case "ACTIVE":
		return 3
	case "PAUSED":
		return 4
	case "RELEASING":
		return 5
	default:
		return 0
	}
}

// Collect implements prometheus.Collector. It queries every provider
// at scrape time rather than keeping its own counters, matching the
// teacher's own Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.transports != nil {
		for _, e := range c.transports.TransportStats() {
			labels := []string{e.LogicalPath, e.RemoteAddr, e.Profile, e.Codec}

			ch <- prometheus.MustNewConstMetric(c.bytesEncodedDesc, prometheus.CounterValue, float64(e.BytesEncoded), labels...)
			ch <- prometheus.MustNewConstMetric(c.bytesDecodedDesc, prometheus.CounterValue, float64(e.BytesDecoded), labels...)
			ch <- prometheus.MustNewConstMetric(c.framesSentDesc, prometheus.CounterValue, float64(e.FramesSent), labels...)
			ch <- prometheus.MustNewConstMetric(c.framesRecvDesc, prometheus.CounterValue, float64(e.FramesRecv), labels...)
			ch <- prometheus.MustNewConstMetric(c.xrunsDesc, prometheus.CounterValue, float64(e.XRuns), labels...)
			ch <- prometheus.MustNewConstMetric(c.queuedOutputDesc, prometheus.GaugeValue, float64(e.QueuedOutputBytes), labels...)
			ch <- prometheus.MustNewConstMetric(c.transportStateDesc, prometheus.GaugeValue, stateOrdinal(e.State), append(labels, e.State)...)
			ch <- prometheus.MustNewConstMetric(c.levelPeakDesc, prometheus.GaugeValue, e.PeakDB, labels...)
			ch <- prometheus.MustNewConstMetric(c.levelRMSDesc, prometheus.GaugeValue, e.RMSDB, labels...)
		}
	}

	if c.abr != nil {
		for _, e := range c.abr.ABRStatus() {
			ch <- prometheus.MustNewConstMetric(c.abrQualityDesc, prometheus.GaugeValue, float64(e.EQMID), e.LogicalPath)
		}
	}

	if c.mixer != nil {
		ch <- prometheus.MustNewConstMetric(c.mixersActiveDesc, prometheus.GaugeValue, float64(c.mixer.ActiveMixerCount()))
		ch <- prometheus.MustNewConstMetric(c.playbackClientsDesc, prometheus.GaugeValue, float64(c.mixer.ActivePlaybackClients()))
		ch <- prometheus.MustNewConstMetric(c.captureClientsDesc, prometheus.GaugeValue, float64(c.mixer.ActiveCaptureClients()))
	}

	ch <- prometheus.MustNewConstMetric(c.uptimeDesc, prometheus.GaugeValue, time.Since(c.startTime).Seconds())
}
