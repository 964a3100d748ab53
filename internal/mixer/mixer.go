package mixer

import (
	"log/slog"
	"sync"
	"time"
)

// Mixer is the multi-client PCM mixer that sits between local clients
// and a single transport endpoint, grounded on internal/media/mixer.go's
// ticker-driven mixLoop/mixCycle shape. Unlike the teacher's N-way
// conference mix (every participant hears everyone but themselves),
// this mixer runs two independent directions against one shared
// stream: playback fan-in (N clients summed into one encoder feed) and
// capture fan-out (one decoder feed copied to N clients).
type Mixer struct {
	logger *slog.Logger

	periodBytes int
	periods     int

	mu            sync.RWMutex
	playback      map[string]*Client
	capture       map[string]*Client
	activeCount   int
	stopped       bool
	mixDone       chan struct{}
	mixBuf        []int32 // shared summing buffer, periodBytes/2 samples wide
}

// NewMixer creates a mixer whose mix cycle operates on periodBytes of
// PCM at a time, pre-allocating periods-worth of client ring capacity
// (spec.md's "approximately 2 periods of pre-roll").
func NewMixer(logger *slog.Logger, periodBytes, periods int) *Mixer {
	return &Mixer{
		logger:      logger.With("subsystem", "pcm-mixer"),
		periodBytes: periodBytes,
		periods:     periods,
		playback:    make(map[string]*Client),
		capture:     make(map[string]*Client),
		mixBuf:      make([]int32, periodBytes/2),
	}
}

// AddPlaybackClient registers a new playback (fan-in) client with the
// pre-roll threshold of two periods, as the teacher's AddParticipant
// registers a new conference leg.
func (m *Mixer) AddPlaybackClient(id string) *Client {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := NewClient(id, m.periodBytes*m.periods, m.periodBytes*2, m.periodBytes)
	m.playback[id] = c
	return c
}

// AddCaptureClient registers a new capture (fan-out) client.
func (m *Mixer) AddCaptureClient(id string) *Client {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := NewClient(id, m.periodBytes*m.periods, 0, m.periodBytes)
	c.setState(ClientRunning)
	m.capture[id] = c
	return c
}

// RemovePlaybackClient removes a playback client, mirroring
// RemoveParticipant's delete-then-release shape.
func (m *Mixer) RemovePlaybackClient(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.playback, id)
}

// RemoveCaptureClient removes a capture client.
func (m *Mixer) RemoveCaptureClient(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.capture, id)
}

// ActivePlaybackCount returns the number of playback clients currently
// contributing to the mix (RUNNING, past their pre-roll threshold).
func (m *Mixer) ActivePlaybackCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, c := range m.playback {
		if c.State() == ClientRunning {
			n++
		}
	}
	return n
}

// MixPlayback performs one playback mix cycle: it sums every RUNNING
// client's next periodBytes of PCM (mix_add semantics) into dst,
// substituting silence for clients that underrun, and never blocking
// on a client that is still pre-buffering. This is the playback
// analogue of mixCycle's phase 1+2 (read-and-sum), generalised from
// N-1-per-listener to one shared sum feeding the encoder.
func (m *Mixer) MixPlayback(dst []int16) {
	m.mu.RLock()
	clients := make([]*Client, 0, len(m.playback))
	for _, c := range m.playback {
		clients = append(clients, c)
	}
	m.mu.RUnlock()

	for i := range m.mixBuf {
		m.mixBuf[i] = 0
	}

	n := len(dst)
	nbytes := n * 2
	for _, c := range clients {
		if c.State() != ClientRunning {
			continue
		}
		data, underrun := c.ReadForMix(nbytes)
		if underrun {
			m.logger.Debug("playback client underrun, padding with silence", "client_id", c.ID)
		}
		for i := 0; i+1 < len(data); i += 2 {
			v := int16(uint16(data[i]) | uint16(data[i+1])<<8)
			m.mixBuf[i/2] += int32(v)
		}
		// underrun is not fatal: the cycle still advances with the
		// zero-padded remainder acting as silence.
	}

	for i := 0; i < n; i++ {
		v := m.mixBuf[i]
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		dst[i] = int16(v)
	}
}

// FanOutCapture copies decoded PCM to every capture client, skipping
// PAUSED clients entirely (spec.md: "paused clients receive nothing"),
// the capture-side analogue of the teacher's per-participant send in
// mixCycle's phase 3.
func (m *Mixer) FanOutCapture(pcm []byte) {
	m.mu.RLock()
	clients := make([]*Client, 0, len(m.capture))
	for _, c := range m.capture {
		clients = append(clients, c)
	}
	m.mu.RUnlock()

	for _, c := range clients {
		if c.State() == ClientPaused {
			continue
		}
		if _, short := c.FanOutWrite(pcm); short {
			m.logger.Debug("capture client fan-out short write, will retry next cycle", "client_id", c.ID)
		}
	}
}

// Start begins the mixer's background tick loop, invoking onTick once
// per period at the given interval; the caller supplies the actual
// playback/encode/capture work so the mixer stays codec-agnostic, the
// same separation of concerns as the teacher's mixLoop calling back
// into mixCycle.
func (m *Mixer) Start(periodDuration time.Duration, onTick func()) {
	m.mu.Lock()
	m.stopped = false
	m.mixDone = make(chan struct{})
	done := m.mixDone
	m.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(periodDuration)
		defer ticker.Stop()
		for range ticker.C {
			m.mu.RLock()
			stopped := m.stopped
			m.mu.RUnlock()
			if stopped {
				return
			}
			onTick()
		}
	}()
}

// Stop halts the tick loop and waits for it to exit.
func (m *Mixer) Stop() {
	m.mu.Lock()
	m.stopped = true
	done := m.mixDone
	m.mu.Unlock()
	if done != nil {
		<-done
	}
}
