package mixer

import (
	"encoding/binary"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func putPCM16(buf []byte, samples []int16) {
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
}

func TestMixPlaybackSumsActiveClients(t *testing.T) {
	m := NewMixer(testLogger(), 8, 4) // 8 bytes = 4 samples per period
	c1 := m.AddPlaybackClient("c1")
	c2 := m.AddPlaybackClient("c2")

	buf := make([]byte, 8)
	putPCM16(buf, []int16{100, 100, 100, 100})
	c1.Write(buf) // crosses 0 pre-roll (threshold 2*periodBytes=16... need two writes)
	c1.Write(buf)
	c2.Write(buf)
	c2.Write(buf)

	assert.Equal(t, ClientRunning, c1.State(), "c1 should be RUNNING after pre-roll")
	assert.Equal(t, ClientRunning, c2.State(), "c2 should be RUNNING after pre-roll")

	dst := make([]int16, 4)
	m.MixPlayback(dst)
	want := []int16{200, 200, 200, 200} // sum of two 100-sample clients, N-way
	assert.Equal(t, want, dst)
}

func TestMixPlaybackIgnoresPreBufferingClient(t *testing.T) {
	m := NewMixer(testLogger(), 8, 4)
	m.AddPlaybackClient("c1") // never written to, stays pre-buffering

	dst := make([]int16, 4)
	m.MixPlayback(dst) // must not panic or block
	assert.Equal(t, []int16{0, 0, 0, 0}, dst, "no active contributors")
}

func TestMixPlaybackClampsOverflow(t *testing.T) {
	m := NewMixer(testLogger(), 8, 4)
	c1 := m.AddPlaybackClient("c1")
	c2 := m.AddPlaybackClient("c2")

	buf := make([]byte, 8)
	putPCM16(buf, []int16{32000, 32000, 32000, 32000})
	c1.Write(buf)
	c1.Write(buf)
	c2.Write(buf)
	c2.Write(buf)

	dst := make([]int16, 4)
	m.MixPlayback(dst)
	want := []int16{32767, 32767, 32767, 32767} // N-way sum clamped to int16 max
	assert.Equal(t, want, dst)
}

func TestFanOutCaptureSkipsPausedClients(t *testing.T) {
	m := NewMixer(testLogger(), 8, 4)
	running := m.AddCaptureClient("running")
	paused := m.AddCaptureClient("paused")
	paused.setState(ClientPaused)

	pcm := make([]byte, 8)
	putPCM16(pcm, []int16{1, 2, 3, 4})
	m.FanOutCapture(pcm)

	running.mu.Lock()
	runningOff := running.inOffset
	running.mu.Unlock()
	paused.mu.Lock()
	pausedOff := paused.inOffset
	paused.mu.Unlock()

	if runningOff != 8 {
		t.Fatalf("running client inOffset = %d, want 8", runningOff)
	}
	if pausedOff != 0 {
		t.Fatalf("paused client inOffset = %d, want 0 (receives nothing)", pausedOff)
	}
}

func TestActivePlaybackCountOnlyCountsRunning(t *testing.T) {
	m := NewMixer(testLogger(), 8, 4)
	c1 := m.AddPlaybackClient("c1")
	m.AddPlaybackClient("c2") // never crosses pre-roll

	buf := make([]byte, 8)
	c1.Write(buf)
	c1.Write(buf)

	if got := m.ActivePlaybackCount(); got != 1 {
		t.Fatalf("ActivePlaybackCount() = %d, want 1", got)
	}
}

func TestStartStopRunsTickCallback(t *testing.T) {
	m := NewMixer(testLogger(), 8, 4)
	ticks := make(chan struct{}, 8)
	m.Start(10*time.Millisecond, func() {
		select {
		case ticks <- struct{}{}:
		default:
		}
	})
	defer m.Stop()

	select {
	case <-ticks:
	case <-time.After(2 * time.Second):
		t.Fatal("tick callback never fired")
	}
}
