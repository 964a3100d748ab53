package transport

import (
	"math"
	"sync"
	"sync/atomic"
)

// LevelMeter tracks peak and RMS audio level over rolling windows of
// samples fed from the codec worker's hot path, exposed for the
// Prometheus collector (internal/metrics). This is a supplemented
// feature (spec.md distillation dropped upstream's alevel.go) and is
// grounded on internal/media/recorder.go's async pattern: samples are
// handed off through a small buffered channel to a background
// goroutine, which flushes an aggregate every window rather than
// computing anything on the hot path.
type LevelMeter struct {
	rate int

	samples chan []int32

	mu       sync.Mutex
	peakDB   float64
	rmsDB    float64
	snapshot atomic.Bool // true once at least one window has flushed

	done chan struct{}
}

// levelMeterQueueDepth bounds how many pending sample batches may
// queue before Feed starts dropping, the same backpressure posture the
// teacher's recorder takes with its packets channel (buffered, and a
// full channel means the flush side has fallen behind).
const levelMeterQueueDepth = 32

// NewLevelMeter creates a level meter for a stream at the given
// sample rate and starts its background flush goroutine.
func NewLevelMeter(rate int) *LevelMeter {
	m := &LevelMeter{
		rate:    rate,
		samples: make(chan []int32, levelMeterQueueDepth),
		peakDB:  negInfDB,
		rmsDB:   negInfDB,
		done:    make(chan struct{}),
	}
	go m.run()
	return m
}

// Feed hands a block of int32 PCM samples (any channel count,
// interleaved) to the meter. Non-blocking: if the internal queue is
// full, the block is dropped, since level metering is a diagnostic,
// not a correctness, concern.
func (m *LevelMeter) Feed(samples []int32) {
	cp := make([]int32, len(samples))
	copy(cp, samples)
	select {
	case m.samples <- cp:
	default:
	}
}

func (m *LevelMeter) run() {
	for block := range m.samples {
		peak, rms := computeLevels(block)
		m.mu.Lock()
		m.peakDB = peak
		m.rmsDB = rms
		m.mu.Unlock()
		m.snapshot.Store(true)
	}
	close(m.done)
}

// computeLevels returns (peak dBFS, rms dBFS) for a block of int32
// samples normalised against the 32-bit full-scale range.
func computeLevels(block []int32) (peakDB, rmsDB float64) {
	if len(block) == 0 {
		return negInfDB, negInfDB
	}

	const fullScale = float64(1 << 31)

	var peak float64
	var sumSquares float64
	for _, s := range block {
		v := math.Abs(float64(s)) / fullScale
		if v > peak {
			peak = v
		}
		sumSquares += v * v
	}
	rms := math.Sqrt(sumSquares / float64(len(block)))

	return linearToDB(peak), linearToDB(rms)
}

const negInfDB = -120.0

func linearToDB(v float64) float64 {
	if v <= 0 {
		return negInfDB
	}
	db := 20 * math.Log10(v)
	if db < negInfDB {
		return negInfDB
	}
	return db
}

// Snapshot returns the most recently flushed peak/RMS levels in dBFS.
// Before the first window flushes, both are negInfDB.
func (m *LevelMeter) Snapshot() (peakDB, rmsDB float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.peakDB, m.rmsDB
}

// Close stops the background flush goroutine and waits for it to exit.
func (m *LevelMeter) Close() {
	close(m.samples)
	<-m.done
}
