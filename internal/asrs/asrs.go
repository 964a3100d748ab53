// Package asrs implements the paced clock: a wall-clock sample-rate
// regulator that keeps a codec worker's CBR output synchronised to
// real time without drifting, the way a sound card's DMA would.
//
// The pacing idiom is lifted directly from the RTP player loop this
// engine's teacher uses (sleep for the difference between elapsed
// wall-clock time and the time the frames sent so far are worth),
// generalised from a fixed 20ms/G.711 packet to an arbitrary sample
// rate and frame count per call.
package asrs

import (
	"sync"
	"time"
)

// Clock paces a stream of fixed-format frames at a configured sample
// rate. Sync blocks the caller until the wall-clock time elapsed since
// the last restart matches the cumulative frame count divided by rate.
// It never depends on wall-clock (time.Now), only the monotonic clock
// time.Time carries internally.
type Clock struct {
	mu sync.Mutex

	rate uint32 // frames per second

	t0           time.Time // monotonic reference, latched on restart
	framesSinceT0 uint64

	lastSync time.Time // for busy_microseconds bookkeeping
}

// New creates a Clock for the given sample rate (frames per second).
// The reference is latched immediately, equivalent to calling Sync(0).
func New(rate uint32) *Clock {
	c := &Clock{rate: rate}
	now := time.Now()
	c.t0 = now
	c.lastSync = now
	return c
}

// Rate returns the configured sample rate.
func (c *Clock) Rate() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rate
}

// SetRate reconfigures the sample rate and re-latches the reference,
// equivalent to calling Restart. Used when a codec reinitialises at a
// different rate (e.g. an ESTALE-triggered codec change).
func (c *Clock) SetRate(rate uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rate = rate
	c.restartLocked()
}

// Restart re-latches the monotonic reference and zeroes the frame
// counter, as if the stream had just started. Equivalent to Sync(0)
// after discarding prior progress.
func (c *Clock) Restart() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.restartLocked()
}

func (c *Clock) restartLocked() {
	now := time.Now()
	c.t0 = now
	c.lastSync = now
	c.framesSinceT0 = 0
}

// Sync advances the cumulative frame count by frames and blocks until
// framesSinceT0/rate seconds have elapsed since the reference. It
// returns the duration slept: positive when the caller was ahead of
// schedule and had to wait, zero or negative (reported as the amount
// by which the deadline had already passed) when the caller was
// behind schedule and did not sleep at all.
//
// Passing frames == 0 re-latches the reference (a restart) without
// sleeping, matching the upstream "sync(0) is a restart" contract.
func (c *Clock) Sync(frames uint64) time.Duration {
	c.mu.Lock()
	if frames == 0 {
		c.restartLocked()
		c.mu.Unlock()
		return 0
	}

	c.framesSinceT0 += frames
	rate := c.rate
	t0 := c.t0
	total := c.framesSinceT0
	c.mu.Unlock()

	if rate == 0 {
		return 0
	}

	expected := time.Duration(total) * time.Second / time.Duration(rate)
	elapsed := time.Since(t0)
	sleep := expected - elapsed

	if sleep > 0 {
		time.Sleep(sleep)
	}

	c.mu.Lock()
	c.lastSync = time.Now()
	c.mu.Unlock()

	return sleep
}

// BusyMicroseconds returns the wall-clock time in microseconds between
// now and the last call to Sync — the time the caller spent doing
// actual codec work (encoding, I/O) between pacing calls.
func (c *Clock) BusyMicroseconds() int64 {
	c.mu.Lock()
	last := c.lastSync
	c.mu.Unlock()
	return time.Since(last).Microseconds()
}

// DeciMillisSinceLastSync returns the time since the last Sync call in
// units of 0.1 milliseconds, the unit the transport's delay accounting
// uses throughout (see internal/transport).
func (c *Clock) DeciMillisSinceLastSync() int64 {
	c.mu.Lock()
	last := c.lastSync
	c.mu.Unlock()
	return time.Since(last).Microseconds() / 100
}

// FramesSinceRestart reports the cumulative frame count passed to Sync
// since the last restart (including a Sync(0) restart or SetRate).
func (c *Clock) FramesSinceRestart() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.framesSinceT0
}
