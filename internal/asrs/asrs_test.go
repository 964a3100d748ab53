package asrs

import (
	"testing"
	"time"

	"pgregory.net/rapid"
)

func TestSyncZeroIsRestart(t *testing.T) {
	c := New(8000)
	c.Sync(800)
	if c.FramesSinceRestart() != 800 {
		t.Fatalf("FramesSinceRestart() = %d, want 800", c.FramesSinceRestart())
	}
	c.Sync(0)
	if c.FramesSinceRestart() != 0 {
		t.Fatalf("FramesSinceRestart() after restart = %d, want 0", c.FramesSinceRestart())
	}
}

func TestSyncSleepsWhenAheadOfSchedule(t *testing.T) {
	c := New(8000)
	start := time.Now()
	// 800 frames at 8000 fps = 100ms worth of audio; calling Sync
	// immediately means we're "ahead" and must sleep close to 100ms.
	c.Sync(800)
	elapsed := time.Since(start)
	if elapsed < 80*time.Millisecond {
		t.Fatalf("Sync returned too early: elapsed=%v, want >= ~100ms", elapsed)
	}
}

func TestSyncDoesNotSleepWhenBehindSchedule(t *testing.T) {
	c := New(8000)
	time.Sleep(50 * time.Millisecond)
	start := time.Now()
	// Only 1 frame worth of audio (0.125ms) but 50ms of wall time has
	// already passed, so this call must return immediately.
	sleep := c.Sync(1)
	elapsed := time.Since(start)
	if sleep > 0 {
		t.Fatalf("Sync() returned sleep=%v, want <= 0 (behind schedule)", sleep)
	}
	if elapsed > 10*time.Millisecond {
		t.Fatalf("Sync() took %v, want near-instant return", elapsed)
	}
}

func TestSetRateRestarts(t *testing.T) {
	c := New(8000)
	c.Sync(800)
	c.SetRate(16000)
	if c.Rate() != 16000 {
		t.Fatalf("Rate() = %d, want 16000", c.Rate())
	}
	if c.FramesSinceRestart() != 0 {
		t.Fatalf("FramesSinceRestart() after SetRate = %d, want 0", c.FramesSinceRestart())
	}
}

// TestPacedClockMonotonicity is the rapid property spec.md §8 asks for:
// across any sequence of Sync calls, frames_since_t0 never decreases
// except on an explicit restart (Sync(0) or SetRate), and wall time
// elapsed between restart and a given Sync call is never less than the
// frame count implies (the clock never runs ahead of real time).
func TestPacedClockMonotonicity(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		rate := uint32(rapid.IntRange(8000, 48000).Draw(rt, "rate"))
		c := New(rate)

		restartedAt := time.Now()
		var cumulative uint64

		steps := rapid.IntRange(1, 5).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			frames := uint64(rapid.IntRange(0, 200).Draw(rt, "frames"))

			before := time.Now()
			c.Sync(frames)

			if frames == 0 {
				cumulative = 0
				restartedAt = time.Now()
				continue
			}

			cumulative += frames
			if got := c.FramesSinceRestart(); got != cumulative {
				rt.Fatalf("FramesSinceRestart() = %d, want %d", got, cumulative)
			}

			expected := time.Duration(cumulative) * time.Second / time.Duration(rate)
			elapsedSinceRestart := time.Since(restartedAt)
			// The clock must never return before the frames it has
			// paced are "due" — allow a small scheduler slop.
			if elapsedSinceRestart < expected-2*time.Millisecond {
				rt.Fatalf("Sync returned early: elapsed=%v expected>=%v (before call %v)", elapsedSinceRestart, expected, before)
			}
		}
	})
}
