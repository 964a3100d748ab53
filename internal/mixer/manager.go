package mixer

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Manager owns one Mixer per active transport, creating it on first
// client attach and destroying it once the last client detaches.
// Grounded on internal/media/conference.go's ConferenceManager, which
// applies the same create-on-first-Join/destroy-on-empty-room
// lifecycle to conference bridges keyed by bridge ID; here the key is
// a transport path instead of a bridge ID.
type Manager struct {
	logger *slog.Logger

	mu      sync.Mutex
	mixers  map[string]*entry
	period  time.Duration
	perBuf  int
	periods int
}

type entry struct {
	mixer    *Mixer
	refCount int
}

// NewManager creates a mixer manager; periodDuration/periodBytes/periods
// are the defaults applied to every mixer it creates.
func NewManager(logger *slog.Logger, periodDuration time.Duration, periodBytes, periods int) *Manager {
	return &Manager{
		logger:  logger.With("subsystem", "mixer-manager"),
		mixers:  make(map[string]*entry),
		period:  periodDuration,
		perBuf:  periodBytes,
		periods: periods,
	}
}

// Acquire returns the Mixer for transportPath, creating and starting
// it if this is the first attach, same as ConferenceManager.Join
// creating a room under lock on first use.
func (mgr *Manager) Acquire(transportPath string, onTick func(*Mixer)) *Mixer {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()

	e, ok := mgr.mixers[transportPath]
	if !ok {
		m := NewMixer(mgr.logger, mgr.perBuf, mgr.periods)
		m.Start(mgr.period, func() { onTick(m) })
		e = &entry{mixer: m}
		mgr.mixers[transportPath] = e
		mgr.logger.Info("mixer created", "transport", transportPath)
	}
	e.refCount++
	return e.mixer
}

// Release drops one reference to transportPath's mixer; once the
// reference count reaches zero the mixer is stopped and discarded,
// mirroring ConferenceManager tearing down a room once its last
// participant leaves.
func (mgr *Manager) Release(transportPath string) error {
	mgr.mu.Lock()
	e, ok := mgr.mixers[transportPath]
	if !ok {
		mgr.mu.Unlock()
		return fmt.Errorf("mixer: no mixer for transport %q", transportPath)
	}
	e.refCount--
	empty := e.refCount <= 0
	if empty {
		delete(mgr.mixers, transportPath)
	}
	mgr.mu.Unlock()

	if empty {
		e.mixer.Stop()
		mgr.logger.Info("mixer destroyed", "transport", transportPath)
	}
	return nil
}

// Get returns the mixer currently active for transportPath, if any.
func (mgr *Manager) Get(transportPath string) (*Mixer, bool) {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	e, ok := mgr.mixers[transportPath]
	if !ok {
		return nil, false
	}
	return e.mixer, true
}

// Count returns the number of live mixers.
func (mgr *Manager) Count() int {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	return len(mgr.mixers)
}
