package pipeline

import (
	"sync/atomic"

	"github.com/tarkov-map/tracker/pkg/core"
)

// Settings are the runtime-adjustable knobs. A Settings value is never
// mutated after it is stored.
type Settings struct {
	Region core.Region
	Paused bool
}

// SettingsStore holds the current Settings. Stages read it at the start
// of each cycle.
type SettingsStore struct {
	current atomic.Pointer[Settings]
}

// NewSettingsStore creates a store holding initial.
func NewSettingsStore(initial Settings) *SettingsStore {
	s := &SettingsStore{}
	s.current.Store(&initial)
	return s
}

// Load returns the current settings.
func (s *SettingsStore) Load() Settings {
	return *s.current.Load()
}

// Update applies fn to a copy of the current settings and swaps it in.
func (s *SettingsStore) Update(fn func(*Settings)) Settings {
	for {
		old := s.current.Load()
		next := *old
		fn(&next)
		if s.current.CompareAndSwap(old, &next) {
			return next
		}
	}
}

// CaptureRegion implements capture.Settings.
func (s *SettingsStore) CaptureRegion() core.Region { return s.current.Load().Region }

// Paused implements capture.Settings.
func (s *SettingsStore) Paused() bool { return s.current.Load().Paused }
