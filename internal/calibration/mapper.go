package calibration

import (
	"fmt"
	"sync/atomic"

	"github.com/tarkov-map/tracker/pkg/core"
)

// Source provides reference data for a map.
type Source interface {
	// ReferencePairs returns the pixel/world correspondences for mapID and
	// the world points spanning the map extent (may be empty).
	ReferencePairs(mapID string) ([]Pair, []core.Point, error)
}

// Active is the calibration in use. It is replaced whole, never mutated.
// Calibration is nil when the map has no usable calibration.
type Active struct {
	MapID       string
	Calibration *Calibration
	Epoch       uint64
}

// Usable reports whether tracking can run under this calibration.
func (a *Active) Usable() bool {
	return a != nil && a.Calibration != nil
}

// Mapper converts between pixel and world space using the active map.
type Mapper struct {
	source Source
	cache  *Cache
	active atomic.Pointer[Active]
	epoch  atomic.Uint64
}

// NewMapper creates a mapper with no active map.
func NewMapper(source Source) *Mapper {
	m := &Mapper{
		source: source,
		cache:  NewCache(),
	}
	m.active.Store(&Active{})
	return m
}

// Select makes mapID active. The swap always happens and bumps the epoch;
// when the map cannot be calibrated the new Active has no calibration and
// the returned error wraps core.ErrCalibrationMissing.
func (m *Mapper) Select(mapID string) (*Active, error) {
	cal, err := m.load(mapID)
	a := &Active{
		MapID:       mapID,
		Calibration: cal,
		Epoch:       m.epoch.Add(1),
	}
	m.active.Store(a)
	return a, err
}

func (m *Mapper) load(mapID string) (*Calibration, error) {
	if r, ok := m.cache.Get(mapID); ok {
		return r.Calibration, r.Err
	}

	cal, err := m.fit(mapID)
	m.cache.Put(mapID, cal, err)
	return cal, err
}

func (m *Mapper) fit(mapID string) (*Calibration, error) {
	if m.source == nil {
		return nil, fmt.Errorf("map %q: no calibration source: %w", mapID, core.ErrCalibrationMissing)
	}
	pairs, extent, err := m.source.ReferencePairs(mapID)
	if err != nil {
		return nil, fmt.Errorf("map %q: %w", mapID, err)
	}
	cal, err := Fit(pairs)
	if err != nil {
		return nil, fmt.Errorf("map %q: %w", mapID, err)
	}
	if len(extent) > 0 {
		if cal, err = cal.WithBounds(extent); err != nil {
			return nil, fmt.Errorf("map %q: %w", mapID, err)
		}
	}
	return cal, nil
}

// Active returns the current calibration snapshot.
func (m *Mapper) Active() *Active {
	return m.active.Load()
}

// Clear deactivates the current map.
func (m *Mapper) Clear() {
	m.active.Store(&Active{Epoch: m.epoch.Add(1)})
}

// Invalidate forgets the cached fit for mapID so the next Select refits.
func (m *Mapper) Invalidate(mapID string) {
	m.cache.Invalidate(mapID)
}

// WorldFromPixel maps p under the active calibration.
func (m *Mapper) WorldFromPixel(p core.Point) (core.Point, error) {
	a := m.active.Load()
	if !a.Usable() {
		return core.Point{}, core.ErrCalibrationMissing
	}
	return a.Calibration.WorldFromPixel(p), nil
}

// PixelFromWorld maps w under the active calibration.
func (m *Mapper) PixelFromWorld(w core.Point) (core.Point, error) {
	a := m.active.Load()
	if !a.Usable() {
		return core.Point{}, core.ErrCalibrationMissing
	}
	return a.Calibration.PixelFromWorld(w), nil
}

// StaticSource serves fixed reference pairs, keyed by map.
type StaticSource map[string][]Pair

// ReferencePairs implements Source.
func (s StaticSource) ReferencePairs(mapID string) ([]Pair, []core.Point, error) {
	pairs, ok := s[mapID]
	if !ok {
		return nil, nil, fmt.Errorf("no reference points: %w", core.ErrCalibrationMissing)
	}
	return pairs, nil, nil
}
