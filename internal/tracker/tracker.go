package tracker

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tarkov-map/tracker/pkg/core"
)

// Tracker filters marker observations into a position estimate.
// It is driven by a single goroutine; the mutex only guards against
// concurrent Reset/UpdateConfig calls from command handlers.
type Tracker struct {
	mu     sync.Mutex
	config Config
	logger *slog.Logger

	state    core.TrackingState
	filter   kalman
	heading  headingFilter
	misses   int
	lastFix  core.MarkerObservation
	fixAt    time.Time
	lastSeen time.Time
}

// New creates a tracker in Searching state.
func New(config Config, logger *slog.Logger) (*Tracker, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tracker config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		config: config,
		logger: logger,
		state:  core.StateSearching,
	}, nil
}

// UpdateConfig applies fn to the config under the tracker lock.
// The change is rejected if the result does not validate.
func (t *Tracker) UpdateConfig(fn func(*Config)) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	next := t.config
	fn(&next)
	if err := next.Validate(); err != nil {
		return err
	}
	t.config = next
	return nil
}

// Config returns a copy of the current config.
func (t *Tracker) Config() Config {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.config
}

// Reset drops the estimate and returns to Searching.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resetLocked()
}

func (t *Tracker) resetLocked() {
	t.state = core.StateSearching
	t.filter = kalman{}
	t.heading = headingFilter{}
	t.misses = 0
	t.lastFix = core.MarkerObservation{}
	t.fixAt = time.Time{}
	t.lastSeen = time.Time{}
}

// State returns the current state.
func (t *Tracker) State() core.TrackingState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Misses returns the current consecutive miss count.
func (t *Tracker) Misses() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.misses
}

// Estimate returns the filtered position, velocity and heading as of the
// last accepted observation. ok is false when nothing has been accepted.
func (t *Tracker) Estimate() (pos, vel core.Point, heading float64, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fixAt.IsZero() {
		return core.Point{}, core.Point{}, 0, false
	}
	return t.filter.position(), t.filter.velocity(), t.heading.value(), true
}

// Observe feeds one processed frame. It returns the position to publish,
// if any, and a non-nil error describing why the observation was not used
// (core.ErrDetectionMiss or core.ErrOutlierRejected). Errors are
// informational; the tracker has already accounted for them.
func (t *Tracker) Observe(obs core.MarkerObservation) (core.TrackedPosition, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := obs.At
	if now.IsZero() {
		now = time.Now()
	}
	t.lastSeen = now

	if t.state == core.StateLost {
		t.state = core.StateSearching
	}

	confident := obs.Found && core.ClampConfidence(obs.Confidence) >= t.config.ConfidenceThreshold

	switch t.state {
	case core.StateSearching:
		if !confident {
			return core.TrackedPosition{}, false, core.ErrDetectionMiss
		}
		t.acquire(obs, now)
		return t.fresh(obs, now), true, nil

	case core.StateTracking:
		if !confident {
			pos, emit := t.miss(now)
			return pos, emit, core.ErrDetectionMiss
		}
		if err := t.plausible(obs, now); err != nil {
			t.logger.Debug("outlier rejected",
				"x", obs.Pixel.X, "y", obs.Pixel.Y,
				"confidence", obs.Confidence,
				"error", err)
			pos, emit := t.miss(now)
			return pos, emit, err
		}
		t.accept(obs, now)
		return t.fresh(obs, now), true, nil
	}

	return core.TrackedPosition{}, false, nil
}

// acquire starts a fresh lock from obs, discarding prior filter state.
func (t *Tracker) acquire(obs core.MarkerObservation, now time.Time) {
	t.filter = newKalman(obs.Pixel, t.config.MeasurementNoise)
	t.heading = headingFilter{}
	t.heading.reset(obs.Heading)
	t.state = core.StateTracking
	t.misses = 0
	t.lastFix = obs
	t.fixAt = now
	t.logger.Debug("tracking acquired", "x", obs.Pixel.X, "y", obs.Pixel.Y, "confidence", obs.Confidence)
}

func (t *Tracker) accept(obs core.MarkerObservation, now time.Time) {
	t.filter.predict(now.Sub(t.fixAt).Seconds(), t.config)
	if !t.filter.update(obs.Pixel, t.config) || !t.filter.isFinite() {
		// numerically broken, restart from the observation
		t.acquire(obs, now)
		return
	}
	t.filter.clampVelocity(t.config.MaxSpeed)
	t.heading.update(obs.Heading, t.config.HeadingAlpha)
	t.misses = 0
	t.lastFix = obs
	t.fixAt = now
}

// plausible rejects observations implying more than MaxSpeed since the
// last accepted one.
func (t *Tracker) plausible(obs core.MarkerObservation, now time.Time) error {
	dt := now.Sub(t.fixAt).Seconds()
	if dt < 0 {
		dt = 0
	}
	dist := obs.Pixel.Dist(t.lastFix.Pixel)
	allowed := t.config.MaxSpeed*dt + t.config.JitterAllowance
	if dist > allowed {
		return fmt.Errorf("moved %.1fpx in %.3fs, allowed %.1fpx: %w", dist, dt, allowed, core.ErrOutlierRejected)
	}
	return nil
}

// miss counts a missed or rejected frame while Tracking. Below the limit
// the estimate is extrapolated; at the limit the state becomes Lost and
// the last known position is emitted once as stale.
func (t *Tracker) miss(now time.Time) (core.TrackedPosition, bool) {
	t.misses++
	if t.misses >= t.config.MaxMisses {
		t.state = core.StateLost
		t.logger.Debug("tracking lost", "misses", t.misses)
		return core.TrackedPosition{
			Pixel:      t.filter.position(),
			Heading:    t.heading.value(),
			Confidence: 0,
			Timestamp:  t.fixAt,
			State:      core.StateLost,
			Stale:      true,
			Source:     t.lastFix.Source,
		}, true
	}

	horizon := now.Sub(t.fixAt)
	if horizon > t.config.MaxExtrapolation {
		horizon = t.config.MaxExtrapolation
	}
	if horizon < 0 {
		horizon = 0
	}
	pos := t.filter.position().Add(t.filter.velocity().Scale(horizon.Seconds()))
	decay := 1 - float64(t.misses)/float64(t.config.MaxMisses)

	return core.TrackedPosition{
		Pixel:        pos,
		Heading:      t.heading.value(),
		Velocity:     t.filter.velocity(),
		Confidence:   core.ClampConfidence(t.lastFix.Confidence * decay),
		Timestamp:    now,
		State:        core.StateTracking,
		Stale:        true,
		Extrapolated: true,
		Source:       t.lastFix.Source,
	}, true
}

func (t *Tracker) fresh(obs core.MarkerObservation, now time.Time) core.TrackedPosition {
	return core.TrackedPosition{
		Pixel:      t.filter.position(),
		Heading:    t.heading.value(),
		Velocity:   t.filter.velocity(),
		Confidence: core.ClampConfidence(obs.Confidence),
		Timestamp:  now,
		State:      core.StateTracking,
		Source:     obs.Source,
	}
}
