package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tarkov-map/tracker/internal/handoff"
	"github.com/tarkov-map/tracker/internal/timeutil"
	"github.com/tarkov-map/tracker/pkg/core"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/tarkov-map/tracker/internal/capture"

// ErrUnsupportedPlatform is returned by backends not available in this build.
var ErrUnsupportedPlatform = errors.New("screen capture not supported on this platform")

// Capturer grabs the pixels of a screen rectangle.
type Capturer interface {
	Capture(ctx context.Context, rect image.Rectangle) (*image.RGBA, error)
	Name() string
}

// MonitorLocator is implemented by capturers that can translate a
// monitor-relative region into virtual screen coordinates.
type MonitorLocator interface {
	MonitorOrigin(monitor int) (image.Point, error)
}

// Notifier raises user-visible notifications.
type Notifier interface {
	Notify(title, message string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(title, message string)

// Notify implements Notifier.
func (f NotifierFunc) Notify(title, message string) { f(title, message) }

// Settings supplies the region to capture and the pause flag. It is read
// at the start of every cycle.
type Settings interface {
	CaptureRegion() core.Region
	Paused() bool
}

// Config tunes the capture stage.
type Config struct {
	Backend            string // "robotgo", "replay" or "video"
	Source             string // directory or video file for replay backends
	RateHz             float64
	Timeout            time.Duration
	FailureNotifyAfter int
}

// DefaultConfig captures from the screen at 5 Hz.
func DefaultConfig() Config {
	return Config{
		Backend:            "robotgo",
		RateHz:             5,
		Timeout:            200 * time.Millisecond,
		FailureNotifyAfter: 10,
	}
}

// Interval returns the capture period.
func (c Config) Interval() time.Duration {
	return time.Duration(float64(time.Second) / c.RateHz)
}

// Validate checks the rate and thresholds.
func (c Config) Validate() error {
	var errs []error
	if c.RateHz < 2 || c.RateHz > 10 {
		errs = append(errs, fmt.Errorf("capture rate must be in [2,10] Hz, got %v", c.RateHz))
	}
	if c.Timeout < 0 {
		errs = append(errs, fmt.Errorf("capture timeout must not be negative, got %v", c.Timeout))
	}
	if c.FailureNotifyAfter < 1 {
		errs = append(errs, fmt.Errorf("failure notify threshold must be positive, got %d", c.FailureNotifyAfter))
	}
	return errors.Join(errs...)
}

// New opens the configured backend.
func New(cfg Config) (Capturer, error) {
	switch cfg.Backend {
	case "", "robotgo":
		return NewRobotgo()
	case "replay":
		return NewReplay(cfg.Source)
	case "video":
		return NewVideo(cfg.Source)
	default:
		return nil, fmt.Errorf("unknown capture backend: %s", cfg.Backend)
	}
}

// Stage runs a Capturer at a fixed rate and hands the newest frame to the
// detection stage through a single slot.
type Stage struct {
	capturer Capturer
	config   Config
	settings Settings
	notifier Notifier
	logger   *slog.Logger
	clock    timeutil.Clock

	frames   *handoff.Slot[core.CaptureFrame]
	seq      uint64
	failures int
	notified bool
	inflight atomic.Bool

	mu      sync.Mutex
	lastErr error

	captured metric.Int64Counter
	dropped  metric.Int64Counter
	failed   metric.Int64Counter
}

// NewStage creates a capture stage. notifier may be nil.
func NewStage(c Capturer, cfg Config, settings Settings, notifier Notifier, logger *slog.Logger, clock timeutil.Clock) (*Stage, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = cfg.Interval()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if notifier == nil {
		notifier = NotifierFunc(func(string, string) {})
	}

	s := &Stage{
		capturer: c,
		config:   cfg,
		settings: settings,
		notifier: notifier,
		logger:   logger.With("component", "capture", "backend", c.Name()),
		clock:    clock,
		frames:   handoff.New[core.CaptureFrame](),
	}

	m := otel.Meter(instrumentationName)
	var err error
	if s.captured, err = m.Int64Counter("pipeline.frames.captured",
		metric.WithDescription("Frames captured")); err != nil {
		return nil, fmt.Errorf("creating captured counter: %w", err)
	}
	if s.dropped, err = m.Int64Counter("pipeline.frames.dropped",
		metric.WithDescription("Frames replaced before detection consumed them")); err != nil {
		return nil, fmt.Errorf("creating dropped counter: %w", err)
	}
	if s.failed, err = m.Int64Counter("pipeline.capture.failures",
		metric.WithDescription("Failed or timed out capture calls")); err != nil {
		return nil, fmt.Errorf("creating failures counter: %w", err)
	}
	return s, nil
}

// Frames returns the slot holding the newest captured frame.
func (s *Stage) Frames() *handoff.Slot[core.CaptureFrame] { return s.frames }

// LastError returns the most recent capture error, nil after a success.
func (s *Stage) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Run captures until ctx is cancelled.
func (s *Stage) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.config.Interval())
	defer ticker.Stop()

	s.logger.Info("capture stage started", "rateHz", s.config.RateHz)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("capture stage stopped")
			return nil
		case <-ticker.C:
		}
		if s.settings.Paused() {
			continue
		}
		_ = s.Step(ctx)
	}
}

// Step performs one capture cycle and publishes the frame on success.
func (s *Stage) Step(ctx context.Context) error {
	region := s.settings.CaptureRegion()
	if region.Empty() {
		return s.fail(ctx, fmt.Errorf("%w: no capture region", core.ErrCaptureUnavailable))
	}

	rect := region.Rect()
	if loc, ok := s.capturer.(MonitorLocator); ok && region.Monitor > 0 {
		origin, err := loc.MonitorOrigin(region.Monitor)
		if err != nil {
			return s.fail(ctx, fmt.Errorf("%w: %w", core.ErrCaptureUnavailable, err))
		}
		rect = rect.Add(origin)
	}

	img, err := s.grab(ctx, rect)
	if err != nil {
		return s.fail(ctx, err)
	}

	s.mu.Lock()
	s.seq++
	frame := core.CaptureFrame{
		Image:      img,
		Region:     region,
		Seq:        s.seq,
		CapturedAt: s.clock.Now(),
	}
	s.lastErr = nil
	s.mu.Unlock()

	if s.failures > 0 {
		s.logger.Info("capture recovered", "failures", s.failures)
	}
	s.failures = 0
	s.notified = false

	s.captured.Add(ctx, 1)
	if s.frames.Publish(frame) {
		s.dropped.Add(ctx, 1)
	}
	return nil
}

type result struct {
	img *image.RGBA
	err error
}

// grab calls the capturer with a deadline. A call that does not return in
// time is abandoned; no new call starts until it finishes.
func (s *Stage) grab(ctx context.Context, rect image.Rectangle) (*image.RGBA, error) {
	if !s.inflight.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("%w: previous capture still pending", core.ErrCaptureUnavailable)
	}

	cctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	done := make(chan result, 1)
	go func() {
		defer s.inflight.Store(false)
		img, err := s.capturer.Capture(cctx, rect)
		done <- result{img: img, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("%w: %w", core.ErrCaptureUnavailable, r.err)
		}
		if r.img == nil {
			return nil, fmt.Errorf("%w: empty image", core.ErrCaptureUnavailable)
		}
		return r.img, nil
	case <-cctx.Done():
		return nil, fmt.Errorf("%w: %w", core.ErrCaptureUnavailable, cctx.Err())
	}
}

func (s *Stage) fail(ctx context.Context, err error) error {
	s.failures++
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()

	s.failed.Add(ctx, 1, metric.WithAttributes(attribute.String("backend", s.capturer.Name())))
	s.logger.Debug("capture failed", "error", err, "consecutive", s.failures)

	if !s.notified && s.failures >= s.config.FailureNotifyAfter {
		s.notified = true
		s.logger.Warn("capture failing persistently", "error", err, "consecutive", s.failures)
		s.notifier.Notify("Screen capture unavailable",
			fmt.Sprintf("%d consecutive capture attempts failed: %v", s.failures, err))
	}
	return err
}

// toRGBA converts img to an RGBA image with its origin at (0, 0).
func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) {
		return rgba
	}
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return out
}

// crop copies rect out of img. An empty rect or one covering the whole
// image returns img unchanged.
func crop(img *image.RGBA, rect image.Rectangle) (*image.RGBA, error) {
	if rect.Empty() || rect == img.Bounds() {
		return img, nil
	}
	if !rect.In(img.Bounds()) {
		return nil, fmt.Errorf("region %v outside source %v", rect, img.Bounds())
	}
	out := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(out, out.Bounds(), img, rect.Min, draw.Src)
	return out, nil
}
