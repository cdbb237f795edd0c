package detect

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/tarkov-map/tracker/pkg/core"
)

// Detector locates the player marker in a frame. Implementations must be
// safe to call from a single goroutine and must not perform I/O.
type Detector interface {
	Detect(frame *core.CaptureFrame) core.MarkerObservation
	Name() string
}

// Config selects and tunes a detection strategy.
type Config struct {
	Strategy            string  // "template" or "signature"
	ConfidenceThreshold float64 // observations below this become NotFound
	MarkerSize          int     // marker diameter in pixels
	TemplatePath        string  // optional PNG replacing the generated marker
	AngleStepDeg        float64 // template bank rotation step
	Stride              int     // coarse search stride
	Candidates          int     // coarse peaks refined per frame
	MarkerHue           float64 // signature hue in degrees
	HueTolerance        float64
	MinSaturation       float64
	MinValue            float64
	AutoValue           bool // derive the value cut from an Otsu threshold
}

// DefaultConfig returns the template strategy with a 10 degree bank.
func DefaultConfig() Config {
	return Config{
		Strategy:            "template",
		ConfidenceThreshold: 0.6,
		MarkerSize:          21,
		AngleStepDeg:        10,
		Stride:              2,
		Candidates:          3,
		MarkerHue:           50,
		HueTolerance:        20,
		MinSaturation:       0.4,
		MinValue:            0.5,
	}
}

// New builds the configured detector wrapped in a confidence Gate.
func New(cfg Config) (*Gate, error) {
	var (
		inner Detector
		err   error
	)
	switch cfg.Strategy {
	case "", "template":
		inner, err = NewTemplateBank(cfg)
	case "signature":
		inner, err = NewSignature(cfg)
	default:
		return nil, fmt.Errorf("unknown detector strategy: %s", cfg.Strategy)
	}
	if err != nil {
		return nil, err
	}
	return NewGate(inner, cfg.ConfidenceThreshold)
}

// Gate turns low confidence observations into NotFound. The threshold can
// be changed while detection is running.
type Gate struct {
	inner     Detector
	threshold atomic.Uint64
}

// NewGate wraps inner with the given threshold.
func NewGate(inner Detector, threshold float64) (*Gate, error) {
	g := &Gate{inner: inner}
	if err := g.SetThreshold(threshold); err != nil {
		return nil, err
	}
	return g, nil
}

// SetThreshold replaces the confidence threshold.
func (g *Gate) SetThreshold(v float64) error {
	if math.IsNaN(v) || v < 0 || v > 1 {
		return fmt.Errorf("confidence threshold must be in [0,1], got %v", v)
	}
	g.threshold.Store(math.Float64bits(v))
	return nil
}

// Threshold returns the current threshold.
func (g *Gate) Threshold() float64 {
	return math.Float64frombits(g.threshold.Load())
}

// Name returns the wrapped detector name.
func (g *Gate) Name() string { return g.inner.Name() }

// Detect runs the inner detector and applies the threshold.
func (g *Gate) Detect(frame *core.CaptureFrame) core.MarkerObservation {
	if frame == nil || frame.Image == nil {
		return core.NotFound(frame, g.inner.Name())
	}
	obs := g.inner.Detect(frame)
	obs.Confidence = core.ClampConfidence(obs.Confidence)
	obs.Seq = frame.Seq
	obs.At = frame.CapturedAt
	if obs.Source == "" {
		obs.Source = g.inner.Name()
	}
	if !obs.Found || obs.Confidence < g.Threshold() {
		miss := core.NotFound(frame, obs.Source)
		miss.Confidence = obs.Confidence
		return miss
	}
	return obs
}
