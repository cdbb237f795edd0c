package tracker

import (
	"errors"
	"fmt"
	"time"
)

// Config holds tracker tuning. Distances are in detector pixels.
type Config struct {
	MaxMisses           int           // Consecutive misses/rejections before Lost
	ConfidenceThreshold float64       // Minimum confidence to accept an observation
	MaxSpeed            float64       // Maximum plausible marker speed (px/s)
	JitterAllowance     float64       // Displacement always tolerated regardless of dt (px)
	MaxExtrapolation    time.Duration // Horizon for bridging misses while Tracking
	ProcessNoisePos     float64       // Process noise for position (σ² per second)
	ProcessNoiseVel     float64       // Process noise for velocity (σ² per second)
	MeasurementNoise    float64       // Measurement noise (σ²)
	MaxPredictDt        time.Duration // Maximum dt per predict step
	MaxCovarianceDiag   float64       // Cap on covariance diagonal
	HeadingAlpha        float64       // Circular EMA weight of a new heading in (0,1]
}

// DefaultConfig returns tuning suited to a 5 Hz capture of a minimap.
func DefaultConfig() Config {
	return Config{
		MaxMisses:           5,
		ConfidenceThreshold: 0.6,
		MaxSpeed:            60,
		JitterAllowance:     3,
		MaxExtrapolation:    time.Second,
		ProcessNoisePos:     4,
		ProcessNoiseVel:     25,
		MeasurementNoise:    2,
		MaxPredictDt:        time.Second,
		MaxCovarianceDiag:   1e4,
		HeadingAlpha:        0.5,
	}
}

// Validate checks the config for values the filter cannot work with.
func (c Config) Validate() error {
	var errs []error
	if c.MaxMisses < 1 {
		errs = append(errs, fmt.Errorf("maxMisses must be >= 1, got %d", c.MaxMisses))
	}
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		errs = append(errs, fmt.Errorf("confidenceThreshold must be in [0,1], got %v", c.ConfidenceThreshold))
	}
	if c.MaxSpeed <= 0 {
		errs = append(errs, fmt.Errorf("maxSpeed must be positive, got %v", c.MaxSpeed))
	}
	if c.HeadingAlpha <= 0 || c.HeadingAlpha > 1 {
		errs = append(errs, fmt.Errorf("headingAlpha must be in (0,1], got %v", c.HeadingAlpha))
	}
	if c.MeasurementNoise <= 0 {
		errs = append(errs, fmt.Errorf("measurementNoise must be positive, got %v", c.MeasurementNoise))
	}
	return errors.Join(errs...)
}
