package pipeline

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/tarkov-map/tracker/internal/pipeline"

type instruments struct {
	detections     metric.Int64Counter
	misses         metric.Int64Counter
	outliers       metric.Int64Counter
	detectDuration metric.Float64Histogram
}

func newInstruments() (*instruments, error) {
	m := otel.Meter(instrumentationName)
	var (
		in  instruments
		err error
	)
	if in.detections, err = m.Int64Counter("pipeline.detections",
		metric.WithDescription("Observations accepted by the tracker")); err != nil {
		return nil, fmt.Errorf("creating detections counter: %w", err)
	}
	if in.misses, err = m.Int64Counter("pipeline.misses",
		metric.WithDescription("Frames without a confident detection")); err != nil {
		return nil, fmt.Errorf("creating misses counter: %w", err)
	}
	if in.outliers, err = m.Int64Counter("pipeline.outliers",
		metric.WithDescription("Detections rejected as implausible jumps")); err != nil {
		return nil, fmt.Errorf("creating outliers counter: %w", err)
	}
	if in.detectDuration, err = m.Float64Histogram("pipeline.detect.duration",
		metric.WithDescription("Detector time per frame"),
		metric.WithUnit("ms")); err != nil {
		return nil, fmt.Errorf("creating detect duration histogram: %w", err)
	}
	return &in, nil
}
