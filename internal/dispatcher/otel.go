package dispatcher

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/tarkov-map/tracker/internal/dispatcher"

type instruments struct {
	handledN  metric.Int64Counter
	failedN   metric.Int64Counter
	rejectedN metric.Int64Counter
	latency   metric.Float64Histogram
}

// newInstruments creates the dispatcher instruments on the global meter.
// queues is polled for the queue length gauge.
func newInstruments(queues func() map[string]int) (*instruments, error) {
	m := otel.Meter(instrumentationName)
	inst := &instruments{}
	var err error

	if inst.handledN, err = m.Int64Counter("tracker.commands.handled",
		metric.WithDescription("Commands run by their handler")); err != nil {
		return nil, fmt.Errorf("creating handled counter: %w", err)
	}
	if inst.failedN, err = m.Int64Counter("tracker.commands.failed",
		metric.WithDescription("Commands whose handler returned an error")); err != nil {
		return nil, fmt.Errorf("creating failed counter: %w", err)
	}
	if inst.rejectedN, err = m.Int64Counter("tracker.commands.rejected",
		metric.WithDescription("Commands rejected by a full queue")); err != nil {
		return nil, fmt.Errorf("creating rejected counter: %w", err)
	}
	if inst.latency, err = m.Float64Histogram("tracker.commands.duration",
		metric.WithUnit("ms"),
		metric.WithDescription("Handler run time")); err != nil {
		return nil, fmt.Errorf("creating duration histogram: %w", err)
	}

	gauge, err := m.Int64ObservableGauge("tracker.commands.queued",
		metric.WithDescription("Commands waiting in a buffered handler queue"))
	if err != nil {
		return nil, fmt.Errorf("creating queue gauge: %w", err)
	}
	if _, err = m.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		for cmd, n := range queues() {
			o.ObserveInt64(gauge, int64(n), metric.WithAttributes(attribute.String("command", cmd)))
		}
		return nil
	}, gauge); err != nil {
		return nil, fmt.Errorf("registering queue gauge: %w", err)
	}
	return inst, nil
}

func (i *instruments) handled(ctx context.Context, command, source string, took time.Duration, err error) {
	attrs := metric.WithAttributes(
		attribute.String("command", command),
		attribute.String("source", source),
	)
	i.handledN.Add(ctx, 1, attrs)
	i.latency.Record(ctx, float64(took.Microseconds())/1000, attrs)
	if err != nil {
		i.failedN.Add(ctx, 1, attrs)
	}
}

func (i *instruments) rejected(ctx context.Context, command string) {
	i.rejectedN.Add(ctx, 1, metric.WithAttributes(attribute.String("command", command)))
}
