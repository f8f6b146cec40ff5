package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/nerrad567/supermqtt"

// Recorder holds the OpenTelemetry instruments for one client.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Recorder struct {
	operations   metric.Int64Counter
	duration     metric.Float64Histogram
	connections  metric.Int64Counter
	messages     metric.Int64Counter
	messageBytes metric.Int64Counter
}

// NewRecorder creates the instruments on mp, or on the global provider when mp is nil.
func NewRecorder(mp metric.MeterProvider) (*Recorder, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(meterName)

	r := &Recorder{}
	var err error

	r.operations, err = meter.Int64Counter(
		"supermqtt.operations.total",
		metric.WithDescription("Client operations by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create operations counter: %w", err)
	}

	r.duration, err = meter.Float64Histogram(
		"supermqtt.operation.duration",
		metric.WithDescription("Time from request to broker acknowledgement"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create duration histogram: %w", err)
	}

	r.connections, err = meter.Int64Counter(
		"supermqtt.connection.events.total",
		metric.WithDescription("Connection lifecycle events"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection events counter: %w", err)
	}

	r.messages, err = meter.Int64Counter(
		"supermqtt.messages.received.total",
		metric.WithDescription("Inbound messages delivered to observers"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create messages counter: %w", err)
	}

	r.messageBytes, err = meter.Int64Counter(
		"supermqtt.messages.received.bytes",
		metric.WithDescription("Inbound payload bytes"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create message bytes counter: %w", err)
	}

	return r, nil
}

// RecordOperation counts one operation and its latency.
func (r *Recorder) RecordOperation(op, outcome string, d time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("outcome", outcome),
	)
	ctx := context.Background()
	r.operations.Add(ctx, 1, attrs)
	r.duration.Record(ctx, d.Seconds(), attrs)
}

// RecordConnection counts a lifecycle event such as "connected" or "lost".
func (r *Recorder) RecordConnection(event string) {
	r.connections.Add(context.Background(), 1, metric.WithAttributes(attribute.String("event", event)))
}

// RecordMessage counts an inbound message. The topic is ignored.
func (r *Recorder) RecordMessage(_ string, size int) {
	ctx := context.Background()
	r.messages.Add(ctx, 1)
	r.messageBytes.Add(ctx, int64(size))
}
