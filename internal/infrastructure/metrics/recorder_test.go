package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/nerrad567/supermqtt/internal/infrastructure/config"
)

func newTestRecorder(t *testing.T) (*Recorder, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	r, err := NewRecorder(mp)
	require.NoError(t, err)
	return r, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := map[string]metricdata.Aggregation{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func sumFor(t *testing.T, data metricdata.Aggregation, key, value string) int64 {
	t.Helper()
	sum, ok := data.(metricdata.Sum[int64])
	require.True(t, ok, "expected int64 sum, got %T", data)

	var total int64
	for _, dp := range sum.DataPoints {
		if key == "" {
			total += dp.Value
			continue
		}
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
			total += dp.Value
		}
	}
	return total
}

func TestRecorder_RecordOperation(t *testing.T) {
	r, reader := newTestRecorder(t)

	r.RecordOperation("publish", "ok", 20*time.Millisecond)
	r.RecordOperation("publish", "ok", 30*time.Millisecond)
	r.RecordOperation("publish", "timeout", 5*time.Second)
	r.RecordOperation("connect", "ok", time.Millisecond)

	data := collect(t, reader)
	ops := data["supermqtt.operations.total"]
	require.NotNil(t, ops)
	assert.Equal(t, int64(3), sumFor(t, ops, "operation", "publish"))
	assert.Equal(t, int64(1), sumFor(t, ops, "outcome", "timeout"))
	assert.Equal(t, int64(4), sumFor(t, ops, "", ""))

	hist, ok := data["supermqtt.operation.duration"].(metricdata.Histogram[float64])
	require.True(t, ok)
	var count uint64
	for _, dp := range hist.DataPoints {
		count += dp.Count
	}
	assert.Equal(t, uint64(4), count)
}

func TestRecorder_RecordConnection(t *testing.T) {
	r, reader := newTestRecorder(t)

	r.RecordConnection("connected")
	r.RecordConnection("lost")
	r.RecordConnection("connected")

	data := collect(t, reader)
	events := data["supermqtt.connection.events.total"]
	assert.Equal(t, int64(2), sumFor(t, events, "event", "connected"))
	assert.Equal(t, int64(1), sumFor(t, events, "event", "lost"))
}

func TestRecorder_RecordMessage(t *testing.T) {
	r, reader := newTestRecorder(t)

	r.RecordMessage("t/1", 3)
	r.RecordMessage("t/2", 7)

	data := collect(t, reader)
	assert.Equal(t, int64(2), sumFor(t, data["supermqtt.messages.received.total"], "", ""))
	assert.Equal(t, int64(10), sumFor(t, data["supermqtt.messages.received.bytes"], "", ""))
}

func TestNewRecorder_GlobalProvider(t *testing.T) {
	r, err := NewRecorder(nil)
	require.NoError(t, err)
	assert.NotPanics(t, func() { r.RecordOperation("publish", "ok", time.Millisecond) })
}

func TestInitProvider_Disabled(t *testing.T) {
	shutdown, err := InitProvider(context.Background(), config.MetricsConfig{Enabled: false}, "test")
	assert.ErrorIs(t, err, ErrDisabled)
	assert.Nil(t, shutdown)
}

func TestInitProvider_RegistersGlobal(t *testing.T) {
	prev := otel.GetMeterProvider()
	t.Cleanup(func() { otel.SetMeterProvider(prev) })

	shutdown, err := InitProvider(context.Background(), config.MetricsConfig{
		Enabled:     true,
		Endpoint:    "127.0.0.1:4317",
		ServiceName: "supermqtt-test",
		Interval:    60,
	}, "test")
	require.NoError(t, err)
	require.NotNil(t, shutdown)

	_, ok := otel.GetMeterProvider().(*sdkmetric.MeterProvider)
	assert.True(t, ok)

	// No collector is listening; only check that shutdown returns.
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_ = shutdown(ctx)
}
