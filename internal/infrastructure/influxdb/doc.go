// Package influxdb exports supermqtt client telemetry to InfluxDB v2.
//
// The Client implements pubsub.Telemetry, so it can be passed to
// pubsub.WithTelemetry directly or combined with the OpenTelemetry recorder
// through pubsub.MultiTelemetry.
//
// # Measurements
//
//   - mqtt_operations (tags: operation, outcome; field: duration_ms)
//   - mqtt_connections (tag: event; field: count)
//   - mqtt_messages (tag: topic; field: bytes)
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//	client.SetOnError(func(err error) { log.Warn("influxdb write failed", "error", err) })
//
// # Performance
//
// Writes are non-blocking and batched according to batch_size and
// flush_interval.
package influxdb
