// Package metrics exports supermqtt client measurements through OpenTelemetry.
//
// InitProvider installs a global MeterProvider that pushes to an OTLP/gRPC
// collector. NewRecorder creates the instruments on any MeterProvider and
// satisfies pubsub.Telemetry.
//
// # Instruments
//
//   - supermqtt.operations.total{operation, outcome}
//   - supermqtt.operation.duration{operation, outcome} (seconds)
//   - supermqtt.connection.events.total{event}
//   - supermqtt.messages.received.total
//   - supermqtt.messages.received.bytes
//
// Topics are not used as attributes to keep cardinality bounded.
package metrics
