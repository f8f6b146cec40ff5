package pubsub

import "time"

// Connection events passed to Telemetry.RecordConnection.
const (
	EventConnected    = "connected"
	EventDisconnected = "disconnected"
	EventLost         = "lost"
	EventFailed       = "failed"
)

// Telemetry receives operation measurements from a Client.
//
// Implementations must be safe for concurrent use and must not block:
// RecordMessage runs on the transport's delivery goroutine.
type Telemetry interface {
	// RecordOperation is called once per connect, publish, subscribe and
	// unsubscribe with the ResultKind name as outcome.
	RecordOperation(op, outcome string, d time.Duration)
	RecordConnection(event string)
	RecordMessage(topic string, size int)
}

// MultiTelemetry fans measurements out to several sinks.
type MultiTelemetry []Telemetry

func (m MultiTelemetry) RecordOperation(op, outcome string, d time.Duration) {
	for _, t := range m {
		t.RecordOperation(op, outcome, d)
	}
}

func (m MultiTelemetry) RecordConnection(event string) {
	for _, t := range m {
		t.RecordConnection(event)
	}
}

func (m MultiTelemetry) RecordMessage(topic string, size int) {
	for _, t := range m {
		t.RecordMessage(topic, size)
	}
}

type nopTelemetry struct{}

func (nopTelemetry) RecordOperation(string, string, time.Duration) {}
func (nopTelemetry) RecordConnection(string)                       {}
func (nopTelemetry) RecordMessage(string, int)                     {}
