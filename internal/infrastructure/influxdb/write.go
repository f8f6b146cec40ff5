package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	measurementOperations  = "mqtt_operations"
	measurementConnections = "mqtt_connections"
	measurementMessages    = "mqtt_messages"
)

// RecordOperation writes one operation outcome with its latency.
//
// Example line:
//
//	mqtt_operations,operation=publish,outcome=ok duration_ms=1.8 1700000000000000000
func (c *Client) RecordOperation(op, outcome string, d time.Duration) {
	c.write(operationPoint(op, outcome, d, time.Now()))
}

// RecordConnection writes a connection lifecycle event.
func (c *Client) RecordConnection(event string) {
	c.write(connectionPoint(event, time.Now()))
}

// RecordMessage writes the size of an inbound message, tagged by topic.
func (c *Client) RecordMessage(topic string, size int) {
	c.write(messagePoint(topic, size, time.Now()))
}

func (c *Client) write(p *write.Point) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(p)
}

func operationPoint(op, outcome string, d time.Duration, ts time.Time) *write.Point {
	return write.NewPoint(
		measurementOperations,
		map[string]string{
			"operation": op,
			"outcome":   outcome,
		},
		map[string]interface{}{
			"duration_ms": float64(d) / float64(time.Millisecond),
		},
		ts,
	)
}

func connectionPoint(event string, ts time.Time) *write.Point {
	return write.NewPoint(
		measurementConnections,
		map[string]string{"event": event},
		map[string]interface{}{"count": int64(1)},
		ts,
	)
}

func messagePoint(topic string, size int, ts time.Time) *write.Point {
	return write.NewPoint(
		measurementMessages,
		map[string]string{"topic": topic},
		map[string]interface{}{"bytes": int64(size)},
		ts,
	)
}
