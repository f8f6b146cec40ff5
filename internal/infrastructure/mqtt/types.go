package mqtt

import (
	"crypto/tls"
	"time"
)

// QoS is an MQTT delivery guarantee.
type QoS byte

// QoS levels.
const (
	// AtMostOnce is fire and forget.
	AtMostOnce QoS = 0
	// AtLeastOnce guarantees delivery, possibly duplicated.
	AtLeastOnce QoS = 1
	// ExactlyOnce guarantees a single delivery at the cost of a four-way handshake.
	ExactlyOnce QoS = 2
)

// SubackFailure is the SUBACK return code for a refused filter.
const SubackFailure byte = 0x80

// Valid reports whether q is one of the three defined levels.
func (q QoS) Valid() bool {
	return q <= ExactlyOnce
}

func (q QoS) String() string {
	switch q {
	case AtMostOnce:
		return "at-most-once"
	case AtLeastOnce:
		return "at-least-once"
	case ExactlyOnce:
		return "exactly-once"
	default:
		return "invalid"
	}
}

// ConnectOptions describes one connection attempt.
type ConnectOptions struct {
	Host     string
	Port     int
	Username string
	Password string

	// ClientID must be unique per attempt; the broker drops an older session
	// that presents the same identifier.
	ClientID string

	TLS bool

	// TLSConfig overrides the default TLS 1.2+ configuration when TLS is set.
	TLSConfig *tls.Config

	// KeepAlive is the PINGREQ interval. Zero uses defaultKeepAlive.
	KeepAlive time.Duration

	CleanSession bool
}

// Message is an outbound application message.
type Message struct {
	Topic   string
	Payload []byte
	QoS     QoS
	Retain  bool
}

// TopicFilter is a subscription request for one filter.
type TopicFilter struct {
	Topic string
	QoS   QoS
}

// PublishResult carries the broker's verdict on a publish.
// MQTT 3.1.1 acknowledgements have no reason code, so success is always 0.
type PublishResult struct {
	ReasonCode byte
}

// SubscribeResult holds one SUBACK return code per requested filter, in request order.
// Codes 0-2 are the granted QoS; SubackFailure means refused.
type SubscribeResult struct {
	Codes []byte
}

// UnsubscribeResult holds one result code per topic, in request order.
// MQTT 3.1.1 UNSUBACK carries no codes, so a confirmed unsubscribe reports 0 for every topic.
type UnsubscribeResult struct {
	Codes []byte
}

// Handlers receives asynchronous session events.
//
// Both callbacks run on paho goroutines. OnMessage is invoked sequentially in
// arrival order; it must not block on further operations of the same session.
type Handlers struct {
	OnMessage        func(topic string, payload []byte)
	OnConnectionLost func(err error)
}
