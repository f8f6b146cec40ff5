package mqtt

import (
	"errors"
	"fmt"
)

// Domain-specific errors for MQTT operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotConnected is returned when attempting operations on a disconnected session.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrConnectionFailed is returned when a connection attempt fails.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrAuthenticationFailed matches CONNACK refusals for bad credentials
	// or missing authorisation (return codes 4 and 5).
	ErrAuthenticationFailed = errors.New("mqtt: authentication failed")

	// ErrPublishFailed is returned when a publish operation fails.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrSubscribeFailed is returned when a subscribe operation fails.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrUnsubscribeFailed is returned when an unsubscribe operation fails.
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")

	// ErrInvalidQoS is returned when an invalid QoS level is specified.
	// Valid QoS levels are 0, 1, or 2.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")

	// ErrInvalidTopic is returned for empty or malformed topic names and filters.
	ErrInvalidTopic = errors.New("mqtt: invalid topic")

	// ErrPayloadTooLarge is returned when a payload exceeds maxPayloadSize.
	ErrPayloadTooLarge = errors.New("mqtt: payload too large")

	// ErrTimeout is returned when an operation times out.
	ErrTimeout = errors.New("mqtt: operation timed out")
)

// ConnAckCode is an MQTT 3.1.1 CONNACK return code.
type ConnAckCode byte

// MQTT 3.1.1 CONNACK return codes.
const (
	ConnAccepted           ConnAckCode = 0x00
	ConnRefusedProtocol    ConnAckCode = 0x01
	ConnRefusedIDRejected  ConnAckCode = 0x02
	ConnRefusedUnavailable ConnAckCode = 0x03
	ConnRefusedBadAuth     ConnAckCode = 0x04
	ConnRefusedNotAuth     ConnAckCode = 0x05
)

// String returns a human-readable description of the CONNACK code.
func (c ConnAckCode) String() string {
	switch c {
	case ConnAccepted:
		return "connection accepted"
	case ConnRefusedProtocol:
		return "unacceptable protocol version"
	case ConnRefusedIDRejected:
		return "client identifier rejected"
	case ConnRefusedUnavailable:
		return "server unavailable"
	case ConnRefusedBadAuth:
		return "bad username or password"
	case ConnRefusedNotAuth:
		return "not authorized"
	default:
		return "unknown error"
	}
}

// refused reports whether c is a broker refusal rather than a local failure.
// paho reports network problems as 0xFE and protocol violations as 0xFF.
func (c ConnAckCode) refused() bool {
	return c >= ConnRefusedProtocol && c <= ConnRefusedNotAuth
}

// ReasonCodeError reports a broker acknowledgement carrying a failure code:
// a refused CONNACK, a SUBACK failure entry or a non-zero reason code.
type ReasonCodeError struct {
	// Op is the rejected operation: "connect", "publish", "subscribe" or "unsubscribe".
	Op string

	// Code is the broker's return or reason code.
	Code byte

	// Topic identifies the rejected filter for subscribe failures.
	Topic string

	// Err is the library error that accompanied the code, if any.
	Err error
}

func (e *ReasonCodeError) Error() string {
	desc := fmt.Sprintf("code 0x%02x", e.Code)
	if e.Op == "connect" {
		desc = fmt.Sprintf("%s (%s)", desc, ConnAckCode(e.Code))
	}
	if e.Topic != "" {
		return fmt.Sprintf("mqtt: %s %q rejected with %s", e.Op, e.Topic, desc)
	}
	return fmt.Sprintf("mqtt: %s rejected with %s", e.Op, desc)
}

// Unwrap returns the library error, if any.
func (e *ReasonCodeError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrAuthenticationFailed) match credential refusals.
func (e *ReasonCodeError) Is(target error) bool {
	if target != ErrAuthenticationFailed || e.Op != "connect" {
		return false
	}
	code := ConnAckCode(e.Code)
	return code == ConnRefusedBadAuth || code == ConnRefusedNotAuth
}
