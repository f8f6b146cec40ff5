package mqtt

import (
	"context"
	"fmt"
)

// Maximum payload size for MQTT messages (1MB).
// This prevents resource exhaustion and aligns with typical broker limits.
const maxPayloadSize = 1 << 20 // 1MB

// Publish sends a message and blocks until the broker acknowledges it.
//
// QoS Levels:
//   - AtMostOnce: returns once the PUBLISH is written
//   - AtLeastOnce: waits for PUBACK
//   - ExactlyOnce: waits for PUBCOMP
//
// Returns:
//   - PublishResult: ReasonCode 0 on success
//   - error: ErrInvalidTopic, ErrInvalidQoS, ErrPayloadTooLarge, ErrNotConnected,
//     or ErrPublishFailed wrapping the cause (ErrTimeout on timeout)
func (s *Session) Publish(ctx context.Context, msg Message) (PublishResult, error) {
	if err := ValidateTopicName(msg.Topic); err != nil {
		return PublishResult{}, err
	}
	if !msg.QoS.Valid() {
		return PublishResult{}, ErrInvalidQoS
	}
	if len(msg.Payload) > maxPayloadSize {
		return PublishResult{}, fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPayloadTooLarge, len(msg.Payload), maxPayloadSize)
	}

	client, err := s.current()
	if err != nil {
		return PublishResult{}, err
	}

	token := client.Publish(msg.Topic, byte(msg.QoS), msg.Retain, msg.Payload)
	if err := waitToken(ctx, token, s.cfg.OperationTimeout); err != nil {
		return PublishResult{}, fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	return PublishResult{ReasonCode: 0}, nil
}
