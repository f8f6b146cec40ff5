package mqtt

import (
	"context"
	"fmt"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Subscribe requests all filters in a single SUBSCRIBE packet and blocks
// until the SUBACK arrives.
//
// Matching messages are delivered through Handlers.OnMessage; no
// per-filter callback is registered, so overlapping filters never cause a
// message to be delivered twice.
//
// Returns:
//   - SubscribeResult: one code per filter in request order
//   - error: validation errors, ErrNotConnected, or ErrSubscribeFailed wrapping the cause
func (s *Session) Subscribe(ctx context.Context, filters []TopicFilter) (SubscribeResult, error) {
	if len(filters) == 0 {
		return SubscribeResult{}, nil
	}

	request := make(map[string]byte, len(filters))
	for _, f := range filters {
		if err := ValidateTopicFilter(f.Topic); err != nil {
			return SubscribeResult{}, err
		}
		if !f.QoS.Valid() {
			return SubscribeResult{}, ErrInvalidQoS
		}
		request[f.Topic] = byte(f.QoS)
	}

	client, err := s.current()
	if err != nil {
		return SubscribeResult{}, err
	}

	token := client.SubscribeMultiple(request, nil)
	if err := waitToken(ctx, token, s.cfg.OperationTimeout); err != nil {
		return SubscribeResult{}, fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}

	granted := map[string]byte{}
	if st, ok := token.(*pahomqtt.SubscribeToken); ok {
		granted = st.Result()
	}

	codes := make([]byte, len(filters))
	for i, f := range filters {
		code, ok := granted[f.Topic]
		if !ok {
			code = SubackFailure
		}
		codes[i] = code
	}

	return SubscribeResult{Codes: codes}, nil
}

// Unsubscribe removes the listed subscriptions and blocks until the
// UNSUBACK arrives.
//
// Returns:
//   - UnsubscribeResult: a zero code per topic once confirmed
//   - error: validation errors, ErrNotConnected, or ErrUnsubscribeFailed wrapping the cause
func (s *Session) Unsubscribe(ctx context.Context, topics []string) (UnsubscribeResult, error) {
	if len(topics) == 0 {
		return UnsubscribeResult{}, nil
	}

	for _, topic := range topics {
		if err := ValidateTopicFilter(topic); err != nil {
			return UnsubscribeResult{}, err
		}
	}

	client, err := s.current()
	if err != nil {
		return UnsubscribeResult{}, err
	}

	token := client.Unsubscribe(topics...)
	if err := waitToken(ctx, token, s.cfg.OperationTimeout); err != nil {
		return UnsubscribeResult{}, fmt.Errorf("%w: %w", ErrUnsubscribeFailed, err)
	}

	return UnsubscribeResult{Codes: make([]byte, len(topics))}, nil
}
