package pubsub

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/supermqtt/internal/infrastructure/mqtt"
)

type publishOptions struct {
	qos    mqtt.QoS
	retain bool
}

// PublishOption configures a single Publish call.
type PublishOption func(*publishOptions)

// WithQoS sets the delivery guarantee from an integer level (see QoSFromLevel).
func WithQoS(level int) PublishOption {
	return func(o *publishOptions) {
		o.qos = QoSFromLevel(level)
	}
}

// WithRetain asks the broker to keep the message for future subscribers.
func WithRetain(retain bool) PublishOption {
	return func(o *publishOptions) {
		o.retain = retain
	}
}

// Publish sends payload to topic, connecting first if needed, and blocks
// until the broker acknowledges it according to the QoS level.
//
// Defaults: QoS 0, not retained. When the implicit connect fails its Result
// is returned and nothing is sent.
func (c *Client) Publish(ctx context.Context, topic string, payload []byte, opts ...PublishOption) Result {
	var po publishOptions
	for _, opt := range opts {
		opt(&po)
	}

	if res := c.ensureConnected(ctx); !res.OK() {
		return res
	}

	start := time.Now()
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return c.fail("publish", topic, start, fmt.Errorf("%w: rate limited: %w", mqtt.ErrTimeout, err))
		}
	}

	msg := mqtt.Message{
		Topic:   topic,
		Payload: payload,
		QoS:     po.qos,
		Retain:  po.retain,
	}

	err := c.withTransport(func(t Transport) error {
		res, err := t.Publish(ctx, msg)
		if err != nil {
			return err
		}
		if res.ReasonCode != 0 {
			return &mqtt.ReasonCodeError{Op: "publish", Code: res.ReasonCode, Topic: topic}
		}
		return nil
	})
	if err != nil {
		return c.fail("publish", topic, start, err)
	}

	c.telemetry.RecordOperation("publish", KindOK.String(), time.Since(start))
	c.log.Debug("published", "topic", topic, "qos", po.qos.String(), "bytes", len(payload))
	return okResult
}
