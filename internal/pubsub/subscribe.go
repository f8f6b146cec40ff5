package pubsub

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/supermqtt/internal/infrastructure/mqtt"
)

// Subscribe subscribes to each topic filter at QoS 0, connecting first if
// needed. It succeeds only if the broker granted every filter.
// An empty list succeeds without contacting the broker.
func (c *Client) Subscribe(ctx context.Context, topics ...string) Result {
	filters := make([]mqtt.TopicFilter, len(topics))
	for i, topic := range topics {
		filters[i] = mqtt.TopicFilter{Topic: topic, QoS: mqtt.AtMostOnce}
	}
	return c.SubscribeFilters(ctx, filters...)
}

// SubscribeFilters is Subscribe with a QoS per filter.
//
// A filter refused by the broker yields KindProtocolRejected carrying the
// SUBACK code of the first refused filter.
func (c *Client) SubscribeFilters(ctx context.Context, filters ...mqtt.TopicFilter) Result {
	if len(filters) == 0 {
		return okResult
	}

	subject := joinFilters(filters)
	if res := c.ensureConnected(ctx); !res.OK() {
		return res
	}

	start := time.Now()
	err := c.withTransport(func(t Transport) error {
		res, err := t.Subscribe(ctx, filters)
		if err != nil {
			return err
		}
		if len(res.Codes) != len(filters) {
			return fmt.Errorf("%w: %d return codes for %d filters", mqtt.ErrSubscribeFailed, len(res.Codes), len(filters))
		}
		for i, code := range res.Codes {
			if code > byte(mqtt.ExactlyOnce) {
				return &mqtt.ReasonCodeError{Op: "subscribe", Code: code, Topic: filters[i].Topic}
			}
		}
		return nil
	})
	if err != nil {
		return c.fail("subscribe", subject, start, err)
	}

	c.telemetry.RecordOperation("subscribe", KindOK.String(), time.Since(start))
	c.log.Debug("subscribed", "filters", subject)
	return okResult
}

// Unsubscribe removes subscriptions. Unlike Subscribe it does not connect:
// on a disconnected Client it reports KindNotConnected.
// An empty list succeeds without contacting the broker.
func (c *Client) Unsubscribe(ctx context.Context, topics ...string) Result {
	if len(topics) == 0 {
		return okResult
	}

	subject := strings.Join(topics, ",")

	start := time.Now()
	err := c.withTransport(func(t Transport) error {
		res, err := t.Unsubscribe(ctx, topics)
		if err != nil {
			return err
		}
		for i, code := range res.Codes {
			if code != 0 {
				return &mqtt.ReasonCodeError{Op: "unsubscribe", Code: code, Topic: topics[i]}
			}
		}
		return nil
	})
	if err != nil {
		return c.fail("unsubscribe", subject, start, err)
	}

	c.telemetry.RecordOperation("unsubscribe", KindOK.String(), time.Since(start))
	c.log.Debug("unsubscribed", "filters", subject)
	return okResult
}

func joinFilters(filters []mqtt.TopicFilter) string {
	topics := make([]string, len(filters))
	for i, f := range filters {
		topics[i] = f.Topic
	}
	return strings.Join(topics, ",")
}
