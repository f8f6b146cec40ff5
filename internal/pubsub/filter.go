package pubsub

import "github.com/nerrad567/supermqtt/internal/infrastructure/mqtt"

// FilterMessages wraps a message observer so it only sees topics matching
// at least one of filters. Wildcards follow MQTT rules. A message matching
// several overlapping filters reaches fn once.
func FilterMessages(filters []string, fn func(topic string, payload []byte) error) func(topic string, payload []byte) error {
	return func(topic string, payload []byte) error {
		for _, f := range filters {
			if mqtt.TopicMatches(f, topic) {
				return fn(topic, payload)
			}
		}
		return nil
	}
}
