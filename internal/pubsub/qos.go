package pubsub

import "github.com/nerrad567/supermqtt/internal/infrastructure/mqtt"

// QoSFromLevel maps 0, 1 and 2 onto the matching QoS. Any other level,
// negative or too large, is treated as AtMostOnce.
func QoSFromLevel(level int) mqtt.QoS {
	switch level {
	case 1:
		return mqtt.AtLeastOnce
	case 2:
		return mqtt.ExactlyOnce
	default:
		return mqtt.AtMostOnce
	}
}
