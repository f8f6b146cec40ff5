// Package mqtt is the MQTT 3.1.1 transport used by the pubsub facade.
//
// A Session owns at most one paho client at a time. Each Connect builds a
// fresh paho client with the caller's ClientID, because paho clients are
// not safe to reuse after Disconnect. The Session itself is long-lived and
// keeps the Handlers installed at construction across reconnects.
//
// # Blocking Model
//
// paho is token based. Every Session method waits for its token and gives
// up when the configured timeout expires or the context is cancelled,
// whichever comes first. Timeouts are reported as ErrTimeout.
//
// # Events
//
//   - Inbound messages reach Handlers.OnMessage through paho's default
//     publish handler, in arrival order.
//   - An unexpected connection loss calls Handlers.OnConnectionLost once.
//     Session.Disconnect never triggers it.
//
// # Security Considerations
//
//   - ConnectOptions.TLS selects ssl:// with TLS 1.2 as the floor
//   - Credentials are sent only when a username is set
//
// # Usage
//
//	s := mqtt.NewSession(mqtt.DefaultSessionConfig(), mqtt.Handlers{
//	    OnMessage: func(topic string, payload []byte) { ... },
//	})
//	err := s.Connect(ctx, mqtt.ConnectOptions{Host: "localhost", Port: 1883, ClientID: id})
//	_, err = s.Publish(ctx, mqtt.Message{Topic: "t/1", Payload: []byte("hi"), QoS: mqtt.AtLeastOnce})
package mqtt
