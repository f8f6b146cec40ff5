// Package pubsub is a blocking publish/subscribe client for MQTT.
//
// A Client hides the asynchronous transport behind calls that wait for the
// broker's acknowledgement and return a Result. It has three parts:
//
//   - Connection management: the transport is created on first use, every
//     handshake uses a fresh client ID, and Connect on a live connection is
//     a no-op. Publish and Subscribe connect on demand; Unsubscribe does not.
//   - Operations: Publish, Subscribe, SubscribeFilters and Unsubscribe map
//     broker return codes onto a Result kind (NotConnected, Timeout,
//     ProtocolRejected, Unknown). Failures are also sent to fault observers.
//   - Events: OnFault, OnMessage and OnDisconnected register observers and
//     return a func that unregisters them. A panicking or failing observer is
//     reported as a fault and never stops delivery to the others.
//
// # Disconnect Events
//
// OnDisconnected fires once per connection loss the caller did not ask for.
// Client.Disconnect is silent.
//
// # Usage
//
//	c := pubsub.New(pubsub.ConnectionConfig{Host: "localhost", Port: 1883},
//	    pubsub.WithLogger(log))
//	stop := c.OnMessage(func(topic string, payload []byte) error {
//	    fmt.Printf("%s %s\n", topic, payload)
//	    return nil
//	})
//	defer stop()
//
//	if res := c.Subscribe(ctx, "sensors/#"); !res.OK() {
//	    return res.Err
//	}
//	res := c.Publish(ctx, "sensors/kitchen/temp", []byte("21.5"), pubsub.WithQoS(1))
package pubsub
