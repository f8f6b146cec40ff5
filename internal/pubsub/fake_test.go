package pubsub

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/supermqtt/internal/infrastructure/mqtt"
)

// fakeTransport is an in-memory Transport with call counters.
type fakeTransport struct {
	mu       sync.Mutex
	handlers mqtt.Handlers

	connected bool
	lost      chan struct{}

	// Behaviour knobs, set before use.
	connectErr     error
	connectPanic   bool
	publishErr     error
	publishCode    byte
	blockPublish   bool
	publishStarted chan struct{}
	subCodes       []byte
	unsubCodes     []byte

	factoryCalls     int
	connectCalls     int
	disconnectCalls  int
	publishCalls     int
	subscribeCalls   int
	unsubscribeCalls int
	clientIDs        []string
	lastOpts         mqtt.ConnectOptions
	published        []mqtt.Message
	subscribed       [][]mqtt.TopicFilter
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{publishStarted: make(chan struct{}, 1)}
}

func (f *fakeTransport) factory(h mqtt.Handlers) Transport {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.factoryCalls++
	f.handlers = h
	return f
}

func (f *fakeTransport) Connect(_ context.Context, opts mqtt.ConnectOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectCalls++
	f.clientIDs = append(f.clientIDs, opts.ClientID)
	f.lastOpts = opts
	if f.connectPanic {
		panic("handshake exploded")
	}
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	f.lost = make(chan struct{})
	return nil
}

func (f *fakeTransport) Disconnect(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnectCalls++
	f.connected = false
	return nil
}

func (f *fakeTransport) Publish(ctx context.Context, msg mqtt.Message) (mqtt.PublishResult, error) {
	f.mu.Lock()
	f.publishCalls++
	f.published = append(f.published, msg)
	connected, block, lost := f.connected, f.blockPublish, f.lost
	code, err := f.publishCode, f.publishErr
	f.mu.Unlock()

	if !connected {
		return mqtt.PublishResult{}, mqtt.ErrNotConnected
	}
	if block {
		f.publishStarted <- struct{}{}
		select {
		case <-lost:
			return mqtt.PublishResult{}, fmt.Errorf("%w: %w", mqtt.ErrPublishFailed, mqtt.ErrNotConnected)
		case <-ctx.Done():
			return mqtt.PublishResult{}, fmt.Errorf("%w: %w", mqtt.ErrTimeout, ctx.Err())
		}
	}
	return mqtt.PublishResult{ReasonCode: code}, err
}

func (f *fakeTransport) Subscribe(_ context.Context, filters []mqtt.TopicFilter) (mqtt.SubscribeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribeCalls++
	f.subscribed = append(f.subscribed, filters)
	if !f.connected {
		return mqtt.SubscribeResult{}, mqtt.ErrNotConnected
	}
	if f.subCodes != nil {
		return mqtt.SubscribeResult{Codes: f.subCodes}, nil
	}
	codes := make([]byte, len(filters))
	for i, flt := range filters {
		codes[i] = byte(flt.QoS)
	}
	return mqtt.SubscribeResult{Codes: codes}, nil
}

func (f *fakeTransport) Unsubscribe(_ context.Context, topics []string) (mqtt.UnsubscribeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubscribeCalls++
	if !f.connected {
		return mqtt.UnsubscribeResult{}, mqtt.ErrNotConnected
	}
	if f.unsubCodes != nil {
		return mqtt.UnsubscribeResult{Codes: f.unsubCodes}, nil
	}
	return mqtt.UnsubscribeResult{Codes: make([]byte, len(topics))}, nil
}

func (f *fakeTransport) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

// drop simulates a broker-side connection loss.
func (f *fakeTransport) drop(err error) {
	f.mu.Lock()
	f.connected = false
	if f.lost != nil {
		close(f.lost)
		f.lost = nil
	}
	h := f.handlers.OnConnectionLost
	f.mu.Unlock()

	if h != nil {
		h(err)
	}
}

// dropDeferred takes the connection down like drop but holds the loss
// callback back, as paho does while an observer is still running. The
// returned func delivers it.
func (f *fakeTransport) dropDeferred(err error) func() {
	f.mu.Lock()
	f.connected = false
	if f.lost != nil {
		close(f.lost)
		f.lost = nil
	}
	h := f.handlers.OnConnectionLost
	f.mu.Unlock()

	return func() {
		if h != nil {
			h(err)
		}
	}
}

// deliver simulates an inbound message.
func (f *fakeTransport) deliver(topic string, payload []byte) {
	f.mu.Lock()
	h := f.handlers.OnMessage
	f.mu.Unlock()
	h(topic, payload)
}

func (f *fakeTransport) set(fn func(f *fakeTransport)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeTransport) counts() (connect, publish, subscribe, unsubscribe int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connectCalls, f.publishCalls, f.subscribeCalls, f.unsubscribeCalls
}

// faultLog collects faults from an observer.
type faultLog struct {
	mu     sync.Mutex
	faults []error
}

func (l *faultLog) add(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.faults = append(l.faults, err)
}

func (l *faultLog) all() []error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]error(nil), l.faults...)
}

// recordingTelemetry captures Telemetry calls.
type recordingTelemetry struct {
	mu         sync.Mutex
	operations []string
	events     []string
	messages   int
}

func (r *recordingTelemetry) RecordOperation(op, outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.operations = append(r.operations, op+":"+outcome)
}

func (r *recordingTelemetry) RecordConnection(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingTelemetry) RecordMessage(string, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages++
}
