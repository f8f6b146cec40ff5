package pubsub

import (
	"fmt"
	"sync"
)

// observers is a registration list for one event channel.
// Delivery follows registration order.
type observers[F any] struct {
	mu      sync.Mutex
	nextID  uint64
	entries []observer[F]
}

type observer[F any] struct {
	id uint64
	fn F
}

// add registers fn and returns an idempotent unregister func.
func (o *observers[F]) add(fn F) func() {
	o.mu.Lock()
	o.nextID++
	id := o.nextID
	o.entries = append(o.entries, observer[F]{id: id, fn: fn})
	o.mu.Unlock()

	return sync.OnceFunc(func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		for i, e := range o.entries {
			if e.id == id {
				o.entries = append(o.entries[:i:i], o.entries[i+1:]...)
				return
			}
		}
	})
}

// snapshot copies the current observers so delivery runs without the lock
// and an observer may unregister itself.
func (o *observers[F]) snapshot() []F {
	o.mu.Lock()
	defer o.mu.Unlock()
	fns := make([]F, len(o.entries))
	for i, e := range o.entries {
		fns[i] = e.fn
	}
	return fns
}

// relay multicasts faults, messages and disconnects to observers.
// A failing observer never prevents delivery to the others.
type relay struct {
	log Logger

	faults       observers[func(error)]
	messages     observers[func(topic string, payload []byte) error]
	disconnected observers[func(error)]
}

func (r *relay) fault(err error) {
	for _, fn := range r.faults.snapshot() {
		if perr := guard(func() error { fn(err); return nil }); perr != nil {
			// Re-dispatching would recurse into the failing observer.
			r.log.Error("fault observer failed", "error", perr, "fault", err)
		}
	}
}

func (r *relay) message(topic string, payload []byte) {
	for _, fn := range r.messages.snapshot() {
		if err := guard(func() error { return fn(topic, payload) }); err != nil {
			r.fault(newFault("message observer", topic, err))
		}
	}
}

func (r *relay) disconnect(cause error) {
	for _, fn := range r.disconnected.snapshot() {
		if err := guard(func() error { fn(cause); return nil }); err != nil {
			r.fault(newFault("disconnected observer", "", err))
		}
	}
}

// guard runs an observer and converts a panic into ErrObserverPanic.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrObserverPanic, r)
		}
	}()
	return fn()
}
