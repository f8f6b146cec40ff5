package pubsub

import (
	"context"
	"errors"
	"fmt"

	"github.com/sony/gobreaker"

	"github.com/nerrad567/supermqtt/internal/infrastructure/mqtt"
)

// ResultKind classifies the outcome of a Client operation.
type ResultKind int

// Result kinds.
const (
	KindOK ResultKind = iota
	// KindNotConnected: no usable connection, or the connect circuit is open.
	KindNotConnected
	// KindTimeout: no acknowledgement in time, or the context ended first.
	KindTimeout
	// KindProtocolRejected: the broker answered with a failure code.
	KindProtocolRejected
	KindUnknown
)

// String returns a snake_case name, used as the telemetry outcome label.
func (k ResultKind) String() string {
	switch k {
	case KindOK:
		return "ok"
	case KindNotConnected:
		return "not_connected"
	case KindTimeout:
		return "timeout"
	case KindProtocolRejected:
		return "protocol_rejected"
	default:
		return "unknown"
	}
}

// Result is the outcome of Connect, Publish, Subscribe and Unsubscribe.
//
// Code is set for KindProtocolRejected only. Err carries the cause for
// every kind except KindOK, and is the same error sent to fault observers
// minus the operation prefix.
type Result struct {
	Kind ResultKind
	Code byte
	Err  error
}

// OK reports whether the operation succeeded.
func (r Result) OK() bool {
	return r.Kind == KindOK
}

func (r Result) String() string {
	switch {
	case r.Kind == KindOK:
		return "ok"
	case r.Kind == KindProtocolRejected:
		return fmt.Sprintf("%s (code 0x%02x): %v", r.Kind, r.Code, r.Err)
	default:
		return fmt.Sprintf("%s: %v", r.Kind, r.Err)
	}
}

var okResult = Result{Kind: KindOK}

// classify maps a transport error onto a Result.
func classify(err error) Result {
	if err == nil {
		return okResult
	}

	var rc *mqtt.ReasonCodeError
	switch {
	case errors.Is(err, mqtt.ErrNotConnected),
		errors.Is(err, gobreaker.ErrOpenState),
		errors.Is(err, gobreaker.ErrTooManyRequests):
		return Result{Kind: KindNotConnected, Err: err}
	case errors.Is(err, mqtt.ErrTimeout),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return Result{Kind: KindTimeout, Err: err}
	case errors.As(err, &rc):
		return Result{Kind: KindProtocolRejected, Code: rc.Code, Err: err}
	default:
		return Result{Kind: KindUnknown, Err: err}
	}
}

// protect runs fn and converts a panic into an error.
func protect(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pubsub: transport panic: %v", r)
		}
	}()
	return fn()
}
