package journal

import (
	"context"
	"errors"
	"time"

	"github.com/nerrad567/supermqtt/internal/infrastructure/mqtt"
	"github.com/nerrad567/supermqtt/internal/pubsub"
)

// writeTimeout bounds a single journal insert made from an observer.
const writeTimeout = 2 * time.Second

// Source is the part of *pubsub.Client the journal listens to.
type Source interface {
	OnFault(fn func(err error)) func()
	OnDisconnected(fn func(err error)) func()
	ClientID() string
}

// Logger is the logging surface Attach needs.
type Logger interface {
	Warn(msg string, args ...any)
}

// Attach records every fault and unexpected disconnect raised by src into
// repo. A failed insert is logged, never re-raised as a fault. The returned
// func detaches both observers.
func Attach(src Source, repo Repository, log Logger) func() {
	write := func(e *Entry) {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		if err := repo.Create(ctx, e); err != nil {
			log.Warn("journal write failed", "kind", e.Kind, "error", err)
		}
	}

	stopFaults := src.OnFault(func(err error) {
		write(faultEntry(src.ClientID(), err))
	})
	stopDisconnects := src.OnDisconnected(func(err error) {
		write(disconnectEntry(src.ClientID(), err))
	})

	return func() {
		stopFaults()
		stopDisconnects()
	}
}

func faultEntry(clientID string, err error) *Entry {
	e := &Entry{Kind: KindFault, ClientID: clientID, Message: errorText(err)}

	var fe *pubsub.FaultError
	if errors.As(err, &fe) {
		e.Operation = fe.Op
		if fe.Subject != "" {
			e.Details = map[string]any{"subject": fe.Subject}
		}
	}

	var rc *mqtt.ReasonCodeError
	if errors.As(err, &rc) {
		if e.Details == nil {
			e.Details = map[string]any{}
		}
		e.Details["reason_code"] = int(rc.Code)
	}
	return e
}

func disconnectEntry(clientID string, cause error) *Entry {
	return &Entry{
		Kind:      KindDisconnected,
		Operation: "connection_lost",
		ClientID:  clientID,
		Message:   errorText(cause),
	}
}

func errorText(err error) string {
	if err == nil {
		return "connection lost"
	}
	return err.Error()
}
