package pubsub

import "fmt"

// FaultError is the error delivered to fault observers. Op names the
// facade operation or observer kind that failed and Subject the topic or
// broker address it was acting on.
type FaultError struct {
	Op      string
	Subject string
	Err     error
}

func (e *FaultError) Error() string {
	if e.Subject == "" {
		return fmt.Sprintf("pubsub: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("pubsub: %s %q: %v", e.Op, e.Subject, e.Err)
}

func (e *FaultError) Unwrap() error { return e.Err }

func newFault(op, subject string, err error) error {
	return &FaultError{Op: op, Subject: subject, Err: err}
}
