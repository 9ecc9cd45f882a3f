package broker

import (
	"errors"
	"fmt"
)

// The two failure classes every Broker call can produce. Callers must treat
// them differently: a rejection is terminal for that attempt, a transient
// failure is retried on the next cycle with no state assumed.

// RejectionError means the venue looked at the request and said no.
type RejectionError struct {
	Op     string
	Ticker string
	Reason string
}

func (e *RejectionError) Error() string {
	if e.Ticker != "" {
		return fmt.Sprintf("broker rejected %s %s: %s", e.Op, e.Ticker, e.Reason)
	}
	return fmt.Sprintf("broker rejected %s: %s", e.Op, e.Reason)
}

// TransientError wraps a timeout or connectivity failure. The request may or
// may not have reached the venue; the next cycle reconciles against broker
// state rather than assuming either outcome.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("broker %s: transient failure: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

func Reject(op, ticker, reason string) error {
	return &RejectionError{Op: op, Ticker: ticker, Reason: reason}
}

func Transient(op string, err error) error {
	return &TransientError{Op: op, Err: err}
}

func IsRejection(err error) bool {
	var re *RejectionError
	return errors.As(err, &re)
}

func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
