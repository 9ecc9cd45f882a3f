// Package audit records the decision trail: every order, rejection, stop
// move and halt, append-only, so a session can be reconstructed after the
// fact.
package audit

import (
	"time"

	"github.com/google/uuid"
)

// Kind classifies an audit event.
type Kind string

const (
	KindEntry      Kind = "entry"
	KindExit       Kind = "exit"
	KindRejection  Kind = "rejection"
	KindAdjustment Kind = "adjustment"
	KindStopMove   Kind = "stop_move"
	KindHalt       Kind = "halt"
	KindResume     Kind = "resume"
	KindCancel     Kind = "cancel"
	KindNote       Kind = "note"
)

type Event struct {
	ID     string    `json:"id"`
	At     time.Time `json:"at"`
	Kind   Kind      `json:"kind"`
	Ticker string    `json:"ticker,omitempty"`
	Detail string    `json:"detail"`
}

// NewEvent stamps a fresh event.
func NewEvent(kind Kind, ticker, detail string, at time.Time) Event {
	return Event{ID: uuid.NewString(), At: at, Kind: kind, Ticker: ticker, Detail: detail}
}

// Recorder is an append-only sink. Record must not block the trading cycle
// on failure; implementations log and drop instead of propagating errors.
type Recorder interface {
	Record(ev Event)
	Recent(limit int) ([]Event, error)
	Close() error
}
