// Package model holds the persisted row shapes. State payloads are stored
// as JSON documents; the Go types in the owning packages stay the source of
// truth for their shape.
package model

import (
	"time"

	"gorm.io/datatypes"
)

// AllocatorState is a single-row table carrying the full bucket ledger.
type AllocatorState struct {
	ID        uint           `gorm:"primaryKey"`
	Payload   datatypes.JSON `gorm:"type:json"`
	UpdatedAt time.Time
}

// TrailRecord persists one ticker's trailing-stop state so a restart can
// restore the ratchet book without losing ratcheted stops.
type TrailRecord struct {
	Ticker    string         `gorm:"primaryKey;size:16"`
	Payload   datatypes.JSON `gorm:"type:json"`
	UpdatedAt time.Time
}
