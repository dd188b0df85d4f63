// Package events publishes a record of every successful lookup.
package events

import (
	"context"
	"time"
)

// LookupEvent describes one successful lookup.
type LookupEvent struct {
	City          string    `json:"city"`
	CanonicalName string    `json:"canonicalName"`
	Latitude      float64   `json:"latitude"`
	Longitude     float64   `json:"longitude"`
	Cached        bool      `json:"cached"`
	OccurredAt    time.Time `json:"occurredAt"`
}

// Publisher hands lookup events to a sink. Publish must not block on the
// sink for longer than ctx allows.
type Publisher interface {
	Publish(ctx context.Context, ev LookupEvent) error
}

// Noop discards every event.
type Noop struct{}

func (Noop) Publish(context.Context, LookupEvent) error { return nil }
