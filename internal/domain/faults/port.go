package faults

import "context"

// EventStore persists recorded events (append-only, bounded)
type EventStore interface {
	Append(e Event) error
	Recent(limit int) ([]Event, error)
}

// Notifier delivers escalated event summaries. A false return means the
// notification was not delivered; it must never panic or block recording.
type Notifier interface {
	Notify(ctx context.Context, e Event, recentCount int) bool
}
