package event

import "context"

// Store persists and retrieves events.
type Store interface {
	// Append persists one or more events atomically.
	Append(ctx context.Context, events ...Event) error
	// Load returns all events for an aggregate, ordered by version.
	Load(ctx context.Context, aggregateID string) ([]Event, error)
	// LoadAfter returns the events of an aggregate with a version greater
	// than version, ordered by version.
	LoadAfter(ctx context.Context, aggregateID string, version int) ([]Event, error)
}
