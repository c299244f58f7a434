// Package constants provides application-wide constants and timeouts.
package constants

import "time"

// Timeouts for various operations.
const (
	// MovePersistTimeout bounds a single move persistence request when the
	// configuration does not override it. Expiry counts as a failed move.
	MovePersistTimeout = 10 * time.Second

	// RefreshTimeout bounds a resynchronizing snapshot fetch issued after a
	// failed persistence request.
	RefreshTimeout = 15 * time.Second

	// QueueDrainTimeout is how long shutdown waits for queued persistence
	// requests before giving up.
	QueueDrainTimeout = 30 * time.Second

	// LiveReconnectMin and LiveReconnectMax bound the watcher's backoff.
	LiveReconnectMin = 500 * time.Millisecond
	LiveReconnectMax = 30 * time.Second
)

// Card and task statuses as stored by the backend.
const (
	StatusOpen   = "open"
	StatusClosed = "closed"
)
