package storage

import (
	"context"
	"errors"
	"nosleep/internal/lockctl"
	"time"
)

// ErrEventNotFound is returned when an event ID is unknown
var ErrEventNotFound = errors.New("event not found")

// EventFilter narrows ListEvents. Zero values match everything.
type EventFilter struct {
	Kind       lockctl.EventKind
	ScheduleID string
	Since      time.Time
	Limit      int // newest N events; 0 means DefaultListLimit
}

// DefaultListLimit caps ListEvents when no limit is given
const DefaultListLimit = 100

// Journal is the append-only audit trail of lock activity. It is never read
// back into controller state.
type Journal interface {
	lockctl.EventRecorder

	// Events
	GetEvent(ctx context.Context, id string) (*lockctl.Event, error)
	ListEvents(ctx context.Context, filter EventFilter) ([]*lockctl.Event, error)
	PruneEvents(ctx context.Context, before time.Time) (int64, error)

	// Lifecycle
	Close() error
}
