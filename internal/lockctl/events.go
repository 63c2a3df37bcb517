package lockctl

import (
	"context"
	"time"
)

// EventKind names something the controller did
type EventKind string

const (
	EventScheduleStarted   EventKind = "schedule_started"
	EventScheduleCancelled EventKind = "schedule_cancelled"
	EventScheduleFired     EventKind = "schedule_fired"
	EventWarningShown      EventKind = "warning_shown"
	EventLockSucceeded     EventKind = "lock_succeeded"
	EventLockFailed        EventKind = "lock_failed"
	EventPermissionChanged EventKind = "permission_changed"
)

// Event is one journal entry
type Event struct {
	ID         string
	Kind       EventKind
	ScheduleID string        // set for schedule and warning events
	Remaining  time.Duration // remaining time when the event happened
	Detail     string        // free-form: error code, permission name, etc.
	CreatedAt  time.Time
}

// EventRecorder persists events. Failures are logged and never change controller behaviour.
type EventRecorder interface {
	RecordEvent(ctx context.Context, event *Event) error
}

type nopRecorder struct{}

func (nopRecorder) RecordEvent(context.Context, *Event) error { return nil }
