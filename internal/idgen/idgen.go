package idgen

import (
	"github.com/google/uuid"
)

// ID prefixes for different records
const (
	PrefixSchedule = "sched_"
	PrefixEvent    = "evt_"
)

// NewSchedule generates a new schedule ID with sched_ prefix
func NewSchedule() string {
	return PrefixSchedule + uuid.New().String()
}

// NewEvent generates a new journal event ID with evt_ prefix
func NewEvent() string {
	return PrefixEvent + uuid.New().String()
}

// New generates a generic UUID without prefix (request IDs)
func New() string {
	return uuid.New().String()
}
