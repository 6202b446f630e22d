package types

import "fmt"

// EventType classifies what triggered a verification event
type EventType string

const (
	// EventAutoRecheck is a scheduler-driven recheck with no human initiator
	EventAutoRecheck EventType = "auto_recheck"
	// EventUserCheck is a check explicitly requested by the user themselves
	EventUserCheck EventType = "user_check"
	// EventAdminCheck is a check explicitly requested by an administrator
	EventAdminCheck EventType = "admin_check"
)

// AllEventTypes returns all valid event types
func AllEventTypes() []EventType {
	return []EventType{
		EventAutoRecheck,
		EventUserCheck,
		EventAdminCheck,
	}
}

// IsValid checks if the event type is valid
func (e EventType) IsValid() bool {
	switch e {
	case EventAutoRecheck, EventUserCheck, EventAdminCheck:
		return true
	default:
		return false
	}
}

// Interactive reports whether the event was triggered by a human rather than
// the background scheduler. Interactive no-change events still produce a
// header-only audit record; automatic ones are suppressed outright.
func (e EventType) Interactive() bool {
	return e == EventUserCheck || e == EventAdminCheck
}

// String returns the string representation of the event type
func (e EventType) String() string {
	return string(e)
}

// ParseEventType parses a string into an EventType
func ParseEventType(s string) (EventType, error) {
	et := EventType(s)
	if !et.IsValid() {
		return "", fmt.Errorf("invalid event type: %s", s)
	}
	return et, nil
}
