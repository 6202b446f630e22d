package types

// RateAction is the action dimension of a rate limit key
type RateAction string

const (
	// ActionVerification covers user-initiated verification attempts
	ActionVerification RateAction = "verification"
	// ActionRecheck covers scheduler-driven rechecks
	ActionRecheck RateAction = "recheck"
)

// String returns the string representation of the rate action
func (a RateAction) String() string {
	return string(a)
}
