package workflows

import "fmt"

// StateMachine enforces grant status transitions
type StateMachine struct {
	allowedTransitions map[string][]string
}

// NewGrantStateMachine creates the state machine for the grant lifecycle.
// Exercise keeps a grant inside the vesting/exercised family; termination is
// one-way and leads either to further exercise within the window or to expiry.
func NewGrantStateMachine() *StateMachine {
	return &StateMachine{
		allowedTransitions: map[string][]string{
			"VESTING":             {"PARTIALLY_EXERCISED", "FULLY_EXERCISED", "TERMINATED"},
			"PARTIALLY_EXERCISED": {"PARTIALLY_EXERCISED", "FULLY_EXERCISED", "TERMINATED"},
			"FULLY_EXERCISED":     {},
			"TERMINATED":          {"TERMINATED", "EXPIRED"},
			"EXPIRED":             {},
		},
	}
}

// CanTransition checks if a status transition is allowed
func (sm *StateMachine) CanTransition(from, to string) bool {
	allowed, exists := sm.allowedTransitions[from]
	if !exists {
		return false
	}
	for _, allowedTo := range allowed {
		if allowedTo == to {
			return true
		}
	}
	return false
}

// GetAllowedTransitions returns the allowed next statuses for a given status
func (sm *StateMachine) GetAllowedTransitions(from string) []string {
	allowed, exists := sm.allowedTransitions[from]
	if !exists {
		return []string{}
	}
	return allowed
}

// Validate returns an error describing a disallowed transition.
func (sm *StateMachine) Validate(from, to string) error {
	if !sm.CanTransition(from, to) {
		return fmt.Errorf("invalid status transition %s -> %s", from, to)
	}
	return nil
}
