package workflow

import "context"

// StateMachine tracks the current state and validates transitions against a configured graph
type StateMachine interface {
	// State returns the current state
	State() State

	// CanFire returns true if the trigger has at least one transition out of the current state
	CanFire(trigger Trigger) bool

	// Destination resolves the state a trigger would move to without changing the machine
	Destination(ctx context.Context, trigger Trigger) (State, error)

	// Fire executes the trigger, transitioning to the new state if allowed
	Fire(ctx context.Context, trigger Trigger) error

	// PermittedTriggers returns all triggers configured for the current state
	PermittedTriggers() []Trigger
}
