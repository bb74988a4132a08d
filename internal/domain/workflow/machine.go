package workflow

// StateMachine tracks the current state of one request and validates transitions
type StateMachine interface {
	// State returns the current state
	State() State

	// CanFire returns true if the trigger is configured for the current state
	CanFire(trigger Trigger) bool

	// Fire evaluates the guarded transitions for trigger against attrs and moves to the first match
	Fire(trigger Trigger, attrs Attributes) error

	// PermittedTriggers returns all triggers configured for the current state
	PermittedTriggers() []Trigger
}
