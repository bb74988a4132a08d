package workflow

import "errors"

var (
	// ErrInvalidTransition is returned when a state transition is not allowed
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrInvalidState is returned when a state is not valid
	ErrInvalidState = errors.New("invalid state")

	// ErrGuardFailed is returned when no guarded transition matches the request attributes
	ErrGuardFailed = errors.New("guard condition failed")

	// ErrInvalidRole is returned for a role outside the approval chain
	ErrInvalidRole = errors.New("invalid role")

	// ErrRoleMismatch is returned when the acting role does not own the current stage
	ErrRoleMismatch = errors.New("role does not match current stage")
)
