package workflow

// State represents a request status in the approval lifecycle
type State string

const (
	StateDraft              State = "draft"
	StatePendingHead        State = "pending_head"
	StatePendingParentHead  State = "pending_parent_head"
	StatePendingAdmin       State = "pending_admin"
	StatePendingComptroller State = "pending_comptroller"
	StatePendingHR          State = "pending_hr"
	StatePendingVP          State = "pending_vp"
	StatePendingPresident   State = "pending_president"
	StateApproved           State = "approved"
	StateRejected           State = "rejected"
	StateReturned           State = "returned"
	StateCancelled          State = "cancelled"
)

var validStates = map[State]bool{
	StateDraft:              true,
	StatePendingHead:        true,
	StatePendingParentHead:  true,
	StatePendingAdmin:       true,
	StatePendingComptroller: true,
	StatePendingHR:          true,
	StatePendingVP:          true,
	StatePendingPresident:   true,
	StateApproved:           true,
	StateRejected:           true,
	StateReturned:           true,
	StateCancelled:          true,
}

var terminalStates = map[State]bool{
	StateApproved:  true,
	StateRejected:  true,
	StateCancelled: true,
}

// PendingStates lists the states in which an approver holds the request, in chain order
var PendingStates = []State{
	StatePendingHead,
	StatePendingParentHead,
	StatePendingAdmin,
	StatePendingComptroller,
	StatePendingHR,
	StatePendingVP,
	StatePendingPresident,
}

// IsTerminal returns true if the state is a terminal state (no further transitions allowed)
func (s State) IsTerminal() bool {
	return terminalStates[s]
}

// IsPending returns true while an approver in the chain holds the request
func (s State) IsPending() bool {
	_, ok := stageByState[s]
	return ok
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state is a valid workflow state
func (s State) IsValid() bool {
	return validStates[s]
}
