package workflow

// Trigger is the decision an approver submits against a request
type Trigger string

const (
	TriggerApprove Trigger = "approve"
	TriggerReject  Trigger = "reject"
	TriggerReturn  Trigger = "return"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}

// IsValid reports whether t is one of the supported decisions
func (t Trigger) IsValid() bool {
	switch t {
	case TriggerApprove, TriggerReject, TriggerReturn:
		return true
	default:
		return false
	}
}
