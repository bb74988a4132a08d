package workflow

import "fmt"

// Policy computes the next status of a travel or seminar request.
// It is pure: the same inputs always yield the same output and nothing is persisted.
type Policy struct {
	builder StateMachineBuilder
}

// NewTravelPolicy builds the approval chain for travel orders and seminars:
// head -> parent head -> admin -> comptroller -> HR -> VP -> president,
// with budget and hierarchy shortcuts.
func NewTravelPolicy() *Policy {
	b := NewBuilder()

	hasParent := func(a Attributes) bool { return a.HasParentDepartment }
	hasBudget := func(a Attributes) bool { return a.HasBudget }
	noBudget := func(a Attributes) bool { return !a.HasBudget }
	needsPresident := func(a Attributes) bool { return a.RequesterIsHead || a.ExceedsThreshold() }

	b.Configure(StatePendingHead).
		PermitIf(TriggerApprove, StatePendingParentHead, hasParent).
		PermitIf(TriggerApprove, StatePendingComptroller, hasBudget).
		PermitIf(TriggerApprove, StatePendingAdmin, noBudget)

	b.Configure(StatePendingParentHead).
		PermitIf(TriggerApprove, StatePendingComptroller, hasBudget).
		PermitIf(TriggerApprove, StatePendingAdmin, noBudget)

	b.Configure(StatePendingAdmin).
		PermitIf(TriggerApprove, StatePendingComptroller, hasBudget).
		PermitIf(TriggerApprove, StatePendingHR, noBudget)

	b.Configure(StatePendingComptroller).
		Permit(TriggerApprove, StatePendingHR)

	b.Configure(StatePendingHR).
		Permit(TriggerApprove, StatePendingVP)

	b.Configure(StatePendingVP).
		PermitIf(TriggerApprove, StatePendingPresident, needsPresident).
		Permit(TriggerApprove, StateApproved)

	b.Configure(StatePendingPresident).
		Permit(TriggerApprove, StateApproved)

	// Any approver in the chain may end or send back a pending request.
	for _, s := range PendingStates {
		b.Configure(s).
			Permit(TriggerReject, StateRejected).
			Permit(TriggerReturn, StateReturned)
	}

	return &Policy{builder: b}
}

// Next returns the status a request moves to when role applies trigger in state current.
func (p *Policy) Next(current State, role Role, trigger Trigger, attrs Attributes) (State, error) {
	if !current.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidState, current)
	}
	if !role.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	if !trigger.IsValid() {
		return "", fmt.Errorf("%w: unknown decision %q", ErrInvalidTransition, trigger)
	}

	if trigger == TriggerApprove && current.IsPending() {
		expected, _ := ApproverRole(current)
		if role != expected {
			return "", fmt.Errorf("%w: %s cannot approve a request in %s", ErrRoleMismatch, role, current)
		}
	}

	machine := p.builder.Build(current)
	if err := machine.Fire(trigger, attrs); err != nil {
		return "", err
	}
	return machine.State(), nil
}

// Permitted lists the decisions available for a request in state s
func (p *Policy) Permitted(s State) []Trigger {
	if !s.IsValid() {
		return []Trigger{}
	}
	return p.builder.Build(s).PermittedTriggers()
}
