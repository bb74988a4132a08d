package workflow

// Stage is one named step of the approval chain. Each stage owns its own
// audit fields on the request record.
type Stage string

const (
	StageHead        Stage = "head"
	StageParentHead  Stage = "parent_head"
	StageAdmin       Stage = "admin"
	StageComptroller Stage = "comptroller"
	StageHR          Stage = "hr"
	StageVP          Stage = "vp"
	StagePresident   Stage = "president"
)

var stageByState = map[State]Stage{
	StatePendingHead:        StageHead,
	StatePendingParentHead:  StageParentHead,
	StatePendingAdmin:       StageAdmin,
	StatePendingComptroller: StageComptroller,
	StatePendingHR:          StageHR,
	StatePendingVP:          StageVP,
	StatePendingPresident:   StagePresident,
}

// StageFor returns the stage that holds a request in the given state
func StageFor(s State) (Stage, bool) {
	stage, ok := stageByState[s]
	return stage, ok
}

// ApproverRole returns the role allowed to approve a request in state s
func ApproverRole(s State) (Role, bool) {
	stage, ok := stageByState[s]
	if !ok {
		return "", false
	}
	return stage.Role(), true
}

// Role returns the role that acts on this stage. Parent-department heads
// act as heads.
func (s Stage) Role() Role {
	switch s {
	case StageHead, StageParentHead:
		return RoleHead
	case StageAdmin:
		return RoleAdmin
	case StageComptroller:
		return RoleComptroller
	case StageHR:
		return RoleHR
	case StageVP:
		return RoleVP
	case StagePresident:
		return RolePresident
	default:
		return ""
	}
}

// RequiresSignature reports whether approving this stage must capture a signature
func (s Stage) RequiresSignature() bool {
	switch s {
	case StageAdmin, StageComptroller:
		return false
	default:
		return true
	}
}

// String returns the string representation of the stage
func (s Stage) String() string {
	return string(s)
}

// RecipientRole returns the role whose members are asked to review a request
// that has just entered state s. Admin processing is a system stage and
// notifies nobody.
func RecipientRole(s State) (Role, bool) {
	stage, ok := stageByState[s]
	if !ok || stage == StageAdmin {
		return "", false
	}
	return stage.Role(), true
}
