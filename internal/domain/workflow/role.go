package workflow

// Role is an approver role in the chain
type Role string

const (
	RoleHead        Role = "head"
	RoleAdmin       Role = "admin"
	RoleComptroller Role = "comptroller"
	RoleHR          Role = "hr"
	RoleVP          Role = "vp"
	RolePresident   Role = "president"
)

// String returns the string representation of the role
func (r Role) String() string {
	return string(r)
}

// IsValid reports whether r is a role of the approval chain
func (r Role) IsValid() bool {
	switch r {
	case RoleHead, RoleAdmin, RoleComptroller, RoleHR, RoleVP, RolePresident:
		return true
	default:
		return false
	}
}

// Title is the human-readable role name used in notification text
func (r Role) Title() string {
	switch r {
	case RoleHead:
		return "Department Head"
	case RoleAdmin:
		return "Administrator"
	case RoleComptroller:
		return "Comptroller"
	case RoleHR:
		return "HR"
	case RoleVP:
		return "Vice President"
	case RolePresident:
		return "President"
	default:
		return string(r)
	}
}
