package event

// Type identifies the type of domain event
type Type string

const (
	// TypeStatusChanged is emitted after every committed decision
	TypeStatusChanged   Type = "request.status_changed"
	TypeRequestApproved Type = "request.approved"
	TypeRequestRejected Type = "request.rejected"
	TypeRequestReturned Type = "request.returned"
)

// AllTypes lists every event type the engine emits
func AllTypes() []Type {
	return []Type{TypeStatusChanged, TypeRequestApproved, TypeRequestRejected, TypeRequestReturned}
}

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeStatusChanged,
		TypeRequestApproved,
		TypeRequestRejected,
		TypeRequestReturned:
		return true
	default:
		return false
	}
}
