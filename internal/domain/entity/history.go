package entity

import "time"

// ApprovalHistory is one committed decision in a request's audit trail
type ApprovalHistory struct {
	ID             int64     `json:"id"`
	RequestID      int64     `json:"request_id"`
	ActorID        string    `json:"actor_id"`
	ActorRole      string    `json:"actor_role"`
	Action         string    `json:"action"`
	PreviousStatus string    `json:"previous_status"`
	NewStatus      string    `json:"new_status"`
	Comments       string    `json:"comments,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}
