package entity

// Request type constants
const (
	RequestTypeTravelOrder = "travel_order"
	RequestTypeSeminar     = "seminar"
)

// Notification type constants
const (
	NotificationTypePendingReview = "request_pending_review"
	NotificationTypeApproved      = "request_approved"
	NotificationTypeRejected      = "request_rejected"
	NotificationTypeReturned      = "request_returned"
)

// Notification priority constants
const (
	PriorityHigh   = "high"
	PriorityNormal = "normal"
)

// Workflow metadata keys
const (
	MetadataNextApproverID   = "next_approver_id"
	MetadataNextApproverRole = "next_approver_role"
)
