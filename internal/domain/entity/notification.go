package entity

import "time"

// Notification is an in-app message for one user about one request
type Notification struct {
	ID               int64     `json:"id"`
	UserID           string    `json:"user_id"`
	NotificationType string    `json:"notification_type"`
	Title            string    `json:"title"`
	Message          string    `json:"message"`
	RelatedType      string    `json:"related_type"`
	RelatedID        int64     `json:"related_id"`
	ActionURL        string    `json:"action_url"`
	Priority         string    `json:"priority"`
	IsRead           bool      `json:"is_read"`
	CreatedAt        time.Time `json:"created_at"`
}
