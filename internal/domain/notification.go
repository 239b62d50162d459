package domain

import "time"

// NotificationType classifies why a team was notified.
type NotificationType string

const (
	NotificationNewDefect    NotificationType = "NEW_DEFECT"
	NotificationStatusUpdate NotificationType = "STATUS_UPDATE"
)

// NotificationStatus tracks delivery state of a notification row.
type NotificationStatus string

const (
	NotificationSent    NotificationStatus = "SENT"
	NotificationPending NotificationStatus = "PENDING"
)

// Notification records that a team was informed of an event on a defect.
// Rows are append-only.
type Notification struct {
	ID       int64
	TicketID string
	TeamName string
	Type     NotificationType
	Message  string
	SentAt   time.Time
	Status   NotificationStatus
}
