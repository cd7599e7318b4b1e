package model

import "time"

const (
	DeliveryStatusSent   = "sent"
	DeliveryStatusFailed = "failed"
)

// DeliveryLog is one append-only row per attempted send, admin
// notifications included.
type DeliveryLog struct {
	LogID        int
	FromEmail    string
	ToEmail      string
	Subject      string
	Body         string
	SentAt       time.Time
	Status       string
	ErrorMessage string
}

// DeliveryStatus carries the open-tracking state for a sent message.
// Mutated only by the tracking handler; opened is terminal once set.
type DeliveryStatus struct {
	ID         int
	EmailLogID int
	FromEmail  string
	ToEmail    string
	Sent       bool
	TrackingID string
	Opened     bool
	OpenedAt   *time.Time
	ViewCount  int
}
