package model

import "time"

// ScheduledEmail is one deferred send for a single recipient
// identifier. The scheduler flips IsSent exactly once after a
// successful dispatch and never back.
type ScheduledEmail struct {
	ID           int
	FromRole     string
	ToEmail      string
	Subject      string
	Body         string
	ContentType  string
	Attachments  []string
	TemplateName string
	ScheduledAt  time.Time
	IsSent       bool
	CreatedAt    time.Time
}
