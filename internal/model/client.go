package model

import "time"

// ServiceClient is a calling service authorized to use the send API
// via a static token.
type ServiceClient struct {
	UserID      string
	ServiceName string
	APIToken    string
	IsActive    bool
	CreatedAt   time.Time
}
