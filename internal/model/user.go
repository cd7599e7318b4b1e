package model

import "time"

// User is an operator account for the reporting endpoints.
type User struct {
	ID           int
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}
