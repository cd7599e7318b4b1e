package model

// SenderAccount holds the relay credentials for one logical sender
// role. Exactly one active row is expected per role.
type SenderAccount struct {
	ID      int
	Role    string
	Email   string
	Token   string
	IsAdmin bool
}
