package model

type Group struct {
	GroupID     string
	Name        string
	Description string
}

// GroupMember maps a member code (USN) inside a group to a mailbox.
// (GroupID, USN) is unique.
type GroupMember struct {
	GroupID string
	USN     string
	Email   string
}
