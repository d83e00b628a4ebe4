package models

// Relationship between the requester and a contact
const (
	RelationshipMutual  = "mutual"
	RelationshipPending = "pending"
	RelationshipNone    = "none"
)

// ContactRow is one aggregated row: a correspondent and the last message exchanged with them
type ContactRow struct {
	User        *User
	LastMessage *Message
}

// ContactSummary is one inbox entry returned to the client
type ContactSummary struct {
	User         PublicProfile `json:"user"`
	LastMessage  *Message      `json:"last_message"`
	Unread       bool          `json:"unread"`
	Relationship string        `json:"relationship"`
	CanMessage   bool          `json:"can_message"`
}
