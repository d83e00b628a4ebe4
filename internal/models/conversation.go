package models

import (
	"sort"
	"strings"
	"time"
)

// LastMessage is the denormalized pointer kept on a conversation for inbox display
type LastMessage struct {
	ID        string    `json:"id" bson:"id"`
	SenderID  string    `json:"sender_id" bson:"sender_id"`
	Content   string    `json:"content" bson:"content"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

// Conversation is the single channel between two users
type Conversation struct {
	ID           string       `json:"id" bson:"_id"`
	Participants []string     `json:"participants" bson:"participants"`
	PairKey      string       `json:"-" bson:"pair_key"`
	LastMessage  *LastMessage `json:"last_message,omitempty" bson:"last_message,omitempty"`
	CreatedAt    time.Time    `json:"created_at" bson:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at" bson:"updated_at"`
}

// HasParticipant reports whether userID belongs to the conversation
func (c *Conversation) HasParticipant(userID string) bool {
	return contains(c.Participants, userID)
}

// OtherParticipant returns the participant that is not userID
func (c *Conversation) OtherParticipant(userID string) string {
	for _, p := range c.Participants {
		if p != userID {
			return p
		}
	}
	return ""
}

// PairKey normalizes an unordered pair of user ids.
func PairKey(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return strings.Join(pair, ":")
}

// SortedPair returns the two ids in the order stored on a conversation
func SortedPair(a, b string) []string {
	if a > b {
		return []string{b, a}
	}
	return []string{a, b}
}

// ResolveRequest asks for the conversation with recipientID
type ResolveRequest struct {
	RecipientID string `json:"recipient_id" binding:"required"`
}

// ResolveResponse carries the canonical conversation id
type ResolveResponse struct {
	ConversationID string `json:"conversation_id"`
}

// Conversation states, derived from follow edges on every request
const (
	StateNoRelationship   = "no_relationship"
	StateMessagingAllowed = "messaging_allowed"
	StateMessagingBlocked = "messaging_blocked"
)
