package models

// Notification types pushed over the change channel
const (
	NotificationMessageNew = "message:new"
)

// Notification tells a client that something in a conversation changed.
// It never carries message content; clients re-fetch through the API.
type Notification struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id,omitempty"`
}
