package models

import (
	"time"
)

// Attachment is a file already hosted by the upload service
type Attachment struct {
	URL       string `json:"url" bson:"url" binding:"required,url"`
	MediaType string `json:"media_type" bson:"media_type"`
}

// Message represents a chat message in a conversation
type Message struct {
	ID             string       `json:"id" bson:"_id"`
	ConversationID string       `json:"conversation_id" bson:"conversation_id"`
	SenderID       string       `json:"sender_id" bson:"sender_id"`
	RecipientID    string       `json:"recipient_id" bson:"recipient_id"`
	Content        string       `json:"content" bson:"content"`
	Attachments    []Attachment `json:"attachments" bson:"attachments"`
	Read           bool         `json:"read" bson:"read"`
	CreatedAt      time.Time    `json:"created_at" bson:"created_at"`
	ReadAt         *time.Time   `json:"read_at,omitempty" bson:"read_at,omitempty"`
}

// MessageRequest is the structure for message creation requests
type MessageRequest struct {
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments" binding:"omitempty,max=10,dive"`
}
