package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ayushdsd/spotlight-sub000/internal/messaging"
	"github.com/ayushdsd/spotlight-sub000/internal/models"
)

// MessageHandler handles conversation and message routes
type MessageHandler struct {
	Service *messaging.Service
}

// NewMessageHandler creates a new message handler
func NewMessageHandler(service *messaging.Service) *MessageHandler {
	return &MessageHandler{Service: service}
}

// pageQuery is the history window requested by the client
type pageQuery struct {
	Page  int `form:"page"`
	Limit int `form:"limit"`
}

// GetContacts returns the requester's inbox, newest conversation first
func (h *MessageHandler) GetContacts(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	contacts, err := h.Service.Contacts(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, contacts)
}

// ResolveConversation finds or creates the conversation with recipient_id
func (h *MessageHandler) ResolveConversation(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req models.ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	recipientID, err := uuid.Parse(req.RecipientID)
	if err != nil {
		badRequest(c, "Invalid recipient ID")
		return
	}

	conv, err := h.Service.ResolveConversation(c.Request.Context(), userID, recipientID.String())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.ResolveResponse{ConversationID: conv.ID})
}

// GetMessages returns one window of a conversation's history, oldest first
func (h *MessageHandler) GetMessages(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	conversationID, ok := pathID(c, "conversationID", "conversation ID")
	if !ok {
		return
	}

	var q pageQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, "page and limit must be integers")
		return
	}

	messages, err := h.Service.ListMessages(c.Request.Context(), userID, conversationID, q.Page, q.Limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, messages)
}

// SendMessage handles the creation of a new message
func (h *MessageHandler) SendMessage(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	conversationID, ok := pathID(c, "conversationID", "conversation ID")
	if !ok {
		return
	}

	var req models.MessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	message, err := h.Service.SendMessage(c.Request.Context(), userID, conversationID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, message)
}

// MarkMessageAsRead marks a message as read. Only its recipient may.
func (h *MessageHandler) MarkMessageAsRead(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	messageID, ok := pathID(c, "messageID", "message ID")
	if !ok {
		return
	}

	message, err := h.Service.MarkRead(c.Request.Context(), userID, messageID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, message)
}
