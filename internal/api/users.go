package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ayushdsd/spotlight-sub000/internal/database"
	"github.com/ayushdsd/spotlight-sub000/internal/messaging"
	"github.com/ayushdsd/spotlight-sub000/internal/models"
)

// UserHandler handles user directory and follow routes
type UserHandler struct {
	DB      database.DBInterface
	Service *messaging.Service
}

// NewUserHandler creates a new user handler
func NewUserHandler(db database.DBInterface, service *messaging.Service) *UserHandler {
	return &UserHandler{DB: db, Service: service}
}

// ListUsers returns every user except the requester
func (h *UserHandler) ListUsers(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	users, err := h.DB.GetAllUsers(c.Request.Context(), userID)
	if err != nil {
		log.Error("Failed to list users: %v", err)
		abortWithError(c, http.StatusInternalServerError, CodeInternal, "Failed to retrieve users")
		return
	}

	response := make([]models.UserResponse, 0, len(users))
	for _, u := range users {
		response = append(response, u.Response())
	}
	c.JSON(http.StatusOK, response)
}

// Follow creates the edge requester -> :userID
func (h *UserHandler) Follow(c *gin.Context) {
	h.updateFollow(c, h.Service.Follow)
}

// Unfollow removes the edge requester -> :userID
func (h *UserHandler) Unfollow(c *gin.Context) {
	h.updateFollow(c, h.Service.Unfollow)
}

func (h *UserHandler) updateFollow(c *gin.Context, op func(ctx context.Context, requesterID, targetID string) error) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	targetID, ok := pathID(c, "userID", "user ID")
	if !ok {
		return
	}

	if err := op(c.Request.Context(), userID, targetID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// FollowStatus reports both follow edges between the requester and :userID
func (h *UserHandler) FollowStatus(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	targetID, ok := pathID(c, "userID", "user ID")
	if !ok {
		return
	}

	status, err := h.Service.FollowStatus(c.Request.Context(), userID, targetID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// ConversationState returns the derived messaging state with :userID
func (h *UserHandler) ConversationState(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	otherID, ok := pathID(c, "userID", "user ID")
	if !ok {
		return
	}

	state, err := h.Service.ConversationState(c.Request.Context(), userID, otherID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": state})
}
