package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ayushdsd/spotlight-sub000/internal/auth"
	"github.com/ayushdsd/spotlight-sub000/internal/database"
	"github.com/ayushdsd/spotlight-sub000/internal/models"
)

// AuthHandler handles authentication routes
type AuthHandler struct {
	DB database.DBInterface
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(db database.DBInterface) *AuthHandler {
	return &AuthHandler{DB: db}
}

// LoginResponse is returned by a successful login
type LoginResponse struct {
	Token  string              `json:"token"`
	Expiry time.Time           `json:"expiry"`
	User   models.UserResponse `json:"user"`
}

// Register handles user registration
func (h *AuthHandler) Register(c *gin.Context) {
	var input models.UserRegistration

	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err.Error())
		return
	}

	// Hash password
	hashedPassword, err := auth.HashPassword(input.Password)
	if err != nil {
		log.Error("Failed to hash password: %v", err)
		abortWithError(c, http.StatusInternalServerError, CodeInternal, "Failed to process password")
		return
	}

	user, err := h.DB.CreateUser(c.Request.Context(), &models.User{
		Name:           input.Name,
		Email:          input.Email,
		PasswordHash:   hashedPassword,
		Role:           input.Role,
		ProfilePicture: input.ProfilePicture,
	})
	if errors.Is(err, database.ErrUserAlreadyExists) {
		abortWithError(c, http.StatusConflict, CodeConflict, "User already exists")
		return
	}
	if err != nil {
		log.Error("Failed to create user: %v", err)
		abortWithError(c, http.StatusInternalServerError, CodeInternal, "Failed to create user")
		return
	}

	log.Info("Registered %s user %s", user.Role, user.ID)
	c.JSON(http.StatusCreated, user.Response())
}

// Login handles user login
func (h *AuthHandler) Login(c *gin.Context) {
	var input models.UserLogin

	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	user, err := h.DB.GetUserByEmail(ctx, input.Email)
	if errors.Is(err, database.ErrUserNotFound) {
		abortWithError(c, http.StatusUnauthorized, CodeUnauthorized, "Invalid credentials")
		return
	}
	if err != nil {
		log.Error("Failed to retrieve user: %v", err)
		abortWithError(c, http.StatusInternalServerError, CodeInternal, "Failed to retrieve user")
		return
	}

	if !auth.CheckPasswordHash(input.Password, user.PasswordHash) {
		abortWithError(c, http.StatusUnauthorized, CodeUnauthorized, "Invalid credentials")
		return
	}

	if err := h.DB.UpdateLastSeen(ctx, user.ID); err != nil {
		log.Warn("Failed to update last_seen for %s: %v", user.ID, err)
	}

	token, expiry, err := auth.GenerateToken(user)
	if err != nil {
		log.Error("Failed to generate token: %v", err)
		abortWithError(c, http.StatusInternalServerError, CodeInternal, "Failed to generate token")
		return
	}

	c.JSON(http.StatusOK, LoginResponse{
		Token:  token,
		Expiry: expiry,
		User:   user.Response(),
	})
}

// GetMe gets the current user profile
func (h *AuthHandler) GetMe(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	user, err := h.DB.GetUserByID(c.Request.Context(), userID)
	if errors.Is(err, database.ErrUserNotFound) {
		abortWithError(c, http.StatusNotFound, CodeNotFound, "User not found")
		return
	}
	if err != nil {
		log.Error("Failed to retrieve user %s: %v", userID, err)
		abortWithError(c, http.StatusInternalServerError, CodeInternal, "Failed to retrieve user")
		return
	}

	c.JSON(http.StatusOK, user.Response())
}
