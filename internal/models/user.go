package models

import (
	"time"
)

// Roles a Spotlight account can hold
const (
	RoleArtist    = "artist"
	RoleRecruiter = "recruiter"
)

// User represents a Spotlight account together with its follow edges
type User struct {
	ID             string    `json:"id" bson:"_id"`
	Name           string    `json:"name" bson:"name"`
	Email          string    `json:"email" bson:"email"`
	PasswordHash   string    `json:"-" bson:"password_hash"` // Never send to client
	Role           string    `json:"role" bson:"role"`
	ProfilePicture string    `json:"profile_picture,omitempty" bson:"profile_picture,omitempty"`
	Followers      []string  `json:"followers" bson:"followers"`
	Following      []string  `json:"following" bson:"following"`
	CreatedAt      time.Time `json:"created_at" bson:"created_at"`
	LastSeen       time.Time `json:"last_seen" bson:"last_seen"`
}

// IsFollowing reports whether u follows userID
func (u *User) IsFollowing(userID string) bool {
	return contains(u.Following, userID)
}

// IsFollowedBy reports whether userID follows u
func (u *User) IsFollowedBy(userID string) bool {
	return contains(u.Followers, userID)
}

func contains(set []string, id string) bool {
	for _, v := range set {
		if v == id {
			return true
		}
	}
	return false
}

// UserRegistration contains data needed for user registration
type UserRegistration struct {
	Name           string `json:"name" binding:"required,min=2,max=60"`
	Email          string `json:"email" binding:"required,email"`
	Password       string `json:"password" binding:"required,min=5"`
	Role           string `json:"role" binding:"required,oneof=artist recruiter"`
	ProfilePicture string `json:"profile_picture" binding:"omitempty,url"`
}

// UserLogin contains data needed for user login
type UserLogin struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// UserResponse is what we return to the client
type UserResponse struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	Role           string    `json:"role"`
	ProfilePicture string    `json:"profile_picture,omitempty"`
	FollowerCount  int       `json:"follower_count"`
	FollowingCount int       `json:"following_count"`
	CreatedAt      time.Time `json:"created_at"`
}

// PublicProfile is the slice of a user shown next to a contact
type PublicProfile struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Role           string `json:"role"`
	ProfilePicture string `json:"profile_picture,omitempty"`
}

// Response converts a user into its client representation
func (u *User) Response() UserResponse {
	return UserResponse{
		ID:             u.ID,
		Name:           u.Name,
		Email:          u.Email,
		Role:           u.Role,
		ProfilePicture: u.ProfilePicture,
		FollowerCount:  len(u.Followers),
		FollowingCount: len(u.Following),
		CreatedAt:      u.CreatedAt,
	}
}

// Profile converts a user into the profile shown in contact lists
func (u *User) Profile() PublicProfile {
	return PublicProfile{
		ID:             u.ID,
		Name:           u.Name,
		Role:           u.Role,
		ProfilePicture: u.ProfilePicture,
	}
}

// FollowStatus describes the follow edges between a viewer and a target
type FollowStatus struct {
	IsFollowing  bool `json:"is_following"`
	IsFollowedBy bool `json:"is_followed_by"`
}

// Mutual reports whether both edges exist
func (s FollowStatus) Mutual() bool {
	return s.IsFollowing && s.IsFollowedBy
}
