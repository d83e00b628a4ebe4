package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ayushdsd/spotlight-sub000/internal/models"
)

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrUserAlreadyExists    = errors.New("user already exists")
	ErrMessageNotFound      = errors.New("message not found")
	ErrMessageAlreadyExists = errors.New("message already exists")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrNotParticipant       = errors.New("sender is not a participant of the conversation")
	ErrSameUser             = errors.New("operation needs two distinct users")
)

type DBInterface interface {
	// User methods
	CreateUser(ctx context.Context, user *models.User) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	UpdateLastSeen(ctx context.Context, userID string) error
	GetAllUsers(ctx context.Context, excludeUserID string) ([]*models.User, error)

	// Follow edges. Both are idempotent set operations on the two users.
	AddFollow(ctx context.Context, followerID, followeeID string) error
	RemoveFollow(ctx context.Context, followerID, followeeID string) error

	// Conversation methods. ResolveConversation finds or creates the single
	// conversation for the unordered pair; FindConversation only looks.
	ResolveConversation(ctx context.Context, userA, userB string) (*models.Conversation, error)
	GetConversationByID(ctx context.Context, id string) (*models.Conversation, error)
	FindConversation(ctx context.Context, userA, userB string) (*models.Conversation, error)

	// Message methods. GetConversationMessages skips the `skip` newest messages,
	// takes the next `limit` and returns them oldest first.
	CreateMessage(ctx context.Context, msg *models.Message) (*models.Message, error)
	GetMessageByID(ctx context.Context, messageID string) (*models.Message, error)
	GetConversationMessages(ctx context.Context, conversationID string, skip, limit int64) ([]*models.Message, error)
	MarkMessageAsRead(ctx context.Context, messageID string) (*models.Message, error)
	GetContacts(ctx context.Context, userID string) ([]*models.ContactRow, error)

	// Common methods
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

type DatabaseType string

const (
	Mongo  DatabaseType = "mongo"
	Memory DatabaseType = "memory"
)

// Options configures a database connection
type Options struct {
	URI     string
	Name    string
	Timeout time.Duration
}

func NewDatabase(ctx context.Context, dbType DatabaseType, opts Options) (DBInterface, error) {
	switch dbType {
	case Mongo:
		return NewMongoDB(ctx, opts)
	case Memory:
		return NewMemoryDB(), nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", dbType)
	}
}

// NormalizeEmail trims and lower-cases an address for storage and lookups
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// now is the store clock. Mongo keeps millisecond precision, so both backends do.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// newMessageID returns a time-ordered id so ties on created_at sort by insertion.
func newMessageID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// prepareMessage fills the server-side fields of a message about to be appended
func prepareMessage(msg *models.Message, conv *models.Conversation) {
	if msg.ID == "" {
		msg.ID = newMessageID()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = now()
	}
	msg.RecipientID = conv.OtherParticipant(msg.SenderID)
	msg.Read = false
	msg.ReadAt = nil
	if msg.Attachments == nil {
		msg.Attachments = []models.Attachment{}
	}
}

func lastMessageOf(msg *models.Message) *models.LastMessage {
	return &models.LastMessage{
		ID:        msg.ID,
		SenderID:  msg.SenderID,
		Content:   msg.Content,
		CreatedAt: msg.CreatedAt,
	}
}

// newer reports whether msg sorts after the current last-message pointer
func newer(msg *models.Message, last *models.LastMessage) bool {
	if last == nil {
		return true
	}
	if msg.CreatedAt.Equal(last.CreatedAt) {
		return msg.ID > last.ID
	}
	return msg.CreatedAt.After(last.CreatedAt)
}
