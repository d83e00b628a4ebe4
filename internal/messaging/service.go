// Package messaging is the gateway in front of the store: it owns the
// mutual-follow gate, message validation and the contacts view.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/url"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/ayushdsd/spotlight-sub000/internal/database"
	"github.com/ayushdsd/spotlight-sub000/internal/logger"
	"github.com/ayushdsd/spotlight-sub000/internal/models"
)

const (
	MaxContentLength = 4000
	MaxAttachments   = 10
	DefaultPageSize  = 20
	MaxPageSize      = 100

	defaultMediaType = "application/octet-stream"
)

var log = logger.New("messaging")

// Notifier receives change notifications after successful writes
type Notifier interface {
	Notify(userIDs []string, n models.Notification)
}

// Service is the messaging gateway. Every method takes the authenticated
// requester explicitly; nothing is cached between calls.
type Service struct {
	db       database.DBInterface
	notifier Notifier
}

// NewService creates a gateway over db. notifier may be nil.
func NewService(db database.DBInterface, notifier Notifier) *Service {
	return &Service{db: db, notifier: notifier}
}

// Follow adds the edge requester -> target
func (s *Service) Follow(ctx context.Context, requesterID, targetID string) error {
	if err := validatePair(requesterID, targetID, "cannot follow yourself"); err != nil {
		return err
	}
	return s.followErr(s.db.AddFollow(ctx, requesterID, targetID))
}

// Unfollow removes the edge requester -> target. Removing a missing edge is a no-op.
func (s *Service) Unfollow(ctx context.Context, requesterID, targetID string) error {
	if err := validatePair(requesterID, targetID, "cannot unfollow yourself"); err != nil {
		return err
	}
	return s.followErr(s.db.RemoveFollow(ctx, requesterID, targetID))
}

func (s *Service) followErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, database.ErrUserNotFound):
		return newError(ErrInvalidRequest, "user not found")
	case errors.Is(err, database.ErrSameUser):
		return newError(ErrInvalidRequest, "cannot follow yourself")
	default:
		return fmt.Errorf("failed to update follow edge: %w", err)
	}
}

// FollowStatus reports the two follow edges between viewer and target
func (s *Service) FollowStatus(ctx context.Context, viewerID, targetID string) (models.FollowStatus, error) {
	if viewerID == "" || targetID == "" {
		return models.FollowStatus{}, newError(ErrInvalidRequest, "user id is required")
	}

	viewer, err := s.getUser(ctx, viewerID)
	if err != nil {
		return models.FollowStatus{}, err
	}
	target, err := s.getUser(ctx, targetID)
	if err != nil {
		return models.FollowStatus{}, err
	}

	return models.FollowStatus{
		IsFollowing:  target.IsFollowedBy(viewer.ID),
		IsFollowedBy: viewer.IsFollowedBy(target.ID),
	}, nil
}

// requireMutual is the gate in front of resolve and send
func (s *Service) requireMutual(ctx context.Context, a, b string) error {
	status, err := s.FollowStatus(ctx, a, b)
	if err != nil {
		return err
	}
	if !status.Mutual() {
		return newError(ErrMutualFollowRequired, "you can only message users who follow you back")
	}
	return nil
}

// ResolveConversation returns the single conversation between requester and
// recipient, creating it on first contact.
func (s *Service) ResolveConversation(ctx context.Context, requesterID, recipientID string) (*models.Conversation, error) {
	if err := validatePair(requesterID, recipientID, "cannot start a conversation with yourself"); err != nil {
		return nil, err
	}
	if err := s.requireMutual(ctx, requesterID, recipientID); err != nil {
		return nil, err
	}

	conv, err := s.db.ResolveConversation(ctx, requesterID, recipientID)
	if err != nil {
		return nil, s.storeErr(err, "failed to resolve conversation")
	}
	return conv, nil
}

// SendMessage appends a message from requester to the conversation
func (s *Service) SendMessage(ctx context.Context, requesterID, conversationID string, req models.MessageRequest) (*models.Message, error) {
	content := strings.TrimSpace(req.Content)
	if err := validateMessage(content, req.Attachments); err != nil {
		return nil, err
	}

	conv, err := s.participantConversation(ctx, requesterID, conversationID)
	if err != nil {
		return nil, err
	}
	if err := s.requireMutual(ctx, requesterID, conv.OtherParticipant(requesterID)); err != nil {
		return nil, err
	}

	attachments := make([]models.Attachment, len(req.Attachments))
	for i, a := range req.Attachments {
		attachments[i] = models.Attachment{URL: a.URL, MediaType: a.MediaType}
		if attachments[i].MediaType == "" {
			attachments[i].MediaType = guessMediaType(a.URL)
		}
	}

	msg, err := s.db.CreateMessage(ctx, &models.Message{
		ConversationID: conv.ID,
		SenderID:       requesterID,
		Content:        content,
		Attachments:    attachments,
	})
	if err != nil {
		return nil, s.storeErr(err, "failed to send message")
	}

	log.Debug("Message %s sent in conversation %s", msg.ID, conv.ID)
	s.notify(conv.Participants, models.Notification{
		Type:           models.NotificationMessageNew,
		ConversationID: conv.ID,
		MessageID:      msg.ID,
	})
	return msg, nil
}

// ListMessages returns one page of history, oldest first. Page 1 holds the
// newest messages. Only participation is checked, so history stays readable
// after an unfollow.
func (s *Service) ListMessages(ctx context.Context, requesterID, conversationID string, page, limit int) ([]*models.Message, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	if _, err := s.participantConversation(ctx, requesterID, conversationID); err != nil {
		return nil, err
	}

	skip := int64(page-1) * int64(limit)
	msgs, err := s.db.GetConversationMessages(ctx, conversationID, skip, int64(limit))
	if err != nil {
		return nil, s.storeErr(err, "failed to list messages")
	}
	return msgs, nil
}

// MarkRead flips the read flag. Only the recipient may do so.
func (s *Service) MarkRead(ctx context.Context, requesterID, messageID string) (*models.Message, error) {
	msg, err := s.db.GetMessageByID(ctx, messageID)
	if err != nil {
		return nil, s.storeErr(err, "failed to load message")
	}
	if msg.RecipientID != requesterID {
		return nil, newError(ErrForbidden, "only the recipient can mark a message as read")
	}
	if msg.Read {
		return msg, nil
	}

	msg, err = s.db.MarkMessageAsRead(ctx, messageID)
	if err != nil {
		return nil, s.storeErr(err, "failed to mark message as read")
	}
	return msg, nil
}

// Contacts builds the inbox: one entry per correspondent, newest first.
// The requester's follow sets are read once and used for every row.
func (s *Service) Contacts(ctx context.Context, userID string) ([]models.ContactSummary, error) {
	me, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.GetContacts(ctx, userID)
	if err != nil {
		return nil, s.storeErr(err, "failed to load contacts")
	}

	contacts := make([]models.ContactSummary, 0, len(rows))
	for _, row := range rows {
		other := row.User.ID
		rel := models.RelationshipNone
		switch {
		case me.IsFollowing(other) && me.IsFollowedBy(other):
			rel = models.RelationshipMutual
		case me.IsFollowing(other):
			rel = models.RelationshipPending
		}

		contacts = append(contacts, models.ContactSummary{
			User:         row.User.Profile(),
			LastMessage:  row.LastMessage,
			Unread:       row.LastMessage.RecipientID == userID && !row.LastMessage.Read,
			Relationship: rel,
			CanMessage:   rel == models.RelationshipMutual,
		})
	}
	return contacts, nil
}

// ConversationState derives the gate state between requester and other
func (s *Service) ConversationState(ctx context.Context, requesterID, otherID string) (string, error) {
	if err := validatePair(requesterID, otherID, "cannot message yourself"); err != nil {
		return "", err
	}

	status, err := s.FollowStatus(ctx, requesterID, otherID)
	if err != nil {
		return "", err
	}
	if status.Mutual() {
		return models.StateMessagingAllowed, nil
	}

	_, err = s.db.FindConversation(ctx, requesterID, otherID)
	switch {
	case err == nil:
		return models.StateMessagingBlocked, nil
	case errors.Is(err, database.ErrConversationNotFound):
		return models.StateNoRelationship, nil
	default:
		return "", s.storeErr(err, "failed to load conversation")
	}
}

func (s *Service) participantConversation(ctx context.Context, requesterID, conversationID string) (*models.Conversation, error) {
	conv, err := s.db.GetConversationByID(ctx, conversationID)
	if err != nil {
		return nil, s.storeErr(err, "failed to load conversation")
	}
	if !conv.HasParticipant(requesterID) {
		return nil, newError(ErrForbidden, "not a participant of this conversation")
	}
	return conv, nil
}

func (s *Service) getUser(ctx context.Context, id string) (*models.User, error) {
	u, err := s.db.GetUserByID(ctx, id)
	if err != nil {
		return nil, s.storeErr(err, "failed to load user")
	}
	return u, nil
}

// storeErr maps store sentinels onto the taxonomy and wraps anything else
func (s *Service) storeErr(err error, op string) error {
	switch {
	case errors.Is(err, database.ErrUserNotFound):
		return newError(ErrNotFound, "user not found")
	case errors.Is(err, database.ErrConversationNotFound):
		return newError(ErrNotFound, "conversation not found")
	case errors.Is(err, database.ErrMessageNotFound):
		return newError(ErrNotFound, "message not found")
	case errors.Is(err, database.ErrMessageAlreadyExists):
		return newError(ErrConflict, "message already exists")
	case errors.Is(err, database.ErrNotParticipant):
		return newError(ErrForbidden, "not a participant of this conversation")
	case errors.Is(err, database.ErrSameUser):
		return newError(ErrInvalidRequest, "operation needs two distinct users")
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

func (s *Service) notify(userIDs []string, n models.Notification) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(userIDs, n)
}

func validatePair(requesterID, otherID, selfMsg string) error {
	if requesterID == "" || otherID == "" {
		return newError(ErrInvalidRequest, "user id is required")
	}
	if requesterID == otherID {
		return newError(ErrInvalidRequest, "%s", selfMsg)
	}
	return nil
}

func validateMessage(content string, attachments []models.Attachment) error {
	if content == "" && len(attachments) == 0 {
		return newError(ErrInvalidRequest, "message must have content or attachments")
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return newError(ErrInvalidRequest, "message content exceeds %d characters", MaxContentLength)
	}
	if len(attachments) > MaxAttachments {
		return newError(ErrInvalidRequest, "at most %d attachments are allowed", MaxAttachments)
	}
	for _, a := range attachments {
		if strings.TrimSpace(a.URL) == "" {
			return newError(ErrInvalidRequest, "attachment url is required")
		}
	}
	return nil
}

// guessMediaType derives a media type from the attachment URL's extension
func guessMediaType(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return defaultMediaType
	}
	if t := mime.TypeByExtension(strings.ToLower(path.Ext(u.Path))); t != "" {
		if i := strings.IndexByte(t, ';'); i >= 0 {
			t = t[:i]
		}
		return t
	}
	return defaultMediaType
}
