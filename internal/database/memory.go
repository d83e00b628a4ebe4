package database

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/ayushdsd/spotlight-sub000/internal/models"
)

// MemoryDB keeps everything in process. It mirrors the MongoDB backend's
// semantics, including pair uniqueness, and is used for tests and local runs.
type MemoryDB struct {
	mu            sync.RWMutex
	users         map[string]*models.User
	emails        map[string]string
	conversations map[string]*models.Conversation
	pairs         map[string]string
	messages      map[string]*models.Message
}

func NewMemoryDB() *MemoryDB {
	return &MemoryDB{
		users:         make(map[string]*models.User),
		emails:        make(map[string]string),
		conversations: make(map[string]*models.Conversation),
		pairs:         make(map[string]string),
		messages:      make(map[string]*models.Message),
	}
}

func (db *MemoryDB) CreateUser(_ context.Context, user *models.User) (*models.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	email := NormalizeEmail(user.Email)
	if _, ok := db.emails[email]; ok {
		return nil, ErrUserAlreadyExists
	}

	u := cloneUser(user)
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if _, ok := db.users[u.ID]; ok {
		return nil, ErrUserAlreadyExists
	}
	u.Email = email
	t := now()
	u.CreatedAt, u.LastSeen = t, t
	u.Followers, u.Following = []string{}, []string{}

	db.users[u.ID] = u
	db.emails[email] = u.ID
	return cloneUser(u), nil
}

func (db *MemoryDB) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	id, ok := db.emails[NormalizeEmail(email)]
	if !ok {
		return nil, ErrUserNotFound
	}
	return cloneUser(db.users[id]), nil
}

func (db *MemoryDB) GetUserByID(_ context.Context, id string) (*models.User, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	u, ok := db.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return cloneUser(u), nil
}

func (db *MemoryDB) UpdateLastSeen(_ context.Context, userID string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	u, ok := db.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.LastSeen = now()
	return nil
}

func (db *MemoryDB) GetAllUsers(_ context.Context, excludeUserID string) ([]*models.User, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	users := make([]*models.User, 0, len(db.users))
	for id, u := range db.users {
		if id != excludeUserID {
			users = append(users, cloneUser(u))
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Name < users[j].Name })
	return users, nil
}

func (db *MemoryDB) AddFollow(_ context.Context, followerID, followeeID string) error {
	if followerID == followeeID {
		return ErrSameUser
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	follower, followee, err := db.pairLocked(followerID, followeeID)
	if err != nil {
		return err
	}
	follower.Following = addToSet(follower.Following, followeeID)
	followee.Followers = addToSet(followee.Followers, followerID)
	return nil
}

func (db *MemoryDB) RemoveFollow(_ context.Context, followerID, followeeID string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	follower, followee, err := db.pairLocked(followerID, followeeID)
	if err != nil {
		return err
	}
	follower.Following = pull(follower.Following, followeeID)
	followee.Followers = pull(followee.Followers, followerID)
	return nil
}

func (db *MemoryDB) ResolveConversation(_ context.Context, userA, userB string) (*models.Conversation, error) {
	if userA == userB {
		return nil, ErrSameUser
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	if _, _, err := db.pairLocked(userA, userB); err != nil {
		return nil, err
	}

	key := models.PairKey(userA, userB)
	if id, ok := db.pairs[key]; ok {
		return cloneConversation(db.conversations[id]), nil
	}

	t := now()
	conv := &models.Conversation{
		ID:           uuid.NewString(),
		Participants: models.SortedPair(userA, userB),
		PairKey:      key,
		CreatedAt:    t,
		UpdatedAt:    t,
	}
	db.conversations[conv.ID] = conv
	db.pairs[key] = conv.ID
	return cloneConversation(conv), nil
}

func (db *MemoryDB) GetConversationByID(_ context.Context, id string) (*models.Conversation, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	conv, ok := db.conversations[id]
	if !ok {
		return nil, ErrConversationNotFound
	}
	return cloneConversation(conv), nil
}

func (db *MemoryDB) FindConversation(_ context.Context, userA, userB string) (*models.Conversation, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	id, ok := db.pairs[models.PairKey(userA, userB)]
	if !ok {
		return nil, ErrConversationNotFound
	}
	return cloneConversation(db.conversations[id]), nil
}

func (db *MemoryDB) CreateMessage(_ context.Context, msg *models.Message) (*models.Message, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	conv, ok := db.conversations[msg.ConversationID]
	if !ok {
		return nil, ErrConversationNotFound
	}
	if !conv.HasParticipant(msg.SenderID) {
		return nil, ErrNotParticipant
	}

	m := cloneMessage(msg)
	prepareMessage(m, conv)
	if _, exists := db.messages[m.ID]; exists {
		return nil, ErrMessageAlreadyExists
	}
	db.messages[m.ID] = m

	if newer(m, conv.LastMessage) {
		conv.LastMessage = lastMessageOf(m)
		conv.UpdatedAt = m.CreatedAt
	}
	return cloneMessage(m), nil
}

func (db *MemoryDB) GetMessageByID(_ context.Context, messageID string) (*models.Message, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	m, ok := db.messages[messageID]
	if !ok {
		return nil, ErrMessageNotFound
	}
	return cloneMessage(m), nil
}

func (db *MemoryDB) GetConversationMessages(_ context.Context, conversationID string, skip, limit int64) ([]*models.Message, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if _, ok := db.conversations[conversationID]; !ok {
		return nil, ErrConversationNotFound
	}

	var all []*models.Message
	for _, m := range db.messages {
		if m.ConversationID == conversationID {
			all = append(all, m)
		}
	}
	// newest first, like the Mongo query
	sort.Slice(all, func(i, j int) bool { return before(all[j], all[i]) })

	if skip >= int64(len(all)) {
		return []*models.Message{}, nil
	}
	all = all[skip:]
	if limit > 0 && limit < int64(len(all)) {
		all = all[:limit]
	}

	out := make([]*models.Message, len(all))
	for i, m := range all {
		out[len(all)-1-i] = cloneMessage(m)
	}
	return out, nil
}

func (db *MemoryDB) MarkMessageAsRead(_ context.Context, messageID string) (*models.Message, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	m, ok := db.messages[messageID]
	if !ok {
		return nil, ErrMessageNotFound
	}
	if !m.Read {
		t := now()
		m.Read = true
		m.ReadAt = &t
	}
	return cloneMessage(m), nil
}

func (db *MemoryDB) GetContacts(_ context.Context, userID string) ([]*models.ContactRow, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	latest := make(map[string]*models.Message)
	for _, m := range db.messages {
		var other string
		switch userID {
		case m.SenderID:
			other = m.RecipientID
		case m.RecipientID:
			other = m.SenderID
		default:
			continue
		}
		if cur, ok := latest[other]; !ok || before(cur, m) {
			latest[other] = m
		}
	}

	rows := make([]*models.ContactRow, 0, len(latest))
	for other, m := range latest {
		u, ok := db.users[other]
		if !ok {
			continue
		}
		rows = append(rows, &models.ContactRow{User: cloneUser(u), LastMessage: cloneMessage(m)})
	}
	sort.Slice(rows, func(i, j int) bool { return before(rows[j].LastMessage, rows[i].LastMessage) })
	return rows, nil
}

func (db *MemoryDB) Ping(context.Context) error {
	return nil
}

func (db *MemoryDB) Close(context.Context) error {
	return nil
}

func (db *MemoryDB) pairLocked(a, b string) (*models.User, *models.User, error) {
	ua, ok := db.users[a]
	if !ok {
		return nil, nil, ErrUserNotFound
	}
	ub, ok := db.users[b]
	if !ok {
		return nil, nil, ErrUserNotFound
	}
	return ua, ub, nil
}

// before orders messages by created_at then id
func before(a, b *models.Message) bool {
	if a.CreatedAt.Equal(b.CreatedAt) {
		return a.ID < b.ID
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

func addToSet(set []string, id string) []string {
	for _, v := range set {
		if v == id {
			return set
		}
	}
	return append(set, id)
}

func pull(set []string, id string) []string {
	out := set[:0]
	for _, v := range set {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func cloneUser(u *models.User) *models.User {
	c := *u
	c.Followers = append([]string{}, u.Followers...)
	c.Following = append([]string{}, u.Following...)
	return &c
}

func cloneConversation(conv *models.Conversation) *models.Conversation {
	c := *conv
	c.Participants = append([]string{}, conv.Participants...)
	if conv.LastMessage != nil {
		lm := *conv.LastMessage
		c.LastMessage = &lm
	}
	return &c
}

func cloneMessage(m *models.Message) *models.Message {
	c := *m
	if m.Attachments != nil {
		c.Attachments = append([]models.Attachment{}, m.Attachments...)
	}
	if m.ReadAt != nil {
		t := *m.ReadAt
		c.ReadAt = &t
	}
	return &c
}
