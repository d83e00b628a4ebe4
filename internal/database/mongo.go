package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/ayushdsd/spotlight-sub000/internal/logger"
	"github.com/ayushdsd/spotlight-sub000/internal/models"
)

const (
	usersCollection         = "users"
	conversationsCollection = "conversations"
	messagesCollection      = "messages"
)

var log = logger.New("database")

// MongoDB is the production store. Users, conversations and messages live in
// their own collections; follow edges are arrays on the user documents.
type MongoDB struct {
	client *mongo.Client
	db     *mongo.Database
}

// NewMongoDB connects, pings and ensures indexes
func NewMongoDB(ctx context.Context, opts Options) (*MongoDB, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	name := opts.Name
	if name == "" {
		name = "spotlight"
	}

	client, err := mongo.Connect(options.Client().
		ApplyURI(opts.URI).
		SetConnectTimeout(timeout))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	m := &MongoDB{client: client, db: client.Database(name)}
	if err := m.CreateIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return m, nil
}

func (m *MongoDB) users() *mongo.Collection {
	return m.db.Collection(usersCollection)
}

func (m *MongoDB) conversations() *mongo.Collection {
	return m.db.Collection(conversationsCollection)
}

func (m *MongoDB) messages() *mongo.Collection {
	return m.db.Collection(messagesCollection)
}

// CreateIndexes creates the indexes every query below relies on
func (m *MongoDB) CreateIndexes(ctx context.Context) error {
	_, err := m.users().Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create users index: %w", err)
	}

	// pair_key is the sorted participant pair; the unique index is what stops
	// two concurrent first contacts from splitting a history in two.
	_, err = m.conversations().Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "pair_key", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "participants", Value: 1}, {Key: "updated_at", Value: -1}},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create conversation indexes: %w", err)
	}

	_, err = m.messages().Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			// history window
			Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "created_at", Value: -1}, {Key: "_id", Value: -1}},
		},
		{
			// contacts aggregation, both sides
			Keys: bson.D{{Key: "sender_id", Value: 1}, {Key: "created_at", Value: -1}},
		},
		{
			Keys: bson.D{{Key: "recipient_id", Value: 1}, {Key: "created_at", Value: -1}},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create message indexes: %w", err)
	}
	return nil
}

func (m *MongoDB) CreateUser(ctx context.Context, user *models.User) (*models.User, error) {
	u := *user
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.Email = NormalizeEmail(u.Email)
	t := now()
	u.CreatedAt, u.LastSeen = t, t
	// arrays, never null, so $addToSet and $pull always apply
	u.Followers, u.Following = []string{}, []string{}

	if _, err := m.users().InsertOne(ctx, &u); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrUserAlreadyExists
		}
		return nil, err
	}
	return &u, nil
}

func (m *MongoDB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return m.findUser(ctx, bson.M{"email": NormalizeEmail(email)})
}

func (m *MongoDB) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return m.findUser(ctx, bson.M{"_id": id})
}

func (m *MongoDB) findUser(ctx context.Context, filter bson.M) (*models.User, error) {
	var user models.User
	if err := m.users().FindOne(ctx, filter).Decode(&user); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (m *MongoDB) UpdateLastSeen(ctx context.Context, userID string) error {
	res, err := m.users().UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{"$set": bson.M{"last_seen": now()}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (m *MongoDB) GetAllUsers(ctx context.Context, excludeUserID string) ([]*models.User, error) {
	cursor, err := m.users().Find(ctx,
		bson.M{"_id": bson.M{"$ne": excludeUserID}},
		options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer cursor.Close(ctx)

	users := []*models.User{}
	if err := cursor.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("failed to decode users: %w", err)
	}
	return users, nil
}

// requireUsers fails with ErrUserNotFound unless both ids exist
func (m *MongoDB) requireUsers(ctx context.Context, a, b string) error {
	n, err := m.users().CountDocuments(ctx, bson.M{"_id": bson.M{"$in": bson.A{a, b}}})
	if err != nil {
		return err
	}
	if n != 2 {
		return ErrUserNotFound
	}
	return nil
}

func (m *MongoDB) AddFollow(ctx context.Context, followerID, followeeID string) error {
	if followerID == followeeID {
		return ErrSameUser
	}
	return m.updateEdge(ctx, "$addToSet", followerID, followeeID)
}

func (m *MongoDB) RemoveFollow(ctx context.Context, followerID, followeeID string) error {
	return m.updateEdge(ctx, "$pull", followerID, followeeID)
}

// updateEdge applies op to both sides of a follow edge. The two writes are
// independent; a failure between them leaves a one-sided edge.
func (m *MongoDB) updateEdge(ctx context.Context, op, followerID, followeeID string) error {
	if err := m.requireUsers(ctx, followerID, followeeID); err != nil {
		return err
	}

	if _, err := m.users().UpdateOne(ctx,
		bson.M{"_id": followerID},
		bson.M{op: bson.M{"following": followeeID}}); err != nil {
		return fmt.Errorf("failed to update following of %s: %w", followerID, err)
	}
	if _, err := m.users().UpdateOne(ctx,
		bson.M{"_id": followeeID},
		bson.M{op: bson.M{"followers": followerID}}); err != nil {
		log.Warn("follow edge %s -> %s left one-sided: %v", followerID, followeeID, err)
		return fmt.Errorf("failed to update followers of %s: %w", followeeID, err)
	}
	return nil
}

func (m *MongoDB) ResolveConversation(ctx context.Context, userA, userB string) (*models.Conversation, error) {
	if userA == userB {
		return nil, ErrSameUser
	}
	if err := m.requireUsers(ctx, userA, userB); err != nil {
		return nil, err
	}

	conv, err := m.FindConversation(ctx, userA, userB)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, ErrConversationNotFound) {
		return nil, err
	}

	t := now()
	conv = &models.Conversation{
		ID:           uuid.NewString(),
		Participants: models.SortedPair(userA, userB),
		PairKey:      models.PairKey(userA, userB),
		CreatedAt:    t,
		UpdatedAt:    t,
	}
	if _, err := m.conversations().InsertOne(ctx, conv); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			// lost the race: another request created it between find and insert
			log.Debug("conversation %s created concurrently, fetching winner", conv.PairKey)
			return m.FindConversation(ctx, userA, userB)
		}
		return nil, err
	}
	return conv, nil
}

func (m *MongoDB) GetConversationByID(ctx context.Context, id string) (*models.Conversation, error) {
	return m.findConversation(ctx, bson.M{"_id": id})
}

func (m *MongoDB) FindConversation(ctx context.Context, userA, userB string) (*models.Conversation, error) {
	return m.findConversation(ctx, bson.M{"pair_key": models.PairKey(userA, userB)})
}

func (m *MongoDB) findConversation(ctx context.Context, filter bson.M) (*models.Conversation, error) {
	var conv models.Conversation
	if err := m.conversations().FindOne(ctx, filter).Decode(&conv); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}
	return &conv, nil
}

// CreateMessage appends msg and advances the conversation's last-message
// pointer. The pointer update is conditional on ordering, so a slower request
// can never move it backwards and no multi-document transaction is needed.
func (m *MongoDB) CreateMessage(ctx context.Context, msg *models.Message) (*models.Message, error) {
	conv, err := m.GetConversationByID(ctx, msg.ConversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(msg.SenderID) {
		return nil, ErrNotParticipant
	}

	saved := *msg
	prepareMessage(&saved, conv)
	if _, err := m.messages().InsertOne(ctx, &saved); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrMessageAlreadyExists
		}
		return nil, fmt.Errorf("failed to insert message: %w", err)
	}

	filter := bson.M{
		"_id": conv.ID,
		"$or": bson.A{
			bson.M{"last_message": nil},
			bson.M{"last_message.created_at": bson.M{"$lt": saved.CreatedAt}},
			bson.M{"last_message.created_at": saved.CreatedAt, "last_message.id": bson.M{"$lt": saved.ID}},
		},
	}
	update := bson.M{"$set": bson.M{
		"last_message": lastMessageOf(&saved),
		"updated_at":   saved.CreatedAt,
	}}
	if _, err := m.conversations().UpdateOne(ctx, filter, update); err != nil {
		// the message is stored; the pointer only feeds inbox display
		log.Error("failed to advance last message of %s: %v", conv.ID, err)
	}
	return &saved, nil
}

func (m *MongoDB) GetMessageByID(ctx context.Context, messageID string) (*models.Message, error) {
	var msg models.Message
	if err := m.messages().FindOne(ctx, bson.M{"_id": messageID}).Decode(&msg); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrMessageNotFound
		}
		return nil, err
	}
	return &msg, nil
}

func (m *MongoDB) GetConversationMessages(ctx context.Context, conversationID string, skip, limit int64) ([]*models.Message, error) {
	if _, err := m.GetConversationByID(ctx, conversationID); err != nil {
		return nil, err
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(skip)
	if limit > 0 {
		opts.SetLimit(limit)
	}

	cursor, err := m.messages().Find(ctx, bson.M{"conversation_id": conversationID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	messages := []*models.Message{}
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, err
	}

	// newest first from the query, oldest first for the window
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (m *MongoDB) MarkMessageAsRead(ctx context.Context, messageID string) (*models.Message, error) {
	var msg models.Message
	err := m.messages().FindOneAndUpdate(ctx,
		bson.M{"_id": messageID, "read": false},
		bson.M{"$set": bson.M{"read": true, "read_at": now()}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&msg)
	if err == nil {
		return &msg, nil
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		// already read, or missing
		return m.GetMessageByID(ctx, messageID)
	}
	return nil, err
}

// contactDoc is one row of the contacts pipeline
type contactDoc struct {
	ID   string         `bson:"_id"`
	Last models.Message `bson:"last"`
	User models.User    `bson:"user"`
}

// GetContacts groups every message the user sent or received by counterparty,
// keeps the newest per group and joins the counterparty's user document.
func (m *MongoDB) GetContacts(ctx context.Context, userID string) ([]*models.ContactRow, error) {
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.D{
			{Key: "$or", Value: bson.A{
				bson.D{{Key: "sender_id", Value: userID}},
				bson.D{{Key: "recipient_id", Value: userID}},
			}},
		}}},
		bson.D{{Key: "$sort", Value: bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}}},
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: bson.D{{Key: "$cond", Value: bson.A{
				bson.D{{Key: "$eq", Value: bson.A{"$sender_id", userID}}},
				"$recipient_id",
				"$sender_id",
			}}}},
			{Key: "last", Value: bson.D{{Key: "$first", Value: "$$ROOT"}}},
		}}},
		bson.D{{Key: "$sort", Value: bson.D{{Key: "last.created_at", Value: -1}, {Key: "last._id", Value: -1}}}},
		bson.D{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: usersCollection},
			{Key: "localField", Value: "_id"},
			{Key: "foreignField", Value: "_id"},
			{Key: "as", Value: "user"},
		}}},
		// drops correspondents whose account is gone
		bson.D{{Key: "$unwind", Value: "$user"}},
	}

	cursor, err := m.messages().Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("contacts aggregation failed: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []contactDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	rows := make([]*models.ContactRow, 0, len(docs))
	for i := range docs {
		rows = append(rows, &models.ContactRow{User: &docs[i].User, LastMessage: &docs[i].Last})
	}
	return rows, nil
}

func (m *MongoDB) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, readpref.Primary())
}

func (m *MongoDB) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

// Drop removes every collection. Used by integration tests.
func (m *MongoDB) Drop(ctx context.Context) error {
	return m.db.Drop(ctx)
}
