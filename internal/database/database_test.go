package database

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayushdsd/spotlight-sub000/internal/models"
)

// setupTestDBs returns every backend available in this environment. The
// in-memory store always runs; MongoDB runs when MONGODB_TEST_URI is set.
func setupTestDBs(t *testing.T) map[string]DBInterface {
	t.Helper()
	dbs := map[string]DBInterface{"memory": NewMemoryDB()}

	uri := os.Getenv("MONGODB_TEST_URI")
	if uri == "" {
		return dbs
	}

	ctx := context.Background()
	name := fmt.Sprintf("spotlight_test_%d", time.Now().UnixNano())
	mdb, err := NewMongoDB(ctx, Options{URI: uri, Name: name, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	t.Cleanup(func() {
		_ = mdb.Drop(context.Background())
		_ = mdb.Close(context.Background())
	})
	dbs["mongo"] = mdb
	return dbs
}

func forEachDB(t *testing.T, fn func(t *testing.T, db DBInterface)) {
	for name, db := range setupTestDBs(t) {
		t.Run(name, func(t *testing.T) { fn(t, db) })
	}
}

func createTestUser(t *testing.T, db DBInterface, name string) *models.User {
	t.Helper()
	u, err := db.CreateUser(context.Background(), &models.User{
		Name:         name,
		Email:        fmt.Sprintf("%s-%s@example.com", name, uuid.NewString()[:8]),
		PasswordHash: "hash",
		Role:         models.RoleArtist,
	})
	require.NoError(t, err)
	return u
}

func TestNewDatabase(t *testing.T) {
	db, err := NewDatabase(context.Background(), Memory, Options{})
	require.NoError(t, err)
	assert.IsType(t, &MemoryDB{}, db)

	_, err = NewDatabase(context.Background(), DatabaseType("postgres"), Options{})
	assert.Error(t, err)
}

func TestCreateUser(t *testing.T) {
	forEachDB(t, func(t *testing.T, db DBInterface) {
		ctx := context.Background()
		email := fmt.Sprintf("Mixed-%s@Example.com", uuid.NewString()[:8])

		user, err := db.CreateUser(ctx, &models.User{Name: "Mia", Email: "  " + email, Role: models.RoleRecruiter})
		require.NoError(t, err)
		assert.NotEmpty(t, user.ID)
		assert.Equal(t, NormalizeEmail(email), user.Email)
		assert.NotNil(t, user.Followers)
		assert.NotNil(t, user.Following)
		assert.False(t, user.CreatedAt.IsZero())

		_, err = db.CreateUser(ctx, &models.User{Name: "Other", Email: email})
		assert.ErrorIs(t, err, ErrUserAlreadyExists)

		byEmail, err := db.GetUserByEmail(ctx, email)
		require.NoError(t, err)
		assert.Equal(t, user.ID, byEmail.ID)

		_, err = db.GetUserByID(ctx, uuid.NewString())
		assert.ErrorIs(t, err, ErrUserNotFound)
	})
}

func TestUpdateLastSeen(t *testing.T) {
	forEachDB(t, func(t *testing.T, db DBInterface) {
		ctx := context.Background()
		user := createTestUser(t, db, "lastseen")

		time.Sleep(5 * time.Millisecond)
		require.NoError(t, db.UpdateLastSeen(ctx, user.ID))

		updated, err := db.GetUserByID(ctx, user.ID)
		require.NoError(t, err)
		assert.True(t, updated.LastSeen.After(user.LastSeen))

		assert.ErrorIs(t, db.UpdateLastSeen(ctx, uuid.NewString()), ErrUserNotFound)
	})
}

func TestFollowEdges(t *testing.T) {
	forEachDB(t, func(t *testing.T, db DBInterface) {
		ctx := context.Background()
		a := createTestUser(t, db, "a")
		b := createTestUser(t, db, "b")

		require.NoError(t, db.AddFollow(ctx, a.ID, b.ID))
		// idempotent
		require.NoError(t, db.AddFollow(ctx, a.ID, b.ID))

		ua, _ := db.GetUserByID(ctx, a.ID)
		ub, _ := db.GetUserByID(ctx, b.ID)
		assert.Equal(t, []string{b.ID}, ua.Following)
		assert.Equal(t, []string{a.ID}, ub.Followers)
		assert.Empty(t, ua.Followers)

		require.NoError(t, db.RemoveFollow(ctx, a.ID, b.ID))
		require.NoError(t, db.RemoveFollow(ctx, a.ID, b.ID))
		ua, _ = db.GetUserByID(ctx, a.ID)
		ub, _ = db.GetUserByID(ctx, b.ID)
		assert.Empty(t, ua.Following)
		assert.Empty(t, ub.Followers)

		assert.ErrorIs(t, db.AddFollow(ctx, a.ID, a.ID), ErrSameUser)
		assert.ErrorIs(t, db.AddFollow(ctx, a.ID, uuid.NewString()), ErrUserNotFound)
		assert.ErrorIs(t, db.RemoveFollow(ctx, uuid.NewString(), a.ID), ErrUserNotFound)
	})
}

func TestResolveConversation(t *testing.T) {
	forEachDB(t, func(t *testing.T, db DBInterface) {
		ctx := context.Background()
		a := createTestUser(t, db, "a")
		b := createTestUser(t, db, "b")

		_, err := db.FindConversation(ctx, a.ID, b.ID)
		assert.ErrorIs(t, err, ErrConversationNotFound)

		first, err := db.ResolveConversation(ctx, a.ID, b.ID)
		require.NoError(t, err)
		second, err := db.ResolveConversation(ctx, b.ID, a.ID)
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
		assert.ElementsMatch(t, []string{a.ID, b.ID}, first.Participants)
		assert.Nil(t, first.LastMessage)

		found, err := db.FindConversation(ctx, b.ID, a.ID)
		require.NoError(t, err)
		assert.Equal(t, first.ID, found.ID)

		_, err = db.ResolveConversation(ctx, a.ID, a.ID)
		assert.ErrorIs(t, err, ErrSameUser)
		_, err = db.ResolveConversation(ctx, a.ID, uuid.NewString())
		assert.ErrorIs(t, err, ErrUserNotFound)
	})
}

func TestResolveConversationConcurrent(t *testing.T) {
	forEachDB(t, func(t *testing.T, db DBInterface) {
		ctx := context.Background()
		a := createTestUser(t, db, "a")
		b := createTestUser(t, db, "b")

		const n = 16
		ids := make([]string, n)
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				x, y := a.ID, b.ID
				if i%2 == 1 {
					x, y = y, x
				}
				conv, err := db.ResolveConversation(ctx, x, y)
				if assert.NoError(t, err) {
					ids[i] = conv.ID
				}
			}(i)
		}
		wg.Wait()

		for _, id := range ids {
			assert.Equal(t, ids[0], id)
		}
	})
}

func TestCreateMessage(t *testing.T) {
	forEachDB(t, func(t *testing.T, db DBInterface) {
		ctx := context.Background()
		a := createTestUser(t, db, "a")
		b := createTestUser(t, db, "b")
		outsider := createTestUser(t, db, "c")
		conv, err := db.ResolveConversation(ctx, a.ID, b.ID)
		require.NoError(t, err)

		msg, err := db.CreateMessage(ctx, &models.Message{
			ConversationID: conv.ID,
			SenderID:       a.ID,
			Content:        "hello",
			Read:           true,
		})
		require.NoError(t, err)
		assert.NotEmpty(t, msg.ID)
		assert.Equal(t, b.ID, msg.RecipientID)
		assert.False(t, msg.Read)
		assert.NotNil(t, msg.Attachments)

		updated, err := db.GetConversationByID(ctx, conv.ID)
		require.NoError(t, err)
		require.NotNil(t, updated.LastMessage)
		assert.Equal(t, msg.ID, updated.LastMessage.ID)
		assert.Equal(t, "hello", updated.LastMessage.Content)

		_, err = db.CreateMessage(ctx, &models.Message{ConversationID: conv.ID, SenderID: outsider.ID, Content: "x"})
		assert.ErrorIs(t, err, ErrNotParticipant)

		// a reused id must not replace the stored message
		_, err = db.CreateMessage(ctx, &models.Message{ID: msg.ID, ConversationID: conv.ID, SenderID: b.ID, Content: "overwrite"})
		assert.ErrorIs(t, err, ErrMessageAlreadyExists)
		stored, err := db.GetMessageByID(ctx, msg.ID)
		require.NoError(t, err)
		assert.Equal(t, "hello", stored.Content)
		assert.Equal(t, a.ID, stored.SenderID)

		_, err = db.CreateMessage(ctx, &models.Message{ConversationID: uuid.NewString(), SenderID: a.ID, Content: "x"})
		assert.ErrorIs(t, err, ErrConversationNotFound)
	})
}

func TestLastMessageNeverMovesBackwards(t *testing.T) {
	forEachDB(t, func(t *testing.T, db DBInterface) {
		ctx := context.Background()
		a := createTestUser(t, db, "a")
		b := createTestUser(t, db, "b")
		conv, err := db.ResolveConversation(ctx, a.ID, b.ID)
		require.NoError(t, err)

		later := now()
		_, err = db.CreateMessage(ctx, &models.Message{ConversationID: conv.ID, SenderID: a.ID, Content: "new", CreatedAt: later})
		require.NoError(t, err)
		_, err = db.CreateMessage(ctx, &models.Message{ConversationID: conv.ID, SenderID: b.ID, Content: "old", CreatedAt: later.Add(-time.Minute)})
		require.NoError(t, err)

		updated, err := db.GetConversationByID(ctx, conv.ID)
		require.NoError(t, err)
		assert.Equal(t, "new", updated.LastMessage.Content)
	})
}

func TestGetConversationMessagesPaging(t *testing.T) {
	forEachDB(t, func(t *testing.T, db DBInterface) {
		ctx := context.Background()
		a := createTestUser(t, db, "a")
		b := createTestUser(t, db, "b")
		conv, err := db.ResolveConversation(ctx, a.ID, b.ID)
		require.NoError(t, err)

		base := now().Add(-time.Hour)
		for i := 0; i < 5; i++ {
			_, err := db.CreateMessage(ctx, &models.Message{
				ConversationID: conv.ID,
				SenderID:       a.ID,
				Content:        fmt.Sprintf("m%d", i),
				CreatedAt:      base.Add(time.Duration(i) * time.Second),
			})
			require.NoError(t, err)
		}

		contents := func(msgs []*models.Message) []string {
			out := []string{}
			for _, m := range msgs {
				out = append(out, m.Content)
			}
			return out
		}

		tests := []struct {
			name        string
			skip, limit int64
			want        []string
		}{
			{name: "newest page", skip: 0, limit: 2, want: []string{"m3", "m4"}},
			{name: "second page", skip: 2, limit: 2, want: []string{"m1", "m2"}},
			{name: "partial last page", skip: 4, limit: 2, want: []string{"m0"}},
			{name: "past the end", skip: 10, limit: 2, want: []string{}},
			{name: "everything", skip: 0, limit: 0, want: []string{"m0", "m1", "m2", "m3", "m4"}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				msgs, err := db.GetConversationMessages(ctx, conv.ID, tt.skip, tt.limit)
				require.NoError(t, err)
				assert.Equal(t, tt.want, contents(msgs))
			})
		}

		_, err = db.GetConversationMessages(ctx, uuid.NewString(), 0, 10)
		assert.ErrorIs(t, err, ErrConversationNotFound)
	})
}

func TestMarkMessageAsRead(t *testing.T) {
	forEachDB(t, func(t *testing.T, db DBInterface) {
		ctx := context.Background()
		a := createTestUser(t, db, "a")
		b := createTestUser(t, db, "b")
		conv, _ := db.ResolveConversation(ctx, a.ID, b.ID)
		msg, err := db.CreateMessage(ctx, &models.Message{ConversationID: conv.ID, SenderID: a.ID, Content: "hi"})
		require.NoError(t, err)

		read, err := db.MarkMessageAsRead(ctx, msg.ID)
		require.NoError(t, err)
		assert.True(t, read.Read)
		require.NotNil(t, read.ReadAt)

		again, err := db.MarkMessageAsRead(ctx, msg.ID)
		require.NoError(t, err)
		assert.True(t, again.Read)
		assert.True(t, read.ReadAt.Equal(*again.ReadAt))

		_, err = db.MarkMessageAsRead(ctx, uuid.NewString())
		assert.ErrorIs(t, err, ErrMessageNotFound)
	})
}

func TestGetContacts(t *testing.T) {
	forEachDB(t, func(t *testing.T, db DBInterface) {
		ctx := context.Background()
		me := createTestUser(t, db, "me")
		b := createTestUser(t, db, "b")
		c := createTestUser(t, db, "c")
		createTestUser(t, db, "silent")

		convB, _ := db.ResolveConversation(ctx, me.ID, b.ID)
		convC, _ := db.ResolveConversation(ctx, me.ID, c.ID)

		base := now().Add(-time.Hour)
		send := func(conv *models.Conversation, from, content string, at time.Duration) {
			_, err := db.CreateMessage(ctx, &models.Message{
				ConversationID: conv.ID, SenderID: from, Content: content, CreatedAt: base.Add(at),
			})
			require.NoError(t, err)
		}
		send(convB, me.ID, "to b", 1*time.Second)
		send(convC, c.ID, "from c", 2*time.Second)
		send(convB, b.ID, "from b", 3*time.Second)

		rows, err := db.GetContacts(ctx, me.ID)
		require.NoError(t, err)
		require.Len(t, rows, 2)

		assert.Equal(t, b.ID, rows[0].User.ID)
		assert.Equal(t, "from b", rows[0].LastMessage.Content)
		assert.Equal(t, c.ID, rows[1].User.ID)
		assert.Equal(t, "from c", rows[1].LastMessage.Content)

		rows, err = db.GetContacts(ctx, uuid.NewString())
		require.NoError(t, err)
		assert.Empty(t, rows)
	})
}
