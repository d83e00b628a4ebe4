package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayushdsd/spotlight-sub000/internal/models"
)

const testInterval = 20 * time.Millisecond

// stubUploader returns a fixed attachment, optionally blocking until release is closed
type stubUploader struct {
	started chan struct{}
	release chan struct{}
	err     error
}

func (u *stubUploader) Upload(ctx context.Context, up Upload) (models.Attachment, error) {
	if u.started != nil {
		close(u.started)
	}
	if u.release != nil {
		<-u.release
	}
	if u.err != nil {
		return models.Attachment{}, u.err
	}
	return models.Attachment{URL: "https://cdn.example.com/" + up.Name, MediaType: up.ContentType}, nil
}

func TestOpenBlockedWhenNotMutual(t *testing.T) {
	server := setupServer(t)
	ana, _ := newUser(t, server.URL, "ana")
	_, benID := newUser(t, server.URL, "ben")
	require.NoError(t, ana.Follow(context.Background(), benID))

	p := NewPoller(ana)
	s, err := p.Open(context.Background(), benID)
	assert.ErrorIs(t, err, ErrBlocked)
	require.NotNil(t, s)
	assert.True(t, s.Blocked())
	assert.Empty(t, s.ConversationID)

	_, err = s.Send(context.Background(), "hi")
	assert.ErrorIs(t, err, ErrBlocked)

	s.Close()
	s.Close()
}

func TestOpenUnknownContact(t *testing.T) {
	server := setupServer(t)
	ana, _ := newUser(t, server.URL, "ana")

	s, err := NewPoller(ana).Open(context.Background(), "6f1c1d0e-0a6e-4c43-9d1e-3a4b5c6d7e8f")
	assert.Nil(t, s)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrBlocked))
}

func TestSessionPollsNewMessages(t *testing.T) {
	server := setupServer(t)
	ana, anaID := newUser(t, server.URL, "ana")
	ben, benID := newUser(t, server.URL, "ben")
	connect(t, ana, anaID, ben, benID)

	var mu sync.Mutex
	var updates [][]models.Message
	p := NewPoller(ana)
	p.Interval = testInterval
	p.OnUpdate = func(contactID string, msgs []models.Message) {
		assert.Equal(t, benID, contactID)
		mu.Lock()
		updates = append(updates, msgs)
		mu.Unlock()
	}

	s, err := p.Open(context.Background(), benID)
	require.NoError(t, err)
	defer s.Close()
	assert.Empty(t, s.Messages())

	convID, err := ben.ResolveConversation(context.Background(), anaID)
	require.NoError(t, err)
	assert.Equal(t, s.ConversationID, convID)

	for _, content := range []string{"first", "second"} {
		_, err := ben.SendMessage(context.Background(), convID, models.MessageRequest{Content: content})
		require.NoError(t, err)
	}

	assert.Eventually(t, func() bool { return len(s.Messages()) == 2 }, 2*time.Second, testInterval)
	msgs := s.Messages()
	assert.Equal(t, "first", msgs[0].Content)
	assert.Equal(t, "second", msgs[1].Content)

	mu.Lock()
	assert.NotEmpty(t, updates)
	mu.Unlock()
}

func TestSessionSend(t *testing.T) {
	server := setupServer(t)
	ana, anaID := newUser(t, server.URL, "ana")
	ben, benID := newUser(t, server.URL, "ben")
	connect(t, ana, anaID, ben, benID)

	p := NewPoller(ana)
	p.Interval = time.Hour
	p.Uploader = &stubUploader{}
	s, err := p.Open(context.Background(), benID)
	require.NoError(t, err)
	defer s.Close()

	msg, err := s.Send(context.Background(), "look at this", Upload{Name: "headshot.png", ContentType: "image/png", Body: strings.NewReader("png")})
	require.NoError(t, err)
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, "https://cdn.example.com/headshot.png", msg.Attachments[0].URL)
	assert.Equal(t, "image/png", msg.Attachments[0].MediaType)

	msgs := s.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, msg.ID, msgs[0].ID)
	assert.Empty(t, s.Draft())
	assert.False(t, s.Sending())
}

func TestSessionSendFailurePreservesDraft(t *testing.T) {
	server := setupServer(t)
	ana, anaID := newUser(t, server.URL, "ana")
	ben, benID := newUser(t, server.URL, "ben")
	connect(t, ana, anaID, ben, benID)

	p := NewPoller(ana)
	p.Interval = time.Hour
	s, err := p.Open(context.Background(), benID)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Send(context.Background(), "with a file", Upload{Name: "a.pdf", Body: strings.NewReader("x")})
	assert.ErrorIs(t, err, ErrNoUploader)
	assert.Equal(t, "with a file", s.Draft())

	require.NoError(t, ben.Unfollow(context.Background(), anaID))

	_, err = s.Send(context.Background(), "are you there?")
	assert.True(t, IsMutualFollowRequired(err))
	assert.Equal(t, "are you there?", s.Draft())
	assert.True(t, s.Blocked())
	assert.False(t, s.Sending())
	assert.Empty(t, s.Messages())
}

func TestSessionSendInProgress(t *testing.T) {
	server := setupServer(t)
	ana, anaID := newUser(t, server.URL, "ana")
	ben, benID := newUser(t, server.URL, "ben")
	connect(t, ana, anaID, ben, benID)

	uploader := &stubUploader{started: make(chan struct{}), release: make(chan struct{})}
	p := NewPoller(ana)
	p.Interval = time.Hour
	p.Uploader = uploader
	s, err := p.Open(context.Background(), benID)
	require.NoError(t, err)
	defer s.Close()

	done := make(chan error, 1)
	go func() {
		_, err := s.Send(context.Background(), "slow", Upload{Name: "clip.mp4", ContentType: "video/mp4", Body: strings.NewReader("x")})
		done <- err
	}()

	<-uploader.started
	assert.True(t, s.Sending())
	_, err = s.Send(context.Background(), "fast")
	assert.ErrorIs(t, err, ErrSendInProgress)

	close(uploader.release)
	require.NoError(t, <-done)
	assert.Len(t, s.Messages(), 1)
}

func TestSessionPollStartedBeforeSendKeepsMessage(t *testing.T) {
	sent := models.Message{ID: "m1", ConversationID: "c1", SenderID: "me", Content: "hello"}
	started := make(chan struct{})
	release := make(chan struct{})
	stop := make(chan struct{})

	var mu sync.Mutex
	var polls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/follow-status"):
			_ = json.NewEncoder(w).Encode(models.FollowStatus{IsFollowing: true, IsFollowedBy: true})
		case r.Method == http.MethodPost && r.URL.Path == "/api/conversations":
			_ = json.NewEncoder(w).Encode(models.ResolveResponse{ConversationID: "c1"})
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/messages"):
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(sent)
		case strings.HasSuffix(r.URL.Path, "/messages"):
			mu.Lock()
			polls++
			n := polls
			mu.Unlock()
			switch n {
			case 1:
			case 2:
				// the page is read before the send and delivered after it
				close(started)
				<-release
			default:
				select {
				case <-r.Context().Done():
				case <-stop:
				}
				return
			}
			_, _ = io.WriteString(w, "[]")
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()
	defer close(stop)

	p := NewPoller(New(server.URL, "token"))
	p.Interval = testInterval
	s, err := p.Open(context.Background(), "contact")
	require.NoError(t, err)
	defer s.Close()

	<-started
	msg, err := s.Send(context.Background(), "hello")
	require.NoError(t, err)
	require.Len(t, s.Messages(), 1)

	close(release)
	// a third poll only starts once the delayed one has been applied
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return polls >= 3
	}, 2*time.Second, testInterval)

	msgs := s.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, msg.ID, msgs[0].ID)
}

func TestSessionUnblocksWhenFollowRestored(t *testing.T) {
	server := setupServer(t)
	ana, anaID := newUser(t, server.URL, "ana")
	ben, benID := newUser(t, server.URL, "ben")
	connect(t, ana, anaID, ben, benID)

	p := NewPoller(ana)
	p.Interval = testInterval
	s, err := p.Open(context.Background(), benID)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, ben.Unfollow(context.Background(), anaID))
	_, err = s.Send(context.Background(), "still there?")
	require.True(t, IsMutualFollowRequired(err))
	require.True(t, s.Blocked())

	_, err = s.Send(context.Background(), "still there?")
	assert.ErrorIs(t, err, ErrBlocked)

	require.NoError(t, ben.Follow(context.Background(), anaID))
	assert.Eventually(t, func() bool { return !s.Blocked() }, 2*time.Second, testInterval)

	msg, err := s.Send(context.Background(), "welcome back")
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		msgs := s.Messages()
		return len(msgs) == 1 && msgs[0].ID == msg.ID
	}, 2*time.Second, testInterval)
}

func TestSessionCloseStopsPolling(t *testing.T) {
	var polls int
	var mu sync.Mutex
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/follow-status"):
			_ = json.NewEncoder(w).Encode(models.FollowStatus{IsFollowing: true, IsFollowedBy: true})
		case r.Method == http.MethodPost && r.URL.Path == "/api/conversations":
			_ = json.NewEncoder(w).Encode(models.ResolveResponse{ConversationID: "c1"})
		case strings.HasSuffix(r.URL.Path, "/messages"):
			mu.Lock()
			polls++
			mu.Unlock()
			_, _ = io.WriteString(w, "[]")
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	p := NewPoller(New(server.URL, "token"))
	p.Interval = testInterval

	ctx, cancel := context.WithCancel(context.Background())
	s, err := p.Open(ctx, "contact")
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return polls >= 3
	}, 2*time.Second, testInterval)

	// cancelling the open context ends the loop; Close still returns
	cancel()
	s.Close()
	s.Close()
	time.Sleep(testInterval)

	mu.Lock()
	stopped := polls
	mu.Unlock()
	time.Sleep(5 * testInterval)
	mu.Lock()
	assert.Equal(t, stopped, polls)
	mu.Unlock()

	_, err = s.Send(context.Background(), "late")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestHTTPUploader(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer upload-key", r.Header.Get("Authorization"))
		file, header, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()
		body, _ := io.ReadAll(file)
		assert.Equal(t, "reel-bytes", string(body))
		assert.Equal(t, "video/mp4", header.Header.Get("Content-Type"))

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]string{"url": "https://cdn.example.com/" + header.Filename})
	}))
	defer server.Close()

	u := NewHTTPUploader(server.URL, "upload-key")
	att, err := u.Upload(context.Background(), Upload{Name: "reel.mp4", ContentType: "video/mp4", Body: strings.NewReader("reel-bytes")})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/reel.mp4", att.URL)
	assert.Equal(t, "video/mp4", att.MediaType)
}

func TestHTTPUploaderFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusInsufficientStorage)
	}))
	defer server.Close()

	_, err := NewHTTPUploader(server.URL, "").Upload(context.Background(), Upload{Name: "a.png", Body: strings.NewReader("x")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "507")
}
