package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ayushdsd/spotlight-sub000/internal/logger"
	"github.com/ayushdsd/spotlight-sub000/internal/models"
)

// DefaultPollInterval is how often an open session refetches its window
const DefaultPollInterval = 5 * time.Second

var (
	ErrBlocked        = errors.New("contact is not a mutual follower")
	ErrSendInProgress = errors.New("a send is already in progress")
	ErrClosed         = errors.New("session is closed")
	ErrNoUploader     = errors.New("attachments need an uploader")
)

var log = logger.New("client")

// Poller opens conversation sessions that refresh on a fixed interval
type Poller struct {
	Client   *Client
	Interval time.Duration
	// Limit is the window size requested on every poll; 0 uses the server default.
	Limit    int
	Uploader Uploader
	// OnUpdate receives a copy of the window after every refresh or send.
	// It is called from the polling goroutine.
	OnUpdate func(contactID string, messages []models.Message)
}

// NewPoller creates a poller with the default interval
func NewPoller(c *Client) *Poller {
	return &Poller{Client: c, Interval: DefaultPollInterval}
}

// Session is one open conversation panel
type Session struct {
	ContactID      string
	ConversationID string

	poller *Poller

	mu       sync.Mutex
	messages []models.Message
	blocked  bool
	sending  bool
	closed   bool
	draft    string
	// gen counts local appends so a poll that started earlier cannot drop them
	gen uint64

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// Open checks the mutual-follow precondition, resolves the conversation and
// starts polling it. When the contact is not a mutual follower it returns a
// blocked session together with ErrBlocked and nothing is polled.
// Cancelling ctx stops polling just like Close.
func (p *Poller) Open(ctx context.Context, contactID string) (*Session, error) {
	s := &Session{ContactID: contactID, poller: p, done: make(chan struct{})}

	status, err := p.Client.FollowStatus(ctx, contactID)
	if err != nil {
		return nil, fmt.Errorf("failed to check follow status: %w", err)
	}
	if !status.Mutual() {
		return s.block(), ErrBlocked
	}

	convID, err := p.Client.ResolveConversation(ctx, contactID)
	if IsMutualFollowRequired(err) {
		return s.block(), ErrBlocked
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve conversation: %w", err)
	}
	s.ConversationID = convID

	pollCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.refresh(pollCtx)
	go s.loop(pollCtx)

	return s, nil
}

func (s *Session) block() *Session {
	s.blocked = true
	close(s.done)
	return s
}

func (s *Session) loop(ctx context.Context) {
	defer close(s.done)

	interval := s.poller.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.Blocked() {
				s.recheckFollow(ctx)
			}
			s.refresh(ctx)
		}
	}
}

// refresh replaces the local window with the server's newest page. A page
// fetched while a send landed is discarded; the next tick picks it up.
func (s *Session) refresh(ctx context.Context) {
	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()

	msgs, err := s.poller.Client.ListMessages(ctx, s.ConversationID, 1, s.poller.Limit)
	if err != nil {
		if ctx.Err() == nil {
			log.Warn("Poll of conversation %s failed: %v", s.ConversationID, err)
		}
		return
	}

	s.mu.Lock()
	if s.closed || s.gen != gen {
		s.mu.Unlock()
		return
	}
	s.messages = msgs
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.publish(snapshot)
}

// recheckFollow lifts a block set by a refused send once the contact follows
// back again
func (s *Session) recheckFollow(ctx context.Context) {
	status, err := s.poller.Client.FollowStatus(ctx, s.ContactID)
	if err != nil {
		if ctx.Err() == nil {
			log.Warn("Follow status check for %s failed: %v", s.ContactID, err)
		}
		return
	}
	if !status.Mutual() {
		return
	}
	s.mu.Lock()
	s.blocked = false
	s.mu.Unlock()
	log.Info("Messaging with %s allowed again", s.ContactID)
}

// Send uploads attachments, then creates the message and appends it to the
// window. Only one send runs at a time. On failure the content stays
// available from Draft for a retry.
func (s *Session) Send(ctx context.Context, content string, uploads ...Upload) (*models.Message, error) {
	s.mu.Lock()
	switch {
	case s.closed:
		s.mu.Unlock()
		return nil, ErrClosed
	case s.blocked:
		s.mu.Unlock()
		return nil, ErrBlocked
	case s.sending:
		s.mu.Unlock()
		return nil, ErrSendInProgress
	}
	s.sending = true
	s.draft = content
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.sending = false
		s.mu.Unlock()
	}()

	req := models.MessageRequest{Content: content}
	for _, u := range uploads {
		if s.poller.Uploader == nil {
			return nil, ErrNoUploader
		}
		att, err := s.poller.Uploader.Upload(ctx, u)
		if err != nil {
			return nil, fmt.Errorf("failed to upload %s: %w", u.Name, err)
		}
		req.Attachments = append(req.Attachments, att)
	}

	msg, err := s.poller.Client.SendMessage(ctx, s.ConversationID, req)
	if err != nil {
		if IsMutualFollowRequired(err) {
			s.mu.Lock()
			s.blocked = true
			s.mu.Unlock()
		}
		return nil, err
	}

	s.mu.Lock()
	if !s.containsLocked(msg.ID) {
		s.messages = append(s.messages, *msg)
		s.gen++
	}
	s.draft = ""
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.publish(snapshot)
	return msg, nil
}

// Messages returns a copy of the current window, oldest first
func (s *Session) Messages() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Draft returns the content of the last failed send
func (s *Session) Draft() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft
}

// Blocked reports whether messaging with the contact is currently refused.
// After a refused send the session keeps polling and clears the flag once
// the follow is mutual again.
func (s *Session) Blocked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blocked
}

// Sending reports whether a send is in flight
func (s *Session) Sending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sending
}

// Close stops polling and waits for the polling goroutine to exit
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		if s.cancel != nil {
			s.cancel()
		}
	})
	<-s.done
}

func (s *Session) containsLocked(id string) bool {
	for _, m := range s.messages {
		if m.ID == id {
			return true
		}
	}
	return false
}

func (s *Session) snapshotLocked() []models.Message {
	out := make([]models.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

func (s *Session) publish(snapshot []models.Message) {
	if s.poller.OnUpdate != nil {
		s.poller.OnUpdate(s.ContactID, snapshot)
	}
}
