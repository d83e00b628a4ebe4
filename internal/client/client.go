// Package client is a typed HTTP client for the Spotlight messaging API and
// the conversation poller built on top of it.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ayushdsd/spotlight-sub000/internal/models"
)

// DefaultTimeout bounds every request unless an http.Client is supplied
const DefaultTimeout = 10 * time.Second

// Error codes returned by the API
const (
	CodeMutualFollowRequired = "mutual_follow_required"
	CodeRateLimited          = "rate_limited"
)

// APIError is a non-2xx response
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d (%s): %s", e.Status, e.Code, e.Message)
}

// IsMutualFollowRequired reports whether err is the mutual-follow gate refusing a request
func IsMutualFollowRequired(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == CodeMutualFollowRequired
}

// LoginResult is the body of a successful login
type LoginResult struct {
	Token  string              `json:"token"`
	Expiry time.Time           `json:"expiry"`
	User   models.UserResponse `json:"user"`
}

// Client talks to one API base URL, e.g. "http://localhost:8080"
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// New creates a client. token may be empty until Login is called.
func New(baseURL, token string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Token:      token,
		HTTPClient: &http.Client{Timeout: DefaultTimeout},
	}
}

// Register creates an account
func (c *Client) Register(ctx context.Context, reg models.UserRegistration) (*models.UserResponse, error) {
	var user models.UserResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/register", reg, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Login exchanges credentials for a token and keeps it for later calls
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	var res LoginResult
	body := models.UserLogin{Email: email, Password: password}
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", body, &res); err != nil {
		return nil, err
	}
	c.Token = res.Token
	return &res, nil
}

// Me returns the authenticated user
func (c *Client) Me(ctx context.Context) (*models.UserResponse, error) {
	var user models.UserResponse
	if err := c.do(ctx, http.MethodGet, "/api/auth/me", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// ListUsers returns every user except the caller
func (c *Client) ListUsers(ctx context.Context) ([]models.UserResponse, error) {
	var users []models.UserResponse
	if err := c.do(ctx, http.MethodGet, "/api/users", nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (c *Client) Follow(ctx context.Context, userID string) error {
	return c.do(ctx, http.MethodPost, "/api/users/"+url.PathEscape(userID)+"/follow", nil, nil)
}

func (c *Client) Unfollow(ctx context.Context, userID string) error {
	return c.do(ctx, http.MethodDelete, "/api/users/"+url.PathEscape(userID)+"/follow", nil, nil)
}

// FollowStatus reports both follow edges between the caller and userID
func (c *Client) FollowStatus(ctx context.Context, userID string) (models.FollowStatus, error) {
	var status models.FollowStatus
	err := c.do(ctx, http.MethodGet, "/api/users/"+url.PathEscape(userID)+"/follow-status", nil, &status)
	return status, err
}

// ConversationState returns one of the models.State* values
func (c *Client) ConversationState(ctx context.Context, userID string) (string, error) {
	var resp struct {
		State string `json:"state"`
	}
	err := c.do(ctx, http.MethodGet, "/api/users/"+url.PathEscape(userID)+"/conversation-state", nil, &resp)
	return resp.State, err
}

// Contacts returns the caller's inbox, newest first
func (c *Client) Contacts(ctx context.Context) ([]models.ContactSummary, error) {
	var contacts []models.ContactSummary
	if err := c.do(ctx, http.MethodGet, "/api/conversations", nil, &contacts); err != nil {
		return nil, err
	}
	return contacts, nil
}

// ResolveConversation returns the id of the conversation with recipientID
func (c *Client) ResolveConversation(ctx context.Context, recipientID string) (string, error) {
	var resp models.ResolveResponse
	err := c.do(ctx, http.MethodPost, "/api/conversations", models.ResolveRequest{RecipientID: recipientID}, &resp)
	return resp.ConversationID, err
}

// ListMessages fetches one history window, oldest first. Page 1 is the newest.
func (c *Client) ListMessages(ctx context.Context, conversationID string, page, limit int) ([]models.Message, error) {
	q := url.Values{}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/conversations/" + url.PathEscape(conversationID) + "/messages"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var msgs []models.Message
	if err := c.do(ctx, http.MethodGet, path, nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// SendMessage posts a message to a conversation
func (c *Client) SendMessage(ctx context.Context, conversationID string, req models.MessageRequest) (*models.Message, error) {
	var msg models.Message
	path := "/api/conversations/" + url.PathEscape(conversationID) + "/messages"
	if err := c.do(ctx, http.MethodPost, path, req, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// MarkRead marks a received message as read
func (c *Client) MarkRead(ctx context.Context, messageID string) (*models.Message, error) {
	var msg models.Message
	if err := c.do(ctx, http.MethodPut, "/api/messages/"+url.PathEscape(messageID)+"/read", nil, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var body struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		apiErr.Message = body.Error
		apiErr.Code = body.Code
	} else {
		apiErr.Message = strings.TrimSpace(string(data))
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}
