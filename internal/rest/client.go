// Package rest is the client for the chat server's HTTP API.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/achuthan-s/oasis-chat-client/internal/domain"
)

// APIError is a server-reported failure: the request completed but the
// server rejected it. The message comes from the response body's "error"
// field when present.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error (status %d): %s", e.Status, e.Message)
}

// AuthResult is the body of a successful login or register response.
type AuthResult struct {
	Token string      `json:"token"`
	User  domain.User `json:"user"`
}

type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// SetToken sets the bearer token sent on subsequent authenticated calls.
func (c *Client) SetToken(token string) {
	c.token = token
}

// Login exchanges credentials for a token and profile via POST /api/login.
func (c *Client) Login(ctx context.Context, username, password string) (AuthResult, error) {
	return c.authCall(ctx, "/api/login", map[string]string{
		"username": username,
		"password": password,
	})
}

// Register creates an account via POST /api/register and logs it in.
func (c *Client) Register(ctx context.Context, username, email, password string) (AuthResult, error) {
	return c.authCall(ctx, "/api/register", map[string]string{
		"username": username,
		"email":    email,
		"password": password,
	})
}

func (c *Client) authCall(ctx context.Context, path string, body map[string]string) (AuthResult, error) {
	var result AuthResult
	if err := c.do(ctx, http.MethodPost, path, body, &result); err != nil {
		return AuthResult{}, err
	}
	if result.Token == "" {
		return AuthResult{}, fmt.Errorf("auth response missing token")
	}
	return result, nil
}

// Rooms fetches the room list in server order via GET /api/rooms.
func (c *Client) Rooms(ctx context.Context) ([]domain.Room, error) {
	var resp struct {
		Rooms []domain.Room `json:"rooms"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/rooms", nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch rooms: %w", err)
	}
	return resp.Rooms, nil
}

// Messages fetches the message history for a room via
// GET /api/rooms/{id}/messages.
func (c *Client) Messages(ctx context.Context, roomID string) ([]domain.Message, error) {
	var resp struct {
		Messages []domain.Message `json:"messages"`
	}
	path := fmt.Sprintf("/api/rooms/%s/messages", roomID)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch messages for room %s: %w", roomID, err)
	}
	return resp.Messages, nil
}

// CreateRoom creates a room via POST /api/rooms and returns the snapshot the
// server assigned.
func (c *Client) CreateRoom(ctx context.Context, name, description string) (domain.Room, error) {
	var resp struct {
		Room domain.Room `json:"room"`
	}
	body := map[string]string{"name": name, "description": description}
	if err := c.do(ctx, http.MethodPost, "/api/rooms", body, &resp); err != nil {
		return domain.Room{}, fmt.Errorf("failed to create room: %w", err)
	}
	return resp.Room, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to serialize request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode, Message: "request failed"}
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			apiErr.Message = e.Error
		}
		return apiErr
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}
