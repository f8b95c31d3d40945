package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Client provides REST API access to the Convo server.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a new REST API client.
// baseURL should be the base URL of the API, e.g., "http://localhost:8080/api".
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SetHTTPClient allows setting a custom HTTP client.
func (c *Client) SetHTTPClient(client *http.Client) {
	if client != nil {
		c.httpClient = client
	}
}

// SetToken sets the bearer token for authenticated requests.
func (c *Client) SetToken(token string) {
	c.token = token
}

// Authentication endpoints

// Register creates a new user account and returns a bearer token.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*TokenResponse, error) {
	var resp TokenResponse
	if err := c.do(ctx, http.MethodPost, "/auth/register", req, &resp, false); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Login authenticates with existing credentials and returns a bearer token.
func (c *Client) Login(ctx context.Context, req LoginRequest) (*TokenResponse, error) {
	var resp TokenResponse
	if err := c.do(ctx, http.MethodPost, "/auth/login", req, &resp, false); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Room directory endpoints

// CreateRoom creates a new room.
func (c *Client) CreateRoom(ctx context.Context, req CreateRoomRequest) (*RoomInfo, error) {
	var resp RoomInfo
	if err := c.do(ctx, http.MethodPost, "/chat/room", req, &resp, true); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UpdateRoom updates a room's name and description.
func (c *Client) UpdateRoom(ctx context.Context, roomID int64, req CreateRoomRequest) (*RoomInfo, error) {
	var resp RoomInfo
	if err := c.do(ctx, http.MethodPut, fmt.Sprintf("/chat/room/%d", roomID), req, &resp, true); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DeleteRoom removes a room.
func (c *Client) DeleteRoom(ctx context.Context, roomID int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/chat/room/%d", roomID), nil, nil, true)
}

// ListRooms returns all accessible rooms for the authenticated user.
func (c *Client) ListRooms(ctx context.Context) ([]RoomInfo, error) {
	var resp []RoomInfo
	if err := c.do(ctx, http.MethodGet, "/chat/rooms", nil, &resp, true); err != nil {
		return nil, err
	}
	return resp, nil
}

// GetRoom returns one room's metadata.
func (c *Client) GetRoom(ctx context.Context, roomID int64) (*RoomInfo, error) {
	var resp RoomInfo
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/chat/room/%d", roomID), nil, &resp, true); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Message history endpoints

// GetMessages retrieves one page of room history. Pages are zero-based and
// newest-first within each page.
func (c *Client) GetMessages(ctx context.Context, roomID int64, page, size int) (*PagedMessages, error) {
	path := fmt.Sprintf("/chat/room/%d/messages?page=%d&size=%d", roomID, page, size)

	var resp PagedMessages
	if err := c.do(ctx, http.MethodGet, path, nil, &resp, true); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SearchMessages returns messages in a room matching the keyword.
func (c *Client) SearchMessages(ctx context.Context, roomID int64, keyword string) ([]ChatMessage, error) {
	path := fmt.Sprintf("/chat/room/%d/search?keyword=%s", roomID, url.QueryEscape(keyword))

	var resp []ChatMessage
	if err := c.do(ctx, http.MethodGet, path, nil, &resp, true); err != nil {
		return nil, err
	}
	return resp, nil
}

// MarkMessageRead records a read receipt for a message.
func (c *Client) MarkMessageRead(ctx context.Context, messageID int64) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/chat/messages/%d/read", messageID), struct{}{}, nil, true)
}

// AskOracle asks the room's oracle and returns its reply. The same reply is
// also pushed on the room topic, so callers must dedup by message ID.
func (c *Client) AskOracle(ctx context.Context, roomID int64, req OracleRequest) (*ChatMessage, error) {
	var resp ChatMessage
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/chat/room/%d/oracle/ask", roomID), req, &resp, true); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UpdateStatus reports the user's presence status.
func (c *Client) UpdateStatus(ctx context.Context, status string) error {
	return c.do(ctx, http.MethodPut, "/users/status", StatusRequest{Status: status}, nil, true)
}

// Helper methods

func (c *Client) do(ctx context.Context, method, path string, body, dest any, requireAuth bool) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if requireAuth && c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp ErrorResponse
		if err := json.Unmarshal(data, &errResp); err == nil && errResp.Error != "" {
			return fmt.Errorf("api error (status %d): %s", resp.StatusCode, errResp.Error)
		}
		return fmt.Errorf("http error: %s (status %d)", string(data), resp.StatusCode)
	}

	if dest != nil && len(data) > 0 {
		if err := json.Unmarshal(data, dest); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}

	return nil
}
