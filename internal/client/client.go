// Package client is the Go client of the collab HTTP API. Error bodies are mapped back to
// the typed errors of package apperr.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"collab-service/internal/apperr"
	"collab-service/internal/models"
	"collab-service/internal/rooms"
)

const DefaultTimeout = 10 * time.Second

type Client struct {
	base  string
	token string
	hc    *http.Client
}

// New returns a client for the API at base, authenticating as the holder of token.
func New(base, token string) *Client {
	return &Client{
		base:  strings.TrimRight(base, "/"),
		token: token,
		hc:    &http.Client{Timeout: DefaultTimeout},
	}
}

// WithHTTPClient replaces the underlying http client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.hc = hc
	return c
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Code == "" {
		return fmt.Errorf("collab api status %d", resp.StatusCode)
	}
	return apperr.FromCode(body.Code, body.Error)
}

func (c *Client) ListRooms(ctx context.Context) ([]models.ChatRoom, error) {
	var out struct {
		Rooms []models.ChatRoom `json:"rooms"`
	}
	err := c.do(ctx, http.MethodGet, "/rooms", nil, &out)
	return out.Rooms, err
}

func (c *Client) GetRoom(ctx context.Context, roomID int) (models.ChatRoom, error) {
	var out struct {
		Room models.ChatRoom `json:"room"`
	}
	err := c.do(ctx, http.MethodGet, "/rooms/"+strconv.Itoa(roomID), nil, &out)
	return out.Room, err
}

func (c *Client) OpenDirect(ctx context.Context, userID int) (models.ChatRoom, error) {
	var out struct {
		Room models.ChatRoom `json:"room"`
	}
	err := c.do(ctx, http.MethodPost, "/rooms/direct", map[string]int{"user_id": userID}, &out)
	return out.Room, err
}

func (c *Client) CreateGroup(ctx context.Context, in rooms.CreateGroupInput) (models.ChatRoom, error) {
	var out struct {
		Room models.ChatRoom `json:"room"`
	}
	err := c.do(ctx, http.MethodPost, "/rooms", in, &out)
	return out.Room, err
}

func (c *Client) MarkRead(ctx context.Context, roomID int) error {
	return c.do(ctx, http.MethodPost, "/rooms/"+strconv.Itoa(roomID)+"/read", nil, nil)
}

func (c *Client) AddMembers(ctx context.Context, roomID int, userIDs []int) ([]int, error) {
	var out struct {
		Added []int `json:"added"`
	}
	err := c.do(ctx, http.MethodPost, "/rooms/"+strconv.Itoa(roomID)+"/members", map[string][]int{"user_ids": userIDs}, &out)
	return out.Added, err
}

// Page returns up to limit messages, oldest first, skipping the offset newest.
func (c *Client) Page(ctx context.Context, roomID, limit, offset int) ([]models.ChatMessage, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	path := "/rooms/" + strconv.Itoa(roomID) + "/messages"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out struct {
		Messages []models.ChatMessage `json:"messages"`
	}
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out.Messages, err
}

// Message fetches one hydrated message.
func (c *Client) Message(ctx context.Context, roomID, messageID int) (models.ChatMessage, error) {
	var out struct {
		Message models.ChatMessage `json:"message"`
	}
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/rooms/%d/messages/%d", roomID, messageID), nil, &out)
	return out.Message, err
}

func (c *Client) Append(ctx context.Context, in models.AppendInput) (models.ChatMessage, error) {
	var out struct {
		Message models.ChatMessage `json:"message"`
	}
	err := c.do(ctx, http.MethodPost, "/rooms/"+strconv.Itoa(in.RoomID)+"/messages", in, &out)
	return out.Message, err
}

func (c *Client) Edit(ctx context.Context, roomID, messageID int, content string) (models.ChatMessage, error) {
	var out struct {
		Message models.ChatMessage `json:"message"`
	}
	err := c.do(ctx, http.MethodPatch, fmt.Sprintf("/rooms/%d/messages/%d", roomID, messageID), map[string]string{"content": content}, &out)
	return out.Message, err
}

func (c *Client) ListConnections(ctx context.Context, state models.ConnectionState) ([]models.UserConnection, error) {
	path := "/connections"
	if state != "" {
		path += "?status=" + url.QueryEscape(string(state))
	}
	var out struct {
		Connections []models.UserConnection `json:"connections"`
	}
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out.Connections, err
}

func (c *Client) SendRequest(ctx context.Context, userID int, connType models.ConnectionType) (models.UserConnection, error) {
	body := map[string]any{"user_id": userID}
	if connType != "" {
		body["connection_type"] = connType
	}
	var out struct {
		Connection models.UserConnection `json:"connection"`
	}
	err := c.do(ctx, http.MethodPost, "/connections", body, &out)
	return out.Connection, err
}

func (c *Client) Respond(ctx context.Context, connectionID int, decision models.ConnectionState) (models.UserConnection, error) {
	var out struct {
		Connection models.UserConnection `json:"connection"`
	}
	err := c.do(ctx, http.MethodPost, "/connections/"+strconv.Itoa(connectionID)+"/respond", map[string]any{"decision": decision}, &out)
	return out.Connection, err
}

func (c *Client) Cancel(ctx context.Context, connectionID int) (models.UserConnection, error) {
	var out struct {
		Connection models.UserConnection `json:"connection"`
	}
	err := c.do(ctx, http.MethodDelete, "/connections/"+strconv.Itoa(connectionID), nil, &out)
	return out.Connection, err
}

func (c *Client) ConnectionStatus(ctx context.Context, userID int) (models.ConnectionView, error) {
	var view models.ConnectionView
	err := c.do(ctx, http.MethodGet, "/connections/status/"+strconv.Itoa(userID), nil, &view)
	return view, err
}

// SetPresence records the caller's status. A nil roomID clears the current room.
func (c *Client) SetPresence(ctx context.Context, status models.PresenceStatus, roomID *int) (models.UserPresence, error) {
	var out struct {
		Presence models.UserPresence `json:"presence"`
	}
	body := map[string]any{"status": status, "current_room_id": roomID}
	err := c.do(ctx, http.MethodPut, "/presence", body, &out)
	return out.Presence, err
}

func (c *Client) Heartbeat(ctx context.Context) (models.UserPresence, error) {
	var out struct {
		Presence models.UserPresence `json:"presence"`
	}
	err := c.do(ctx, http.MethodPost, "/presence/heartbeat", nil, &out)
	return out.Presence, err
}

func (c *Client) Presence(ctx context.Context, userID int) (models.UserPresence, error) {
	var out struct {
		Presence models.UserPresence `json:"presence"`
	}
	err := c.do(ctx, http.MethodGet, "/presence/"+strconv.Itoa(userID), nil, &out)
	return out.Presence, err
}

func (c *Client) SearchUsers(ctx context.Context, query string, limit int) ([]models.UserForCollaboration, error) {
	q := url.Values{"q": {query}}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out struct {
		Users []models.UserForCollaboration `json:"users"`
	}
	err := c.do(ctx, http.MethodGet, "/users/search?"+q.Encode(), nil, &out)
	return out.Users, err
}
