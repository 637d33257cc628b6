// Package findmyroom provides a client for the FindMyRoom chat and unlock
// API.
package findmyroom

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Client is a FindMyRoom API client. Token is an HS256 bearer token issued
// by the auth service.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// NewClient creates a new client.
func NewClient(baseURL, token string) *Client {
	return &Client{
		BaseURL:    baseURL,
		Token:      token,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// doRequest performs an HTTP request.
func (c *Client) doRequest(method, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequest(method, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		json.Unmarshal(respBody, &errResp)
		return nil, fmt.Errorf("findmyroom error %d: %s", resp.StatusCode, errResp.Error)
	}

	return respBody, nil
}

// UnlockIntent is the pending grant returned when requesting an unlock.
type UnlockIntent struct {
	TransactionID string  `json:"transaction_id"`
	RoomID        string  `json:"room_id"`
	Amount        float64 `json:"amount"`
	Status        string  `json:"status"`
}

// RequestUnlock opens a pending unlock grant for a room.
func (c *Client) RequestUnlock(roomID string) (*UnlockIntent, error) {
	body, _ := json.Marshal(map[string]string{"room_id": roomID})
	respBody, err := c.doRequest(http.MethodPost, "/unlock/intent", body)
	if err != nil {
		return nil, err
	}

	var intent UnlockIntent
	if err := json.Unmarshal(respBody, &intent); err != nil {
		return nil, err
	}
	return &intent, nil
}

// VerifyKhalti submits a Khalti payment token for verification.
func (c *Client) VerifyKhalti(token, amount, transactionID string) error {
	body, _ := json.Marshal(map[string]string{
		"token":          token,
		"amount":         amount,
		"transaction_id": transactionID,
	})
	_, err := c.doRequest(http.MethodPost, "/payments/khalti/verify", body)
	return err
}

// Conversation is one inbox entry.
type Conversation struct {
	ID             string    `json:"id"`
	RoomID         string    `json:"room_id"`
	OtherPartyID   string    `json:"other_party_id"`
	OtherPartyName string    `json:"other_party_name"`
	UnreadCount    int       `json:"unread_count"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Conversations fetches the caller's inbox.
func (c *Client) Conversations() ([]Conversation, error) {
	respBody, err := c.doRequest(http.MethodGet, "/conversations", nil)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Conversations []Conversation `json:"conversations"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return resp.Conversations, nil
}

// Message is one chat message.
type Message struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"sender_id"`
	ReceiverID string    `json:"receiver_id"`
	RoomID     string    `json:"room_id"`
	Content    string    `json:"content"`
	Attachment string    `json:"attachment,omitempty"`
	Read       bool      `json:"read"`
	Timestamp  time.Time `json:"timestamp"`
	IsMine     bool      `json:"is_mine"`
}

// MessagePage is one page of conversation history.
type MessagePage struct {
	Messages []Message `json:"messages"`
	HasMore  bool      `json:"has_more"`
}

// Messages fetches a history page, oldest first. A zero before fetches
// from the live tail.
func (c *Client) Messages(conversationID string, limit int, before time.Time) (*MessagePage, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if !before.IsZero() {
		q.Set("before", before.Format(time.RFC3339))
	}

	path := "/conversations/" + conversationID + "/messages"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	respBody, err := c.doRequest(http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var page MessagePage
	if err := json.Unmarshal(respBody, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// SendMessage sends a message about a room. Owners replying to a specific
// client pass clientID; everyone else leaves it empty.
func (c *Client) SendMessage(roomID, clientID, content string) (*Message, error) {
	payload := map[string]string{"room_id": roomID, "content": content}
	if clientID != "" {
		payload["client_id"] = clientID
	}
	body, _ := json.Marshal(payload)

	respBody, err := c.doRequest(http.MethodPost, "/messages", body)
	if err != nil {
		return nil, err
	}

	var msg Message
	if err := json.Unmarshal(respBody, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// MarkRead marks received messages as read, returning how many flipped.
func (c *Client) MarkRead(messageIDs []string) (int64, error) {
	body, _ := json.Marshal(map[string][]string{"message_ids": messageIDs})
	respBody, err := c.doRequest(http.MethodPost, "/messages/read", body)
	if err != nil {
		return 0, err
	}

	var resp struct {
		Updated int64 `json:"updated"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return 0, err
	}
	return resp.Updated, nil
}

// UnreadCount returns the caller's total unread messages.
func (c *Client) UnreadCount() (int, error) {
	respBody, err := c.doRequest(http.MethodGet, "/messages/unread-count", nil)
	if err != nil {
		return 0, err
	}

	var resp struct {
		Unread int `json:"unread"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return 0, err
	}
	return resp.Unread, nil
}

// Contact is a room's private contact card, visible after unlock.
type Contact struct {
	RoomID string `json:"room_id"`
	Name   string `json:"name"`
	Phone  string `json:"phone"`
	Email  string `json:"email"`
}

// RoomContact fetches a room's contact details.
func (c *Client) RoomContact(roomID string) (*Contact, error) {
	respBody, err := c.doRequest(http.MethodGet, "/rooms/"+roomID+"/contact", nil)
	if err != nil {
		return nil, err
	}

	var contact Contact
	if err := json.Unmarshal(respBody, &contact); err != nil {
		return nil, err
	}
	return &contact, nil
}
