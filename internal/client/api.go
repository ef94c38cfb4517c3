// Package client is the client side of the chat core: an HTTP API client, a
// websocket event socket, and the stores a UI renders from (conversation
// sync, presence, typing).
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

	"github.com/directchat/internal/auth"
	"github.com/directchat/internal/chat"
	"github.com/directchat/internal/model"
)

// APIError is a non-2xx answer of the chat API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("api: %d %s", e.Status, e.Message)
}

// API talks to the api service over HTTP. With a token set requests carry it
// as a bearer token; otherwise the dev identity header is sent.
type API struct {
	baseURL string
	userID  string
	token   string
	http    *http.Client
}

func NewAPI(baseURL, userID, token string) *API {
	return &API{
		baseURL: strings.TrimRight(baseURL, "/"),
		userID:  userID,
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// UserID is the identity the client acts as.
func (a *API) UserID() string { return a.userID }

// Header returns the identity headers, for requests made outside API (the
// websocket handshake).
func (a *API) Header() http.Header {
	h := http.Header{}
	if a.token != "" {
		h.Set("Authorization", "Bearer "+a.token)
	} else if a.userID != "" {
		h.Set(auth.DevHeader, a.userID)
	}
	return h
}

func (a *API) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, rd)
	if err != nil {
		return err
	}
	for k, v := range a.Header() {
		req.Header[k] = v
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		var envelope struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&envelope) == nil {
			apiErr.Message = envelope.Error
		}
		return apiErr
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Users lists every other user, newest account first.
func (a *API) Users(ctx context.Context) ([]model.UserPublic, error) {
	var users []model.UserPublic
	if err := a.do(ctx, http.MethodGet, "/api/messages/users", nil, &users); err != nil {
		return nil, fmt.Errorf("api.Users: %w", err)
	}
	return users, nil
}

// Conversation fetches one ascending page with peerID. An empty beforeID asks
// for the newest page; limit <= 0 leaves the page size to the server.
func (a *API) Conversation(ctx context.Context, peerID, beforeID string, limit int) ([]model.EnrichedMessage, error) {
	q := url.Values{}
	if beforeID != "" {
		q.Set("beforeMessageId", beforeID)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/messages/conversation/" + url.PathEscape(peerID)
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var page []model.EnrichedMessage
	if err := a.do(ctx, http.MethodGet, path, nil, &page); err != nil {
		return nil, fmt.Errorf("api.Conversation: %w", err)
	}
	return page, nil
}

func (a *API) Send(ctx context.Context, peerID string, in chat.SendInput) (*model.EnrichedMessage, error) {
	var m model.EnrichedMessage
	if err := a.do(ctx, http.MethodPost, "/api/messages/send/"+url.PathEscape(peerID), in, &m); err != nil {
		return nil, fmt.Errorf("api.Send: %w", err)
	}
	return &m, nil
}

func (a *API) UnreadCounts(ctx context.Context) ([]model.UnreadCount, error) {
	var counts []model.UnreadCount
	if err := a.do(ctx, http.MethodGet, "/api/messages/unread-messages", nil, &counts); err != nil {
		return nil, fmt.Errorf("api.UnreadCounts: %w", err)
	}
	return counts, nil
}

func (a *API) MarkRead(ctx context.Context, peerID string) error {
	if err := a.do(ctx, http.MethodPatch, "/api/messages/mark-read/"+url.PathEscape(peerID), nil, nil); err != nil {
		return fmt.Errorf("api.MarkRead: %w", err)
	}
	return nil
}
