package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/directchat/internal/logger"
	"github.com/directchat/internal/model"
)

// Client calls the push service. With an empty URL every method is a no-op.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	if baseURL == "" {
		return &Client{}
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Enabled reports whether a push service is configured.
func (c *Client) Enabled() bool { return c.baseURL != "" }

type SubscribeRequest struct {
	UserID       string                 `json:"user_id"`
	Subscription model.PushSubscription `json:"subscription"`
}

type UnsubscribeRequest struct {
	UserID   string `json:"user_id"`
	Endpoint string `json:"endpoint"`
}

type NotifyRequest struct {
	UserID string            `json:"user_id"`
	Title  string            `json:"title"`
	Body   string            `json:"body"`
	Data   map[string]string `json:"data,omitempty"`
}

func (c *Client) Subscribe(ctx context.Context, userID string, sub model.PushSubscription) error {
	if c.baseURL == "" {
		return nil
	}
	return c.call(ctx, http.MethodPost, "/api/subscribe", SubscribeRequest{UserID: userID, Subscription: sub})
}

func (c *Client) Unsubscribe(ctx context.Context, userID, endpoint string) error {
	if c.baseURL == "" {
		return nil
	}
	return c.call(ctx, http.MethodDelete, "/api/subscribe", UnsubscribeRequest{UserID: userID, Endpoint: endpoint})
}

// Notify asks the push service to alert userID. Failures are logged and
// dropped: a missed notification is never retried.
func (c *Client) Notify(ctx context.Context, userID, title, body string, data map[string]string) {
	if c.baseURL == "" {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := c.call(ctx, http.MethodPost, "/api/notify", NotifyRequest{UserID: userID, Title: title, Body: body, Data: data}); err != nil {
		logger.Errorf("push notify %s: %v", userID, err)
	}
}

func (c *Client) call(ctx context.Context, method, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("push %s %s: %d", method, path, resp.StatusCode)
	}
	return nil
}
