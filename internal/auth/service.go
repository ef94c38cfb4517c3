package auth

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ServiceAuthenticator asks the auth service to validate the caller's token
// at POST /internal/validate.
type ServiceAuthenticator struct {
	baseURL    string
	cookieName string
	client     *http.Client
}

func NewServiceAuthenticator(baseURL, cookieName string, client *http.Client) *ServiceAuthenticator {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &ServiceAuthenticator{baseURL: strings.TrimSuffix(baseURL, "/"), cookieName: cookieName, client: client}
}

type validateRequest struct {
	Token  string `json:"token"`
	Method string `json:"method"`
	Path   string `json:"path"`
}

type validateResponse struct {
	UserID string `json:"user_id"`
}

func (a *ServiceAuthenticator) Authenticate(r *http.Request) (string, error) {
	token := bearerToken(r, a.cookieName)
	if token == "" {
		return "", ErrUnauthorized
	}
	body, _ := json.Marshal(validateRequest{Token: token, Method: r.Method, Path: r.URL.Path})
	req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, a.baseURL+"/internal/validate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("auth service request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: auth service: %v", ErrUnauthorized, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: auth service status %d", ErrUnauthorized, resp.StatusCode)
	}
	var result validateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil || result.UserID == "" {
		return "", ErrUnauthorized
	}
	return result.UserID, nil
}
