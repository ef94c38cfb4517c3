package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/directchat/internal/middleware"
	"github.com/directchat/internal/model"
)

type PushSubscriber interface {
	Subscribe(ctx context.Context, userID string, sub model.PushSubscription) error
	Unsubscribe(ctx context.Context, userID, endpoint string) error
}

// PushHandler registers the caller's browser for offline notifications.
type PushHandler struct {
	client PushSubscriber
}

func NewPushHandler(client PushSubscriber) *PushHandler {
	return &PushHandler{client: client}
}

type SubscribeRequest struct {
	Subscription model.PushSubscription `json:"subscription"`
}

func (h *PushHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	var req SubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if !req.Subscription.Valid() {
		writeError(w, http.StatusBadRequest, "subscription.endpoint and subscription.keys required")
		return
	}
	if err := h.client.Subscribe(r.Context(), userID, req.Subscription); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to subscribe")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type UnsubscribeRequest struct {
	Endpoint string `json:"endpoint"`
}

func (h *PushHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	var req UnsubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if req.Endpoint == "" {
		writeError(w, http.StatusBadRequest, "endpoint required")
		return
	}
	if err := h.client.Unsubscribe(r.Context(), userID, req.Endpoint); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to unsubscribe")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
