package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/directchat/internal/chat"
	"github.com/directchat/internal/logger"
	"github.com/directchat/internal/middleware"
	"github.com/directchat/internal/model"
)

// ChatService is the message pipeline as the HTTP layer sees it.
type ChatService interface {
	Send(ctx context.Context, senderID, receiverID string, in chat.SendInput) (*model.EnrichedMessage, error)
	ListUsers(ctx context.Context, userID string) ([]model.UserPublic, error)
	Conversation(ctx context.Context, userID, peerID, beforeID string, limit int) ([]model.EnrichedMessage, error)
	UnreadCounts(ctx context.Context, userID string) ([]model.UnreadCount, error)
	MarkRead(ctx context.Context, userID, peerID string) error
}

type MessageHandler struct {
	chat    ChatService
	maxBody int64
}

// NewMessageHandler caps send bodies at maxBody bytes; base64 inflates an
// image by a third, so pass the upload limit plus headroom.
func NewMessageHandler(svc ChatService, maxBody int64) *MessageHandler {
	return &MessageHandler{chat: svc, maxBody: maxBody}
}

// writeChatError maps pipeline errors onto status codes. Store and blob
// failures are logged and hidden behind a generic message.
func writeChatError(w http.ResponseWriter, op string, err error, fallback string) {
	switch {
	case chat.IsValidation(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, chat.ErrReceiverNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		logger.Errorf("%s: %v", op, err)
		writeError(w, http.StatusInternalServerError, fallback)
	}
}

func (h *MessageHandler) GetUsers(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	users, err := h.chat.ListUsers(r.Context(), userID)
	if err != nil {
		writeChatError(w, "GetUsers", err, "failed to list users")
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *MessageHandler) GetConversation(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	peerID := chi.URLParam(r, "peerId")
	before := r.URL.Query().Get("beforeMessageId")
	limit := queryInt(r, "limit", 0)

	msgs, err := h.chat.Conversation(r.Context(), userID, peerID, before, limit)
	if err != nil {
		writeChatError(w, "GetConversation", err, "failed to load messages")
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	peerID := chi.URLParam(r, "peerId")

	if h.maxBody > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	}
	var in chat.SendInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, "message too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	msg, err := h.chat.Send(r.Context(), userID, peerID, in)
	if err != nil {
		writeChatError(w, "Send", err, "failed to send message")
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (h *MessageHandler) GetUnread(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	counts, err := h.chat.UnreadCounts(r.Context(), userID)
	if err != nil {
		writeChatError(w, "GetUnread", err, "failed to fetch unread messages")
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

func (h *MessageHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	peerID := chi.URLParam(r, "peerId")
	if err := h.chat.MarkRead(r.Context(), userID, peerID); err != nil {
		writeChatError(w, "MarkRead", err, "failed to mark messages as read")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Routes mounts the message endpoints; callers wrap it in authentication.
func (h *MessageHandler) Routes(r chi.Router) {
	r.Get("/api/messages/users", h.GetUsers)
	r.Get("/api/messages/unread-messages", h.GetUnread)
	r.Get("/api/messages/conversation/{peerId}", h.GetConversation)
	r.Post("/api/messages/send/{peerId}", h.Send)
	r.Patch("/api/messages/mark-read/{peerId}", h.MarkRead)
}
