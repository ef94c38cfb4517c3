package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/directchat/internal/logger"
	"github.com/directchat/internal/middleware"
	"github.com/directchat/internal/ws"
)

type WSHandler struct {
	hub            *ws.Hub
	allowedOrigins []string
	opts           ws.ClientOptions
}

// NewWSHandler builds the socket endpoint. allowedOrigins follows CORS: a
// list of origins or "*".
func NewWSHandler(hub *ws.Hub, allowedOrigins []string, opts ws.ClientOptions) *WSHandler {
	return &WSHandler{hub: hub, allowedOrigins: allowedOrigins, opts: opts}
}

func (h *WSHandler) checkOrigin(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" || len(h.allowedOrigins) == 0 {
		return true
	}
	for _, o := range h.allowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

// ServeWS upgrades an authenticated request. The userId query parameter
// names the identity the client connects as and must match the caller.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if q := r.URL.Query().Get("userId"); q != "" && q != userID {
		writeError(w, http.StatusForbidden, "userId does not match session")
		return
	}
	if !h.checkOrigin(r) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Errorf("ws upgrade: %v", err)
		return
	}

	// the socket outlives the request context
	ctx, cancel := context.WithCancel(context.Background())
	client := ws.NewClient(h.hub, conn, userID, h.opts)
	client.Start(ctx, cancel)
	h.hub.Register(client)
}
