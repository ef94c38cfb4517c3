package handler

import (
	"net/http"

	"github.com/directchat/internal/config"
)

// ConfigHandler exposes the public part of the configuration.
type ConfigHandler struct {
	cfg *config.Config
}

func NewConfigHandler(cfg *config.Config) *ConfigHandler {
	return &ConfigHandler{cfg: cfg}
}

// GetPushConfig returns the VAPID public key when push is enabled.
func (h *ConfigHandler) GetPushConfig(w http.ResponseWriter, r *http.Request) {
	if h.cfg.PushServiceURL == "" || h.cfg.PushVAPIDPublicKey == "" {
		writeJSON(w, http.StatusOK, map[string]any{"enabled": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"enabled":          true,
		"vapid_public_key": h.cfg.PushVAPIDPublicKey,
	})
}

// GetChatConfig tells clients the history page size.
func (h *ConfigHandler) GetChatConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int{
		"page_size":     h.cfg.HistoryPageSize,
		"max_page_size": h.cfg.HistoryMaxPageSize,
	})
}
