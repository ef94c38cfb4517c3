package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/directchat/internal/auth"
	"github.com/directchat/internal/config"
	"github.com/directchat/internal/middleware"
	"github.com/directchat/internal/ws"
)

type Deps struct {
	Config *config.Config
	Auth   auth.Authenticator
	Chat   ChatService
	Hub    *ws.Hub
	Files  FileServer
	// Push may be nil when no push service is configured.
	Push PushSubscriber
}

// NewRouter assembles the api service routes.
func NewRouter(d Deps) http.Handler {
	cfg := d.Config
	msgH := NewMessageHandler(d.Chat, cfg.MaxUploadSize*4/3+(64<<10))
	wsH := NewWSHandler(d.Hub, cfg.AllowedOrigins(), ws.ClientOptions{
		WriteWait:      cfg.WS.WriteTimeout,
		PongWait:       cfg.WS.PongTimeout,
		MaxMessageSize: cfg.WS.MaxMessageSize,
		SendBufferSize: cfg.WS.SendBufferSize,
	})
	fileH := NewFileHandler(d.Files)
	configH := NewConfigHandler(cfg)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(middleware.RecoverJSON)
	// compressing the upgrade response would hide http.Hijacker
	r.Use(func(next http.Handler) http.Handler {
		compress := chimw.Compress(5)(next)
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if strings.EqualFold(req.Header.Get("Upgrade"), "websocket") {
				next.ServeHTTP(w, req)
				return
			}
			compress.ServeHTTP(w, req)
		})
	})
	r.Use(middleware.RequestLog)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins(),
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", auth.DevHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK); w.Write([]byte("ok")) })
	r.Get("/api/config/push", configH.GetPushConfig)
	r.Get("/api/config/chat", configH.GetChatConfig)
	r.Get("/api/files/{filename}", fileH.Serve)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Authenticate(d.Auth))
		r.Get("/ws", wsH.ServeWS)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimitAPI)
			msgH.Routes(r)
			if d.Push != nil {
				pushH := NewPushHandler(d.Push)
				r.Post("/api/push/subscribe", pushH.Subscribe)
				r.Delete("/api/push/subscribe", pushH.Unsubscribe)
			}
		})
	})
	return r
}
