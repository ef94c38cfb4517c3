package push

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/directchat/internal/logger"
	"github.com/directchat/internal/model"
	"github.com/directchat/internal/storage"
)

// Sender delivers one encrypted payload to a browser subscription and
// returns the push endpoint's status code.
type Sender interface {
	Send(ctx context.Context, payload []byte, sub model.PushSubscription) (int, error)
}

type webpushSender struct {
	opts *webpush.Options
}

// NewWebPushSender signs requests with the VAPID key pair.
func NewWebPushSender(keys *VAPIDKeys, subscriber string) Sender {
	return &webpushSender{opts: &webpush.Options{
		Subscriber:      subscriber,
		VAPIDPublicKey:  keys.PublicKey,
		VAPIDPrivateKey: keys.PrivateKey,
		TTL:             30,
	}}
}

func (s *webpushSender) Send(ctx context.Context, payload []byte, sub model.PushSubscription) (int, error) {
	resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys:     webpush.Keys{P256dh: sub.Keys.P256dh, Auth: sub.Keys.Auth},
	}, s.opts)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}

// Service is the push microservice: subscriptions in a SubscriptionStore,
// delivery through a Sender. A nil sender keeps subscriptions but sends
// nothing.
type Service struct {
	store     storage.SubscriptionStore
	sender    Sender
	publicKey string
}

func NewService(store storage.SubscriptionStore, sender Sender, publicKey string) *Service {
	return &Service{store: store, sender: sender, publicKey: publicKey}
}

func (s *Service) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK); w.Write([]byte("ok")) })
	r.Get("/api/vapid-public", s.handleVAPIDPublic)
	r.Route("/api", func(r chi.Router) {
		r.Post("/subscribe", s.handleSubscribe)
		r.Delete("/subscribe", s.handleUnsubscribe)
		r.Post("/notify", s.handleNotify)
	})
	return r
}

func (s *Service) handleVAPIDPublic(w http.ResponseWriter, r *http.Request) {
	if s.publicKey == "" {
		http.Error(w, "push not configured", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte(s.publicKey))
}

func (s *Service) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	var req SubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" || !req.Subscription.Valid() {
		http.Error(w, "user_id and subscription (endpoint, keys.p256dh, keys.auth) required", http.StatusBadRequest)
		return
	}
	if err := s.store.AddSubscription(r.Context(), req.UserID, req.Subscription); err != nil {
		logger.Errorf("push subscribe: %v", err)
		http.Error(w, "failed to save subscription", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	var req UnsubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" || req.Endpoint == "" {
		http.Error(w, "user_id and endpoint required", http.StatusBadRequest)
		return
	}
	if err := s.store.RemoveSubscription(r.Context(), req.UserID, req.Endpoint); err != nil {
		logger.Errorf("push unsubscribe: %v", err)
		http.Error(w, "failed to remove subscription", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleNotify sends once to every subscription of the user. Gone
// endpoints (404/410) are dropped; other failures are logged and not
// retried.
func (s *Service) handleNotify(w http.ResponseWriter, r *http.Request) {
	var req NotifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		http.Error(w, "user_id required", http.StatusBadRequest)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	subs, err := s.store.Subscriptions(ctx, req.UserID)
	if err != nil {
		logger.Errorf("push notify: %v", err)
		http.Error(w, "failed to get subscriptions", http.StatusInternalServerError)
		return
	}
	if s.sender == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	payload, _ := json.Marshal(map[string]any{"title": req.Title, "body": req.Body, "data": req.Data})
	for _, sub := range subs {
		status, err := s.sender.Send(ctx, payload, sub)
		if err != nil {
			logger.Errorf("push send %s: %v", sub.Endpoint[:min(50, len(sub.Endpoint))], err)
			continue
		}
		if status == http.StatusGone || status == http.StatusNotFound {
			if err := s.store.RemoveSubscription(ctx, req.UserID, sub.Endpoint); err != nil {
				logger.Errorf("push drop gone subscription: %v", err)
			}
		}
	}
	w.WriteHeader(http.StatusNoContent)
}
