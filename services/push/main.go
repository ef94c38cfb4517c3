// Web push service: subscriptions in Redis, delivery signed with VAPID.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/directchat/internal/logger"
	"github.com/directchat/internal/push"
	"github.com/directchat/internal/startup"
	"github.com/directchat/internal/storage"
	"github.com/directchat/internal/storage/memory"
)

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	logger.SetPrefix("push")
	if len(os.Args) > 1 && (os.Args[1] == "-gen-vapid" || os.Args[1] == "--gen-vapid") {
		priv, pub, err := webpush.GenerateVAPIDKeys()
		if err != nil {
			logger.Errorf("generate VAPID: %v", err)
			os.Exit(1)
		}
		logger.Infof("VAPID_PUBLIC_KEY=%s", pub)
		logger.Infof("VAPID_PRIVATE_KEY=%s", priv)
		return
	}
	addr := getEnv("SERVER_ADDR", ":8082")
	redisURL := os.Getenv("REDIS_URL")

	keys := &push.VAPIDKeys{PublicKey: os.Getenv("VAPID_PUBLIC_KEY"), PrivateKey: os.Getenv("VAPID_PRIVATE_KEY")}
	if keys.PublicKey == "" || keys.PrivateKey == "" {
		loaded, err := push.EnsureVAPIDKeys("")
		if err != nil {
			logger.Errorf("VAPID keys unavailable, delivery disabled: %v", err)
			keys = &push.VAPIDKeys{}
		} else {
			keys = loaded
		}
	}
	var sender push.Sender
	if keys.PublicKey != "" && keys.PrivateKey != "" {
		sender = push.NewWebPushSender(keys, getEnv("VAPID_SUBSCRIBER", "directchat-push"))
	}

	var store storage.SubscriptionStore
	if redisURL == "" {
		logger.Info("REDIS_URL empty, subscriptions kept in memory")
		store = memory.New()
	} else {
		store = startup.ConnectRedisWithRetry(redisURL, 2*time.Minute, "push: ")
	}
	defer store.Close()

	srv := &http.Server{
		Addr:         addr,
		Handler:      push.NewService(store, sender, keys.PublicKey).Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Infof("push server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("push server: %v", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutdown signal received")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("shutdown: %v", err)
	}
	logger.Info("push server stopped")
}
