package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/directchat/internal/auth"
	"github.com/directchat/internal/blob"
	"github.com/directchat/internal/chat"
	"github.com/directchat/internal/config"
	"github.com/directchat/internal/handler"
	"github.com/directchat/internal/logger"
	"github.com/directchat/internal/push"
	"github.com/directchat/internal/repository"
	"github.com/directchat/internal/repository/memstore"
	"github.com/directchat/internal/startup"
	"github.com/directchat/internal/ws"
	"github.com/directchat/migrations"
)

type stores struct {
	messages chat.MessageStore
	users    interface {
		chat.UserStore
		startup.UserCreator
	}
}

func main() {
	logger.SetPrefix("api")
	migrate := flag.Bool("migrate", false, "run database migrations and exit")
	dev := flag.Bool("dev", false, "start with embedded PostgreSQL (no external DB required)")
	inMemory := flag.Bool("memory", false, "keep users and messages in memory (no database)")
	seed := flag.Bool("seed", false, "insert the demo users")
	flag.Parse()

	logger.Info("starting API service")
	cfg, err := config.Load()
	if err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}

	var st stores
	if *inMemory {
		logger.Info("in-memory stores, nothing is persisted")
		st.messages = memstore.NewMessageStore()
		st.users = memstore.NewUserStore()
	} else {
		var embeddedDB *embeddedpostgres.EmbeddedPostgres
		if *dev {
			var url string
			embeddedDB, url, err = startup.StartEmbeddedPostgres()
			if err != nil {
				logger.Errorf("embedded postgres: %v", err)
				os.Exit(1)
			}
			cfg.Database.URL = url
			defer func() {
				logger.Info("stopping embedded postgres...")
				if err := embeddedDB.Stop(); err != nil {
					logger.Errorf("embedded postgres stop: %v", err)
				}
			}()
		}

		poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL())
		if err != nil {
			logger.Errorf("parse db config: %v", err)
			os.Exit(1)
		}
		poolCfg.MaxConns = int32(cfg.DBMaxConnections())
		poolCfg.MinConns = 2

		pool := startup.ConnectDBWithRetry(poolCfg, 60*time.Second, "")
		defer pool.Close()

		migrateCtx, migrateCancel := context.WithTimeout(context.Background(), 30*time.Second)
		err = startup.RunMigrations(migrateCtx, pool, migrations.Files)
		migrateCancel()
		if err != nil {
			logger.Errorf("%v", err)
			os.Exit(1)
		}
		if *migrate && !*dev {
			return
		}
		logger.Info("database connected, migrations applied")
		st.messages = repository.NewMessageRepository(pool)
		st.users = repository.NewUserRepository(pool)
	}

	if *seed || *dev || *inMemory {
		seedCtx, seedCancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := startup.Seed(seedCtx, st.users); err != nil {
			logger.Errorf("seed: %v", err)
		} else {
			logger.Infof("demo users seeded (%d)", len(startup.DemoUsers))
		}
		seedCancel()
	}

	var mirror ws.PresenceMirror
	if cfg.RedisURL != "" {
		rc := startup.ConnectRedisWithRetry(cfg.RedisURL, 60*time.Second, "")
		defer rc.Close()
		mirror = rc
	}

	var files interface {
		chat.BlobStore
		handler.FileServer
	}
	if cfg.FileServiceURL != "" {
		logger.Infof("images stored by files service %s", cfg.FileServiceURL)
		files = blob.NewRemoteStore(cfg.FileServiceURL, cfg.MaxUploadSize, cfg.PublicBaseURL)
	} else {
		files = blob.NewLocalStore(cfg.UploadDir, cfg.MaxUploadSize, cfg.PublicBaseURL)
	}

	authn, err := auth.New(cfg.Auth)
	if err != nil {
		logger.Errorf("auth: %v", err)
		os.Exit(1)
	}
	if cfg.Auth.Mode == config.AuthModeDev {
		logger.Info("AUTH_MODE=dev: identity taken from the " + auth.DevHeader + " header")
	}

	hubCtx, hubCancel := context.WithCancel(context.Background())
	hub := ws.NewHub(ws.NewRegistry(), cfg.WS.MaxConnections, mirror)
	var hubWg sync.WaitGroup
	hubWg.Add(1)
	go func() {
		defer hubWg.Done()
		hub.Run(hubCtx)
	}()

	opts := chat.Options{PageSize: cfg.HistoryPageSize, MaxPageSize: cfg.HistoryMaxPageSize}
	deps := handler.Deps{Config: cfg, Auth: authn, Hub: hub, Files: files}
	if pushClient := push.NewClient(cfg.PushServiceURL); pushClient.Enabled() {
		opts.Notifier = pushClient
		deps.Push = pushClient
	}
	deps.Chat = chat.NewService(st.messages, st.users, files, hub, opts)

	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      handler.NewRouter(deps),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	var srvWg sync.WaitGroup
	errCh := make(chan error, 1)
	srvWg.Add(1)
	go func() {
		defer srvWg.Done()
		logger.Infof("server listening on %s", cfg.ServerAddr)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Errorf("server error: %v", err)
			os.Exit(1)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("server shutdown: %v", err)
	}
	logger.Info("server stopped accepting connections")
	hubCancel()
	hubWg.Wait()
	logger.Info("hub stopped")
	srvWg.Wait()
	logger.Info("server goroutine exited")
}
