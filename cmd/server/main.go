package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"

	"github.com/partshub/runtime/infrastructure/cache"
	"github.com/partshub/runtime/infrastructure/logging"
	"github.com/partshub/runtime/infrastructure/middleware"
	"github.com/partshub/runtime/internal/chat"
	"github.com/partshub/runtime/internal/config"
	"github.com/partshub/runtime/internal/crypto"
	"github.com/partshub/runtime/internal/platform/database"
	"github.com/partshub/runtime/internal/runtime"
	"github.com/partshub/runtime/internal/security"
	"github.com/partshub/runtime/internal/sync"
	"github.com/partshub/runtime/pkg/metrics"
	"github.com/partshub/runtime/system/events"
	"github.com/partshub/runtime/system/framework"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}

	log := logging.New("partshub-runtime", cfg.Logging.Level, cfg.Logging.Format)
	if cfg.Logging.FilePrefix != "" {
		log.EnableFileRotation(cfg.Logging.FilePrefix)
	}

	db, err := database.OpenSqlx(ctx, cfg.Database.ConnectionString())
	if err != nil {
		log.Fatal(ctx, "failed to connect to database", err)
	}
	defer db.Close()

	if err := chat.EnsureSchema(ctx, db); err != nil {
		log.Fatal(ctx, "failed to ensure chat schema", err)
	}
	if err := sync.EnsureSchema(ctx, db); err != nil {
		log.Fatal(ctx, "failed to ensure sync schema", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})

	dispatcher := events.NewDispatcher(events.DispatcherConfig{Logger: log})

	bus := events.NewRedisBus(dispatcher, redisClient, cfg.Redis.ChannelPrefix+":chat", log)

	presence := cache.NewCache(cache.DefaultConfig())
	conns := chat.NewConnectionManager(presence, bus, log)
	dispatcher.RegisterHandler("chat-room-broadcast", chat.NewRoomBroadcastHandler(conns))

	jwt, err := security.NewJWTManager(
		cfg.Security.JWTSecret,
		time.Duration(cfg.Security.JWTAccessTTLMinutes)*time.Minute,
		time.Duration(cfg.Security.JWTRefreshTTLHours)*time.Hour,
	)
	if err != nil {
		log.Fatal(ctx, "failed to build jwt manager", err)
	}

	permissions := framework.NewManager()
	httpRateLimiter := middleware.NewRateLimiter(5, 10, log)
	prohibitedWords := cache.NewCache(cache.DefaultConfig())

	encryptionKey := crypto.Hash256([]byte(cfg.Security.SecretEncryptionKey))

	chatService := chat.NewService(
		chat.NewRoomRepository(db),
		chat.NewMemberRepository(db),
		chat.NewMessageRepository(db, encryptionKey),
		chat.NewReactionRepository(db),
		chat.NewRateLimitLogRepository(db),
		permissions,
		conns,
		prohibitedWords,
		log,
	)
	chatHandler := chat.NewHandler(chatService, conns, jwt, log)

	jobStore := events.NewPostgresJobStore(db.DB)
	syncService, err := sync.NewService(cfg, db, jobStore, log)
	if err != nil {
		log.Fatal(ctx, "failed to build sync engine", err)
	}

	router := chi.NewRouter()
	router.Use(httpRateLimiter.Handler)
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	router.Handle("/metrics", metrics.Handler())
	router.Get("/ws/chat", chatHandler.ServeWS)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      metrics.InstrumentHandler(router),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	manager := runtime.NewManager(log)

	manager.Register(runtime.NewService("event-dispatcher", &dispatcherService{dispatcher: dispatcher}).
		Domain("core").
		Description("in-process event dispatcher backing cross-node chat fan-out").
		Capabilities("events").
		Build())

	manager.Register(runtime.NewService("redis-bus", &redisBusService{bus: bus}).
		Domain("chat").
		Description("cross-node chat event fan-out over redis pub/sub").
		Capabilities("redis", "pubsub").
		DependsOn("event-dispatcher").
		Build())

	manager.Register(runtime.NewService("http", &httpService{server: httpServer, log: log}).
		Domain("core").
		Description("http/websocket listener serving the chat surface").
		Capabilities("http", "websocket").
		DependsOn("redis-bus").
		Build())

	manager.Register(runtime.NewService("sync-engine", syncService).
		Domain("sync").
		Description("scheduled AS400/FileMaker/file sync pipeline").
		Capabilities("postgres", "cron").
		DependsOn("http").
		Build())

	if err := manager.RunUntilSignal(ctx, time.Duration(cfg.Server.ShutdownTimeout)*time.Second); err != nil {
		log.Fatal(ctx, "runtime manager exited with error", err)
	}
}

// dispatcherService adapts events.Dispatcher to runtime.Service.
type dispatcherService struct {
	dispatcher *events.Dispatcher
}

func (s *dispatcherService) Name() string { return "event-dispatcher" }
func (s *dispatcherService) Start(ctx context.Context) error {
	return s.dispatcher.Start(ctx, 4)
}
func (s *dispatcherService) Stop(ctx context.Context) error {
	s.dispatcher.Stop()
	return nil
}
func (s *dispatcherService) Ready(ctx context.Context) error { return nil }

// redisBusService adapts events.RedisBus to runtime.Service.
type redisBusService struct {
	bus *events.RedisBus
}

func (s *redisBusService) Name() string                   { return "redis-bus" }
func (s *redisBusService) Start(ctx context.Context) error { return s.bus.Start(ctx) }
func (s *redisBusService) Stop(ctx context.Context) error  { s.bus.Stop(); return nil }
func (s *redisBusService) Ready(ctx context.Context) error { return nil }

// httpService adapts http.Server to runtime.Service, serving in the
// background and shutting down gracefully on Stop.
type httpService struct {
	server *http.Server
	log    *logging.Logger
}

func (s *httpService) Name() string { return "http" }

func (s *httpService) Start(ctx context.Context) error {
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.WithError(err).Error("http server stopped unexpectedly")
		}
	}()
	return nil
}

func (s *httpService) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *httpService) Ready(ctx context.Context) error { return nil }
