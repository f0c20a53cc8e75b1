package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/nats-io/nats.go"

	"github.com/thereayou/dealroom-chat/internal/cache"
	"github.com/thereayou/dealroom-chat/internal/config"
	"github.com/thereayou/dealroom-chat/internal/database"
	"github.com/thereayou/dealroom-chat/internal/fanout"
	"github.com/thereayou/dealroom-chat/internal/handlers"
	"github.com/thereayou/dealroom-chat/internal/middleware"
	"github.com/thereayou/dealroom-chat/internal/services"
	"github.com/thereayou/dealroom-chat/internal/websocket"
	"github.com/thereayou/dealroom-chat/pkg/auth"
)

type Server struct {
	Config *config.Config
	Logger *slog.Logger
	Router *gin.Engine
	DB     *database.Database
	Redis  *redis.Client
	NATS   *nats.Conn
	Hub    *websocket.Hub
	Bus    fanout.Bus
	Chat   *services.ConversationService
}

func NewServer() (*Server, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := cfg.Log.NewLogger()
	slog.SetDefault(logger)

	db := &database.Database{}
	if err := db.Connect(cfg.Database); err != nil {
		return nil, fmt.Errorf("postgres connect failed: %w", err)
	}
	if cfg.Database.AutoMigrate {
		if err := db.Migrate(); err != nil {
			return nil, fmt.Errorf("migration failed: %w", err)
		}
	}
	logger.Info("database connection established")

	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(redisOpts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis connect failed: %w", err)
	}
	logger.Info("redis connection established")

	s := &Server{Config: cfg, Logger: logger, DB: db, Redis: rdb}

	switch cfg.Realtime.Backend {
	case config.BackendNATS:
		nc, err := nats.Connect(cfg.Realtime.NATSURL, nats.Name("dealroom-chat"), nats.MaxReconnects(-1))
		if err != nil {
			return nil, fmt.Errorf("nats connect failed: %w", err)
		}
		s.NATS = nc
		s.Bus = fanout.NewNATSBus(nc, cfg.Realtime.NATSSubject, logger)
	case config.BackendLocal:
		s.Bus = fanout.NewLocalBus()
	default:
		s.Bus = fanout.NewRedisBus(rdb, cfg.Realtime.RedisTopic, logger)
	}
	logger.Info("fan-out bus ready", "backend", cfg.Realtime.Backend)

	jwtMgr := auth.NewJWTManager(cfg.JWT.Secret, cfg.JWT.TTL)
	grants := auth.NewGrantSigner(cfg.Realtime.GrantSecret, cfg.Realtime.GrantTTL)
	channels := fanout.NewChannels(cfg.Realtime.ChannelPrefix)

	s.Hub = websocket.NewHub(grants, logger)
	gateway := fanout.NewGateway(s.Bus, channels, logger)
	subjects := cache.NewSubjectCache(db, rdb, cfg.Chat.SubjectCacheTTL, logger)

	registry := services.NewRegistry(db, db, subjects, time.Now, logger)
	s.Chat = services.NewConversationService(registry, db, db, gateway, channels, services.Options{
		MaxMessageLength:  cfg.Chat.MaxMessageLength,
		DefaultPageSize:   cfg.Chat.DefaultPageSize,
		MaxPageSize:       cfg.Chat.MaxPageSize,
		ConversationLimit: cfg.Chat.ConversationLimit,
		PublishTimeout:    cfg.Realtime.PublishTimeout,
	}, logger)
	authorizer := services.NewChannelAuthorizer(registry, grants, channels, logger)

	deps := routerDeps{
		Auth:      middleware.NewAuthenticator(jwtMgr, middleware.NewRedisBlacklist(rdb), db, logger),
		RateLimit: middleware.NewRateLimiter(rdb, "messages", cfg.RateLimit.MessagesPerWindow, cfg.RateLimit.Window, logger),
		Conv:      handlers.NewConversationHandler(s.Chat),
		Realtime:  handlers.NewRealtimeHandler(authorizer, s.Chat, s.Hub),
		WS:        handlers.NewWebSocketHandler(s.Hub, cfg.Server.AllowedOrigins, logger),
		User:      handlers.NewUserHandler(),
		Health: handlers.NewHealthHandler(map[string]handlers.Pinger{
			"database": db,
			"redis": handlers.PingFunc(func(ctx context.Context) error {
				return rdb.Ping(ctx).Err()
			}),
		}),
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	s.Router = APIEndpoints(deps, logger)

	return s, nil
}

// Run serves HTTP until SIGINT or SIGTERM, then drains in reverse order of
// startup.
func (s *Server) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.Hub.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		if err := s.Bus.Run(ctx, s.Hub); err != nil {
			s.Logger.Error("fan-out bus stopped", "error", err)
			stop()
		}
	}()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.Config.Server.Port),
		Handler:      s.Router,
		ReadTimeout:  s.Config.Server.ReadTimeout,
		WriteTimeout: s.Config.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.Logger.Info("server starting", "port", s.Config.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}
	stop()
	s.Logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.Config.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.Logger.Error("http shutdown failed", "error", err)
	}

	s.Hub.Stop()
	wg.Wait()
	s.Chat.Wait()

	if s.NATS != nil {
		if err := s.NATS.Drain(); err != nil {
			s.Logger.Warn("nats drain failed", "error", err)
		}
	}
	if err := s.Redis.Close(); err != nil {
		s.Logger.Warn("redis close failed", "error", err)
	}
	if err := s.DB.Close(); err != nil {
		s.Logger.Warn("database close failed", "error", err)
	}

	s.Logger.Info("server exited")
	return runErr
}
