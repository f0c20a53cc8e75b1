package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment string
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	JWT         JWTConfig
	Realtime    RealtimeConfig
	Chat        ChatConfig
	RateLimit   RateLimitConfig
	Log         LogConfig
}

type ServerConfig struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

type DatabaseConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	AutoMigrate     bool
}

type RedisConfig struct {
	URL string
}

type JWTConfig struct {
	Secret string
	TTL    time.Duration
}

// RealtimeConfig drives channel grants and the fan-out bus.
type RealtimeConfig struct {
	GrantSecret    string
	GrantTTL       time.Duration
	ChannelPrefix  string
	Backend        string // redis, nats or local
	RedisTopic     string
	NATSURL        string
	NATSSubject    string
	PublishTimeout time.Duration
}

type ChatConfig struct {
	MaxMessageLength  int
	DefaultPageSize   int
	MaxPageSize       int
	ConversationLimit int
	SubjectCacheTTL   time.Duration
}

type RateLimitConfig struct {
	MessagesPerWindow int
	Window            time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

const (
	BackendRedis = "redis"
	BackendNATS  = "nats"
	BackendLocal = "local"
)

func Load() (*Config, error) {
	if err := godotenv.Load(".env.local"); err != nil {
		_ = godotenv.Load()
	}

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Port:            getEnvAsInt("PORT", 8080),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			AllowedOrigins:  getEnvAsList("ALLOWED_ORIGINS"),
		},
		Database: DatabaseConfig{
			DSN:             getEnv("DATABASE_URL", ""),
			MaxOpenConns:    getEnvAsInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvAsInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DATABASE_CONN_MAX_LIFETIME", time.Hour),
			AutoMigrate:     getEnvAsBool("DATABASE_AUTO_MIGRATE", true),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", "redis://localhost:6379/0"),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", ""),
			TTL:    getEnvAsDuration("JWT_TTL", 24*time.Hour),
		},
		Realtime: RealtimeConfig{
			GrantSecret:    getEnv("REALTIME_GRANT_SECRET", ""),
			GrantTTL:       getEnvAsDuration("REALTIME_GRANT_TTL", 10*time.Minute),
			ChannelPrefix:  getEnv("REALTIME_CHANNEL_PREFIX", "presence-conversation-"),
			Backend:        strings.ToLower(getEnv("REALTIME_BACKEND", BackendRedis)),
			RedisTopic:     getEnv("REALTIME_REDIS_TOPIC", "realtime:events"),
			NATSURL:        getEnv("NATS_URL", "nats://127.0.0.1:4222"),
			NATSSubject:    getEnv("REALTIME_NATS_SUBJECT", "realtime.events"),
			PublishTimeout: getEnvAsDuration("REALTIME_PUBLISH_TIMEOUT", 3*time.Second),
		},
		Chat: ChatConfig{
			MaxMessageLength:  getEnvAsInt("CHAT_MAX_MESSAGE_LENGTH", 5000),
			DefaultPageSize:   getEnvAsInt("CHAT_DEFAULT_PAGE_SIZE", 50),
			MaxPageSize:       getEnvAsInt("CHAT_MAX_PAGE_SIZE", 100),
			ConversationLimit: getEnvAsInt("CHAT_CONVERSATION_LIMIT", 50),
			SubjectCacheTTL:   getEnvAsDuration("CHAT_SUBJECT_CACHE_TTL", 10*time.Minute),
		},
		RateLimit: RateLimitConfig{
			MessagesPerWindow: getEnvAsInt("RATE_LIMIT_MESSAGES", 30),
			Window:            getEnvAsDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.DSN == "" {
		return errors.New("DATABASE_URL is not set")
	}
	if c.JWT.Secret == "" {
		return errors.New("JWT_SECRET is not set")
	}
	if c.Realtime.GrantSecret == "" {
		return errors.New("REALTIME_GRANT_SECRET is not set")
	}
	switch c.Realtime.Backend {
	case BackendRedis, BackendNATS, BackendLocal:
	default:
		return fmt.Errorf("unknown REALTIME_BACKEND %q", c.Realtime.Backend)
	}
	if c.Chat.MaxMessageLength <= 0 {
		return errors.New("CHAT_MAX_MESSAGE_LENGTH must be positive")
	}
	if c.Chat.DefaultPageSize <= 0 || c.Chat.DefaultPageSize > c.Chat.MaxPageSize {
		return errors.New("CHAT_DEFAULT_PAGE_SIZE must be between 1 and CHAT_MAX_PAGE_SIZE")
	}
	return nil
}

// SlogLevel maps LOG_LEVEL onto slog levels, defaulting to info.
func (l LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (l LogConfig) NewLogger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: l.SlogLevel()}
	if strings.EqualFold(l.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	var out []string
	for _, v := range strings.Split(getEnv(key, ""), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}
