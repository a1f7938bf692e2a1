package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ServerConfig controls the HTTP/WebSocket listener.
type ServerConfig struct {
	Host            string `json:"host" env:"SERVER_HOST"`
	Port            int    `json:"port" env:"SERVER_PORT"`
	ReadTimeout     int    `json:"read_timeout_seconds" env:"SERVER_READ_TIMEOUT"`
	WriteTimeout    int    `json:"write_timeout_seconds" env:"SERVER_WRITE_TIMEOUT"`
	ShutdownTimeout int    `json:"shutdown_timeout_seconds" env:"SERVER_SHUTDOWN_TIMEOUT"`
}

// DatabaseConfig controls the Postgres connection backing chat and sync state.
type DatabaseConfig struct {
	Driver          string `json:"driver" env:"DATABASE_DRIVER"`
	DSN             string `json:"dsn" env:"DATABASE_DSN"`
	Host            string `json:"host" env:"DATABASE_HOST"`
	Port            int    `json:"port" env:"DATABASE_PORT"`
	User            string `json:"user" env:"DATABASE_USER"`
	Password        string `json:"password" env:"DATABASE_PASSWORD"`
	Name            string `json:"name" env:"DATABASE_NAME"`
	SSLMode         string `json:"sslmode" env:"DATABASE_SSLMODE"`
	MaxOpenConns    int    `json:"max_open_conns" env:"DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns    int    `json:"max_idle_conns" env:"DATABASE_MAX_IDLE_CONNS"`
	ConnMaxLifetime int    `json:"conn_max_lifetime" env:"DATABASE_CONN_MAX_LIFETIME"`
	MigrateOnStart  bool   `json:"migrate_on_start" env:"DATABASE_MIGRATE_ON_START"`
}

// ConnectionString builds a libpq-style connection string from host parameters.
func (c DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// RedisConfig controls the Redis connection used for cross-node pub/sub
// fan-out of chat room broadcasts.
type RedisConfig struct {
	Addr         string `json:"addr" env:"REDIS_ADDR"`
	Password     string `json:"password" env:"REDIS_PASSWORD"`
	DB           int    `json:"db" env:"REDIS_DB"`
	PoolSize     int    `json:"pool_size" env:"REDIS_POOL_SIZE"`
	DialTimeout  int    `json:"dial_timeout_seconds" env:"REDIS_DIAL_TIMEOUT"`
	PresenceTTL  int    `json:"presence_ttl_seconds" env:"REDIS_PRESENCE_TTL"`
	ChannelPrefix string `json:"channel_prefix" env:"REDIS_CHANNEL_PREFIX"`
}

// LoggingConfig controls structured application logging.
type LoggingConfig struct {
	Level      string `json:"level" env:"LOG_LEVEL"`
	Format     string `json:"format" env:"LOG_FORMAT"`
	Output     string `json:"output" env:"LOG_OUTPUT"`
	FilePrefix string `json:"file_prefix" env:"LOG_FILE_PREFIX"`
}

// SecurityConfig controls token signing, password policy, and envelope encryption.
type SecurityConfig struct {
	JWTSecret            string `json:"jwt_secret" env:"SECURITY_JWT_SECRET"`
	JWTAccessTTLMinutes  int    `json:"jwt_access_ttl_minutes" env:"SECURITY_JWT_ACCESS_TTL_MINUTES"`
	JWTRefreshTTLHours   int    `json:"jwt_refresh_ttl_hours" env:"SECURITY_JWT_REFRESH_TTL_HOURS"`
	SecretEncryptionKey  string `json:"secret_encryption_key" env:"SECRET_ENCRYPTION_KEY"`
	BcryptCost           int    `json:"bcrypt_cost" env:"SECURITY_BCRYPT_COST"`
	APIKeyPrefix         string `json:"api_key_prefix" env:"SECURITY_API_KEY_PREFIX"`
	CSRFTokenTTLMinutes  int    `json:"csrf_token_ttl_minutes" env:"SECURITY_CSRF_TTL_MINUTES"`
}

// ChatConfig tunes the real-time chat fabric.
type ChatConfig struct {
	MaxMessageBytes      int `json:"max_message_bytes" env:"CHAT_MAX_MESSAGE_BYTES"`
	MaxConnectionsPerUser int `json:"max_connections_per_user" env:"CHAT_MAX_CONNECTIONS_PER_USER"`
	RateLimitPerMinute   int `json:"rate_limit_per_minute" env:"CHAT_RATE_LIMIT_PER_MINUTE"`
	RateLimitBurst       int `json:"rate_limit_burst" env:"CHAT_RATE_LIMIT_BURST"`
	PingIntervalSeconds  int `json:"ping_interval_seconds" env:"CHAT_PING_INTERVAL_SECONDS"`
	PongTimeoutSeconds   int `json:"pong_timeout_seconds" env:"CHAT_PONG_TIMEOUT_SECONDS"`
	HistoryPageSize      int `json:"history_page_size" env:"CHAT_HISTORY_PAGE_SIZE"`
}

// SyncConfig configures the external-data sync engine's connectors and scheduling.
type SyncConfig struct {
	AS400DSN           string `json:"as400_dsn" env:"SYNC_AS400_DSN"`
	AS400Driver        string `json:"as400_driver" env:"SYNC_AS400_DRIVER"`
	FileMakerURL       string `json:"filemaker_url" env:"SYNC_FILEMAKER_URL"`
	FileMakerUser      string `json:"filemaker_user" env:"SYNC_FILEMAKER_USER"`
	FileMakerPassword  string `json:"filemaker_password" env:"SYNC_FILEMAKER_PASSWORD"`
	FileMakerDB        string `json:"filemaker_database" env:"SYNC_FILEMAKER_DATABASE"`
	FlatFileDir        string `json:"flat_file_dir" env:"SYNC_FLAT_FILE_DIR"`
	ScheduleCron       string `json:"schedule_cron" env:"SYNC_SCHEDULE_CRON"`
	BatchSize          int    `json:"batch_size" env:"SYNC_BATCH_SIZE"`
	MaxRetries         int    `json:"max_retries" env:"SYNC_MAX_RETRIES"`
	RetryBackoffSeconds int   `json:"retry_backoff_seconds" env:"SYNC_RETRY_BACKOFF_SECONDS"`
	RunTimeoutMinutes  int    `json:"run_timeout_minutes" env:"SYNC_RUN_TIMEOUT_MINUTES"`
}

// Config is the top-level configuration structure for the runtime.
type Config struct {
	Server   ServerConfig   `json:"server"`
	Database DatabaseConfig `json:"database"`
	Redis    RedisConfig    `json:"redis"`
	Logging  LoggingConfig  `json:"logging"`
	Security SecurityConfig `json:"security"`
	Chat     ChatConfig     `json:"chat"`
	Sync     SyncConfig     `json:"sync"`
}

// New returns a configuration populated with defaults safe for local development.
func New() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15,
			WriteTimeout:    15,
			ShutdownTimeout: 30,
		},
		Database: DatabaseConfig{
			Driver:          "postgres",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    10,
			ConnMaxLifetime: 300,
			MigrateOnStart:  true,
		},
		Redis: RedisConfig{
			Addr:          "localhost:6379",
			DB:            0,
			PoolSize:      20,
			DialTimeout:   5,
			PresenceTTL:   60,
			ChannelPrefix: "partshub",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			Output:     "stdout",
			FilePrefix: "partshub-runtime",
		},
		Security: SecurityConfig{
			JWTAccessTTLMinutes: 15,
			JWTRefreshTTLHours:  168,
			BcryptCost:          12,
			APIKeyPrefix:        "psk_",
			CSRFTokenTTLMinutes: 60,
		},
		Chat: ChatConfig{
			MaxMessageBytes:       8192,
			MaxConnectionsPerUser: 5,
			RateLimitPerMinute:    60,
			RateLimitBurst:        10,
			PingIntervalSeconds:   30,
			PongTimeoutSeconds:    60,
			HistoryPageSize:       50,
		},
		Sync: SyncConfig{
			AS400Driver:         "odbc",
			ScheduleCron:        "0 */15 * * * *",
			BatchSize:           500,
			MaxRetries:          3,
			RetryBackoffSeconds: 30,
			RunTimeoutMinutes:   30,
		},
	}
}

// Load loads configuration from an optional .env file, an optional YAML
// file, and finally environment variable overrides, in that order of
// increasing precedence.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := New()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			return nil, err
		}
	} else {
		_ = loadFromFile("configs/config.yaml", cfg)
	}

	if err := envdecode.Decode(cfg); err != nil {
		if !strings.Contains(err.Error(), "none of the target fields were set") {
			return nil, fmt.Errorf("decode env: %w", err)
		}
	}

	applyDatabaseURLOverride(cfg)

	return cfg, nil
}

// LoadFile reads configuration from a YAML file, applying defaults for anything unset.
func LoadFile(path string) (*Config, error) {
	cfg := New()
	if err := loadFromFile(path, cfg); err != nil {
		return nil, err
	}
	applyDatabaseURLOverride(cfg)
	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	expanded, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyDatabaseURLOverride lets DATABASE_URL stand in for the full DSN,
// matching the common Postgres hosting convention.
func applyDatabaseURLOverride(cfg *Config) {
	if cfg == nil {
		return
	}
	if dsn := strings.TrimSpace(os.Getenv("DATABASE_URL")); dsn != "" {
		cfg.Database.DSN = dsn
	}
}
