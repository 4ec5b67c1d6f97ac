package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the bridge.
type Config struct {
	App      AppConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Logger   LoggerConfig
	Auth     AuthConfig
	Gateway  GatewayConfig
	Bridge   BridgeConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines dashboard authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	DashboardPasswordHash string
}

// GatewayConfig holds chat platform gateway connection values.
type GatewayConfig struct {
	URL              string
	Token            string
	HeartbeatSeconds int
	ReconnectMaxSec  int
}

// BridgeConfig carries process-wide routing fallbacks and timing knobs.
// Per-guild settings take precedence over these values.
type BridgeConfig struct {
	DefaultGuildID      string
	DefaultStaffRoleID  string
	SelectionWindowSec  int
	CloseGraceSec       int
	SelectionMaxChoices int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "modmail-bridge"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			DashboardPasswordHash: os.Getenv("AUTH_DASHBOARD_PASSWORD_HASH"),
		},
		Gateway: GatewayConfig{
			URL:              getEnv("GATEWAY_URL", ""),
			Token:            os.Getenv("GATEWAY_TOKEN"),
			HeartbeatSeconds: getEnvAsInt("GATEWAY_HEARTBEAT_SECONDS", 30),
			ReconnectMaxSec:  getEnvAsInt("GATEWAY_RECONNECT_MAX_SECONDS", 60),
		},
		Bridge: BridgeConfig{
			DefaultGuildID:      os.Getenv("BRIDGE_DEFAULT_GUILD_ID"),
			DefaultStaffRoleID:  os.Getenv("BRIDGE_DEFAULT_STAFF_ROLE_ID"),
			SelectionWindowSec:  getEnvAsInt("BRIDGE_SELECTION_WINDOW_SECONDS", 60),
			CloseGraceSec:       getEnvAsInt("BRIDGE_CLOSE_GRACE_SECONDS", 5),
			SelectionMaxChoices: getEnvAsInt("BRIDGE_SELECTION_MAX_CHOICES", 5),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// SelectionWindow returns the interactive destination choice window.
func (b BridgeConfig) SelectionWindow() time.Duration {
	if b.SelectionWindowSec <= 0 {
		return 60 * time.Second
	}
	return time.Duration(b.SelectionWindowSec) * time.Second
}

// CloseGrace returns the delay between announcing closure and deleting the channel.
func (b BridgeConfig) CloseGrace() time.Duration {
	if b.CloseGraceSec < 0 {
		return 0
	}
	return time.Duration(b.CloseGraceSec) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
