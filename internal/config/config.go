package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Channel backends for activation notifications.
const (
	ChannelRedis  = "redis"
	ChannelMemory = "memory"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Notification NotificationConfig
	SMTP         SMTPConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
	PublicBaseURL         string
	CORSAllowedOrigins    string
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
	Level    string
	Encoding string
	Service  string
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	BcryptCost            int
	RequireVerified       bool
	PhoneRegion           string
}

// NotificationConfig controls the activation notification pipeline.
type NotificationConfig struct {
	Channel               string
	Stream                string
	Group                 string
	WorkerConcurrency     int
	BlockMillis           int
	ReclaimIdleSeconds    int
	PublishTimeoutSeconds int
	SendTimeoutSeconds    int
	EmailFrom             string
	EmailSubject          string
}

// SMTPConfig holds the outgoing mail relay. An empty Host logs mail instead of sending it.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
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
			Name:                  getEnv("APP_NAME", "account-service"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8084"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
			PublicBaseURL:         getEnv("APP_PUBLIC_BASE_URL", "http://localhost:8084"),
			CORSAllowedOrigins:    getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:4200"),
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
			Level:    getEnv("LOG_LEVEL", "info"),
			Encoding: getEnv("LOG_ENCODING", "json"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			BcryptCost:            getEnvAsInt("AUTH_BCRYPT_COST", 12),
			RequireVerified:       getEnvAsBool("AUTH_REQUIRE_VERIFIED", false),
			PhoneRegion:           strings.ToUpper(getEnv("AUTH_PHONE_REGION", "KE")),
		},
		Notification: NotificationConfig{
			Channel:               strings.ToLower(getEnv("NOTIFY_CHANNEL", ChannelRedis)),
			Stream:                getEnv("NOTIFY_STREAM", "notifications:activation"),
			Group:                 getEnv("NOTIFY_GROUP", "activation-mailers"),
			WorkerConcurrency:     getEnvAsInt("NOTIFY_WORKER_CONCURRENCY", 2),
			BlockMillis:           getEnvAsInt("NOTIFY_BLOCK_MILLIS", 5000),
			ReclaimIdleSeconds:    getEnvAsInt("NOTIFY_RECLAIM_IDLE_SECONDS", 300),
			PublishTimeoutSeconds: getEnvAsInt("NOTIFY_PUBLISH_TIMEOUT_SECONDS", 5),
			SendTimeoutSeconds:    getEnvAsInt("NOTIFY_SEND_TIMEOUT_SECONDS", 30),
			EmailFrom:             getEnv("NOTIFY_EMAIL_FROM", "noreply@example.com"),
			EmailSubject:          getEnv("NOTIFY_EMAIL_SUBJECT", "Welcome! Please verify your email"),
		},
		SMTP: SMTPConfig{
			Host:     os.Getenv("SMTP_HOST"),
			Port:     getEnvAsInt("SMTP_PORT", 587),
			Username: os.Getenv("SMTP_USERNAME"),
			Password: os.Getenv("SMTP_PASSWORD"),
		},
	}

	cfg.Logger.Service = cfg.App.Name

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Notification.Channel {
	case ChannelRedis, ChannelMemory:
	default:
		return fmt.Errorf("invalid NOTIFY_CHANNEL %q", c.Notification.Channel)
	}
	if c.App.Env == "production" && c.Auth.JWTSecret == "dev-secret" {
		return fmt.Errorf("AUTH_JWT_SECRET must be set in production")
	}
	return nil
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

// ActivationURL is the endpoint activation links point at.
func (a AppConfig) ActivationURL() string {
	return strings.TrimRight(a.PublicBaseURL, "/") + "/api/auth/verify"
}

// AccessTokenTTL returns the credential lifetime.
func (a AuthConfig) AccessTokenTTL() time.Duration {
	return time.Duration(a.AccessTokenTTLMinutes) * time.Minute
}

// BlockTimeout is how long a consumer waits on an empty stream.
func (n NotificationConfig) BlockTimeout() time.Duration {
	return durationOr(n.BlockMillis, time.Millisecond, 5*time.Second)
}

// ReclaimIdle is the idle time after which other consumers' pending entries are claimed.
// Zero disables reclaiming.
func (n NotificationConfig) ReclaimIdle() time.Duration {
	if n.ReclaimIdleSeconds <= 0 {
		return 0
	}
	return time.Duration(n.ReclaimIdleSeconds) * time.Second
}

// PublishTimeout bounds a single publish call.
func (n NotificationConfig) PublishTimeout() time.Duration {
	return durationOr(n.PublishTimeoutSeconds, time.Second, 5*time.Second)
}

// SendTimeout bounds rendering and delivering one notification.
func (n NotificationConfig) SendTimeout() time.Duration {
	return durationOr(n.SendTimeoutSeconds, time.Second, 30*time.Second)
}

func durationOr(v int, unit, fallback time.Duration) time.Duration {
	if v <= 0 {
		return fallback
	}
	return time.Duration(v) * unit
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
