package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port      int
	LogLevel  string
	Env       string
	Log       LogConfig
	DB        DBConfig
	Kafka     KafkaConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Outbox    OutboxConfig
	RateLimit RateLimitConfig
}

// LogConfig holds the optional rotated log file settings
type LogConfig struct {
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// DBConfig holds the database configuration
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

// KafkaConfig holds the broker settings for order events
type KafkaConfig struct {
	Enabled       bool
	Brokers       []string
	OrdersTopic   string
	ConsumerGroup string
}

// RedisConfig holds the idempotency store settings. An empty Addr disables it.
type RedisConfig struct {
	Addr           string
	Password       string
	DB             int
	IdempotencyTTL time.Duration
}

// AuthConfig holds the admin token settings
type AuthConfig struct {
	JWTSecret string
	Issuer    string
	TokenTTL  time.Duration
}

// OutboxConfig tunes the outbox and dead letter processors
type OutboxConfig struct {
	PollInterval    time.Duration
	BatchSize       int
	MaxRetries      int
	DLQPollInterval time.Duration
	DLQMaxRetries   int
}

// RateLimitConfig tunes the request limiters
type RateLimitConfig struct {
	GlobalMaxTokens   float64
	GlobalMaxRate     float64
	GlobalMinRate     float64
	LoadThreshold     float64
	IPMaxTokens       float64
	IPRefillRate      float64
	OrderMaxTokens    float64
	OrderRefillRate   float64
	TrustForwardedFor bool
}

// getEnv retrieves the value of an environment variable or returns a default value if not set.
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}

	return defaultValue
}

// envParser collects the first parse failure so Load can report it once
type envParser struct {
	err error
}

func (p *envParser) int(key, def string) int {
	v, err := strconv.Atoi(getEnv(key, def))
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("invalid %s: %w", key, err)
	}
	return v
}

func (p *envParser) float(key, def string) float64 {
	v, err := strconv.ParseFloat(getEnv(key, def), 64)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("invalid %s: %w", key, err)
	}
	return v
}

func (p *envParser) bool(key, def string) bool {
	v, err := strconv.ParseBool(getEnv(key, def))
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("invalid %s: %w", key, err)
	}
	return v
}

func (p *envParser) duration(key, def string) time.Duration {
	v, err := time.ParseDuration(getEnv(key, def))
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("invalid %s: %w", key, err)
	}
	return v
}

// positiveDuration is duration for settings that drive tickers and expiries
func (p *envParser) positiveDuration(key, def string) time.Duration {
	v := p.duration(key, def)
	if v <= 0 && p.err == nil {
		p.err = fmt.Errorf("invalid %s: must be greater than zero, got %s", key, v)
	}
	return v
}

// Load reads the configuration from environment variables and returns a Config struct.
// A .env file in the working directory is loaded first when present; real
// environment variables take precedence over it.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env file: %w", err)
	}

	p := &envParser{}

	cfg := &Config{
		Port:     p.int("PORT", "8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Env:      getEnv("APP_ENV", "development"),
		Log: LogConfig{
			File:       getEnv("LOG_FILE", ""),
			MaxSizeMB:  p.int("LOG_MAX_SIZE_MB", "50"),
			MaxBackups: p.int("LOG_MAX_BACKUPS", "3"),
			MaxAgeDays: p.int("LOG_MAX_AGE_DAYS", "7"),
		},
		DB: DBConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     p.int("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			Name:     getEnv("DB_NAME", "flowershop"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Kafka: KafkaConfig{
			Enabled:       p.bool("KAFKA_ENABLED", "true"),
			Brokers:       splitList(getEnv("KAFKA_BROKERS", "localhost:9092")),
			OrdersTopic:   getEnv("KAFKA_ORDERS_TOPIC", "flower-shop.orders"),
			ConsumerGroup: getEnv("KAFKA_CONSUMER_GROUP", "flower-shop-notifications"),
		},
		Redis: RedisConfig{
			Addr:           getEnv("REDIS_ADDR", ""),
			Password:       getEnv("REDIS_PASSWORD", ""),
			DB:             p.int("REDIS_DB", "0"),
			IdempotencyTTL: p.positiveDuration("IDEMPOTENCY_TTL", "24h"),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
			Issuer:    getEnv("JWT_ISSUER", "flower-shop-api"),
			TokenTTL:  p.positiveDuration("JWT_TOKEN_TTL", "24h"),
		},
		Outbox: OutboxConfig{
			PollInterval:    p.positiveDuration("OUTBOX_POLL_INTERVAL", "5s"),
			BatchSize:       p.int("OUTBOX_BATCH_SIZE", "10"),
			MaxRetries:      p.int("OUTBOX_MAX_RETRIES", "3"),
			DLQPollInterval: p.positiveDuration("DLQ_POLL_INTERVAL", "30s"),
			DLQMaxRetries:   p.int("DLQ_MAX_RETRIES", "5"),
		},
		RateLimit: RateLimitConfig{
			GlobalMaxTokens:   p.float("RATE_LIMIT_GLOBAL_MAX_TOKENS", "200"),
			GlobalMaxRate:     p.float("RATE_LIMIT_GLOBAL_MAX_RATE", "100"),
			GlobalMinRate:     p.float("RATE_LIMIT_GLOBAL_MIN_RATE", "20"),
			LoadThreshold:     p.float("RATE_LIMIT_LOAD_THRESHOLD", "0.7"),
			IPMaxTokens:       p.float("RATE_LIMIT_IP_MAX_TOKENS", "30"),
			IPRefillRate:      p.float("RATE_LIMIT_IP_REFILL_RATE", "10"),
			OrderMaxTokens:    p.float("RATE_LIMIT_ORDER_MAX_TOKENS", "20"),
			OrderRefillRate:   p.float("RATE_LIMIT_ORDER_REFILL_RATE", "5"),
			TrustForwardedFor: p.bool("RATE_LIMIT_TRUST_FORWARDED_FOR", "false"),
		},
	}

	if p.err != nil {
		return nil, p.err
	}

	if cfg.Auth.JWTSecret == "" {
		if !cfg.IsDevelopment() {
			return nil, errors.New("JWT_SECRET is required outside development")
		}
		cfg.Auth.JWTSecret = "dev-secret-change-me"
	}

	return cfg, nil
}

// IsDevelopment reports whether the service runs in a local environment
func (c *Config) IsDevelopment() bool {
	return c.Env == "development" || c.Env == "test"
}

// GetDBConnString returns the database connection string
func (c *Config) GetDBConnString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host, c.DB.Port, c.DB.User, c.DB.Password, c.DB.Name, c.DB.SSLMode)
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
