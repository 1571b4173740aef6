package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("JWT_SECRET", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 5432, cfg.DB.Port)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 5*time.Second, cfg.Outbox.PollInterval)
	assert.Equal(t, 24*time.Hour, cfg.Redis.IdempotencyTTL)
	assert.NotEmpty(t, cfg.Auth.JWTSecret, "development falls back to a local secret")
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("KAFKA_ENABLED", "false")
	t.Setenv("OUTBOX_POLL_INTERVAL", "250ms")
	t.Setenv("RATE_LIMIT_ORDER_REFILL_RATE", "2.5")
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.False(t, cfg.Kafka.Enabled)
	assert.Equal(t, 250*time.Millisecond, cfg.Outbox.PollInterval)
	assert.Equal(t, 2.5, cfg.RateLimit.OrderRefillRate)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
}

func TestLoad_InvalidValues(t *testing.T) {
	t.Setenv("DB_PORT", "not-a-port")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_PORT")
}

func TestLoad_RejectsNonPositiveIntervals(t *testing.T) {
	for _, key := range []string{"OUTBOX_POLL_INTERVAL", "DLQ_POLL_INTERVAL", "IDEMPOTENCY_TTL", "JWT_TOKEN_TTL"} {
		for _, value := range []string{"0s", "-5s"} {
			t.Run(key+"="+value, func(t *testing.T) {
				t.Setenv(key, value)

				_, err := Load()
				require.Error(t, err)
				assert.Contains(t, err.Error(), key)
			})
		}
	}
}

func TestLoad_RequiresSecretInProduction(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	require.Error(t, err)
}

func TestGetDBConnString(t *testing.T) {
	cfg := &Config{DB: DBConfig{Host: "db", Port: 5433, User: "u", Password: "p", Name: "shop", SSLMode: "require"}}

	assert.Equal(t, "host=db port=5433 user=u password=p dbname=shop sslmode=require", cfg.GetDBConnString())
}
