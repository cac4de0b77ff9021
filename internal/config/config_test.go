package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("DATABASE_URL", "postgres://localhost/imageiq")
}

func TestFromEnv_Defaults(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("REVOCATION_BACKEND", "")

	cfg, err := FromEnv()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "HS256", cfg.JWTAlgorithm)
	assert.Equal(t, 15*time.Minute, cfg.AccessTTL)
	assert.Equal(t, 168*time.Hour, cfg.RefreshTTL)
	assert.Equal(t, 24*time.Hour, cfg.EmailTokenTTL)
	assert.Equal(t, 10, cfg.BcryptCost)
	assert.Equal(t, BackendPostgres, cfg.RevocationBackend)
	assert.Equal(t, "session:", cfg.RedisPrefix)
	assert.Equal(t, "user_events", cfg.KafkaTopic)
	assert.False(t, cfg.RevokeOnReuse)
	assert.True(t, cfg.CookieSecure)
	assert.Equal(t, 30, cfg.AuthRatePerMin)
}

func TestFromEnv_RedisBackendWhenAddrSet(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("REVOCATION_BACKEND", "")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")

	cfg, err := FromEnv()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, BackendRedis, cfg.RevocationBackend)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
}

func TestFromEnv_ParseErrors(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("ACCESS_TTL", "soon")
	t.Setenv("BCRYPT_COST", "ten")

	_, err := FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ACCESS_TTL")
	assert.Contains(t, err.Error(), "BCRYPT_COST")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			DatabaseURL:       "postgres://x",
			JWTSecret:         []byte("k"),
			JWTAlgorithm:      "HS256",
			AccessTTL:         time.Minute,
			RefreshTTL:        time.Hour,
			EmailTokenTTL:     time.Hour,
			BcryptCost:        10,
			RevocationBackend: BackendMemory,
		}
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"empty secret", func(c *Config) { c.JWTSecret = nil }, "JWT_SECRET"},
		{"bad algorithm", func(c *Config) { c.JWTAlgorithm = "RS256" }, "JWT_ALGORITHM"},
		{"zero access ttl", func(c *Config) { c.AccessTTL = 0 }, "ACCESS_TTL"},
		{"negative refresh ttl", func(c *Config) { c.RefreshTTL = -time.Second }, "REFRESH_TTL"},
		{"sub-second access ttl", func(c *Config) { c.AccessTTL = 500 * time.Millisecond }, "ACCESS_TTL"},
		{"sub-second email ttl", func(c *Config) { c.EmailTokenTTL = 999 * time.Millisecond }, "EMAIL_TOKEN_TTL"},
		{"cost too high", func(c *Config) { c.BcryptCost = 40 }, "BCRYPT_COST"},
		{"negative rate", func(c *Config) { c.AuthRatePerMin = -1 }, "AUTH_RATE_PER_MIN"},
		{"no database", func(c *Config) { c.DatabaseURL = "" }, "DATABASE_URL"},
		{"unknown backend", func(c *Config) { c.RevocationBackend = "etcd" }, "REVOCATION_BACKEND"},
		{"redis without addr", func(c *Config) { c.RevocationBackend = BackendRedis }, "REDIS_ADDR"},
	}

	require.NoError(t, valid().Validate())
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
