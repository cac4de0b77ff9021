package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"

	"github.com/Skotchmaster/imageiq/internal/tokens"
)

const (
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

type Config struct {
	Addr        string
	PublicURL   string
	DatabaseURL string
	LogLevel    string

	JWTSecret    []byte
	JWTAlgorithm string

	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	EmailTokenTTL time.Duration
	BcryptCost    int
	RevokeOnReuse bool
	CookieSecure  bool
	// AuthRatePerMin limits /api/auth requests per client IP; 0 disables it.
	AuthRatePerMin int

	RevocationBackend string
	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	RedisPrefix       string

	KafkaBrokers []string
	KafkaTopic   string
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("notice: .env file not loaded: %v, using system environment", err)
	}
	return FromEnv()
}

func FromEnv() (*Config, error) {
	cfg := &Config{
		Addr:          EnvDefault("AUTH_ADDR", ":8080"),
		PublicURL:     EnvDefault("PUBLIC_URL", "http://localhost:8080"),
		DatabaseURL:   EnvDefault("DATABASE_URL", ""),
		LogLevel:      EnvDefault("LOG_LEVEL", "info"),
		JWTSecret:     []byte(EnvDefault("JWT_SECRET", "")),
		JWTAlgorithm:  strings.ToUpper(EnvDefault("JWT_ALGORITHM", "HS256")),
		RedisAddr:     EnvDefault("REDIS_ADDR", ""),
		RedisPassword: EnvDefault("REDIS_PASSWORD", ""),
		RedisPrefix:   EnvDefault("REDIS_PREFIX", "session:"),
		KafkaBrokers:  CSV(EnvDefault("KAFKA_BROKERS", "")),
		KafkaTopic:    EnvDefault("KAFKA_TOPIC", "user_events"),
	}

	def := BackendPostgres
	if cfg.RedisAddr != "" {
		def = BackendRedis
	}
	cfg.RevocationBackend = strings.ToLower(EnvDefault("REVOCATION_BACKEND", def))

	var errs []error
	var err error
	if cfg.AccessTTL, err = EnvDurationDefault("ACCESS_TTL", 15*time.Minute); err != nil {
		errs = append(errs, err)
	}
	if cfg.RefreshTTL, err = EnvDurationDefault("REFRESH_TTL", 7*24*time.Hour); err != nil {
		errs = append(errs, err)
	}
	if cfg.EmailTokenTTL, err = EnvDurationDefault("EMAIL_TOKEN_TTL", 24*time.Hour); err != nil {
		errs = append(errs, err)
	}
	if cfg.BcryptCost, err = EnvIntDefault("BCRYPT_COST", bcrypt.DefaultCost); err != nil {
		errs = append(errs, err)
	}
	if cfg.RedisDB, err = EnvIntDefault("REDIS_DB", 0); err != nil {
		errs = append(errs, err)
	}
	if cfg.AuthRatePerMin, err = EnvIntDefault("AUTH_RATE_PER_MIN", 30); err != nil {
		errs = append(errs, err)
	}
	if cfg.RevokeOnReuse, err = EnvBoolDefault("REVOKE_ON_REUSE", false); err != nil {
		errs = append(errs, err)
	}
	if cfg.CookieSecure, err = EnvBoolDefault("COOKIE_SECURE", true); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if len(c.JWTSecret) == 0 {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.JWTAlgorithm != "HS256" && c.JWTAlgorithm != "HS512" {
		errs = append(errs, fmt.Errorf("JWT_ALGORITHM must be HS256 or HS512, got %q", c.JWTAlgorithm))
	}
	for _, ttl := range []struct {
		key string
		val time.Duration
	}{
		{"ACCESS_TTL", c.AccessTTL},
		{"REFRESH_TTL", c.RefreshTTL},
		{"EMAIL_TOKEN_TTL", c.EmailTokenTTL},
	} {
		if ttl.val < tokens.MinTTL {
			errs = append(errs, fmt.Errorf("%s must be at least %s, got %s", ttl.key, tokens.MinTTL, ttl.val))
		}
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		errs = append(errs, fmt.Errorf("BCRYPT_COST must be within [%d, %d]", bcrypt.MinCost, bcrypt.MaxCost))
	}
	if c.AuthRatePerMin < 0 {
		errs = append(errs, errors.New("AUTH_RATE_PER_MIN must not be negative"))
	}
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}

	switch c.RevocationBackend {
	case BackendRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("REDIS_ADDR is required for the redis revocation backend"))
		}
	case BackendPostgres, BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("REVOCATION_BACKEND must be redis, postgres or memory, got %q", c.RevocationBackend))
	}
	return errors.Join(errs...)
}

func fieldErr(key, value string, err error) error {
	return fmt.Errorf("invalid %s=%q: %w", key, value, err)
}
