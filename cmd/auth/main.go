package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/Skotchmaster/imageiq/internal/config"
	"github.com/Skotchmaster/imageiq/internal/db"
	"github.com/Skotchmaster/imageiq/internal/events"
	"github.com/Skotchmaster/imageiq/internal/hash"
	"github.com/Skotchmaster/imageiq/internal/httpserver"
	"github.com/Skotchmaster/imageiq/internal/logging"
	"github.com/Skotchmaster/imageiq/internal/repo"
	"github.com/Skotchmaster/imageiq/internal/revocation"
	"github.com/Skotchmaster/imageiq/internal/service"
	"github.com/Skotchmaster/imageiq/internal/tokens"
)

const janitorInterval = 5 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logger := logging.New(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logging.IntoContext(ctx, logger)

	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	gdb, err := db.Open(initCtx, cfg.DatabaseURL)
	cancel()
	if err != nil {
		log.Fatalf("db init error: %v", err)
	}
	if err := db.Migrate(gdb); err != nil {
		log.Fatalf("db migrate error: %v", err)
	}

	store, ready, closeStore, err := buildStore(ctx, cfg, gdb)
	if err != nil {
		log.Fatalf("revocation store error: %v", err)
	}

	codec, err := tokens.NewCodec(tokens.Config{Secret: cfg.JWTSecret, Algorithm: cfg.JWTAlgorithm})
	if err != nil {
		log.Fatalf("token codec error: %v", err)
	}

	publisher, closePublisher := buildPublisher(cfg, logger)

	users := repo.NewGormRepo(gdb)
	hasher := hash.NewHasher(cfg.BcryptCost)

	e := httpserver.New(&httpserver.Deps{
		Sessions: service.NewSessionManager(users, hasher, codec, store, service.SessionConfig{
			AccessTTL:     cfg.AccessTTL,
			RefreshTTL:    cfg.RefreshTTL,
			RevokeOnReuse: cfg.RevokeOnReuse,
		}, publisher),
		Accounts:       service.NewAccountService(users, hasher, codec, store, cfg.EmailTokenTTL, publisher).WithPublicURL(cfg.PublicURL),
		Logger:         logger,
		CookieSecure:   cfg.CookieSecure,
		AuthRatePerMin: cfg.AuthRatePerMin,
		Ready: func(ctx context.Context) error {
			if err := db.Ping(ctx, gdb); err != nil {
				return err
			}
			return ready(ctx)
		},
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           e,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 3 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		logger.Info("http_server_started", "addr", cfg.Addr, "revocation_backend", cfg.RevocationBackend, "jwt_alg", codec.Algorithm())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server error: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting_down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server_shutdown_failed", "error", err)
	}

	if err := closePublisher(); err != nil {
		logger.Error("kafka_close_failed", "error", err)
	}
	if err := closeStore(); err != nil {
		logger.Error("revocation_store_close_failed", "error", err)
	}
	if err := db.Close(gdb); err != nil {
		logger.Error("db_close_failed", "error", err)
	}
	logger.Info("shutdown_complete")
}

func buildStore(ctx context.Context, cfg *config.Config, gdb *gorm.DB) (revocation.Store, func(context.Context) error, func() error, error) {
	noop := func(context.Context) error { return nil }
	noClose := func() error { return nil }

	switch cfg.RevocationBackend {
	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		s := revocation.NewRedisStore(client, cfg.RedisPrefix)
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := s.Ping(pingCtx); err != nil {
			_ = client.Close()
			return nil, nil, nil, err
		}
		return s, s.Ping, client.Close, nil
	case config.BackendMemory:
		s := revocation.NewMemoryStore()
		go s.RunJanitor(ctx, janitorInterval)
		return s, noop, noClose, nil
	default:
		s := revocation.NewGormStore(gdb)
		go s.RunJanitor(ctx, janitorInterval)
		return s, noop, noClose, nil
	}
}

func buildPublisher(cfg *config.Config, logger *slog.Logger) (events.Publisher, func() error) {
	if len(cfg.KafkaBrokers) == 0 {
		logger.Info("kafka_disabled", "reason", "KAFKA_BROKERS is empty")
		return events.NopPublisher{}, func() error { return nil }
	}
	p, err := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
	if err != nil {
		log.Fatalf("kafka init error: %v", err)
	}
	return p, p.Close
}
