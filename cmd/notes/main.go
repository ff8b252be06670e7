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

	"github.com/Skotchmaster/notes/internal/config"
	"github.com/Skotchmaster/notes/internal/db"
	"github.com/Skotchmaster/notes/internal/events"
	"github.com/Skotchmaster/notes/internal/hash"
	"github.com/Skotchmaster/notes/internal/httpserver"
	"github.com/Skotchmaster/notes/internal/logging"
	"github.com/Skotchmaster/notes/internal/metrics"
	authmw "github.com/Skotchmaster/notes/internal/middleware/auth"
	"github.com/Skotchmaster/notes/internal/observability"
	"github.com/Skotchmaster/notes/internal/ratelimit"
	"github.com/Skotchmaster/notes/internal/repo"
	"github.com/Skotchmaster/notes/internal/search"
	"github.com/Skotchmaster/notes/internal/service"
	"github.com/Skotchmaster/notes/internal/tokens"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.LogLevel)
	slog.SetDefault(logger)
	if cfg.JWTSecret == config.DefaultJWTSecret {
		logger.Warn("using the default JWT secret, set JWT_SECRET outside development")
	}

	sentryOn, err := observability.InitSentry(observability.SentryConfig{DSN: cfg.SentryDSN, Environment: cfg.AppEnv})
	if err != nil {
		logger.Error("sentry init failed", "error", err)
	}
	if sentryOn {
		defer observability.FlushSentry()
	}

	initCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	gdb, err := db.Open(initCtx, db.Options{DatabaseURL: cfg.DatabaseURL, SQLitePath: cfg.SQLitePath})
	cancel()
	if err != nil {
		logger.Error("db init failed", "error", err)
		os.Exit(1)
	}

	m := metrics.New()
	store := repo.New(gdb)
	codec := tokens.NewCodec([]byte(cfg.JWTSecret))

	ready := map[string]httpserver.Pinger{
		"database": func(ctx context.Context) error { return db.Ping(ctx, gdb) },
	}

	var publisher events.Publisher = events.NopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.KafkaBrokers)
		logger.Info("publishing events to kafka", "brokers", cfg.KafkaBrokers)
	}
	publisher = events.Observed{Publisher: publisher, Observe: m.EventPublished}

	var index service.SearchIndex = &search.DBIndex{Store: store}
	if cfg.ESURL != "" {
		client, err := search.NewESClient(search.ESConfig{
			URL:      cfg.ESURL,
			Username: cfg.ESUser,
			Password: cfg.ESPassword,
			Index:    cfg.ESIndex,
		})
		if err != nil {
			logger.Error("elasticsearch init failed", "error", err)
			os.Exit(1)
		}
		es := search.NewESIndex(client, cfg.ESIndex, store)
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := es.Ping(pingCtx); err != nil {
			logger.Warn("elasticsearch unreachable at startup", "error", err)
		}
		cancel()
		index = es
		ready["elasticsearch"] = es.Ping
	}

	var limiter ratelimit.Limiter = ratelimit.NewMemoryLimiter(cfg.LoginRateLimitMax, cfg.LoginRateWindow())
	if cfg.RedisURL != "" {
		rdb, err := ratelimit.NewRedisClient(context.Background(), cfg.RedisURL)
		if err != nil {
			logger.Error("redis init failed", "error", err)
			os.Exit(1)
		}
		defer rdb.Close()
		limiter = ratelimit.NewRedisLimiter(rdb, cfg.LoginRateLimitMax, cfg.LoginRateWindow())
		ready["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	ipExtractor, err := httpserver.ClientIPExtractor(cfg.TrustedProxies)
	if err != nil {
		logger.Error("invalid TRUSTED_PROXIES", "error", err)
		os.Exit(1)
	}

	e := httpserver.New(&httpserver.Deps{
		AuthHandler: &httpserver.AuthHTTP{Svc: &service.AuthService{
			Users:         store,
			Hasher:        hash.New(cfg.BcryptCost),
			Tokens:        codec,
			TokenLifetime: cfg.TokenLifetime(),
			Events:        publisher,
		}},
		NotesHandler: &httpserver.NotesHTTP{Svc: &service.NoteService{
			Notes:  store,
			Index:  index,
			Events: publisher,
		}},
		Identity:     &authmw.Middleware{Tokens: codec, Users: store, Failures: m},
		LoginLimiter: limiter,
		Metrics:      m,
		Logger:       logger,
		CORSOrigins:  cfg.CORSOrigins,
		Ready:        ready,
		IPExtractor:  ipExtractor,
	})

	go func() {
		logger.Info("listening", "addr", cfg.ServerAddr, "env", cfg.AppEnv)
		if err := e.Start(cfg.ServerAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	if err := publisher.Close(); err != nil {
		logger.Error("kafka close error", "error", err)
	}
	if err := db.Close(gdb); err != nil {
		logger.Error("db close error", "error", err)
	}

	logger.Info("shutdown complete")
}
