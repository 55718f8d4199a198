package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mehmetcc/warden/internal/app"
	"github.com/mehmetcc/warden/internal/auth"
	"github.com/mehmetcc/warden/internal/config"
	"github.com/mehmetcc/warden/internal/database"
	"github.com/mehmetcc/warden/internal/guard"
	"github.com/mehmetcc/warden/internal/metrics"
	"github.com/mehmetcc/warden/internal/password"
	"github.com/mehmetcc/warden/internal/person"
	"github.com/mehmetcc/warden/internal/revocation"
	"github.com/mehmetcc/warden/internal/token"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	shutdownTimeout = 15 * time.Second
	purgeInterval   = time.Hour
)

func main() {
	// init logger
	logger, err := zap.NewProduction()
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	// load config; signing material problems stop the process here
	cfg, err := config.LoadConfig(logger, ".env")
	if err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// load database, if configured
	var (
		db    *sql.DB
		store person.Store
	)
	if cfg.DbConfig.DSN != "" {
		db, err = database.Init(ctx, cfg.DbConfig)
		if err != nil {
			logger.Fatal("failed to initialize database", zap.Error(err))
		}
		defer db.Close()

		// run migrations
		if err := database.Migrate(ctx, db, logger); err != nil {
			logger.Fatal("failed to migrate database", zap.Error(err))
		}
		store = person.NewPersonRepo(db, logger)
	} else {
		logger.Warn("POSTGRES_DSN not set, persons are kept in memory")
		store = person.NewMemoryStore()
	}

	// credential primitives
	hasher, err := password.NewHasher(cfg.HashConfig.Cost)
	if err != nil {
		logger.Fatal("invalid password hashing configuration", zap.Error(err))
	}
	codec, err := token.NewCodec(cfg.JWTConfig)
	if err != nil {
		logger.Fatal("invalid token configuration", zap.Error(err))
	}

	revoked, closeRevocation := newRevocationStore(ctx, cfg, db, logger)
	defer closeRevocation()

	// metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.NewCollector(reg)

	// wire services
	svcOpts := []auth.Option{auth.WithMetrics(recorder)}
	guardOpts := []guard.Option{guard.WithMetrics(recorder)}
	if revoked != nil {
		svcOpts = append(svcOpts, auth.WithRevocation(revoked))
		guardOpts = append(guardOpts, guard.WithRevocation(revoked))
	}
	authService, err := auth.NewAuthenticationService(store, hasher, codec, logger.Named("auth"), svcOpts...)
	if err != nil {
		logger.Fatal("failed to build auth service", zap.Error(err))
	}
	g := guard.New(codec, logger.Named("guard"), guardOpts...)
	authHandler := auth.NewAuthenticationHandler(authService, g, auth.HandlerConfig{
		DiscloseConflictField: cfg.AppConfig.DiscloseConflictField,
		RateLimit:             cfg.AppConfig.AuthRateLimit,
		Cookie:                cfg.CookieConfig,
	}, logger.Named("http"))

	server := &http.Server{
		Addr: ":" + cfg.AppConfig.Port,
		Handler: app.NewRouter(app.RouterDeps{
			Logger:      logger,
			AuthHandler: authHandler,
			CORSOrigins: cfg.AppConfig.CORSOrigins,
			Gatherer:    reg,
		}),
		ReadTimeout:  cfg.AppConfig.ReadTimeout,
		WriteTimeout: cfg.AppConfig.WriteTimeout,
		IdleTimeout:  cfg.AppConfig.IdleTimeout,
	}

	go func() {
		logger.Info("application started", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server listen error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// newRevocationStore builds the configured deny-list. A nil store means
// tokens stay valid until they expire.
func newRevocationStore(ctx context.Context, cfg *config.Config, db *sql.DB, logger *zap.Logger) (revocation.Store, func()) {
	noop := func() {}

	switch cfg.RevocationConfig.Backend {
	case config.RevocationMemory:
		return revocation.NewMemory(), noop

	case config.RevocationRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisConfig.Addr,
			Password: cfg.RedisConfig.Password,
			DB:       cfg.RedisConfig.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Fatal("failed to reach redis", zap.String("addr", cfg.RedisConfig.Addr), zap.Error(err))
		}
		store, err := revocation.NewRedis(revocation.RedisConfig{Client: client})
		if err != nil {
			logger.Fatal("failed to build redis revocation store", zap.Error(err))
		}
		return store, func() { _ = client.Close() }

	case config.RevocationPostgres:
		go purgeRevoked(ctx, db, logger)
		return revocation.NewPostgres(db, logger), noop

	default:
		return nil, noop
	}
}

func purgeRevoked(ctx context.Context, db *sql.DB, logger *zap.Logger) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := revocation.PurgeExpired(ctx, db)
			if err != nil {
				logger.Warn("failed to purge revoked tokens", zap.Error(err))
				continue
			}
			if n > 0 {
				logger.Info("purged revoked tokens", zap.Int64("count", n))
			}
		}
	}
}
