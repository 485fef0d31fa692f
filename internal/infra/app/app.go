package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/arklim/credential-gate/internal/core/domain"
	"github.com/arklim/credential-gate/internal/core/port"
	"github.com/arklim/credential-gate/internal/infra/config"
	"github.com/arklim/credential-gate/internal/infra/database"
	kafkainfra "github.com/arklim/credential-gate/internal/infra/kafka"
	"github.com/arklim/credential-gate/internal/infra/lock"
	"github.com/arklim/credential-gate/internal/infra/logger"
	redisinfra "github.com/arklim/credential-gate/internal/infra/redis"
	"github.com/arklim/credential-gate/internal/infra/security"
	"github.com/arklim/credential-gate/internal/infra/telemetry"
	postgresrepo "github.com/arklim/credential-gate/internal/repository/postgres"
	redisrepo "github.com/arklim/credential-gate/internal/repository/redis"
	sqliterepo "github.com/arklim/credential-gate/internal/repository/sqlite"
	"github.com/arklim/credential-gate/internal/transport/http/middleware"
	"github.com/arklim/credential-gate/internal/transport/http/routes"
	"github.com/arklim/credential-gate/internal/usecase"
)

const tracerName = "github.com/arklim/credential-gate/http"

type Application struct {
	cfg      *config.AppConfig
	engine   *gin.Engine
	logger   *zap.Logger
	pool     *pgxpool.Pool
	sqlite   *sqliterepo.Store
	redis    *redisinfra.Client
	producer *kafkainfra.Producer
	tracer   *telemetry.TracerProvider
}

// storeChecker is an account store that can also answer readiness probes.
type storeChecker interface {
	port.AccountStore
	Ping(ctx context.Context) error
}

func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	a := &Application{cfg: cfg, logger: log}
	if err := a.build(ctx); err != nil {
		a.close(context.Background())
		return nil, err
	}
	return a, nil
}

func (a *Application) build(ctx context.Context) error {
	cfg, log := a.cfg, a.logger

	tp, err := telemetry.NewTracerProvider(ctx, cfg.Telemetry, log)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	a.tracer = tp

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}

	if cfg.Redis.Enabled {
		a.redis, err = redisinfra.NewClient(ctx, cfg.Redis, log)
		if err != nil {
			return fmt.Errorf("init redis: %w", err)
		}
	}

	var locker port.AccountLocker = lock.NewKeyedLocker()
	if cfg.Lock.Driver == "redis" {
		locker = redisrepo.NewAccountLocker(a.redis.Client(), redisrepo.LockConfig{
			KeyPrefix:     cfg.App.Name + ":lock",
			TTL:           cfg.Lock.TTL,
			RetryInterval: cfg.Lock.RetryInterval,
		}, log)
		log.Info("using redis account lock", zap.Duration("ttl", cfg.Lock.TTL))
	}

	var rateLimiter *middleware.RateLimiter
	if cfg.RateLimit.Enabled && a.redis != nil {
		window := cfg.RateLimit.WindowDuration
		if window <= 0 {
			window = time.Minute
		}
		rateLimitStore := redisrepo.NewRateLimitRepository(a.redis.Client(), redisrepo.SlidingWindowConfig{
			KeyPrefix: cfg.App.Name + ":ratelimit",
			TTL:       window * 2,
		})
		rateLimiter = middleware.NewRateLimiter(rateLimitStore, log)
	}

	eventPublisher := a.openPublisher()

	hasher, err := security.NewArgon2Hasher(security.Argon2Config{
		Memory:      cfg.Argon2.Memory,
		Iterations:  cfg.Argon2.Iterations,
		Parallelism: cfg.Argon2.Parallelism,
		SaltLength:  cfg.Argon2.SaltLength,
		KeyLength:   cfg.Argon2.KeyLength,
	})
	if err != nil {
		return fmt.Errorf("configure argon2: %w", err)
	}

	adminHash := cfg.Admin.PasswordHash
	if adminHash == "" {
		adminHash, err = hasher.Hash(cfg.Admin.Password)
		if err != nil {
			return fmt.Errorf("hash admin password: %w", err)
		}
	}

	tokens, err := security.NewAdminTokenManager([]byte(cfg.Admin.TokenSecret), cfg.Admin.Identifier, cfg.Admin.TokenTTL)
	if err != nil {
		return fmt.Errorf("init admin tokens: %w", err)
	}

	accountMetrics, err := telemetry.NewAccountMetrics(prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("init account metrics: %w", err)
	}
	httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{Namespace: "gate"})
	if err != nil {
		return fmt.Errorf("init http metrics: %w", err)
	}

	policy := security.NewPasswordPolicy(security.DefaultPasswordValidator(cfg.Password.MinStrength))
	rules := domain.StatusRules{
		InactivityLimit: cfg.Rules.InactivityLimit,
		FlagWindowDays:  cfg.Rules.FlagWindowDays,
		BlockThreshold:  cfg.Rules.BlockThreshold,
		BlockWindow:     cfg.Rules.BlockWindow,
	}

	accountService := usecase.NewAccountService(store, locker, hasher, policy, eventPublisher, accountMetrics, usecase.AccountServiceConfig{
		Rules:            rules,
		OperationTimeout: cfg.Storage.OperationTimeout,
	}, log)
	adminService := usecase.NewAdminService(store, locker, hasher, policy, tokens, eventPublisher, accountMetrics, usecase.AdminServiceConfig{
		Identifier:       cfg.Admin.Identifier,
		PasswordHash:     adminHash,
		OperationTimeout: cfg.Storage.OperationTimeout,
	}, log)

	deps := routes.Dependencies{
		Config:      cfg,
		Logger:      log,
		Accounts:    accountService,
		Admin:       adminService,
		RateLimiter: rateLimiter,
		HTTPMetrics: httpMetrics,
		Tracer:      tp.Tracer(tracerName),
		Database:    store,
	}
	if a.redis != nil {
		deps.Cache = a.redis
	}
	a.engine = routes.Register(deps)

	return nil
}

func (a *Application) openStore(ctx context.Context) (storeChecker, error) {
	cfg, log := a.cfg, a.logger

	switch cfg.Storage.Driver {
	case "postgres":
		pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
		if err != nil {
			return nil, fmt.Errorf("init postgres: %w", err)
		}
		a.pool = pool
		if err := postgresrepo.EnsureSchema(ctx, pool); err != nil {
			return nil, err
		}
		return postgresrepo.NewStore(pool), nil
	case "sqlite":
		if dir := filepath.Dir(cfg.SQLite.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("create sqlite directory: %w", err)
			}
		}
		store, err := sqliterepo.Open(ctx, cfg.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("init sqlite: %w", err)
		}
		a.sqlite = store
		log.Info("sqlite account store opened", zap.String("path", cfg.SQLite.Path))
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

func (a *Application) openPublisher() port.EventPublisher {
	cfg, log := a.cfg, a.logger

	if !cfg.Kafka.Enabled || len(cfg.Kafka.Brokers) == 0 {
		log.Info("kafka disabled, using stub publisher")
		return kafkainfra.NewStubPublisher(log)
	}

	producer, err := kafkainfra.NewProducer(cfg.Kafka, log)
	if err != nil {
		log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
		return kafkainfra.NewStubPublisher(log)
	}
	a.producer = producer
	log.Info("kafka event publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
	return kafkainfra.NewEventPublisher(producer, cfg.App, log)
}

func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer a.close(context.Background())

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting credential gate",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
		zap.String("storage", a.cfg.Storage.Driver),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		timeout := a.cfg.App.ShutdownTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		a.logger.Info("server stopped")
		return nil
	case err := <-serverErrCh:
		return err
	}
}

// close releases whatever build managed to open, in reverse order.
func (a *Application) close(ctx context.Context) {
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Warn("close kafka producer", zap.Error(err))
		}
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.sqlite != nil {
		_ = a.sqlite.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			a.logger.Warn("shutdown tracer provider", zap.Error(err))
		}
	}
}
