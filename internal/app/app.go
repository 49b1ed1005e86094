// Package app wires the catalog service together: configuration, storage,
// cache, events, tracing, and the HTTP server with graceful shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/marketa/catalog/internal/assetstore"
	"github.com/marketa/catalog/internal/assetstore/imagehost"
	"github.com/marketa/catalog/internal/assetstore/memory"
	"github.com/marketa/catalog/internal/auth"
	"github.com/marketa/catalog/internal/cache"
	"github.com/marketa/catalog/internal/clock"
	"github.com/marketa/catalog/internal/config"
	"github.com/marketa/catalog/internal/event"
	handler "github.com/marketa/catalog/internal/handler/http"
	"github.com/marketa/catalog/internal/repository/postgres"
	"github.com/marketa/catalog/internal/service"
	"github.com/marketa/catalog/migrations"
	"github.com/marketa/catalog/pkg/database"
	"github.com/marketa/catalog/pkg/health"
	pkgkafka "github.com/marketa/catalog/pkg/kafka"
	"github.com/marketa/catalog/pkg/tracing"
)

// App is the assembled catalog service.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	pool        *pgxpool.Pool
	redisClient *redis.Client
	producer    *pkgkafka.Producer
	server      *http.Server

	shutdownTracer func(context.Context) error
}

// New builds the application from configuration. It connects to Postgres
// (running migrations when enabled), Redis when the cache is enabled, and
// constructs the full handler stack.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	shutdownTracer, err := tracing.InitTracer(ctx, cfg.TracerConfig())
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	pool, err := database.NewPostgresPool(ctx, cfg.PostgresPoolConfig(), logger)
	if err != nil {
		return nil, err
	}

	if cfg.Postgres.Migrate {
		if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
			pool.Close()
			return nil, err
		}
	}

	var redisClient *redis.Client
	var productCache *cache.ProductCache
	if cfg.Redis.Enabled {
		redisClient, err = database.NewRedisClient(ctx, cfg.RedisClientConfig())
		if err != nil {
			pool.Close()
			return nil, err
		}
		productCache = cache.NewProductCache(redisClient, cfg.Redis.TTL)
	}

	kafkaProducer := pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.Kafka.Brokers), logger)
	producer := event.NewProducer(kafkaProducer, logger)

	var store assetstore.AssetStore
	if cfg.AssetHost.BaseURL != "" {
		store = imagehost.New(imagehost.Config{
			BaseURL: cfg.AssetHost.BaseURL,
			APIKey:  cfg.AssetHost.APIKey,
			Timeout: cfg.AssetHost.Timeout,
		}, logger)
	} else {
		logger.Warn("no asset host configured, using in-memory store")
		store = memory.New(fmt.Sprintf("http://localhost:%d", cfg.HTTP.Port))
	}

	clk := clock.System{}
	jwtManager := auth.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessExpiry, cfg.JWT.RefreshExpiry)

	productRepo := postgres.NewProductRepository(pool)
	categoryRepo := postgres.NewCategoryRepository(pool)
	userRepo := postgres.NewUserRepository(pool)

	products := service.NewProductService(productRepo, store, productCache, producer, clk, logger)
	images := service.NewImageService(productRepo, store, productCache, producer, clk, logger)
	ratings := service.NewRatingService(productRepo, productCache, producer, clk, logger)
	categories := service.NewCategoryService(categoryRepo, clk, logger)
	users := service.NewUserService(userRepo, jwtManager, clk, logger)

	healthHandler := health.NewHandler()
	healthHandler.Register("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	if redisClient != nil {
		healthHandler.Register("redis", func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}
	healthHandler.Register("kafka", kafkaProducer.Ping)

	router := handler.NewRouter(handler.RouterConfig{
		ServiceName:    cfg.ServiceName,
		Logger:         logger,
		JWTManager:     jwtManager,
		Health:         healthHandler,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		Products:       handler.NewProductHandler(products, logger),
		Images:         handler.NewImageHandler(images, cfg.HTTP.MaxUploadBytes, logger),
		Ratings:        handler.NewRatingHandler(ratings, logger),
		Categories:     handler.NewCategoryHandler(categories, logger),
		Auth:           handler.NewAuthHandler(users, logger),
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	return &App{
		cfg:            cfg,
		logger:         logger,
		pool:           pool,
		redisClient:    redisClient,
		producer:       kafkaProducer,
		server:         server,
		shutdownTracer: shutdownTracer,
	}, nil
}

// Run starts the HTTP server and blocks until SIGINT/SIGTERM, then shuts down
// gracefully within the configured timeout.
func (a *App) Run() error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("http server starting",
			slog.String("addr", a.server.Addr),
			slog.String("environment", a.cfg.Environment),
		)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case sig := <-stop:
		a.logger.Info("shutdown signal received", slog.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	a.close(ctx)
	a.logger.Info("shutdown complete")
	return nil
}

func (a *App) close(ctx context.Context) {
	if err := a.producer.Close(); err != nil {
		a.logger.Warn("close kafka producer", slog.String("error", err.Error()))
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("close redis client", slog.String("error", err.Error()))
		}
	}
	a.pool.Close()
	if err := a.shutdownTracer(ctx); err != nil {
		a.logger.Warn("shutdown tracer", slog.String("error", err.Error()))
	}
}
