package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cenkalti/backoff"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/olyamironova/matching-engine/internal/adapter/cache"
	"github.com/olyamironova/matching-engine/internal/adapter/in_memory"
	"github.com/olyamironova/matching-engine/internal/adapter/kafka"
	"github.com/olyamironova/matching-engine/internal/adapter/pg"
	apihttp "github.com/olyamironova/matching-engine/internal/api/http"
	"github.com/olyamironova/matching-engine/internal/config"
	"github.com/olyamironova/matching-engine/internal/logging"
	"github.com/olyamironova/matching-engine/internal/port"
	"github.com/olyamironova/matching-engine/internal/service"
	"github.com/olyamironova/matching-engine/internal/simulator"
	"github.com/olyamironova/matching-engine/internal/stream"
)

func main() {
	cfg := config.MustLoad()

	logger, err := logging.New(cfg.Log.Level)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var bookCache port.BookCache = in_memory.NewCache()
	if cfg.Redis.URL != "" {
		rc, err := connectRedis(ctx, cfg)
		if err != nil {
			logger.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer rc.Close()
		bookCache = rc
	}

	var archive port.TradeArchive = in_memory.NewMemoryRepo()
	if cfg.Postgres.DSN != "" {
		repo, err := connectPostgres(ctx, cfg)
		if err != nil {
			logger.Fatal("failed to connect to postgres", zap.Error(err))
		}
		defer repo.Close()
		if err := repo.EnsureSchema(ctx); err != nil {
			logger.Fatal("failed to prepare trades schema", zap.Error(err))
		}
		archive = repo
	}

	hub := stream.NewHub(0)
	publishers := []port.Publisher{hub}
	if len(cfg.Kafka.Brokers) > 0 {
		kp, err := kafka.NewPublisher(kafka.Config{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.Topic,
			BatchTimeout: cfg.Kafka.BatchTimeout,
		})
		if err != nil {
			logger.Fatal("failed to create kafka publisher", zap.Error(err))
		}
		defer kp.Close()
		publishers = append(publishers, kp)
	}

	ex, err := service.New(
		service.Config{
			Pairs:       cfg.Engine.Pairs,
			DefaultPair: cfg.Engine.DefaultPair,
			BookDepth:   cfg.Engine.BookDepth,
		},
		logger.Named("exchange"),
		service.WithCache(bookCache),
		service.WithArchive(archive),
		service.WithPublishers(publishers...),
	)
	if err != nil {
		logger.Fatal("failed to create exchange", zap.Error(err))
	}
	if err := ex.WarmCache(ctx); err != nil {
		logger.Warn("failed to warm book cache", zap.Error(err))
	}

	if !cfg.Simulator.Disabled {
		pair := cfg.Simulator.Pair
		if pair == "" {
			pair = ex.DefaultPair()
		}
		sim := simulator.New(simulator.Config{
			Pair:        pair,
			TraderID:    cfg.Simulator.TraderID,
			MinInterval: cfg.Simulator.MinInterval,
			MaxInterval: cfg.Simulator.MaxInterval,
			Spread:      cfg.Simulator.Spread,
			BasePrices:  cfg.Simulator.BasePrices,
		}, ex, logger.Named("simulator"), nil)
		go sim.Run(ctx)
	}

	api := apihttp.NewHTTPServer(ex, hub, apihttp.Config{
		RateLimit:  cfg.RateLimit.Interval,
		TradeLimit: cfg.Engine.TradeLimit,
	}, logger.Named("http"))
	server := &http.Server{
		Addr:    cfg.HTTPServer.Addr,
		Handler: api.Handler(),
	}

	go func() {
		logger.Info("starting HTTP server", zap.String("address", cfg.HTTPServer.Addr), zap.Strings("pairs", ex.Pairs()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPServer.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server", zap.Error(err))
	}
	logger.Info("server stopped")
}

func retry(ctx context.Context, cfg *config.Config) backoff.BackOff {
	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), cfg.Startup.ConnectRetries)
	return backoff.WithContext(b, ctx)
}

func connectRedis(ctx context.Context, cfg *config.Config) (*cache.RedisCache, error) {
	var rc *cache.RedisCache
	err := backoff.Retry(func() error {
		client, err := cache.Connect(ctx, cfg.Redis.URL)
		if err != nil {
			zap.L().Warn("connect redis failed", zap.Error(err))
			return err
		}
		rc = cache.NewRedisCache(client, cfg.Redis.TTL)
		return nil
	}, retry(ctx, cfg))
	return rc, err
}

func connectPostgres(ctx context.Context, cfg *config.Config) (*pg.PgRepo, error) {
	var repo *pg.PgRepo
	err := backoff.Retry(func() error {
		var err error
		repo, err = pg.NewPgRepo(ctx, cfg.Postgres.DSN)
		if err != nil {
			zap.L().Warn("connect postgres failed", zap.Error(err))
		}
		return err
	}, retry(ctx, cfg))
	return repo, err
}
