package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	docs "orderbook/docs"
	"orderbook/internal/config"
	"orderbook/internal/infrastructure/broker"
	"orderbook/internal/infrastructure/cache"
	"orderbook/internal/infrastructure/metrics"
	"orderbook/internal/infrastructure/venue/registry"
	infrahttp "orderbook/internal/interfaces/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	} else {
		logger.Warnf("unknown log level %q, keeping %s", cfg.LogLevel, logger.GetLevel())
	}
	if cfg.Env != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	docs.SwaggerInfo.BasePath = "/api/v1"
	docs.SwaggerInfo.Host = cfg.HTTP.Addr()

	m := metrics.New()

	books, err := registry.NewService(cfg, logger, m)
	if err != nil {
		logger.Fatalf("failed to init book service: %v", err)
	}

	deps := infrahttp.Deps{
		Books:    books,
		CacheTTL: time.Duration(cfg.Cache.TTLSeconds) * time.Second,
		Metrics:  m,
		Logger:   logger,
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()

		store := cache.NewSummaryStore(redisClient, time.Duration(cfg.Cache.SummaryTTLSeconds)*time.Second)
		deps.Latest = store
		deps.Cache = redisClient

		if cfg.RabbitMQ.URL != "" {
			consumer, err := broker.NewConsumer(cfg.RabbitMQ, store, logger)
			if err != nil {
				logger.Fatalf("failed to init rabbitmq consumer: %v", err)
			}
			if err := consumer.Start(ctx); err != nil {
				logger.Fatalf("failed to start rabbitmq consumer: %v", err)
			}
			defer func() {
				closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer closeCancel()
				if err := consumer.Close(closeCtx); err != nil {
					logger.Errorf("rabbitmq consumer close error: %v", err)
				}
			}()
		}
	}

	handler := infrahttp.NewHandler(deps)
	server := &http.Server{
		Addr:    cfg.HTTP.Addr(),
		Handler: handler,
	}
	server.RegisterOnShutdown(handler.Shutdown)

	go func() {
		logger.WithFields(logrus.Fields{
			"pair":   books.Pair(),
			"venues": cfg.Market.Venues,
		}).Infof("HTTP server listening on %s", cfg.HTTP.Addr())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("http server error: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Infof("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("server shutdown error: %v", err)
	}
	logger.Info("server stopped")
}
