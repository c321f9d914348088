package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"orderbook/internal/config"
	domain "orderbook/internal/domain/entity/marketdata"
	"orderbook/internal/infrastructure/broker"
	"orderbook/internal/infrastructure/metrics"
	"orderbook/internal/infrastructure/venue/registry"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var errVenuesClosed = errors.New("all venue streams closed")

type summaryPublisher interface {
	PublishSummary(ctx context.Context, pair string, summary domain.Summary) error
}

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("config error: %v", err)
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}
	if cfg.RabbitMQ.URL == "" {
		logger.Fatal("RABBITMQ_URL is required for the feed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rabbitConn, err := amqp.Dial(cfg.RabbitMQ.URL)
	if err != nil {
		logger.Fatalf("connect rabbitmq: %v", err)
	}
	defer rabbitConn.Close()

	pub, err := broker.NewPublisher(rabbitConn, cfg.RabbitMQ.SummaryExchange, logger)
	if err != nil {
		logger.Fatalf("init publisher: %v", err)
	}
	defer pub.Close()

	m := metrics.New()
	books, err := registry.NewService(cfg, logger, m)
	if err != nil {
		logger.Fatalf("init book service: %v", err)
	}

	session, err := books.Open(ctx)
	if err != nil {
		logger.Fatalf("open venues: %v", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = session.Conn.Close(closeCtx)
	}()

	metricsServer := &http.Server{Addr: cfg.Feed.MetricsAddr, Handler: m.Handler()}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return pumpSummaries(gctx, session.Stream, pub, books.Pair(), m, logger)
	})

	logger.WithFields(logrus.Fields{
		"pair":     books.Pair(),
		"venues":   cfg.Market.Venues,
		"exchange": cfg.RabbitMQ.SummaryExchange,
		"metrics":  cfg.Feed.MetricsAddr,
	}).Info("feed started")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Errorf("feed stopped with error: %v", err)
		return
	}

	logger.Info("feed stopped")
}

func pumpSummaries(ctx context.Context, summaries <-chan domain.Summary, pub summaryPublisher, pair string, m *metrics.Metrics, logger *logrus.Logger) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case summary, ok := <-summaries:
			if !ok {
				return errVenuesClosed
			}
			if err := pub.PublishSummary(ctx, pair, summary); err != nil {
				return fmt.Errorf("publish summary: %w", err)
			}
			m.SummaryPublished()
			logger.WithFields(logrus.Fields{
				"pair":   pair,
				"spread": summary.Spread,
			}).Debug("summary published")
		}
	}
}
