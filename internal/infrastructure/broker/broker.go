package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"orderbook/internal/config"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// Consumer drains the summary fanout exchange through an exclusive queue and
// hands every summary to a batch writer.
type Consumer struct {
	cfg    config.RabbitMQConfig
	logger *logrus.Entry

	conn    *amqp.Connection
	channel *amqp.Channel
	wg      sync.WaitGroup
	batcher *BatchWriter
}

// NewConsumer prepares a consumer for the given configuration.
func NewConsumer(cfg config.RabbitMQConfig, store SummaryWriter, logger *logrus.Logger) (*Consumer, error) {
	if cfg.URL == "" {
		return nil, errors.New("rabbitmq url is required")
	}
	if cfg.SummaryExchange == "" {
		return nil, errors.New("summary exchange is required")
	}
	return &Consumer{
		cfg:    cfg,
		logger: logger.WithField("component", "consumer"),
		batcher: NewBatchWriter(BatchConfig{
			Size:    cfg.BatchSize,
			Timeout: cfg.BatchTimeout,
		}, store, logger),
	}, nil
}

// Start establishes the AMQP connection and begins consuming.
func (c *Consumer) Start(ctx context.Context) error {
	conn, err := amqp.Dial(c.cfg.URL)
	if err != nil {
		return fmt.Errorf("connect to rabbitmq: %w", err)
	}
	c.conn = conn
	c.batcher.Run(ctx)

	deliveries, err := c.subscribe()
	if err != nil {
		_ = c.Close(ctx)
		return err
	}
	c.wg.Add(1)
	go c.consumeLoop(ctx, deliveries)

	c.logger.WithField("exchange", c.cfg.SummaryExchange).Info("rabbitmq consumer started")
	return nil
}

// Close stops consumption, flushes the pending batch and releases resources.
func (c *Consumer) Close(ctx context.Context) error {
	if c.channel != nil {
		_ = c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.wg.Wait()
	return c.batcher.Stop(ctx)
}

func (c *Consumer) subscribe() (<-chan amqp.Delivery, error) {
	exchange := c.cfg.SummaryExchange
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "fanout", true, false, false, false, nil); err != nil {
		ch.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	queue, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(queue.Name, "", exchange, false, nil); err != nil {
		ch.Close()
		return nil, fmt.Errorf("bind queue %s to %s: %w", queue.Name, exchange, err)
	}
	prefetch := c.cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 1
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		ch.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}
	deliveries, err := ch.Consume(queue.Name, "", false, true, false, false, nil)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("start consume: %w", err)
	}
	c.channel = ch
	return deliveries, nil
}

func (c *Consumer) consumeLoop(ctx context.Context, deliveries <-chan amqp.Delivery) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case delivery, ok := <-deliveries:
			if !ok {
				return
			}
			if err := c.handleDelivery(delivery.Body); err != nil {
				c.logger.WithError(err).Warn("failed to process message")
				// rejected summaries are dropped, not requeued
				_ = delivery.Nack(false, false)
				continue
			}
			if err := delivery.Ack(false); err != nil {
				c.logger.WithError(err).Warn("failed to ack delivery")
			}
		}
	}
}

func (c *Consumer) handleDelivery(body []byte) error {
	var payload SummaryMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return c.batcher.Add(&payload)
}
