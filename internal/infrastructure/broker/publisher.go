package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	domain "orderbook/internal/domain/entity/marketdata"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

type publishChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher fans consolidated summaries out to every bound queue.
type Publisher struct {
	channel  publishChannel
	exchange string
	logger   *logrus.Entry
	mu       sync.Mutex
}

// NewPublisher opens a channel on conn and declares a durable fanout exchange.
func NewPublisher(conn *amqp.Connection, exchange string, logger *logrus.Logger) (*Publisher, error) {
	if exchange == "" {
		return nil, errors.New("exchange name cannot be empty")
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("create channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "fanout", true, false, false, false, nil); err != nil {
		ch.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return newPublisher(ch, exchange, logger), nil
}

func newPublisher(ch publishChannel, exchange string, logger *logrus.Logger) *Publisher {
	return &Publisher{
		channel:  ch,
		exchange: exchange,
		logger:   logger.WithField("component", "publisher"),
	}
}

func (p *Publisher) Close() {
	if p == nil {
		return
	}
	if err := p.channel.Close(); err != nil {
		p.logger.Errorf("close rabbitmq channel: %v", err)
	}
}

// PublishSummary sends one summary of pair.
func (p *Publisher) PublishSummary(ctx context.Context, pair string, summary domain.Summary) error {
	body, err := json.Marshal(SummaryMessage{Pair: pair, Summary: &summary})
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	return p.channel.PublishWithContext(ctx, p.exchange, "", false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Transient,
		MessageId:    summary.ID.String(),
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
}
