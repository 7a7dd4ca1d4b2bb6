// Package mq publishes domain events to a RabbitMQ topic exchange.
package mq

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fatflowers/scentbox/pkg/config"
)

// Publisher is the interface implemented by event publishers.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, body interface{}) error
	Close()
}

// EventProducer holds the RabbitMQ connection and channel.
type EventProducer struct {
	mu       sync.Mutex
	conn     *amqp091.Connection
	channel  *amqp091.Channel
	exchange string
}

// EventProducerFallback logs events instead of publishing them. Used when RabbitMQ is not configured or unreachable.
type EventProducerFallback struct {
	log *zap.SugaredLogger
}

func NewEventProducerFallback(log *zap.SugaredLogger) *EventProducerFallback {
	return &EventProducerFallback{log: log}
}

func (p *EventProducerFallback) Publish(ctx context.Context, routingKey string, body interface{}) error {
	p.log.Debugw("mq fallback: event not published", "routing_key", routingKey, "body", body)
	return nil
}

func (p *EventProducerFallback) Close() {}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}

// NewEventProducer dials RabbitMQ and declares the durable topic exchange.
func NewEventProducer(amqpURL, exchange string) (*EventProducer, error) {
	cleanURL, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, err
	}

	conn, err := amqp091.DialConfig(cleanURL, amqp091.Config{Dial: amqp091.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	return &EventProducer{conn: conn, channel: ch, exchange: exchange}, nil
}

// Publish sends body as JSON with the given routing key.
func (p *EventProducer) Publish(ctx context.Context, routingKey string, body interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel == nil {
		return errors.New("rabbitmq channel not initialized")
	}
	return p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Body:         payload,
		Timestamp:    time.Now(),
	})
}

// Close closes the RabbitMQ connection.
func (p *EventProducer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		_ = p.channel.Close()
		p.channel = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

// NewPublisher connects to RabbitMQ when configured and falls back to logging otherwise.
func NewPublisher(lc fx.Lifecycle, cfg *config.Config, log *zap.SugaredLogger) Publisher {
	if cfg.RabbitMQ.URL == "" {
		log.Infow("rabbitmq url is empty; events are logged only")
		return NewEventProducerFallback(log)
	}
	producer, err := NewEventProducer(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange)
	if err != nil {
		log.Warnw("failed to connect rabbitmq; events are logged only", "err", err)
		return NewEventProducerFallback(log)
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			producer.Close()
			return nil
		},
	})
	log.Infow("rabbitmq publisher ready", "exchange", cfg.RabbitMQ.Exchange)
	return producer
}

var Module = fx.Options(
	fx.Provide(NewPublisher),
)
