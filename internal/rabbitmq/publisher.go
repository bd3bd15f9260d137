package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/Checker-Finance/market-intel/internal/metrics"
	"github.com/Checker-Finance/market-intel/pkg/eventbus"
	"github.com/Checker-Finance/market-intel/pkg/model"
)

// DefaultRoutingKey is the queue inventory events are published to.
const DefaultRoutingKey = "inventory.events"

// Channel is the subset of *amqp.Channel used by the publisher.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher forwards inventory events from the in-process bus to RabbitMQ.
type Publisher struct {
	conn       *amqp.Connection
	channel    Channel
	routingKey string
	timeout    time.Duration
	logger     *zap.Logger
	unsub      func()
}

// Dial connects to RabbitMQ and subscribes to bus.
func Dial(url, routingKey string, bus *eventbus.Bus[model.InventoryEvent], logger *zap.Logger) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if _, err := channel.QueueDeclare(routingKey, true, false, false, false, nil); err != nil {
		_ = channel.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare queue %q: %w", routingKey, err)
	}

	p := NewPublisher(channel, routingKey, bus, logger)
	p.conn = conn
	return p, nil
}

// NewPublisher wraps an open channel and subscribes to bus.
func NewPublisher(channel Channel, routingKey string, bus *eventbus.Bus[model.InventoryEvent], logger *zap.Logger) *Publisher {
	if routingKey == "" {
		routingKey = DefaultRoutingKey
	}
	p := &Publisher{
		channel:    channel,
		routingKey: routingKey,
		timeout:    5 * time.Second,
		logger:     logger,
	}
	if bus != nil {
		p.unsub = bus.Subscribe(func(ev model.InventoryEvent) {
			_ = p.Publish(context.Background(), ev)
		})
	}
	return p
}

// Publish sends one inventory event. Low-stock alerts are sent with a
// higher priority.
func (p *Publisher) Publish(ctx context.Context, ev model.InventoryEvent) error {
	if ev.Type == "" || ev.OwnerID == "" {
		p.logger.Error("rabbitmq.invalid_event", zap.Any("event", ev))
		return fmt.Errorf("inventory event missing type or owner")
	}

	body, err := json.Marshal(ev)
	if err != nil {
		p.logger.Error("rabbitmq.marshal_failed", zap.Error(err))
		metrics.IncAMQPMessage(p.routingKey, "error")
		return err
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Type:         ev.Type,
		MessageId:    ev.EntityID.String(),
		Timestamp:    ev.Timestamp,
		Body:         body,
	}
	if ev.Type == model.EventStockLow {
		msg.Priority = 10
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	err = p.channel.PublishWithContext(ctx,
		"",           // exchange
		p.routingKey, // routing key
		false,        // mandatory
		false,        // immediate
		msg,
	)
	if err != nil {
		p.logger.Error("rabbitmq.publish_failed",
			zap.String("type", ev.Type),
			zap.Error(err))
		metrics.IncAMQPMessage(p.routingKey, "error")
		return err
	}

	p.logger.Debug("rabbitmq.published",
		zap.String("type", ev.Type),
		zap.String("entity_id", ev.EntityID.String()))
	metrics.IncAMQPMessage(p.routingKey, "ok")
	return nil
}

// Close unsubscribes from the bus and closes the channel and connection.
func (p *Publisher) Close() error {
	if p.unsub != nil {
		p.unsub()
	}
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
