package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Routing keys published on the events exchange.
const (
	GenerationCompleted = "generation.completed"
	DesignTransformed   = "design.transformed"
	MockupExported      = "mockup.exported"
	ProductStatusChange = "product.status_changed"
	OrderStatusChange   = "order.status_changed"
	CreditsRefilled     = "credits.refilled"
)

// Envelope wraps every payload so consumers can route on type without
// decoding the body first.
type Envelope struct {
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       any       `json:"data"`
}

// Publisher is implemented by types that can publish domain events.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, body any) error
	Close()
}

// RabbitPublisher publishes JSON envelopes to a topic exchange.
type RabbitPublisher struct {
	exchange string
	log      *slog.Logger

	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
}

// NewRabbitPublisher dials RabbitMQ and declares the exchange.
func NewRabbitPublisher(amqpURL, exchange string, log *slog.Logger) (*RabbitPublisher, error) {
	cleanURL, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, err
	}
	if exchange == "" {
		return nil, errors.New("events exchange is required")
	}

	conn, err := amqp.DialConfig(cleanURL, amqp.Config{Dial: amqp.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := channel.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	return &RabbitPublisher{exchange: exchange, log: log, conn: conn, channel: channel}, nil
}

func (p *RabbitPublisher) Publish(ctx context.Context, routingKey string, body any) error {
	payload, err := encode(routingKey, body, time.Now().UTC())
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         payload,
	}); err != nil {
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}

	p.log.Debug("event published", "exchange", p.exchange, "routing_key", routingKey)
	return nil
}

func (p *RabbitPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}

// Noop drops events. It is used when no broker is configured or the broker
// is unreachable at startup.
type Noop struct {
	Log *slog.Logger
}

func (n Noop) Publish(ctx context.Context, routingKey string, body any) error {
	if n.Log != nil {
		n.Log.Debug("event publish skipped", "routing_key", routingKey)
	}
	return nil
}

func (Noop) Close() {}

// Connect returns a RabbitMQ publisher when url is set, falling back to Noop
// if the broker cannot be reached.
func Connect(amqpURL, exchange string, log *slog.Logger) Publisher {
	if strings.TrimSpace(amqpURL) == "" {
		return Noop{Log: log}
	}
	p, err := NewRabbitPublisher(amqpURL, exchange, log)
	if err != nil {
		log.Warn("rabbitmq unavailable, events disabled", "error", err)
		return Noop{Log: log}
	}
	return p
}

func encode(routingKey string, body any, at time.Time) ([]byte, error) {
	payload, err := json.Marshal(Envelope{Type: routingKey, OccurredAt: at, Data: body})
	if err != nil {
		return nil, fmt.Errorf("marshal %s event: %w", routingKey, err)
	}
	return payload, nil
}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.TrimSpace(raw)
	clean = strings.Trim(clean, "\"'")
	if idx := strings.Index(strings.ToLower(clean), "amqp"); idx > 0 {
		clean = clean[idx:]
	}
	parsed, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if parsed.Scheme != "amqp" && parsed.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}
