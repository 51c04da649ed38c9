package rabbitmq

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	amqp "github.com/rabbitmq/amqp091-go"
	gobreaker "github.com/sony/gobreaker/v2"

	"social-realtime/internal/logging"
	"social-realtime/internal/telemetry"
)

// Publisher publishes JSON events to a topic exchange.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error
	Close() error
}

// BreakerConfig controls the circuit breaker around broker publishes.
type BreakerConfig struct {
	FailureThreshold uint32
	Timeout          time.Duration
}

var DefaultBreakerConfig = BreakerConfig{FailureThreshold: 5, Timeout: 30 * time.Second}

type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// NewPublisher builds a RabbitMQ publisher, or a noop publisher when AMQP is disabled or unreachable.
// Startup never fails because of the broker.
func NewPublisher(amqpURL, exchange string) Publisher {
	if amqpURL == "" {
		return noopPublisher{reason: "empty amqp url"}
	}

	conn, ch, err := dial(amqpURL, exchange)
	if err != nil {
		logging.Warn().Err(err).Str("exchange", exchange).Msg("rabbitmq unavailable, events will be dropped")
		return noopPublisher{reason: err.Error()}
	}

	logging.Info().Str("exchange", exchange).Msg("rabbitmq connected")
	p := newAMQPPublisher(ch, exchange, DefaultBreakerConfig)
	p.conn = conn
	return p
}

func dial(amqpURL, exchange string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, nil, fmt.Errorf("dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}
	// durable topic exchange, not auto-deleted
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, fmt.Errorf("declare exchange %q: %w", exchange, err)
	}
	return conn, ch, nil
}

type amqpPublisher struct {
	conn     *amqp.Connection
	ch       channel
	exchange string
	breaker  *gobreaker.CircuitBreaker[struct{}]
}

func newAMQPPublisher(ch channel, exchange string, cfg BreakerConfig) *amqpPublisher {
	breaker := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "amqp-publish",
		MaxRequests: 1,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	})
	return &amqpPublisher{ch: ch, exchange: exchange, breaker: breaker}
}

func (p *amqpPublisher) Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	amqpHeaders := amqp.Table{}
	for key, value := range headers {
		amqpHeaders[key] = value
	}

	_, err = p.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, p.ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Headers:      amqpHeaders,
			Body:         body,
		})
	})
	if err != nil {
		logging.Warn().Err(err).Str("routing_key", routingKey).Msg("rabbitmq publish failed")
	}
	return err
}

func (p *amqpPublisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

type noopPublisher struct {
	reason string
}

func (noopPublisher) Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error {
	entry := logging.Debug().Str("routing_key", routingKey).Str("request_id", headers["x-request-id"])
	if envelope, ok := event.(*telemetry.AuditEnvelope); ok && envelope != nil {
		event = *envelope
	}
	if envelope, ok := event.(telemetry.AuditEnvelope); ok {
		entry = entry.Str("event_type", envelope.EventType).Str("service", envelope.Service)
	}
	entry.Msg("rabbitmq noop publish")
	return nil
}

func (noopPublisher) Close() error {
	return nil
}

// Mode reports whether p talks to a broker ("amqp") or drops events ("noop"), and why it is a noop.
func Mode(p Publisher) (mode, reason string) {
	switch publisher := p.(type) {
	case *amqpPublisher:
		return "amqp", ""
	case noopPublisher:
		return "noop", publisher.reason
	default:
		return "unknown", ""
	}
}
