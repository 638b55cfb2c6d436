package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"chable_leads_backend/platform/config"
	"chable_leads_backend/platform/logger"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Integration event types published to the exchange.
const (
	TypeLeadDispatched = "leads.dispatched.v1"
	TypeLeadEscalated  = "leads.escalated.v1"

	producer = "chable-leads"

	dialAttempts = 5
	dialDelay    = time.Second
	maxDialDelay = 30 * time.Second
)

// Meta identifies one integration event.
type Meta struct {
	ID            string    `json:"id"`
	CorrelationID *string   `json:"correlation_id,omitempty"`
	Producer      *string   `json:"producer,omitempty"`
	Time          time.Time `json:"time"`
	Type          string    `json:"type"`
}

// Envelope is the wire format of every integration event.
type Envelope struct {
	Meta Meta `json:"meta"`
	Data any  `json:"data"`
}

// NewEnvelope stamps data with a fresh id and the given type.
func NewEnvelope(eventType string, correlationID string, data any) Envelope {
	p := producer
	env := Envelope{
		Meta: Meta{ID: uuid.NewString(), Producer: &p, Time: time.Now().UTC(), Type: eventType},
		Data: data,
	}
	if correlationID != "" {
		env.Meta.CorrelationID = &correlationID
	}
	return env
}

// Publisher sends integration events.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, env Envelope) error
	Close() error
}

// AMQPPublisher publishes envelopes to a durable topic exchange.
type AMQPPublisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	exchange string
	log      *logger.Logger
}

// NewAMQPPublisher dials the broker and declares the exchange. It returns
// nil without error when AMQP is not configured.
func NewAMQPPublisher(ctx context.Context, cfg config.AMQPConfig, log *logger.Logger) (*AMQPPublisher, error) {
	if !cfg.IsAMQPEnabled() {
		return nil, nil
	}
	conn, err := dialWithRetry(ctx, cfg.GetAMQPURL(), log)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.ExchangeDeclare(cfg.GetAMQPExchange(), "topic", true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %q: %w", cfg.GetAMQPExchange(), err)
	}

	return &AMQPPublisher{conn: conn, exchange: cfg.GetAMQPExchange(), log: log}, nil
}

// Publish sends env as a persistent JSON message on its own channel. A nil
// publisher drops the event.
func (p *AMQPPublisher) Publish(ctx context.Context, routingKey string, env Envelope) error {
	if p == nil {
		return nil
	}
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	p.mu.Lock()
	conn := p.conn
	p.mu.Unlock()
	if conn == nil || conn.IsClosed() {
		return errors.New("amqp connection closed")
	}

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open amqp channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	correlationID := env.Meta.ID
	if env.Meta.CorrelationID != nil {
		correlationID = *env.Meta.CorrelationID
	}
	err = ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		MessageId:     env.Meta.ID,
		CorrelationId: correlationID,
		Timestamp:     env.Meta.Time,
		Type:          env.Meta.Type,
		Body:          body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}
	p.log.Info("integration event published", "exchange", p.exchange, "routing_key", routingKey, "event_id", env.Meta.ID)
	return nil
}

// Close closes the broker connection.
func (p *AMQPPublisher) Close() error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return nil
	}
	err := p.conn.Close()
	p.conn = nil
	return err
}

func dialWithRetry(ctx context.Context, url string, log *logger.Logger) (*amqp.Connection, error) {
	var lastErr error
	delay := dialDelay
	for attempt := 1; attempt <= dialAttempts; attempt++ {
		conn, err := amqp.Dial(url)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		log.Warn("amqp dial failed", "attempt", attempt, "sleep", delay, "error", err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("amqp dial cancelled: %w", ctx.Err())
		case <-timer.C:
		}
		delay = min(delay*2, maxDialDelay)
	}
	return nil, fmt.Errorf("connect to amqp after %d attempts: %w", dialAttempts, lastErr)
}
