package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Envelope is the wire form of a forwarded event.
type Envelope struct {
	Event       string    `json:"event"`
	Key         string    `json:"key"`
	ForwardedAt time.Time `json:"forwarded_at"`
	Payload     Event     `json:"payload"`
}

type channelPublisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Forwarder republishes every domain event to a RabbitMQ topic exchange,
// routing key = event name, for analytics and export consumers.
type Forwarder struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	pub      channelPublisher
	exchange string
	log      *zap.Logger
}

// DialForwarder connects with exponential backoff and declares the exchange.
func DialForwarder(url, exchange string, log *zap.Logger) (*Forwarder, error) {
	var (
		conn *amqp.Connection
		err  error
	)
	for i := 1; i <= 5; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			break
		}
		log.Warn("rabbitmq_connect_retry", zap.Int("attempt", i), zap.Error(err))
		time.Sleep(time.Duration(1<<i) * 100 * time.Millisecond)
	}
	if err != nil {
		return nil, fmt.Errorf("connect rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	log.Info("rabbitmq_connected", zap.String("exchange", exchange))
	return &Forwarder{conn: conn, ch: ch, pub: ch, exchange: exchange, log: log}, nil
}

func newForwarder(pub channelPublisher, exchange string, log *zap.Logger) *Forwarder {
	return &Forwarder{pub: pub, exchange: exchange, log: log}
}

// Handle is a bus Handler; subscribe it with events.All.
func (f *Forwarder) Handle(ctx context.Context, e Event) error {
	body, err := json.Marshal(Envelope{
		Event:       e.EventName(),
		Key:         e.EventKey(),
		ForwardedAt: time.Now().UTC(),
		Payload:     e,
	})
	if err != nil {
		return fmt.Errorf("marshal %s: %w", e.EventName(), err)
	}
	err = f.pub.PublishWithContext(ctx, f.exchange, e.EventName(), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    e.EventName() + ":" + e.EventKey(),
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", e.EventName(), err)
	}
	return nil
}

func (f *Forwarder) Close() {
	if f.ch != nil {
		_ = f.ch.Close()
	}
	if f.conn != nil {
		_ = f.conn.Close()
	}
	f.log.Info("rabbitmq_closed")
}
