package notify

import (
	"context"
	"sync"

	"github.com/go-faster/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// AMQPConfig configures the broker sink.
type AMQPConfig struct {
	URL      string
	Exchange string
}

// AMQPSink publishes events to a topic exchange. The routing key is
// "{channel}.{event}", e.g. "store-siddhi.order.created", so consumers can
// bind with "store-siddhi.#" or "*.order.created".
type AMQPSink struct {
	exchange string

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// DialAMQP connects to the broker and declares the exchange.
func DialAMQP(cfg AMQPConfig, lg *zap.Logger) (*AMQPSink, error) {
	if cfg.Exchange == "" {
		cfg.Exchange = "orderdesk.events"
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, errors.Wrap(err, "dial")
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "open channel")
	}
	if err := ch.ExchangeDeclare(
		cfg.Exchange,
		amqp.ExchangeTopic,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, errors.Wrapf(err, "declare exchange %q", cfg.Exchange)
	}

	lg.Info("Connected to broker", zap.String("exchange", cfg.Exchange))
	return &AMQPSink{
		exchange: cfg.Exchange,
		conn:     conn,
		ch:       ch,
	}, nil
}

func (s *AMQPSink) Name() string { return "amqp" }

// RoutingKey returns the topic routing key for ev.
func RoutingKey(ev Event) string {
	return ev.Channel + "." + ev.Name
}

// Send publishes body as a persistent JSON message.
func (s *AMQPSink) Send(ctx context.Context, ev Event, body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn.IsClosed() {
		return errors.New("broker connection closed")
	}
	if err := s.ch.PublishWithContext(ctx, s.exchange, RoutingKey(ev), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Type:         ev.Name,
		Timestamp:    ev.At,
		Body:         body,
	}); err != nil {
		return errors.Wrap(err, "publish")
	}
	return nil
}

// Close closes the channel and the connection.
func (s *AMQPSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var chErr error
	if s.ch != nil {
		chErr = s.ch.Close()
	}
	if err := s.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		return errors.Wrap(err, "close connection")
	}
	if chErr != nil && !errors.Is(chErr, amqp.ErrClosed) {
		return errors.Wrap(chErr, "close channel")
	}
	return nil
}
