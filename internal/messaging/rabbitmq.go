package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"chat-relay/internal/domain"
)

const (
	// messagesExchange receives one event per persisted message so
	// out-of-process consumers (archivers, bots) can tail the stream.
	messagesExchange = "chat.messages"

	connectRetryInterval = 3 * time.Second
)

type RabbitMQ struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

// MessageEvent is the frame published for every persisted message
type MessageEvent struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
}

func NewRabbitMQ(url string) (*RabbitMQ, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	rmq := &RabbitMQ{
		conn:    conn,
		channel: ch,
	}

	if err := rmq.Setup(); err != nil {
		rmq.Close()
		return nil, err
	}

	return rmq, nil
}

// NewRabbitMQWithRetry dials until the broker accepts the connection or the
// context expires. Brokers routinely come up after the relay in container
// environments.
func NewRabbitMQWithRetry(ctx context.Context, url string) (*RabbitMQ, error) {
	for {
		rmq, err := NewRabbitMQ(url)
		if err == nil {
			return rmq, nil
		}

		slog.Warn("rabbitmq not ready, retrying",
			slog.String("error", err.Error()))

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("gave up connecting to RabbitMQ: %w", err)
		case <-time.After(connectRetryInterval):
		}
	}
}

func (r *RabbitMQ) Setup() error {
	if err := r.channel.ExchangeDeclare(
		messagesExchange, // name
		"fanout",         // type
		true,             // durable
		false,            // auto-deleted
		false,            // internal
		false,            // no-wait
		nil,              // arguments
	); err != nil {
		return fmt.Errorf("failed to declare messages exchange: %w", err)
	}

	slog.Info("rabbitmq setup completed successfully")
	return nil
}

// PublishMessage publishes one persisted message to the fanout exchange
func (r *RabbitMQ) PublishMessage(ctx context.Context, msg *domain.Message) error {
	event := &MessageEvent{
		ID:        msg.ID,
		Username:  msg.Username,
		Content:   msg.Content,
		Timestamp: msg.CreatedAt.Unix(),
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal message event: %w", err)
	}

	err = r.channel.PublishWithContext(
		ctx,
		messagesExchange,
		"",
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)

	if err != nil {
		return fmt.Errorf("failed to publish message event: %w", err)
	}

	slog.Debug("published message event",
		slog.String("message_id", event.ID))
	return nil
}

// ConsumeMessages binds an ephemeral queue to the fanout exchange and returns
// its delivery channel. Used by external consumers and the test suite.
func (r *RabbitMQ) ConsumeMessages() (<-chan amqp.Delivery, error) {
	queue, err := r.channel.QueueDeclare(
		"",    // auto-generated name
		false, // durable
		true,  // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	if err := r.channel.QueueBind(
		queue.Name,
		"",
		messagesExchange,
		false,
		nil,
	); err != nil {
		return nil, fmt.Errorf("failed to bind queue: %w", err)
	}

	msgs, err := r.channel.Consume(
		queue.Name, // queue
		"",         // consumer
		true,       // auto-ack
		false,      // exclusive
		false,      // no-local
		false,      // no-wait
		nil,        // args
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register consumer: %w", err)
	}

	slog.Info("started consuming message events",
		slog.String("queue", queue.Name),
		slog.String("exchange", messagesExchange))
	return msgs, nil
}

func (r *RabbitMQ) IsClosed() bool {
	return r.conn == nil || r.conn.IsClosed()
}

func (r *RabbitMQ) Close() error {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
