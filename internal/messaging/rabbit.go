// internal/messaging/rabbit.go
package messaging

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/streadway/amqp"
)

type RabbitClient struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

func NewRabbitClient(url string) (*RabbitClient, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}

	return &RabbitClient{
		conn:    conn,
		channel: ch,
	}, nil
}

func deadLetterName(queueName string) string {
	return queueName + "_dlq"
}

// withChannel runs fn on a short-lived channel. The broker closes a channel
// on any queue-level error, so these calls stay off the publish and consume channels.
func (r *RabbitClient) withChannel(fn func(ch *amqp.Channel) error) error {
	ch, err := r.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()
	return fn(ch)
}

// DeclareQueue creates a durable queue dead-lettering into <queue>_dlq
func (r *RabbitClient) DeclareQueue(queueName string) error {
	return r.withChannel(func(ch *amqp.Channel) error {
		return declareQueue(ch, queueName)
	})
}

// QueueDepth returns the number of ready messages on the queue.
func (r *RabbitClient) QueueDepth(queueName string) (int64, error) {
	var depth int64
	err := r.withChannel(func(ch *amqp.Channel) error {
		q, err := ch.QueueInspect(queueName)
		if err != nil {
			return fmt.Errorf("inspect queue %s: %w", queueName, err)
		}
		depth = int64(q.Messages)
		return nil
	})
	return depth, err
}

func declareQueue(ch *amqp.Channel, queueName string) error {
	dlqName := deadLetterName(queueName)

	_, err := ch.QueueDeclare(
		dlqName,
		true, false, false, false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare DLQ: %w", err)
	}

	args := amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": dlqName,
	}
	_, err = ch.QueueDeclare(
		queueName,
		true, false, false, false,
		args,
	)
	if err != nil {
		return fmt.Errorf("declare main queue: %w", err)
	}

	log.Debug().Str("queue", queueName).Msg("RabbitMQ queues declared")
	return nil
}

// Publish sends a JSON message to the named queue through the default exchange
func (r *RabbitClient) Publish(queueName string, body []byte, headers map[string]string) error {
	table := amqp.Table{}
	for k, v := range headers {
		table[k] = v
	}
	err := r.channel.Publish(
		"",
		queueName,
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			MessageId:   uuid.NewString(),
			Timestamp:   time.Now(),
			Headers:     table,
			Body:        body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish to queue %s: %w", queueName, err)
	}
	return nil
}

// Close cleans up connection and channel
func (r *RabbitClient) Close() error {
	if err := r.channel.Close(); err != nil {
		return err
	}
	if err := r.conn.Close(); err != nil {
		return err
	}
	return nil
}

type AMQPOptions struct {
	MaxMessages int
	WaitTime    time.Duration
}

// AMQPSource consumes one RabbitMQ queue on its own channel with manual acks.
type AMQPSource struct {
	client      *RabbitClient
	queue       string
	consumerTag string
	ch          *amqp.Channel
	msgs        <-chan amqp.Delivery
	opts        AMQPOptions
}

func NewAMQPSource(r *RabbitClient, queueName string, opts AMQPOptions) (*AMQPSource, error) {
	if opts.MaxMessages <= 0 {
		opts.MaxMessages = 1
	}

	if err := r.DeclareQueue(queueName); err != nil {
		return nil, fmt.Errorf("queue %s: %w", queueName, err)
	}
	ch, err := r.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("queue %s: failed to open channel: %w", queueName, err)
	}
	if err := ch.Qos(opts.MaxMessages, 0, false); err != nil {
		ch.Close()
		return nil, fmt.Errorf("queue %s: failed to set qos: %w", queueName, err)
	}

	consumerTag := fmt.Sprintf("consumer-%s", uuid.NewString())
	msgs, err := ch.Consume(
		queueName,
		consumerTag,
		false, // manual ack
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("queue %s: failed to start consuming: %w", queueName, err)
	}

	log.Info().Str("queue", queueName).Str("consumer_tag", consumerTag).Msg("AMQP source ready")
	return &AMQPSource{
		client:      r,
		queue:       queueName,
		consumerTag: consumerTag,
		ch:          ch,
		msgs:        msgs,
		opts:        opts,
	}, nil
}

func (s *AMQPSource) Endpoint() string { return s.queue }

// Receive waits up to WaitTime for the first delivery, then drains whatever
// else is already buffered, up to MaxMessages. A zero WaitTime waits until a
// delivery arrives or ctx is done.
func (s *AMQPSource) Receive(ctx context.Context) ([]Delivery, error) {
	var expired <-chan time.Time
	if s.opts.WaitTime > 0 {
		timer := time.NewTimer(s.opts.WaitTime)
		defer timer.Stop()
		expired = timer.C
	}

	var out []Delivery
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-expired:
		return nil, nil
	case d, ok := <-s.msgs:
		if !ok {
			return nil, ErrSourceClosed
		}
		out = append(out, s.toDelivery(d))
	}

	for len(out) < s.opts.MaxMessages {
		select {
		case d, ok := <-s.msgs:
			if !ok {
				return out, nil
			}
			out = append(out, s.toDelivery(d))
		default:
			return out, nil
		}
	}
	return out, nil
}

func (s *AMQPSource) toDelivery(d amqp.Delivery) Delivery {
	id := d.MessageId
	if id == "" {
		id = strconv.FormatUint(d.DeliveryTag, 10)
	}

	headers := make(map[string]string, len(d.Headers)+4)
	for k, v := range d.Headers {
		switch val := v.(type) {
		case string:
			headers[k] = val
		case []byte:
			headers[k] = string(val)
		case bool, int8, int16, int32, int64, float32, float64:
			headers[k] = fmt.Sprint(val)
		}
	}
	headers[HeaderMessageID] = id
	headers[HeaderLogicalResourceID] = s.queue
	headers["redelivered"] = strconv.FormatBool(d.Redelivered)
	if d.ContentType != "" {
		headers[HeaderContentType] = d.ContentType
	}

	receivedAt := d.Timestamp
	if receivedAt.IsZero() {
		receivedAt = time.Now()
	}
	return Delivery{
		ID:         id,
		Body:       d.Body,
		Headers:    headers,
		ReceivedAt: receivedAt,
		handle:     d,
	}
}

func (s *AMQPSource) Delete(_ context.Context, d Delivery) error {
	raw, ok := d.handle.(amqp.Delivery)
	if !ok {
		return ErrForeignHandle
	}
	return raw.Ack(false)
}

// Release rejects the delivery so the broker routes it to the dead-letter queue.
func (s *AMQPSource) Release(_ context.Context, d Delivery) error {
	raw, ok := d.handle.(amqp.Delivery)
	if !ok {
		return ErrForeignHandle
	}
	return raw.Nack(false, false)
}

func (s *AMQPSource) HasRedrive(context.Context) (bool, error) {
	return true, nil
}

func (s *AMQPSource) Depth(context.Context) (int64, error) {
	return s.client.QueueDepth(s.queue)
}

func (s *AMQPSource) Close() error {
	_ = s.ch.Cancel(s.consumerTag, false)
	return s.ch.Close()
}
