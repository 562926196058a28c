package main

import (
	"context"
	"fmt"
	"time"

	"github.com/d-j-kendall/aws-sqs-consumer/internal/config"
	"github.com/d-j-kendall/aws-sqs-consumer/internal/consumer"
	"github.com/d-j-kendall/aws-sqs-consumer/internal/listener"
	"github.com/d-j-kendall/aws-sqs-consumer/internal/manager"
	"github.com/d-j-kendall/aws-sqs-consumer/internal/messaging"
)

// newSourceFactory connects the configured transport. The returned closer
// releases the shared connection.
func newSourceFactory(ctx context.Context, cfg *config.Config) (manager.SourceFactory, func() error, error) {
	l := cfg.Listener

	switch l.Transport {
	case config.TransportAMQP:
		rabbit, err := messaging.NewRabbitClient(cfg.RabbitMQ.URL)
		if err != nil {
			return nil, nil, err
		}
		opts := messaging.AMQPOptions{
			MaxMessages: int(l.MaxMessages),
			WaitTime:    time.Duration(l.WaitTime()) * time.Second,
		}
		factory := func(_ context.Context, endpoint string) (messaging.Source, error) {
			return messaging.NewAMQPSource(rabbit, endpoint, opts)
		}
		return factory, rabbit.Close, nil

	default:
		client, err := messaging.NewSQSClient(ctx, cfg.Cloud.AWS)
		if err != nil {
			return nil, nil, err
		}
		opts := messaging.SQSOptions{
			MaxMessages:       l.MaxMessages,
			WaitTimeSeconds:   l.WaitTime(),
			VisibilityTimeout: l.VisibilityTimeout,
		}
		factory := func(ctx context.Context, endpoint string) (messaging.Source, error) {
			return messaging.NewSQSSource(ctx, client, endpoint, opts)
		}
		return factory, func() error { return nil }, nil
	}
}

// depthReader reports the approximate number of waiting messages on an endpoint.
type depthReader func(ctx context.Context, endpoint string) (int64, error)

// newDepthReader reads queue depth without starting a consumer.
func newDepthReader(ctx context.Context, cfg *config.Config) (depthReader, func() error, error) {
	if cfg.Listener.Transport == config.TransportAMQP {
		rabbit, err := messaging.NewRabbitClient(cfg.RabbitMQ.URL)
		if err != nil {
			return nil, nil, err
		}
		read := func(_ context.Context, endpoint string) (int64, error) {
			if err := rabbit.DeclareQueue(endpoint); err != nil {
				return 0, err
			}
			return rabbit.QueueDepth(endpoint)
		}
		return read, rabbit.Close, nil
	}

	factory, closeTransport, err := newSourceFactory(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	read := func(ctx context.Context, endpoint string) (int64, error) {
		src, err := factory(ctx, endpoint)
		if err != nil {
			return 0, err
		}
		defer src.Close()
		return src.Depth(ctx)
	}
	return read, closeTransport, nil
}

func queueSpec(q config.QueueConfig) (manager.QueueSpec, error) {
	policy, err := consumer.ParseDeletionPolicy(q.DeletionPolicy)
	if err != nil {
		return manager.QueueSpec{}, fmt.Errorf("queue %s: %w", q.Endpoint, err)
	}
	return manager.QueueSpec{
		Endpoint: q.Endpoint,
		Policy:   policy,
		Workers:  q.Workers,
	}, nil
}

func payloadHandler(r *listener.Receiver, payload string) consumer.HandlerFunc {
	if payload == config.PayloadMap {
		return listener.JSON(r.ReceiveMessageMap)
	}
	return listener.JSON(r.ReceiveMessage)
}
