// internal/consumer/consumer.go
package consumer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/d-j-kendall/aws-sqs-consumer/internal/messaging"
	"github.com/d-j-kendall/aws-sqs-consumer/internal/metrics"
	"github.com/d-j-kendall/aws-sqs-consumer/internal/worker"
)

// HandlerFunc processes one delivery. A non-nil error marks it as failed.
type HandlerFunc func(ctx context.Context, d messaging.Delivery) error

var ErrHandlerPanic = errors.New("handler panicked")

type Options struct {
	Policy  DeletionPolicy
	Workers int
	// BackOff is the pause after a failed receive.
	BackOff time.Duration
}

// Consumer polls one source and dispatches its deliveries to a worker pool.
type Consumer struct {
	Endpoint string
	Policy   DeletionPolicy
	DoneChan chan struct{}

	source     messaging.Source
	handler    HandlerFunc
	pool       *worker.WorkerPool
	hasRedrive bool
	backOff    time.Duration

	cancel   context.CancelFunc
	stopOnce sync.Once
}

// StartConsumer starts a goroutine that consumes messages from source
func StartConsumer(ctx context.Context, source messaging.Source, handler HandlerFunc, opts Options) (*Consumer, error) {
	endpoint := source.Endpoint()

	var hasRedrive bool
	if opts.Policy == NoRedrive {
		r, err := source.HasRedrive(ctx)
		if err != nil {
			return nil, fmt.Errorf("endpoint %s: failed to read redrive policy: %w", endpoint, err)
		}
		hasRedrive = r
	}

	loopCtx, cancel := context.WithCancel(ctx)
	c := &Consumer{
		Endpoint:   endpoint,
		Policy:     opts.Policy,
		DoneChan:   make(chan struct{}),
		source:     source,
		handler:    handler,
		pool:       worker.NewWorkerPool(endpoint, opts.Workers),
		hasRedrive: hasRedrive,
		backOff:    opts.BackOff,
		cancel:     cancel,
	}
	c.pool.Start()

	go c.consumeLoop(loopCtx)

	log.Info().
		Str("endpoint", endpoint).
		Str("deletion_policy", opts.Policy.String()).
		Int("workers", c.pool.Workers()).
		Msg("Started consumer")
	return c, nil
}

// consumeLoop polls until ctx is cancelled or the source closes
func (c *Consumer) consumeLoop(ctx context.Context) {
	defer close(c.DoneChan)

	// Handlers and acks outlive the polling context so in-flight work can finish on Stop.
	workCtx := context.WithoutCancel(ctx)

	for {
		deliveries, err := c.source.Receive(ctx)
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, messaging.ErrSourceClosed) {
			log.Warn().Str("endpoint", c.Endpoint).Msg("Delivery channel closed")
			return
		}
		if err != nil {
			metrics.ReceiveErrors.WithLabelValues(c.Endpoint).Inc()
			log.Error().Err(err).Str("endpoint", c.Endpoint).Dur("back_off", c.backOff).Msg("Receive failed")
			if !sleep(ctx, c.backOff) {
				return
			}
			continue
		}

		for _, d := range deliveries {
			metrics.MessagesReceived.WithLabelValues(c.Endpoint).Inc()
			if err := c.pool.Submit(ctx, func() { c.process(workCtx, d) }); err != nil {
				// Not acked: the broker redelivers it.
				log.Debug().Str("endpoint", c.Endpoint).Str("message_id", d.ID).Msg("Dropped delivery on shutdown")
				return
			}
		}
	}
}

func (c *Consumer) process(ctx context.Context, d messaging.Delivery) {
	err := c.invoke(ctx, d)
	if err != nil {
		metrics.MessagesProcessed.WithLabelValues(c.Endpoint, metrics.OutcomeFailure).Inc()
		log.Error().Err(err).Str("endpoint", c.Endpoint).Str("message_id", d.ID).Msg("Failed to process message")
	} else {
		metrics.MessagesProcessed.WithLabelValues(c.Endpoint, metrics.OutcomeSuccess).Inc()
	}

	if c.Policy.ShouldDelete(err, c.hasRedrive) {
		if err := c.source.Delete(ctx, d); err != nil {
			log.Error().Err(err).Str("endpoint", c.Endpoint).Str("message_id", d.ID).Msg("Failed to delete message")
			return
		}
		metrics.MessagesDeleted.WithLabelValues(c.Endpoint).Inc()
		return
	}
	if err := c.source.Release(ctx, d); err != nil {
		log.Error().Err(err).Str("endpoint", c.Endpoint).Str("message_id", d.ID).Msg("Failed to release message")
	}
}

func (c *Consumer) invoke(ctx context.Context, d messaging.Delivery) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()
	return c.handler(ctx, d)
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Stop ends polling, waits for in-flight deliveries and closes the source
func (c *Consumer) Stop() {
	c.stopOnce.Do(func() {
		c.cancel()
		<-c.DoneChan
		c.pool.Stop()
		if err := c.source.Close(); err != nil {
			log.Warn().Err(err).Str("endpoint", c.Endpoint).Msg("Failed to close source")
		}
		log.Info().Str("endpoint", c.Endpoint).Msg("Stopped consumer")
	})
}

func (c *Consumer) SetWorkerCount(n int) {
	c.pool.SetWorkerCount(n)
}

func (c *Consumer) Workers() int {
	return c.pool.Workers()
}

// Depth reports the approximate number of messages waiting on the endpoint.
func (c *Consumer) Depth(ctx context.Context) (int64, error) {
	return c.source.Depth(ctx)
}
