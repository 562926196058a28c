// internal/manager/listener_manager.go
package manager

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/d-j-kendall/aws-sqs-consumer/internal/consumer"
	"github.com/d-j-kendall/aws-sqs-consumer/internal/messaging"
	"github.com/d-j-kendall/aws-sqs-consumer/internal/metrics"
	"github.com/d-j-kendall/aws-sqs-consumer/internal/model"
)

// SourceFactory opens the transport-specific source for an endpoint.
type SourceFactory func(ctx context.Context, endpoint string) (messaging.Source, error)

// Journal records the outcome of every handled delivery.
type Journal interface {
	InsertMessage(ctx context.Context, m *model.Received) error
}

// QueueSpec binds a handler to an endpoint.
type QueueSpec struct {
	Endpoint string
	Policy   consumer.DeletionPolicy
	Workers  int
}

type ListenerInfo struct {
	Endpoint       string `json:"endpoint"`
	DeletionPolicy string `json:"deletion_policy"`
	Workers        int    `json:"workers"`
}

type ListenerManager struct {
	factory SourceFactory
	journal Journal
	backOff time.Duration

	mu        sync.RWMutex
	consumers map[string]*consumer.Consumer
}

// NewListenerManager creates a registry. journal may be nil.
func NewListenerManager(factory SourceFactory, journal Journal, backOff time.Duration) *ListenerManager {
	return &ListenerManager{
		factory:   factory,
		journal:   journal,
		backOff:   backOff,
		consumers: make(map[string]*consumer.Consumer),
	}
}

// Register opens the endpoint and starts its consumer
func (lm *ListenerManager) Register(ctx context.Context, spec QueueSpec, handler consumer.HandlerFunc) error {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	if _, exists := lm.consumers[spec.Endpoint]; exists {
		return nil // already registered
	}

	src, err := lm.factory(ctx, spec.Endpoint)
	if err != nil {
		return fmt.Errorf("open %s: %w", spec.Endpoint, err)
	}

	c, err := consumer.StartConsumer(ctx, src, lm.journaled(spec.Endpoint, handler), consumer.Options{
		Policy:  spec.Policy,
		Workers: spec.Workers,
		BackOff: lm.backOff,
	})
	if err != nil {
		_ = src.Close()
		return err
	}
	lm.consumers[spec.Endpoint] = c

	log.Info().Str("endpoint", spec.Endpoint).Msg("Listener registered")
	return nil
}

// Deregister stops the endpoint's consumer and forgets it
func (lm *ListenerManager) Deregister(endpoint string) error {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	c, exists := lm.consumers[endpoint]
	if !exists {
		return fmt.Errorf("%w: %s", ErrListenerNotFound, endpoint)
	}

	c.Stop()
	delete(lm.consumers, endpoint)
	metrics.QueueDepth.DeleteLabelValues(endpoint)

	log.Info().Str("endpoint", endpoint).Msg("Listener deregistered")
	return nil
}

// Shutdown all listeners
func (lm *ListenerManager) ShutdownAll() {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	var wg sync.WaitGroup
	for _, c := range lm.consumers {
		wg.Add(1)
		go func(c *consumer.Consumer) {
			defer wg.Done()
			c.Stop()
		}(c)
	}
	wg.Wait()
	lm.consumers = make(map[string]*consumer.Consumer)
}

func (lm *ListenerManager) journaled(endpoint string, handler consumer.HandlerFunc) consumer.HandlerFunc {
	if lm.journal == nil {
		return handler
	}
	return func(ctx context.Context, d messaging.Delivery) (handlerErr error) {
		// Panics are recorded as failures before the consumer sees them.
		defer func() {
			if r := recover(); r != nil {
				handlerErr = fmt.Errorf("%w: %v", consumer.ErrHandlerPanic, r)
			}
			lm.record(ctx, endpoint, d, handlerErr)
		}()
		return handler(ctx, d)
	}
}

func (lm *ListenerManager) record(ctx context.Context, endpoint string, d messaging.Delivery, handlerErr error) {
	rec := &model.Received{
		ID:         uuid.Must(uuid.NewV7()),
		MessageID:  d.ID,
		Endpoint:   endpoint,
		Payload:    d.Body,
		Headers:    d.Headers,
		Status:     model.StatusProcessed,
		ReceivedAt: d.ReceivedAt,
	}
	if handlerErr != nil {
		rec.Status = model.StatusFailed
		rec.Error = handlerErr.Error()
	}
	if err := lm.journal.InsertMessage(ctx, rec); err != nil {
		log.Error().Err(err).Str("endpoint", endpoint).Str("message_id", d.ID).Msg("Journal insert failed")
	}
}

// ListEndpoints returns the registered endpoints in sorted order
func (lm *ListenerManager) ListEndpoints() []string {
	lm.mu.RLock()
	defer lm.mu.RUnlock()

	endpoints := make([]string, 0, len(lm.consumers))
	for ep := range lm.consumers {
		endpoints = append(endpoints, ep)
	}
	sort.Strings(endpoints)
	return endpoints
}

func (lm *ListenerManager) Listeners() []ListenerInfo {
	lm.mu.RLock()
	defer lm.mu.RUnlock()

	infos := make([]ListenerInfo, 0, len(lm.consumers))
	for ep, c := range lm.consumers {
		infos = append(infos, ListenerInfo{
			Endpoint:       ep,
			DeletionPolicy: c.Policy.String(),
			Workers:        c.Workers(),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Endpoint < infos[j].Endpoint })
	return infos
}

func (lm *ListenerManager) SetWorkerCount(endpoint string, n int) error {
	if n <= 0 {
		return ErrInvalidWorkerCount
	}

	lm.mu.RLock()
	c, ok := lm.consumers[endpoint]
	lm.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrListenerNotFound, endpoint)
	}

	c.SetWorkerCount(n)
	return nil
}

// UpdateQueueDepths refreshes the queue_depth gauge for every listener
func (lm *ListenerManager) UpdateQueueDepths(ctx context.Context) {
	lm.mu.RLock()
	consumers := make([]*consumer.Consumer, 0, len(lm.consumers))
	for _, c := range lm.consumers {
		consumers = append(consumers, c)
	}
	lm.mu.RUnlock()

	for _, c := range consumers {
		depth, err := c.Depth(ctx)
		if err != nil {
			log.Warn().Err(err).Str("endpoint", c.Endpoint).Msg("Failed to read queue depth")
			continue
		}
		metrics.QueueDepth.WithLabelValues(c.Endpoint).Set(float64(depth))
	}
}
