// Package messagingtest provides an in-process queue endpoint for tests of
// code built on messaging.Source.
package messagingtest

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/d-j-kendall/aws-sqs-consumer/internal/messaging"
)

const batchSize = 10

// MemorySource has the same contract as the broker-backed sources and
// records what was deleted or released.
type MemorySource struct {
	endpoint string
	redrive  bool
	queue    chan messaging.Delivery

	mu          sync.Mutex
	issued      map[string]bool
	deleted     []string
	released    []string
	receiveErrs []error

	closeOnce sync.Once
	closed    chan struct{}
}

var _ messaging.Source = (*MemorySource)(nil)

func NewMemorySource(endpoint string, redrive bool) *MemorySource {
	return &MemorySource{
		endpoint: endpoint,
		redrive:  redrive,
		queue:    make(chan messaging.Delivery, 1024),
		issued:   map[string]bool{},
		closed:   make(chan struct{}),
	}
}

// Send enqueues body and returns the generated message id.
func (m *MemorySource) Send(body []byte, headers map[string]string) string {
	id := uuid.NewString()
	h := map[string]string{}
	for k, v := range headers {
		h[k] = v
	}
	h[messaging.HeaderMessageID] = id
	h[messaging.HeaderLogicalResourceID] = m.endpoint

	m.mu.Lock()
	m.issued[id] = true
	m.mu.Unlock()

	m.queue <- messaging.NewDelivery(id, body, h)
	return id
}

// FailNextReceive makes the next Receive call return err.
func (m *MemorySource) FailNextReceive(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.receiveErrs = append(m.receiveErrs, err)
}

func (m *MemorySource) Endpoint() string { return m.endpoint }

func (m *MemorySource) Receive(ctx context.Context) ([]messaging.Delivery, error) {
	m.mu.Lock()
	if len(m.receiveErrs) > 0 {
		err := m.receiveErrs[0]
		m.receiveErrs = m.receiveErrs[1:]
		m.mu.Unlock()
		return nil, err
	}
	m.mu.Unlock()

	var out []messaging.Delivery
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-m.closed:
		return nil, messaging.ErrSourceClosed
	case d := <-m.queue:
		out = append(out, d)
	}
	for len(out) < batchSize {
		select {
		case d := <-m.queue:
			out = append(out, d)
		default:
			return out, nil
		}
	}
	return out, nil
}

func (m *MemorySource) Delete(_ context.Context, d messaging.Delivery) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.issued[d.ID] {
		return messaging.ErrForeignHandle
	}
	m.deleted = append(m.deleted, d.ID)
	return nil
}

func (m *MemorySource) Release(_ context.Context, d messaging.Delivery) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.issued[d.ID] {
		return messaging.ErrForeignHandle
	}
	m.released = append(m.released, d.ID)
	return nil
}

func (m *MemorySource) HasRedrive(context.Context) (bool, error) {
	return m.redrive, nil
}

func (m *MemorySource) Depth(context.Context) (int64, error) {
	return int64(len(m.queue)), nil
}

func (m *MemorySource) Close() error {
	m.closeOnce.Do(func() { close(m.closed) })
	return nil
}

func (m *MemorySource) Deleted() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.deleted...)
}

func (m *MemorySource) Released() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.released...)
}
