package messaging

import (
	"context"
	"errors"
	"time"
)

// Header names shared by every transport.
const (
	HeaderMessageID         = "MessageId"
	HeaderReceiptHandle     = "ReceiptHandle"
	HeaderLogicalResourceID = "LogicalResourceId"
	HeaderContentType       = "contentType"
)

var (
	ErrSourceClosed  = errors.New("message source closed")
	ErrForeignHandle = errors.New("delivery does not belong to this source")
)

// Delivery is one message received from a queue endpoint.
type Delivery struct {
	ID         string
	Body       []byte
	Headers    map[string]string
	ReceivedAt time.Time

	handle any
}

func NewDelivery(id string, body []byte, headers map[string]string) Delivery {
	if headers == nil {
		headers = map[string]string{}
	}
	return Delivery{
		ID:         id,
		Body:       body,
		Headers:    headers,
		ReceivedAt: time.Now(),
	}
}

// Source is a queue endpoint the listener container polls.
type Source interface {
	// Endpoint is the name the source was registered under.
	Endpoint() string
	// Receive returns the next batch, possibly empty after the poll wait time.
	Receive(ctx context.Context) ([]Delivery, error)
	// Delete removes the delivery from the queue for good.
	Delete(ctx context.Context, d Delivery) error
	// Release gives the delivery back to the broker without deleting it.
	Release(ctx context.Context, d Delivery) error
	// HasRedrive reports whether failed deliveries are routed to a dead-letter queue.
	HasRedrive(ctx context.Context) (bool, error)
	Depth(ctx context.Context) (int64, error)
	Close() error
}
