package messaging

import (
	"context"
	"testing"
	"time"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/require"
)

func newTestAMQPSource(msgs chan amqp.Delivery, opts AMQPOptions) *AMQPSource {
	return &AMQPSource{queue: "demo_queue", msgs: msgs, opts: opts}
}

func TestAMQPReceiveTimesOut(t *testing.T) {
	src := newTestAMQPSource(make(chan amqp.Delivery), AMQPOptions{MaxMessages: 10, WaitTime: 10 * time.Millisecond})

	batch, err := src.Receive(context.Background())
	require.NoError(t, err)
	require.Empty(t, batch)
}

func TestAMQPReceiveZeroWaitBlocksForDelivery(t *testing.T) {
	msgs := make(chan amqp.Delivery)
	src := newTestAMQPSource(msgs, AMQPOptions{MaxMessages: 2})

	go func() {
		time.Sleep(20 * time.Millisecond)
		msgs <- amqp.Delivery{MessageId: "m-1"}
	}()

	batch, err := src.Receive(context.Background())
	require.NoError(t, err)
	require.Len(t, batch, 1)
	require.Equal(t, "m-1", batch[0].ID)
}

func TestAMQPReceiveBatchesAndMapsHeaders(t *testing.T) {
	msgs := make(chan amqp.Delivery, 3)
	msgs <- amqp.Delivery{MessageId: "m-1", ContentType: "application/json", Body: []byte(`{"id":1}`)}
	msgs <- amqp.Delivery{DeliveryTag: 7, Headers: amqp.Table{"tenant": "a", "attempt": int32(2)}}
	msgs <- amqp.Delivery{MessageId: "m-3"}
	src := newTestAMQPSource(msgs, AMQPOptions{MaxMessages: 2, WaitTime: time.Second})

	batch, err := src.Receive(context.Background())
	require.NoError(t, err)
	require.Len(t, batch, 2)

	require.Equal(t, "m-1", batch[0].ID)
	require.Equal(t, "application/json", batch[0].Headers[HeaderContentType])
	require.Equal(t, "demo_queue", batch[0].Headers[HeaderLogicalResourceID])

	require.Equal(t, "7", batch[1].ID)
	require.Equal(t, "a", batch[1].Headers["tenant"])
	require.Equal(t, "2", batch[1].Headers["attempt"])
	require.Equal(t, "false", batch[1].Headers["redelivered"])
}

func TestAMQPReceiveClosedChannel(t *testing.T) {
	msgs := make(chan amqp.Delivery)
	close(msgs)
	src := newTestAMQPSource(msgs, AMQPOptions{MaxMessages: 1})

	_, err := src.Receive(context.Background())
	require.ErrorIs(t, err, ErrSourceClosed)
}

func TestAMQPForeignHandle(t *testing.T) {
	src := newTestAMQPSource(nil, AMQPOptions{})
	d := NewDelivery("x", nil, nil)
	require.ErrorIs(t, src.Delete(context.Background(), d), ErrForeignHandle)
	require.ErrorIs(t, src.Release(context.Background(), d), ErrForeignHandle)
}
