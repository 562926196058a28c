package listener

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/d-j-kendall/aws-sqs-consumer/internal/consumer"
	"github.com/d-j-kendall/aws-sqs-consumer/internal/messaging"
)

// JSON adapts a typed callback into a consumer handler. The body is decoded
// into T; a decode failure is returned so the deletion policy can act on it.
func JSON[T any](fn func(headers map[string]string, payload T)) consumer.HandlerFunc {
	return func(_ context.Context, d messaging.Delivery) error {
		var payload T
		if err := json.Unmarshal(d.Body, &payload); err != nil {
			return fmt.Errorf("decode message %s: %w", d.ID, err)
		}
		fn(d.Headers, payload)
		return nil
	}
}
