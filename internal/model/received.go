// internal/model/received.go
package model

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusProcessed = "processed"
	StatusFailed    = "failed"
)

// Received is the journal entry written for every handled delivery.
type Received struct {
	ID         uuid.UUID         `json:"id"`
	MessageID  string            `json:"message_id"`
	Endpoint   string            `json:"endpoint"`
	Payload    []byte            `json:"payload"`
	Headers    map[string]string `json:"headers"`
	Status     string            `json:"status"`
	Error      string            `json:"error,omitempty"`
	ReceivedAt time.Time         `json:"received_at"`
}
