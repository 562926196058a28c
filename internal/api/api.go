package api

import (
	"context"

	"github.com/d-j-kendall/aws-sqs-consumer/internal/auth"
	"github.com/d-j-kendall/aws-sqs-consumer/internal/manager"
	"github.com/d-j-kendall/aws-sqs-consumer/internal/model"
)

type ListenerRegistry interface {
	Listeners() []manager.ListenerInfo
	SetWorkerCount(endpoint string, n int) error
}

type MessageStore interface {
	ListMessagesPaginated(ctx context.Context, endpoint, cursor string, limit int) ([]model.Received, string, error)
}

type API struct {
	Listeners ListenerRegistry
	Store     MessageStore
	Auth      *auth.Authenticator
}

// NewAPI wires the admin handlers. store may be nil when no journal is configured.
func NewAPI(listeners ListenerRegistry, store MessageStore, authn *auth.Authenticator) *API {
	return &API{
		Listeners: listeners,
		Store:     store,
		Auth:      authn,
	}
}
