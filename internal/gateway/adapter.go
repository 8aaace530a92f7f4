// Package gateway consumes payment-gateway settlement callbacks. The
// gateway protocol itself is out of scope; adapters only verify and
// normalize inbound webhooks.
package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"
)

const (
	EventPaymentSucceeded = "payment.succeeded"
	EventPaymentFailed    = "payment.failed"
)

// Event is the normalized settlement callback.
type Event struct {
	Provider        string
	ProviderEventID string
	// TransactionRef is the payment-link code issued at checkout.
	TransactionRef string
	Type           string
	Amount         int64
	OccurredAt     time.Time
}

// Adapter verifies and parses provider-specific webhook payloads.
type Adapter interface {
	Provider() string
	Verify(ctx context.Context, payload []byte, headers http.Header) error
	Parse(ctx context.Context, payload []byte) (*Event, error)
}

var (
	ErrUnknownProvider  = errors.New("unknown_provider")
	ErrInvalidSignature = errors.New("invalid_signature")
	ErrInvalidPayload   = errors.New("invalid_payload")
	ErrEventIgnored     = errors.New("event_ignored")
)

// Registry maps provider names to adapters.
type Registry struct {
	adapters map[string]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	registry := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		registry.adapters[a.Provider()] = a
	}
	return registry
}

func (r *Registry) Lookup(provider string) (Adapter, error) {
	adapter, ok := r.adapters[provider]
	if !ok {
		return nil, ErrUnknownProvider
	}
	return adapter, nil
}
