// Package sandbox implements the gateway adapter for the sandbox
// provider: JSON payloads signed with HMAC-SHA256 over the raw body.
package sandbox

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/smallbiznis/escrow/internal/gateway"
)

const SignatureHeader = "X-Webhook-Signature"

type Adapter struct {
	secret []byte
}

func New(secret string) *Adapter {
	return &Adapter{secret: []byte(secret)}
}

func (a *Adapter) Provider() string { return "sandbox" }

func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	if len(a.secret) == 0 {
		return gateway.ErrInvalidSignature
	}
	signature := strings.TrimSpace(headers.Get(SignatureHeader))
	if signature == "" {
		return gateway.ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, a.secret)
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(signature))) {
		return gateway.ErrInvalidSignature
	}
	return nil
}

type webhookPayload struct {
	EventID    string `json:"event_id"`
	EventType  string `json:"event_type"`
	OrderRef   string `json:"order_ref"`
	Amount     int64  `json:"amount"`
	OccurredAt string `json:"occurred_at"`
}

func (a *Adapter) Parse(ctx context.Context, payload []byte) (*gateway.Event, error) {
	var body webhookPayload
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, gateway.ErrInvalidPayload
	}

	eventType := ""
	switch strings.TrimSpace(body.EventType) {
	case "payment.settled", "payment.success":
		eventType = gateway.EventPaymentSucceeded
	case "payment.failed", "payment.expired":
		eventType = gateway.EventPaymentFailed
	default:
		// Gateways send event types this core does not consume.
		return nil, gateway.ErrEventIgnored
	}

	ref := strings.TrimSpace(body.OrderRef)
	eventID := strings.TrimSpace(body.EventID)
	if ref == "" || eventID == "" {
		return nil, gateway.ErrInvalidPayload
	}

	occurredAt := time.Now().UTC()
	if body.OccurredAt != "" {
		parsed, err := time.Parse(time.RFC3339, body.OccurredAt)
		if err != nil {
			return nil, gateway.ErrInvalidPayload
		}
		occurredAt = parsed.UTC()
	}

	return &gateway.Event{
		Provider:        a.Provider(),
		ProviderEventID: eventID,
		TransactionRef:  ref,
		Type:            eventType,
		Amount:          body.Amount,
		OccurredAt:      occurredAt,
	}, nil
}
