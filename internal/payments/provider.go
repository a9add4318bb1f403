// Package payments talks to payment service providers. Stripe is the only adapter today; the
// Manager keeps the order engine independent of which PSP captured a payment.
package payments

import (
	"context"
	"errors"
	"maps"
	"time"
)

// Status is a PSP payment state folded onto the few values the order engine acts on.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusRefunded  Status = "refunded"
)

var (
	ErrUnsupportedProvider = errors.New("payments: unsupported provider")
	ErrInvalidSignature    = errors.New("payments: invalid webhook signature")
	// ErrMalformedEvent means the signature checked out but the body could not be decoded.
	ErrMalformedEvent = errors.New("payments: malformed webhook event")
)

// IntentRequest asks a PSP to prepare collection of Amount paise for an order.
type IntentRequest struct {
	OrderID        string
	Amount         int64
	Currency       string
	Description    string
	IdempotencyKey string
	Metadata       map[string]string
}

// Intent is what the buyer's client needs to complete payment.
type Intent struct {
	ID           string
	Provider     string
	ClientSecret string
	Status       Status
	Amount       int64
	Currency     string
}

// RefundRequest returns money on a captured intent. A nil Amount refunds whatever is left.
type RefundRequest struct {
	IntentID       string
	Amount         *int64
	Reason         string
	IdempotencyKey string
	Metadata       map[string]string
}

type LookupRequest struct {
	IntentID string
}

// PaymentDetails is the reconciled state of one intent and its latest charge.
type PaymentDetails struct {
	Provider       string
	IntentID       string
	Status         Status
	Amount         int64
	AmountRefunded int64
	Currency       string
	Captured       bool
	CapturedAt     *time.Time
	RefundedAt     *time.Time
	Metadata       map[string]string
}

// WebhookEvent is a provider callback whose signature has been verified.
type WebhookEvent struct {
	Provider   string
	ID         string
	Type       string
	IntentID   string
	OrderID    string
	ChargeID   string
	Amount     int64
	Currency   string
	Status     Status
	OccurredAt time.Time
}

// Provider is implemented by each PSP adapter.
type Provider interface {
	CreatePaymentIntent(ctx context.Context, req IntentRequest) (Intent, error)
	ParseWebhook(payload []byte, signature string) (WebhookEvent, error)
	Refund(ctx context.Context, req RefundRequest) (PaymentDetails, error)
	LookupPayment(ctx context.Context, req LookupRequest) (PaymentDetails, error)
}

func cloneMetadata(values map[string]string) map[string]string {
	if len(values) == 0 {
		return nil
	}
	return maps.Clone(values)
}
