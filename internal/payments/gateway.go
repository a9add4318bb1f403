package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/boibabu/api/internal/services"
)

const webhookEventIntentSucceeded = "payment_intent.succeeded"

// Gateway adapts a Manager to the order service's PaymentGateway contract.
type Gateway struct {
	manager *Manager
}

var _ services.PaymentGateway = (*Gateway)(nil)

// NewGateway wraps manager.
func NewGateway(manager *Manager) (*Gateway, error) {
	if manager == nil {
		return nil, errors.New("payments: manager is required")
	}
	return &Gateway{manager: manager}, nil
}

// CreateIntent opens a provider payment intent for the order total.
func (g *Gateway) CreateIntent(ctx context.Context, req services.PaymentIntentRequest) (services.PaymentIntent, error) {
	metadata := cloneMetadata(req.Metadata)
	if metadata == nil {
		metadata = make(map[string]string, 1)
	}
	if req.CustomerID != "" {
		metadata["customer_id"] = req.CustomerID
	}
	intent, err := g.manager.CreatePaymentIntent(ctx, req.Provider, IntentRequest{
		OrderID:        req.OrderID,
		Amount:         req.Amount,
		Currency:       req.Currency,
		Description:    "Order " + req.OrderID,
		IdempotencyKey: req.IdempotencyKey,
		Metadata:       metadata,
	})
	if err != nil {
		return services.PaymentIntent{}, gatewayError("create intent", err)
	}
	return services.PaymentIntent{
		Provider:     intent.Provider,
		IntentID:     intent.ID,
		ClientSecret: intent.ClientSecret,
		Status:       string(intent.Status),
	}, nil
}

// VerifyCallback checks the callback signature and reports whether the payment succeeded.
func (g *Gateway) VerifyCallback(_ context.Context, provider string, payload []byte, signature string) (services.VerifiedPayment, error) {
	event, err := g.manager.ParseWebhook(provider, payload, signature)
	if err != nil {
		return services.VerifiedPayment{}, gatewayError("verify callback", err)
	}
	return services.VerifiedPayment{
		Provider:   event.Provider,
		EventID:    event.ID,
		EventType:  event.Type,
		IntentID:   event.IntentID,
		OrderID:    event.OrderID,
		Reference:  event.ChargeID,
		Amount:     event.Amount,
		Currency:   event.Currency,
		Succeeded:  event.Type == webhookEventIntentSucceeded && event.Status == StatusSucceeded,
		OccurredAt: event.OccurredAt,
	}, nil
}

// Refund returns req.Amount of the captured payment to the buyer.
func (g *Gateway) Refund(ctx context.Context, req services.PaymentRefundRequest) error {
	if strings.TrimSpace(req.IntentID) == "" {
		return fmt.Errorf("%w: payment intent is required for refund", services.ErrOrderInvalidInput)
	}
	amount := req.Amount
	_, err := g.manager.Refund(ctx, req.Provider, RefundRequest{
		IntentID:       req.IntentID,
		Amount:         &amount,
		Reason:         req.Reason,
		IdempotencyKey: req.IdempotencyKey,
		Metadata:       map[string]string{MetadataOrderID: req.OrderID},
	})
	if err != nil {
		return gatewayError("refund", err)
	}
	return nil
}

func gatewayError(op string, err error) error {
	switch {
	case errors.Is(err, ErrInvalidSignature), errors.Is(err, ErrMalformedEvent), errors.Is(err, ErrUnsupportedProvider):
		return fmt.Errorf("%w: payments %s: %v", services.ErrOrderInvalidInput, op, err)
	default:
		return fmt.Errorf("%w: payments %s: %v", services.ErrExternalService, op, err)
	}
}
