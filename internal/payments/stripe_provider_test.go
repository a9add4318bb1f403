package payments

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"
)

const testWebhookSecret = "whsec_test_secret"

type stubIntentAPI struct {
	newFn func(*stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	getFn func(string, *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

func (s stubIntentAPI) New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	return s.newFn(params)
}

func (s stubIntentAPI) Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	return s.getFn(id, params)
}

type stubRefundAPI struct {
	newFn func(*stripe.RefundParams) (*stripe.Refund, error)
}

func (s stubRefundAPI) New(params *stripe.RefundParams) (*stripe.Refund, error) {
	return s.newFn(params)
}

func newTestStripeProvider(t *testing.T, intents stubIntentAPI, refunds stubRefundAPI) *StripeProvider {
	t.Helper()
	provider, err := NewStripeProvider(StripeProviderConfig{
		WebhookSecret: testWebhookSecret,
		Clients:       &stripeClients{intents: intents, refunds: refunds},
	})
	if err != nil {
		t.Fatalf("new stripe provider: %v", err)
	}
	return provider
}

func signedPayload(t *testing.T, body string, at time.Time) (string, []byte) {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(body),
		Secret:    testWebhookSecret,
		Timestamp: at,
	})
	return signed.Header, signed.Payload
}

func TestNewStripeProviderRequiresSecrets(t *testing.T) {
	if _, err := NewStripeProvider(StripeProviderConfig{WebhookSecret: "whsec"}); err == nil {
		t.Fatalf("expected error without api key")
	}
	if _, err := NewStripeProvider(StripeProviderConfig{APIKey: "sk_test"}); err == nil {
		t.Fatalf("expected error without webhook secret")
	}
}

func TestStripeCreatePaymentIntent(t *testing.T) {
	var captured *stripe.PaymentIntentParams
	provider := newTestStripeProvider(t, stubIntentAPI{
		newFn: func(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
			captured = params
			return &stripe.PaymentIntent{
				ID:           "pi_1",
				ClientSecret: "pi_1_secret",
				Amount:       *params.Amount,
				Currency:     stripe.Currency(*params.Currency),
				Status:       stripe.PaymentIntentStatusRequiresPaymentMethod,
			}, nil
		},
	}, stubRefundAPI{})

	intent, err := provider.CreatePaymentIntent(context.Background(), IntentRequest{
		OrderID:        "BB-2026-000042",
		Amount:         106000,
		Currency:       "INR",
		IdempotencyKey: "BB-2026-000042:intent",
		Metadata:       map[string]string{"user_id": "buyer-1"},
	})
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}

	want := Intent{ID: "pi_1", Provider: "stripe", ClientSecret: "pi_1_secret", Status: StatusPending, Amount: 106000, Currency: "INR"}
	if diff := cmp.Diff(want, intent); diff != "" {
		t.Fatalf("intent mismatch (-want +got):\n%s", diff)
	}
	if got := *captured.Currency; got != "inr" {
		t.Fatalf("expected lower-case currency, got %q", got)
	}
	if captured.Metadata[MetadataOrderID] != "BB-2026-000042" || captured.Metadata["user_id"] != "buyer-1" {
		t.Fatalf("unexpected metadata %v", captured.Metadata)
	}
	if captured.IdempotencyKey == nil || *captured.IdempotencyKey != "BB-2026-000042:intent" {
		t.Fatalf("expected idempotency key to be forwarded")
	}
}

func TestStripeCreatePaymentIntentRejectsNonPositiveAmount(t *testing.T) {
	provider := newTestStripeProvider(t, stubIntentAPI{}, stubRefundAPI{})
	if _, err := provider.CreatePaymentIntent(context.Background(), IntentRequest{Amount: 0, Currency: "INR"}); err == nil {
		t.Fatalf("expected error for zero amount")
	}
}

func TestStripeParseWebhookSucceeded(t *testing.T) {
	provider := newTestStripeProvider(t, stubIntentAPI{}, stubRefundAPI{})
	created := time.Date(2026, 3, 10, 10, 5, 0, 0, time.UTC)
	body := fmt.Sprintf(`{
		"id": "evt_1",
		"object": "event",
		"type": "payment_intent.succeeded",
		"created": %d,
		"data": {"object": {
			"id": "pi_1",
			"object": "payment_intent",
			"amount": 106000,
			"amount_received": 106000,
			"currency": "inr",
			"status": "succeeded",
			"latest_charge": "ch_1",
			"metadata": {"order_id": "BB-2026-000042"}
		}}
	}`, created.Unix())
	header, payload := signedPayload(t, body, time.Now())

	event, err := provider.ParseWebhook(payload, header)
	if err != nil {
		t.Fatalf("parse webhook: %v", err)
	}

	want := WebhookEvent{
		Provider:   "stripe",
		ID:         "evt_1",
		Type:       "payment_intent.succeeded",
		IntentID:   "pi_1",
		OrderID:    "BB-2026-000042",
		ChargeID:   "ch_1",
		Amount:     106000,
		Currency:   "INR",
		Status:     StatusSucceeded,
		OccurredAt: created,
	}
	if diff := cmp.Diff(want, event); diff != "" {
		t.Fatalf("event mismatch (-want +got):\n%s", diff)
	}
}

func TestStripeParseWebhookIgnoresOtherObjects(t *testing.T) {
	provider := newTestStripeProvider(t, stubIntentAPI{}, stubRefundAPI{})
	header, payload := signedPayload(t, `{"id":"evt_2","object":"event","type":"customer.created","created":1,"data":{"object":{"id":"cus_1"}}}`, time.Now())

	event, err := provider.ParseWebhook(payload, header)
	if err != nil {
		t.Fatalf("parse webhook: %v", err)
	}
	if event.IntentID != "" || event.OrderID != "" || event.Status != StatusPending {
		t.Fatalf("expected an empty payment view, got %+v", event)
	}
}

func TestStripeParseWebhookRejectsBadSignature(t *testing.T) {
	provider := newTestStripeProvider(t, stubIntentAPI{}, stubRefundAPI{})
	_, payload := signedPayload(t, `{"id":"evt_3","object":"event","type":"payment_intent.succeeded"}`, time.Now())

	_, err := provider.ParseWebhook(payload, "t=1,v1=deadbeef")
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}

	header, payload := signedPayload(t, `{"id":"evt_4","object":"event","type":"payment_intent.succeeded"}`, time.Now().Add(-time.Hour))
	if _, err := provider.ParseWebhook(payload, header); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected stale signature to be rejected, got %v", err)
	}
}

func TestStripeRefundReturnsLookup(t *testing.T) {
	var refundParams *stripe.RefundParams
	provider := newTestStripeProvider(t, stubIntentAPI{
		getFn: func(id string, _ *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
			return &stripe.PaymentIntent{
				ID:       id,
				Amount:   1000,
				Currency: "inr",
				Status:   stripe.PaymentIntentStatusSucceeded,
				LatestCharge: &stripe.Charge{
					ID:             "ch_1",
					Amount:         1000,
					AmountRefunded: 400,
					Paid:           true,
					Created:        1773136800,
				},
			}, nil
		},
	}, stubRefundAPI{
		newFn: func(params *stripe.RefundParams) (*stripe.Refund, error) {
			refundParams = params
			return &stripe.Refund{ID: "re_1", Amount: *params.Amount}, nil
		},
	})

	amount := int64(400)
	details, err := provider.Refund(context.Background(), RefundRequest{
		IntentID:       "pi_1",
		Amount:         &amount,
		Reason:         "Requested_By_Customer",
		IdempotencyKey: "BB-2026-000042:refund:400",
	})
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if *refundParams.PaymentIntent != "pi_1" || *refundParams.Amount != 400 {
		t.Fatalf("unexpected refund params %+v", refundParams)
	}
	if refundParams.Reason == nil || *refundParams.Reason != "requested_by_customer" {
		t.Fatalf("expected mapped reason, got %v", refundParams.Reason)
	}
	if details.AmountRefunded != 400 || details.Status != StatusSucceeded || !details.Captured {
		t.Fatalf("unexpected details %+v", details)
	}
	if details.RefundedAt == nil {
		t.Fatalf("expected refundedAt to be set")
	}
}

func TestStripeRefundPropagatesErrors(t *testing.T) {
	provider := newTestStripeProvider(t, stubIntentAPI{}, stubRefundAPI{
		newFn: func(*stripe.RefundParams) (*stripe.Refund, error) {
			return nil, errors.New("card_declined")
		},
	})
	if _, err := provider.Refund(context.Background(), RefundRequest{IntentID: "pi_1"}); err == nil {
		t.Fatalf("expected refund error")
	}
}

func TestStripePaymentDetailsFullRefund(t *testing.T) {
	details := stripePaymentDetails(&stripe.PaymentIntent{
		ID:     "pi_1",
		Amount: 1000,
		Status: stripe.PaymentIntentStatusSucceeded,
		LatestCharge: &stripe.Charge{
			Amount:         1000,
			AmountRefunded: 1000,
			Refunded:       true,
			Captured:       true,
			Currency:       "inr",
		},
	})
	if details.Status != StatusRefunded {
		t.Fatalf("expected refunded status, got %s", details.Status)
	}
	if details.Currency != "INR" {
		t.Fatalf("expected currency from charge, got %q", details.Currency)
	}
}
