package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/boibabu/api/internal/platform/httpx"
	"github.com/boibabu/api/internal/services"
)

const maxWebhookBodySize = 64 * 1024

// signatureHeaders lists the headers carrying a provider's payload signature, checked in order.
var signatureHeaders = []string{"Stripe-Signature", "X-Signature"}

type webhookAck struct {
	Received    bool   `json:"received"`
	OrderID     string `json:"order_id,omitempty"`
	OrderStatus string `json:"order_status,omitempty"`
}

// PaymentWebhookHandlers receives payment provider callbacks. Authenticity comes from the
// payload signature, not from request credentials.
type PaymentWebhookHandlers struct {
	orders services.OrderService
}

// NewPaymentWebhookHandlers constructs PaymentWebhookHandlers.
func NewPaymentWebhookHandlers(orders services.OrderService) *PaymentWebhookHandlers {
	return &PaymentWebhookHandlers{orders: orders}
}

// Routes registers the /webhooks endpoints.
func (h *PaymentWebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/payments/{provider}", h.handlePayment)
}

func (h *PaymentWebhookHandlers) handlePayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeServiceUnavailable(ctx, w)
		return
	}
	provider, ok := pathParam(w, r, chi.URLParam(r, "provider"), "provider")
	if !ok {
		return
	}
	body, err := readLimitedBody(r, maxWebhookBodySize)
	switch {
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "webhook payload exceeds allowed size", http.StatusRequestEntityTooLarge))
		return
	case err != nil:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	var signature string
	for _, header := range signatureHeaders {
		if signature = strings.TrimSpace(r.Header.Get(header)); signature != "" {
			break
		}
	}
	if signature == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_signature", "signature header is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.ConfirmPayment(ctx, services.ConfirmPaymentCommand{
		Provider:  strings.ToLower(provider),
		Payload:   body,
		Signature: signature,
	})
	// The order was cancelled for lack of stock; acknowledging stops the provider redelivering.
	if err != nil && !errors.Is(err, services.ErrInsufficientStock) {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, webhookAck{
		Received:    true,
		OrderID:     order.ID,
		OrderStatus: string(order.Status),
	})
}
