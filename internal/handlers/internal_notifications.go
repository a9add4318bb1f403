package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/boibabu/api/internal/platform/httpx"
	"github.com/boibabu/api/internal/platform/jobs"
	"github.com/boibabu/api/internal/services"
)

const maxPushBodySize = 64 * 1024

// InternalNotificationHandlers accepts Pub/Sub push deliveries of buyer, seller and admin
// notifications. The group is expected to sit behind OIDC verification.
type InternalNotificationHandlers struct {
	notifications services.NotificationService
}

// NewInternalNotificationHandlers constructs InternalNotificationHandlers.
func NewInternalNotificationHandlers(notifications services.NotificationService) *InternalNotificationHandlers {
	return &InternalNotificationHandlers{notifications: notifications}
}

// Routes registers the /internal endpoints.
func (h *InternalNotificationHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/notifications:deliver", h.deliver)
}

func (h *InternalNotificationHandlers) deliver(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.notifications == nil {
		httpx.WriteError(ctx, w, httpx.NewError("notifications_unavailable", "notification service unavailable", http.StatusServiceUnavailable))
		return
	}
	body, err := readLimitedBody(r, maxPushBodySize)
	switch {
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "push payload exceeds allowed size", http.StatusRequestEntityTooLarge))
		return
	case err != nil:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	notification, err := jobs.DecodeNotificationPush(body)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	if err := h.notifications.Deliver(ctx, notification); err != nil {
		if errors.Is(err, services.ErrOrderInvalidInput) {
			// Left to the subscription's dead-letter policy.
			httpx.WriteError(ctx, w, httpx.NewError("invalid_notification", err.Error(), http.StatusBadRequest))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("notification_delivery_failed", "failed to store notification", http.StatusInternalServerError))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
