package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/boibabu/api/internal/domain"
	"github.com/boibabu/api/internal/platform/jobs"
	"github.com/boibabu/api/internal/services"
)

type stubNotificationService struct {
	delivered []services.Notification
	err       error
}

func (s *stubNotificationService) Deliver(_ context.Context, n services.Notification) error {
	if s.err != nil {
		return s.err
	}
	s.delivered = append(s.delivered, n)
	return nil
}

func pushBody(t *testing.T, msg jobs.NotificationMessage) string {
	t.Helper()
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal message: %v", err)
	}
	envelope, err := json.Marshal(jobs.PushEnvelope{
		Message: jobs.PushMessage{
			Data:       data,
			Attributes: map[string]string{"notificationId": "ntf_attr"},
			MessageID:  "1",
		},
		Subscription: "projects/boibabu/subscriptions/notifications-push",
	})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return string(envelope)
}

func newInternalRouter(svc services.NotificationService) chi.Router {
	router := chi.NewRouter()
	router.Route("/internal", NewInternalNotificationHandlers(svc).Routes)
	return router
}

func TestInternalNotificationsDeliver(t *testing.T) {
	svc := &stubNotificationService{}
	router := newInternalRouter(svc)

	body := pushBody(t, jobs.NotificationMessage{
		RecipientID:   "seller-a",
		RecipientRole: services.RecipientRoleSeller,
		Kind:          string(domain.NotificationKindOrder),
		Title:         "New order BB-2025-000042",
		Body:          "2 copies of Gitanjali",
		CreatedAt:     time.Date(2025, 2, 3, 10, 0, 0, 0, time.UTC),
	})
	req := httptest.NewRequest(http.MethodPost, "/internal/notifications:deliver", strings.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d (%s)", rr.Code, rr.Body.String())
	}
	if len(svc.delivered) != 1 {
		t.Fatalf("expected one delivery, got %d", len(svc.delivered))
	}
	got := svc.delivered[0]
	if got.ID != "ntf_attr" || got.RecipientID != "seller-a" || got.Kind != domain.NotificationKindOrder {
		t.Fatalf("unexpected notification: %#v", got)
	}
}

func TestInternalNotificationsDeliverErrors(t *testing.T) {
	valid := jobs.NotificationMessage{RecipientRole: services.RecipientRoleAdmin, Title: "Order cancelled"}
	tests := []struct {
		name   string
		body   func(t *testing.T) string
		err    error
		status int
	}{
		{name: "not json", body: func(*testing.T) string { return "nope" }, status: http.StatusBadRequest},
		{name: "empty data", body: func(*testing.T) string { return `{"message":{}}` }, status: http.StatusBadRequest},
		{name: "invalid notification", body: func(t *testing.T) string { return pushBody(t, valid) }, err: fmt.Errorf("%w: title is required", services.ErrOrderInvalidInput), status: http.StatusBadRequest},
		{name: "store failure", body: func(t *testing.T) string { return pushBody(t, valid) }, err: errors.New("firestore unavailable"), status: http.StatusInternalServerError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			router := newInternalRouter(&stubNotificationService{err: tc.err})

			req := httptest.NewRequest(http.MethodPost, "/internal/notifications:deliver", strings.NewReader(tc.body(t)))
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			if rr.Code != tc.status {
				t.Fatalf("expected status %d, got %d", tc.status, rr.Code)
			}
		})
	}
}
