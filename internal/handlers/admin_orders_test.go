package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/go-cmp/cmp"

	domain "github.com/boibabu/api/internal/domain"
	"github.com/boibabu/api/internal/platform/auth"
	"github.com/boibabu/api/internal/services"
)

type stubSettingsService struct {
	settings services.PlatformSettings
	updated  []services.UpdateCommissionRateCommand
	err      error
}

func (s *stubSettingsService) CurrentCommissionRate(context.Context) (float64, error) {
	return s.settings.CommissionRate, s.err
}

func (s *stubSettingsService) GetPlatformSettings(context.Context) (services.PlatformSettings, error) {
	return s.settings, s.err
}

func (s *stubSettingsService) UpdateCommissionRate(_ context.Context, cmd services.UpdateCommissionRateCommand) (services.PlatformSettings, error) {
	if s.err != nil {
		return services.PlatformSettings{}, s.err
	}
	s.updated = append(s.updated, cmd)
	s.settings = services.PlatformSettings{CommissionRate: cmd.Rate, UpdatedBy: cmd.ActorID, UpdatedAt: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)}
	return s.settings, nil
}

var _ services.SettingsService = (*stubSettingsService)(nil)

func newAdminRouter(deps AdminDeps) chi.Router {
	router := chi.NewRouter()
	router.Route("/admin", NewAdminHandlers(deps).Routes)
	return router
}

func adminRequest(method, target, body string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	return withIdentity(req, "admin-1", auth.RoleAdmin)
}

func TestAdminHandlersListOrdersFilters(t *testing.T) {
	var captured services.OrderListFilter
	service := &stubOrderService{
		listFn: func(_ context.Context, filter services.OrderListFilter) (services.OrderPage, error) {
			captured = filter
			return services.OrderPage{}, nil
		},
	}
	router := newAdminRouter(AdminDeps{Orders: service})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, adminRequest(http.MethodGet, "/admin/orders?status=confirmed&seller_id=seller-a&user_id=buyer-1&page_size=5", ""))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d (%s)", rr.Code, rr.Body.String())
	}
	want := services.OrderListFilter{
		UserID:     "buyer-1",
		SellerID:   "seller-a",
		Status:     []domain.OrderStatus{domain.OrderStatusConfirmed},
		Pagination: services.Pagination{PageSize: 5},
	}
	if diff := cmp.Diff(want, captured); diff != "" {
		t.Fatalf("filter mismatch (-want +got):\n%s", diff)
	}
}

func TestAdminHandlersUpdateStatus(t *testing.T) {
	var captured services.UpdateOrderStatusCommand
	service := &stubOrderService{
		statusFn: func(_ context.Context, cmd services.UpdateOrderStatusCommand) (services.Order, error) {
			captured = cmd
			order := sampleOrder()
			order.Status = cmd.Status
			order.TrackingNumber = cmd.TrackingNumber
			return order, nil
		},
	}
	router := newAdminRouter(AdminDeps{Orders: service})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, adminRequest(http.MethodPatch, "/admin/orders/BB-2025-000042/status", `{"status":"shipped","tracking_number":"IP123456789IN","note":"India Post"}`))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d (%s)", rr.Code, rr.Body.String())
	}
	want := services.UpdateOrderStatusCommand{
		OrderID:        "BB-2025-000042",
		Status:         domain.OrderStatusShipped,
		ActorID:        "admin-1",
		Note:           "India Post",
		TrackingNumber: "IP123456789IN",
	}
	if diff := cmp.Diff(want, captured); diff != "" {
		t.Fatalf("command mismatch (-want +got):\n%s", diff)
	}
	var resp orderResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Order.Status != "shipped" || resp.Order.TrackingNumber != "IP123456789IN" {
		t.Fatalf("unexpected order payload: %#v", resp.Order)
	}
}

func TestAdminHandlersUpdateStatusRejectsUnknownStatus(t *testing.T) {
	router := newAdminRouter(AdminDeps{Orders: &stubOrderService{}})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, adminRequest(http.MethodPatch, "/admin/orders/BB-2025-000042/status", `{"status":"lost"}`))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestAdminHandlersCorrectShipping(t *testing.T) {
	var captured services.CorrectShippingCommand
	service := &stubOrderService{
		shippingFn: func(_ context.Context, cmd services.CorrectShippingCommand) (services.Order, error) {
			captured = cmd
			return sampleOrder(), nil
		},
	}
	router := newAdminRouter(AdminDeps{Orders: service})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, adminRequest(http.MethodPatch, "/admin/orders/BB-2025-000042/shipping", `{"shipping_cost":0,"note":"waived"}`))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d (%s)", rr.Code, rr.Body.String())
	}
	if captured.ShippingCost != 0 || captured.Note != "waived" || captured.ActorID != "admin-1" {
		t.Fatalf("unexpected command: %#v", captured)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, adminRequest(http.MethodPatch, "/admin/orders/BB-2025-000042/shipping", `{"note":"missing cost"}`))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 when shipping_cost is missing, got %d", rr.Code)
	}
}

func TestAdminHandlersOverrideCommission(t *testing.T) {
	var captured services.OverrideCommissionCommand
	service := &stubOrderService{
		commissionFn: func(_ context.Context, cmd services.OverrideCommissionCommand) (services.Order, error) {
			captured = cmd
			if cmd.Rate > 100 {
				return services.Order{}, services.ErrInvalidCommissionRate
			}
			return sampleOrder(), nil
		},
	}
	router := newAdminRouter(AdminDeps{Orders: service})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, adminRequest(http.MethodPatch, "/admin/orders/BB-2025-000042/seller-payments/seller-b/commission", `{"rate":7.5}`))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d (%s)", rr.Code, rr.Body.String())
	}
	if captured.SellerID != "seller-b" || captured.Rate != 7.5 {
		t.Fatalf("unexpected command: %#v", captured)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, adminRequest(http.MethodPatch, "/admin/orders/BB-2025-000042/seller-payments/seller-b/commission", `{"rate":150}`))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for out of range rate, got %d", rr.Code)
	}
}

func TestAdminHandlersMarkSellerPaid(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "success", status: http.StatusOK},
		{name: "already paid", err: services.ErrSellerPaymentAlreadyPaid, status: http.StatusConflict, code: "already_paid"},
		{name: "unknown seller", err: services.ErrSellerPaymentNotFound, status: http.StatusNotFound, code: "seller_payment_not_found"},
		{name: "unpaid order", err: fmt.Errorf("%w: order not confirmed", services.ErrOrderInvalidTransition), status: http.StatusConflict, code: "invalid_transition"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var captured services.MarkSellerPaidCommand
			service := &stubOrderService{
				markPaidFn: func(_ context.Context, cmd services.MarkSellerPaidCommand) (services.Order, error) {
					captured = cmd
					if tc.err != nil {
						return services.Order{}, tc.err
					}
					return sampleOrder(), nil
				},
			}
			router := newAdminRouter(AdminDeps{Orders: service})

			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, adminRequest(http.MethodPost, "/admin/orders/BB-2025-000042/seller-payments/seller-a:mark-paid", `{"notes":"UPI ref 4471"}`))

			if rr.Code != tc.status {
				t.Fatalf("expected status %d, got %d (%s)", tc.status, rr.Code, rr.Body.String())
			}
			if tc.code != "" {
				if code := decodeErrorCode(t, rr); code != tc.code {
					t.Fatalf("expected error code %s, got %s", tc.code, code)
				}
			}
			if captured.SellerID != "seller-a" || captured.Notes != "UPI ref 4471" || captured.ActorID != "admin-1" {
				t.Fatalf("unexpected command: %#v", captured)
			}
		})
	}
}

func TestAdminHandlersRefund(t *testing.T) {
	var captured services.ProcessRefundCommand
	service := &stubOrderService{
		refundFn: func(_ context.Context, cmd services.ProcessRefundCommand) (services.Order, error) {
			captured = cmd
			if cmd.Amount > 85000 {
				return services.Order{}, services.ErrInvalidRefundAmount
			}
			order := sampleOrder()
			order.RefundAmount = cmd.Amount
			order.PaymentStatus = domain.PaymentStatusPartiallyRefunded
			return order, nil
		},
	}
	router := newAdminRouter(AdminDeps{Orders: service})

	req := adminRequest(http.MethodPost, "/admin/orders/BB-2025-000042/refunds", `{"amount":20000,"reason":"damaged copy"}`)
	req.Header.Set("Idempotency-Key", "refund-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d (%s)", rr.Code, rr.Body.String())
	}
	want := services.ProcessRefundCommand{
		OrderID:        "BB-2025-000042",
		Amount:         20000,
		Reason:         "damaged copy",
		ActorID:        "admin-1",
		IdempotencyKey: "refund-1",
	}
	if diff := cmp.Diff(want, captured); diff != "" {
		t.Fatalf("command mismatch (-want +got):\n%s", diff)
	}
	var resp orderResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Order.RefundAmount != 20000 || resp.Order.PaymentStatus != "partially_refunded" {
		t.Fatalf("unexpected order payload: %#v", resp.Order)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, adminRequest(http.MethodPost, "/admin/orders/BB-2025-000042/refunds", `{"amount":90000}`))
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for excessive refund, got %d", rr.Code)
	}
}

func TestAdminHandlersCancelOrderHasNoOwnerScope(t *testing.T) {
	var captured services.CancelOrderCommand
	service := &stubOrderService{
		cancelFn: func(_ context.Context, cmd services.CancelOrderCommand) (services.Order, error) {
			captured = cmd
			return sampleOrder(), nil
		},
	}
	router := newAdminRouter(AdminDeps{Orders: service})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, adminRequest(http.MethodPost, "/admin/orders/BB-2025-000042:cancel", `{"reason":"fraud check"}`))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if captured.OwnerID != "" || captured.ActorID != "admin-1" || captured.Reason != "fraud check" {
		t.Fatalf("unexpected command: %#v", captured)
	}
}

func TestAdminHandlersCommissionSetting(t *testing.T) {
	settings := &stubSettingsService{settings: services.PlatformSettings{CommissionRate: 10}}
	router := newAdminRouter(AdminDeps{Settings: settings})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, adminRequest(http.MethodGet, "/admin/settings/commission", ""))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var resp commissionSettingResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Rate != 10 {
		t.Fatalf("expected rate 10, got %v", resp.Rate)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, adminRequest(http.MethodPut, "/admin/settings/commission", `{"rate":12.5}`))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d (%s)", rr.Code, rr.Body.String())
	}
	if len(settings.updated) != 1 || settings.updated[0].Rate != 12.5 || settings.updated[0].ActorID != "admin-1" {
		t.Fatalf("unexpected updates: %#v", settings.updated)
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.UpdatedBy != "admin-1" || resp.UpdatedAt != "2025-02-01T00:00:00Z" {
		t.Fatalf("unexpected setting payload: %#v", resp)
	}

	settings.err = services.ErrInvalidCommissionRate
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, adminRequest(http.MethodPut, "/admin/settings/commission", `{"rate":-1}`))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestAdminHandlersExportStatementForSeller(t *testing.T) {
	statements := &stubStatementService{}
	router := newAdminRouter(AdminDeps{Statements: statements})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, adminRequest(http.MethodPost, "/admin/sellers/seller-a/statements", ""))

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d (%s)", rr.Code, rr.Body.String())
	}
	if len(statements.calls) != 1 || statements.calls[0].SellerID != "seller-a" || statements.calls[0].ActorID != "admin-1" {
		t.Fatalf("unexpected export calls: %#v", statements.calls)
	}
}
