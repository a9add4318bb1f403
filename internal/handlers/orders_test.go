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
	"github.com/boibabu/api/internal/platform/auth"
	"github.com/boibabu/api/internal/services"
)

type stubOrderService struct {
	createFn      func(context.Context, services.CreateOrderCommand) (services.Order, error)
	confirmFn     func(context.Context, services.ConfirmPaymentCommand) (services.Order, error)
	getFn         func(context.Context, string) (services.Order, error)
	listFn        func(context.Context, services.OrderListFilter) (services.OrderPage, error)
	settlementsFn func(context.Context, services.SellerPaymentFilter) (services.SettlementPage, error)
	statusFn      func(context.Context, services.UpdateOrderStatusCommand) (services.Order, error)
	shippingFn    func(context.Context, services.CorrectShippingCommand) (services.Order, error)
	commissionFn  func(context.Context, services.OverrideCommissionCommand) (services.Order, error)
	markPaidFn    func(context.Context, services.MarkSellerPaidCommand) (services.Order, error)
	refundFn      func(context.Context, services.ProcessRefundCommand) (services.Order, error)
	cancelFn      func(context.Context, services.CancelOrderCommand) (services.Order, error)
	quoteFn       func(context.Context, string, int64) (services.ShippingQuote, error)
}

var errStubNotImplemented = errors.New("not implemented")

func (s *stubOrderService) CreateOrder(ctx context.Context, cmd services.CreateOrderCommand) (services.Order, error) {
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return services.Order{}, errStubNotImplemented
}

func (s *stubOrderService) ConfirmPayment(ctx context.Context, cmd services.ConfirmPaymentCommand) (services.Order, error) {
	if s.confirmFn != nil {
		return s.confirmFn(ctx, cmd)
	}
	return services.Order{}, errStubNotImplemented
}

func (s *stubOrderService) GetOrder(ctx context.Context, orderID string) (services.Order, error) {
	if s.getFn != nil {
		return s.getFn(ctx, orderID)
	}
	return services.Order{}, errStubNotImplemented
}

func (s *stubOrderService) ListOrders(ctx context.Context, filter services.OrderListFilter) (services.OrderPage, error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return services.OrderPage{}, nil
}

func (s *stubOrderService) ListSellerPayments(ctx context.Context, filter services.SellerPaymentFilter) (services.SettlementPage, error) {
	if s.settlementsFn != nil {
		return s.settlementsFn(ctx, filter)
	}
	return services.SettlementPage{}, nil
}

func (s *stubOrderService) UpdateStatus(ctx context.Context, cmd services.UpdateOrderStatusCommand) (services.Order, error) {
	if s.statusFn != nil {
		return s.statusFn(ctx, cmd)
	}
	return services.Order{}, errStubNotImplemented
}

func (s *stubOrderService) CorrectShipping(ctx context.Context, cmd services.CorrectShippingCommand) (services.Order, error) {
	if s.shippingFn != nil {
		return s.shippingFn(ctx, cmd)
	}
	return services.Order{}, errStubNotImplemented
}

func (s *stubOrderService) OverrideCommission(ctx context.Context, cmd services.OverrideCommissionCommand) (services.Order, error) {
	if s.commissionFn != nil {
		return s.commissionFn(ctx, cmd)
	}
	return services.Order{}, errStubNotImplemented
}

func (s *stubOrderService) MarkSellerPaid(ctx context.Context, cmd services.MarkSellerPaidCommand) (services.Order, error) {
	if s.markPaidFn != nil {
		return s.markPaidFn(ctx, cmd)
	}
	return services.Order{}, errStubNotImplemented
}

func (s *stubOrderService) ProcessRefund(ctx context.Context, cmd services.ProcessRefundCommand) (services.Order, error) {
	if s.refundFn != nil {
		return s.refundFn(ctx, cmd)
	}
	return services.Order{}, errStubNotImplemented
}

func (s *stubOrderService) CancelOrder(ctx context.Context, cmd services.CancelOrderCommand) (services.Order, error) {
	if s.cancelFn != nil {
		return s.cancelFn(ctx, cmd)
	}
	return services.Order{}, errStubNotImplemented
}

func (s *stubOrderService) QuoteShipping(ctx context.Context, postalCode string, subtotal int64) (services.ShippingQuote, error) {
	if s.quoteFn != nil {
		return s.quoteFn(ctx, postalCode, subtotal)
	}
	return services.ShippingQuote{}, errStubNotImplemented
}

var _ services.OrderService = (*stubOrderService)(nil)

func withIdentity(req *http.Request, uid string, roles ...string) *http.Request {
	return req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: uid, Roles: roles}))
}

func sampleOrder() services.Order {
	created := time.Date(2025, 2, 3, 10, 0, 0, 0, time.UTC)
	return services.Order{
		ID:            "BB-2025-000042",
		OrderNumber:   "BB-2025-000042",
		UserID:        "buyer-1",
		Status:        domain.OrderStatusPending,
		PaymentStatus: domain.PaymentStatusPending,
		PaymentMethod: domain.PaymentMethodStripe,
		Currency:      "INR",
		Items: []services.OrderItem{
			{BookID: "book-a", Title: "Gitanjali", SellerID: "seller-a", Quantity: 2, UnitPrice: 25000, LineTotal: 50000},
			{BookID: "book-b", Title: "Pather Panchali", SellerID: "seller-b", Quantity: 1, UnitPrice: 30000, LineTotal: 30000},
		},
		SellerIDs:    []string{"seller-a", "seller-b"},
		Subtotal:     80000,
		ShippingCost: 5000,
		Total:        85000,
		SellerPayments: []services.SellerPayment{
			{SellerID: "seller-a", ItemsTotal: 50000, ShippingCharges: 3125, CommissionRate: 10, AdminCommission: 5000, NetAmount: 48125, PaymentStatus: domain.SellerPaymentDue},
			{SellerID: "seller-b", ItemsTotal: 30000, ShippingCharges: 1875, CommissionRate: 10, AdminCommission: 3000, NetAmount: 28875, PaymentStatus: domain.SellerPaymentDue},
		},
		StatusHistory: []services.StatusChange{{Status: domain.OrderStatusPending, ChangedBy: "buyer-1", ChangedAt: created}},
		CreatedAt:     created,
	}
}

func newOrderRouter(handler *OrderHandlers) chi.Router {
	router := chi.NewRouter()
	router.Route("/orders", handler.Routes)
	return router
}

func decodeErrorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("expected JSON error body: %v (%s)", err, rr.Body.String())
	}
	code, _ := body["error"].(string)
	return code
}

func TestOrderHandlersCreateOrderSuccess(t *testing.T) {
	var captured services.CreateOrderCommand
	service := &stubOrderService{
		createFn: func(_ context.Context, cmd services.CreateOrderCommand) (services.Order, error) {
			captured = cmd
			order := sampleOrder()
			order.Payment = domain.OrderPayment{Provider: "stripe", IntentID: "pi_123", ClientSecret: "pi_123_secret"}
			return order, nil
		},
	}
	router := newOrderRouter(NewOrderHandlers(nil, service))

	body := `{"items":[{"book_id":"book-a","quantity":2},{"book_id":"book-b","quantity":1}],
		"shipping_address":{"name":"Asha","phone":"9830012345","line1":"12 College St","city":"Kolkata","state":"WB","postal_code":"700073"},
		"payment_method":"Stripe","coupon_code":"BOI10"}`
	req := httptest.NewRequest(http.MethodPost, "/orders/", strings.NewReader(body))
	req.Header.Set("Idempotency-Key", " key-1 ")
	req = withIdentity(req, "buyer-1")
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d (%s)", rr.Code, rr.Body.String())
	}
	if captured.UserID != "buyer-1" || captured.ActorID != "buyer-1" {
		t.Fatalf("expected buyer identity on command, got %#v", captured)
	}
	if captured.PaymentMethod != domain.PaymentMethodStripe {
		t.Fatalf("expected payment method normalised, got %q", captured.PaymentMethod)
	}
	if captured.IdempotencyKey != "key-1" {
		t.Fatalf("expected idempotency key, got %q", captured.IdempotencyKey)
	}
	if len(captured.Items) != 2 || captured.Items[0].BookID != "book-a" || captured.Items[0].Quantity != 2 {
		t.Fatalf("unexpected items: %#v", captured.Items)
	}
	if captured.ShippingAddress.PostalCode != "700073" || captured.CouponCode != "BOI10" {
		t.Fatalf("unexpected address or coupon: %#v", captured)
	}

	var resp orderResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Order.OrderNumber != "BB-2025-000042" || resp.Order.Totals.Total != 85000 {
		t.Fatalf("unexpected order payload: %#v", resp.Order)
	}
	if resp.Payment == nil || resp.Payment.ClientSecret != "pi_123_secret" {
		t.Fatalf("expected client secret in payment block, got %#v", resp.Payment)
	}
}

func TestOrderHandlersCreateOrderRejectsUnknownFields(t *testing.T) {
	service := &stubOrderService{
		createFn: func(context.Context, services.CreateOrderCommand) (services.Order, error) {
			t.Fatal("service must not be called")
			return services.Order{}, nil
		},
	}
	router := newOrderRouter(NewOrderHandlers(nil, service))

	req := httptest.NewRequest(http.MethodPost, "/orders/", strings.NewReader(`{"items":[],"total":1}`))
	req = withIdentity(req, "buyer-1")
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestOrderHandlersCreateOrderRequiresIdentity(t *testing.T) {
	router := newOrderRouter(NewOrderHandlers(nil, &stubOrderService{}))

	req := httptest.NewRequest(http.MethodPost, "/orders/", strings.NewReader(`{}`))
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}

func TestOrderHandlersCreateOrderErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "invalid input", err: fmt.Errorf("%w: cart is empty", services.ErrOrderInvalidInput), status: http.StatusBadRequest, code: "invalid_request"},
		{name: "coupon", err: services.ErrCouponInvalid, status: http.StatusBadRequest, code: "invalid_request"},
		{name: "unknown book", err: services.ErrBookNotFound, status: http.StatusNotFound, code: "book_not_found"},
		{name: "stock", err: services.ErrInsufficientStock, status: http.StatusConflict, code: "insufficient_stock"},
		{name: "gateway", err: fmt.Errorf("stripe: %w", services.ErrExternalService), status: http.StatusBadGateway, code: "upstream_unavailable"},
		{name: "unexpected", err: errors.New("boom"), status: http.StatusInternalServerError, code: "order_error"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			service := &stubOrderService{
				createFn: func(context.Context, services.CreateOrderCommand) (services.Order, error) {
					return services.Order{}, tc.err
				},
			}
			router := newOrderRouter(NewOrderHandlers(nil, service))

			req := httptest.NewRequest(http.MethodPost, "/orders/", strings.NewReader(`{"items":[{"book_id":"book-a","quantity":1}]}`))
			req = withIdentity(req, "buyer-1")
			rr := httptest.NewRecorder()

			router.ServeHTTP(rr, req)

			if rr.Code != tc.status {
				t.Fatalf("expected status %d, got %d", tc.status, rr.Code)
			}
			if code := decodeErrorCode(t, rr); code != tc.code {
				t.Fatalf("expected error code %s, got %s", tc.code, code)
			}
		})
	}
}

func TestOrderHandlersListOrdersScopesToBuyer(t *testing.T) {
	var captured services.OrderListFilter
	service := &stubOrderService{
		listFn: func(_ context.Context, filter services.OrderListFilter) (services.OrderPage, error) {
			captured = filter
			return services.OrderPage{Items: []services.Order{sampleOrder()}, NextPageToken: "tok-next"}, nil
		},
	}
	router := newOrderRouter(NewOrderHandlers(nil, service))

	req := httptest.NewRequest(http.MethodGet, "/orders/?status=Pending,shipped&page_size=500&page_token=tok123", nil)
	req = withIdentity(req, "buyer-1")
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d (%s)", rr.Code, rr.Body.String())
	}
	if captured.UserID != "buyer-1" {
		t.Fatalf("expected filter scoped to buyer, got %q", captured.UserID)
	}
	if captured.Pagination.PageSize != maxListPageSize || captured.Pagination.PageToken != "tok123" {
		t.Fatalf("unexpected pagination: %#v", captured.Pagination)
	}
	if len(captured.Status) != 2 || captured.Status[0] != domain.OrderStatusPending || captured.Status[1] != domain.OrderStatusShipped {
		t.Fatalf("unexpected status filter: %#v", captured.Status)
	}

	var resp orderListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(resp.Items) != 1 || resp.Items[0].ItemCount != 3 || resp.Items[0].Total != 85000 {
		t.Fatalf("unexpected summaries: %#v", resp.Items)
	}
	if resp.NextPageToken != "tok-next" {
		t.Fatalf("expected next page token, got %q", resp.NextPageToken)
	}
}

func TestOrderHandlersListOrdersInvalidQuery(t *testing.T) {
	for name, query := range map[string]string{
		"page size": "page_size=abc",
		"status":    "status=paid",
	} {
		t.Run(name, func(t *testing.T) {
			router := newOrderRouter(NewOrderHandlers(nil, &stubOrderService{}))

			req := httptest.NewRequest(http.MethodGet, "/orders/?"+query, nil)
			req = withIdentity(req, "buyer-1")
			rr := httptest.NewRecorder()

			router.ServeHTTP(rr, req)

			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400, got %d", rr.Code)
			}
		})
	}
}

func TestOrderHandlersGetOrderHidesOtherBuyers(t *testing.T) {
	service := &stubOrderService{
		getFn: func(_ context.Context, id string) (services.Order, error) {
			if id != "BB-2025-000042" {
				return services.Order{}, services.ErrOrderNotFound
			}
			return sampleOrder(), nil
		},
	}
	router := newOrderRouter(NewOrderHandlers(nil, service))

	req := withIdentity(httptest.NewRequest(http.MethodGet, "/orders/BB-2025-000042", nil), "buyer-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected owner to read order, got %d", rr.Code)
	}
	var resp orderResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(resp.Order.Items) != 2 || len(resp.Order.SellerPayments) != 2 {
		t.Fatalf("expected full order payload, got %#v", resp.Order)
	}
	if resp.Order.CreatedAt != "2025-02-03T10:00:00Z" {
		t.Fatalf("unexpected created_at %q", resp.Order.CreatedAt)
	}

	req = withIdentity(httptest.NewRequest(http.MethodGet, "/orders/BB-2025-000042", nil), "buyer-2")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for another buyer, got %d", rr.Code)
	}
}

func TestOrderHandlersCancelOrder(t *testing.T) {
	var captured services.CancelOrderCommand
	service := &stubOrderService{
		cancelFn: func(_ context.Context, cmd services.CancelOrderCommand) (services.Order, error) {
			captured = cmd
			if cmd.OwnerID != "buyer-1" {
				return services.Order{}, services.ErrOrderForbidden
			}
			order := sampleOrder()
			order.Status = domain.OrderStatusCancelled
			order.CancelReason = cmd.Reason
			return order, nil
		},
	}
	router := newOrderRouter(NewOrderHandlers(nil, service))

	req := httptest.NewRequest(http.MethodPost, "/orders/BB-2025-000042:cancel", strings.NewReader(`{"reason":"ordered twice"}`))
	req = withIdentity(req, "buyer-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d (%s)", rr.Code, rr.Body.String())
	}
	if captured.OrderID != "BB-2025-000042" || captured.ActorID != "buyer-1" || captured.Reason != "ordered twice" {
		t.Fatalf("unexpected command: %#v", captured)
	}

	req = httptest.NewRequest(http.MethodPost, "/orders/BB-2025-000042:cancel", nil)
	req = withIdentity(req, "buyer-2")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 when cancelling another buyer's order, got %d", rr.Code)
	}
}

func TestOrderHandlersCancelOrderInvalidTransition(t *testing.T) {
	service := &stubOrderService{
		cancelFn: func(context.Context, services.CancelOrderCommand) (services.Order, error) {
			return services.Order{}, fmt.Errorf("%w: delivered orders cannot be cancelled", services.ErrOrderInvalidTransition)
		},
	}
	router := newOrderRouter(NewOrderHandlers(nil, service))

	req := withIdentity(httptest.NewRequest(http.MethodPost, "/orders/BB-2025-000042:cancel", nil), "buyer-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}
	if code := decodeErrorCode(t, rr); code != "invalid_transition" {
		t.Fatalf("expected invalid_transition, got %s", code)
	}
}

func TestOrderHandlersQuoteShipping(t *testing.T) {
	service := &stubOrderService{
		quoteFn: func(_ context.Context, postalCode string, subtotal int64) (services.ShippingQuote, error) {
			if postalCode != "700073" || subtotal != 120000 {
				t.Fatalf("unexpected quote input %s %d", postalCode, subtotal)
			}
			return services.ShippingQuote{
				PostalCode:            postalCode,
				Zone:                  "local",
				Subtotal:              subtotal,
				ShippingCost:          0,
				FreeShippingThreshold: 100000,
			}, nil
		},
	}
	router := newOrderRouter(NewOrderHandlers(nil, service))

	req := httptest.NewRequest(http.MethodPost, "/orders/shipping:quote", strings.NewReader(`{"postal_code":"700073","subtotal":120000}`))
	req = withIdentity(req, "buyer-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d (%s)", rr.Code, rr.Body.String())
	}
	var resp shippingQuotePayload
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if !resp.FreeShipping || resp.Zone != "local" {
		t.Fatalf("unexpected quote: %#v", resp)
	}
}

func TestOrderHandlersServiceUnavailable(t *testing.T) {
	router := newOrderRouter(NewOrderHandlers(nil, nil))

	req := withIdentity(httptest.NewRequest(http.MethodGet, "/orders/", nil), "buyer-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
}
