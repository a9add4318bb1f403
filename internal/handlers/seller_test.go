package handlers

import (
	"context"
	"encoding/json"
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

type stubStatementService struct {
	calls []services.ExportStatementCommand
	err   error
}

func (s *stubStatementService) ExportSellerStatement(_ context.Context, cmd services.ExportStatementCommand) (services.SignedDownload, error) {
	s.calls = append(s.calls, cmd)
	if s.err != nil {
		return services.SignedDownload{}, s.err
	}
	return services.SignedDownload{
		Bucket:    "boibabu-statements",
		Object:    "statements/" + cmd.SellerID + "/2025-02.csv",
		URL:       "https://storage.example.com/signed",
		ExpiresAt: time.Date(2025, 2, 3, 11, 0, 0, 0, time.UTC),
	}, nil
}

var _ services.StatementService = (*stubStatementService)(nil)

func newSellerRouter(orders services.OrderService, statements services.StatementService) chi.Router {
	router := chi.NewRouter()
	router.Route("/seller", NewSellerHandlers(nil, orders, statements).Routes)
	return router
}

func TestSellerHandlersListOrdersScopesToSeller(t *testing.T) {
	var captured services.OrderListFilter
	service := &stubOrderService{
		listFn: func(_ context.Context, filter services.OrderListFilter) (services.OrderPage, error) {
			captured = filter
			return services.OrderPage{}, nil
		},
	}
	router := newSellerRouter(service, nil)

	req := withIdentity(httptest.NewRequest(http.MethodGet, "/seller/orders?status=confirmed", nil), "seller-a", auth.RoleSeller)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if captured.SellerID != "seller-a" || captured.UserID != "" {
		t.Fatalf("expected seller scoped filter, got %#v", captured)
	}
}

func TestSellerHandlersGetOrderNarrowsToSeller(t *testing.T) {
	service := &stubOrderService{
		getFn: func(context.Context, string) (services.Order, error) {
			order := sampleOrder()
			order.Coupon = &domain.CouponSnapshot{Code: "BOI10", Type: domain.CouponTypePercentage, Value: 10}
			order.CouponDiscount = 8000
			return order, nil
		},
	}
	router := newSellerRouter(service, nil)

	req := withIdentity(httptest.NewRequest(http.MethodGet, "/seller/orders/BB-2025-000042", nil), "seller-b", auth.RoleSeller)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d (%s)", rr.Code, rr.Body.String())
	}
	var resp orderResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(resp.Order.Items) != 1 || resp.Order.Items[0].SellerID != "seller-b" {
		t.Fatalf("expected only seller-b items, got %#v", resp.Order.Items)
	}
	if len(resp.Order.SellerPayments) != 1 || resp.Order.SellerPayments[0].NetAmount != 28875 {
		t.Fatalf("expected only seller-b settlement, got %#v", resp.Order.SellerPayments)
	}
	if resp.Order.Coupon != nil {
		t.Fatalf("expected coupon hidden from seller, got %#v", resp.Order.Coupon)
	}

	req = withIdentity(httptest.NewRequest(http.MethodGet, "/seller/orders/BB-2025-000042", nil), "seller-z", auth.RoleSeller)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for an unrelated seller, got %d", rr.Code)
	}
}

func TestSellerHandlersListPayments(t *testing.T) {
	paidAt := time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC)
	var captured services.SellerPaymentFilter
	service := &stubOrderService{
		settlementsFn: func(_ context.Context, filter services.SellerPaymentFilter) (services.SettlementPage, error) {
			captured = filter
			return services.SettlementPage{
				Items: []services.SellerSettlement{{
					OrderID:     "BB-2025-000042",
					OrderNumber: "BB-2025-000042",
					OrderStatus: domain.OrderStatusDelivered,
					OrderedAt:   time.Date(2025, 2, 3, 10, 0, 0, 0, time.UTC),
					Payment: services.SellerPayment{
						SellerID:      "seller-a",
						NetAmount:     48125,
						PaymentStatus: domain.SellerPaymentPaid,
						PaidBy:        "admin-1",
						PaidAt:        &paidAt,
					},
				}},
				NextPageToken: "next",
			}, nil
		},
	}
	router := newSellerRouter(service, nil)

	req := withIdentity(httptest.NewRequest(http.MethodGet, "/seller/payments?status=paid&page_size=10", nil), "seller-a", auth.RoleSeller)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d (%s)", rr.Code, rr.Body.String())
	}
	if captured.SellerID != "seller-a" || len(captured.Status) != 1 || captured.Status[0] != domain.SellerPaymentPaid {
		t.Fatalf("unexpected filter: %#v", captured)
	}
	if captured.Pagination.PageSize != 10 {
		t.Fatalf("expected page size 10, got %d", captured.Pagination.PageSize)
	}
	var resp settlementListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(resp.Items) != 1 || resp.Items[0].Payment.PaidAt != "2025-02-10T00:00:00Z" || resp.Items[0].OrderStatus != "delivered" {
		t.Fatalf("unexpected settlements: %#v", resp.Items)
	}

	req = withIdentity(httptest.NewRequest(http.MethodGet, "/seller/payments?status=pending", nil), "seller-a", auth.RoleSeller)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown settlement status, got %d", rr.Code)
	}
}

func TestSellerHandlersExportStatement(t *testing.T) {
	statements := &stubStatementService{}
	router := newSellerRouter(&stubOrderService{}, statements)

	req := httptest.NewRequest(http.MethodPost, "/seller/statements", strings.NewReader(`{"from":"2025-02-01","to":"2025-03-01T00:00:00Z"}`))
	req = withIdentity(req, "seller-a", auth.RoleSeller)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d (%s)", rr.Code, rr.Body.String())
	}
	if len(statements.calls) != 1 {
		t.Fatalf("expected one export, got %d", len(statements.calls))
	}
	cmd := statements.calls[0]
	if cmd.SellerID != "seller-a" || cmd.From == nil || cmd.To == nil {
		t.Fatalf("unexpected command: %#v", cmd)
	}
	if !cmd.From.Equal(time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)) || !cmd.To.Equal(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected range %v - %v", cmd.From, cmd.To)
	}
	var resp statementResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Object != "statements/seller-a/2025-02.csv" || resp.ExpiresAt != "2025-02-03T11:00:00Z" {
		t.Fatalf("unexpected statement payload: %#v", resp)
	}
}

func TestSellerHandlersExportStatementValidation(t *testing.T) {
	t.Run("bad date", func(t *testing.T) {
		statements := &stubStatementService{}
		router := newSellerRouter(&stubOrderService{}, statements)

		req := httptest.NewRequest(http.MethodPost, "/seller/statements", strings.NewReader(`{"from":"last week"}`))
		req = withIdentity(req, "seller-a", auth.RoleSeller)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Fatalf("expected status 400, got %d", rr.Code)
		}
		if len(statements.calls) != 0 {
			t.Fatalf("expected no export, got %d", len(statements.calls))
		}
	})

	t.Run("not configured", func(t *testing.T) {
		router := newSellerRouter(&stubOrderService{}, nil)

		req := withIdentity(httptest.NewRequest(http.MethodPost, "/seller/statements", nil), "seller-a", auth.RoleSeller)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		if rr.Code != http.StatusServiceUnavailable {
			t.Fatalf("expected status 503, got %d", rr.Code)
		}
	})
}

func TestWriteStatementExportRejectsOtherSellers(t *testing.T) {
	statements := &stubStatementService{}
	req := httptest.NewRequest(http.MethodPost, "/statements", nil)
	rr := httptest.NewRecorder()

	writeStatementExport(rr, req, statements, &auth.Identity{UID: "seller-a", Roles: []string{auth.RoleSeller}}, "seller-b")

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", rr.Code)
	}
	if len(statements.calls) != 0 {
		t.Fatalf("expected no export, got %d", len(statements.calls))
	}
}
