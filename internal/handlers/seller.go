package handlers

import (
	"errors"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/boibabu/api/internal/domain"
	"github.com/boibabu/api/internal/platform/auth"
	"github.com/boibabu/api/internal/platform/httpx"
	"github.com/boibabu/api/internal/platform/storage"
	"github.com/boibabu/api/internal/services"
)

type exportStatementRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type statementResponse struct {
	URL       string `json:"url"`
	Object    string `json:"object"`
	ExpiresAt string `json:"expires_at"`
}

// SellerHandlers exposes the seller's view of their orders and settlements.
type SellerHandlers struct {
	authn      *auth.Authenticator
	orders     services.OrderService
	statements services.StatementService
}

// NewSellerHandlers constructs SellerHandlers. statements may be nil when no bucket is configured.
func NewSellerHandlers(authn *auth.Authenticator, orders services.OrderService, statements services.StatementService) *SellerHandlers {
	return &SellerHandlers{
		authn:      authn,
		orders:     orders,
		statements: statements,
	}
}

// Routes registers the /seller endpoints.
func (h *SellerHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth(auth.RoleSeller))
	}
	r.Get("/orders", h.listOrders)
	r.Get("/orders/{orderID}", h.getOrder)
	r.Get("/payments", h.listPayments)
	r.Post("/statements", h.exportStatement)
}

func (h *SellerHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeServiceUnavailable(ctx, w)
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	filter, ok := orderListFilter(w, r)
	if !ok {
		return
	}
	filter.SellerID = identity.UID

	page, err := h.orders.ListOrders(ctx, filter)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderList(page))
}

func (h *SellerHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeServiceUnavailable(ctx, w)
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	orderID, ok := pathParam(w, r, chi.URLParam(r, "orderID"), "order id")
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(ctx, orderID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	if !slices.Contains(order.SellerIDs, identity.UID) {
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildSellerOrderPayload(order, identity.UID)})
}

func (h *SellerHandlers) listPayments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeServiceUnavailable(ctx, w)
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	query, err := parseListQuery(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	statuses := make([]domain.SellerPaymentStatus, 0, len(query.Status))
	for _, raw := range query.Status {
		status := domain.SellerPaymentStatus(raw)
		if status != domain.SellerPaymentDue && status != domain.SellerPaymentPaid {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "status must be due or paid", http.StatusBadRequest))
			return
		}
		statuses = append(statuses, status)
	}

	page, err := h.orders.ListSellerPayments(ctx, services.SellerPaymentFilter{
		SellerID: identity.UID,
		Status:   statuses,
		Pagination: services.Pagination{
			PageSize:  query.PageSize,
			PageToken: query.PageToken,
		},
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildSettlementList(page))
}

func (h *SellerHandlers) exportStatement(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(r.Context(), w)
	if !ok {
		return
	}
	writeStatementExport(w, r, h.statements, identity, identity.UID)
}

// writeStatementExport is shared by the seller and admin routes. Only the seller or an
// administrator may obtain the signed link.
func writeStatementExport(w http.ResponseWriter, r *http.Request, statements services.StatementService, identity *auth.Identity, sellerID string) {
	ctx := r.Context()
	if statements == nil {
		httpx.WriteError(ctx, w, httpx.NewError("statements_unavailable", "statement export is not configured", http.StatusServiceUnavailable))
		return
	}
	if err := storage.AuthorizeDownload(identity, sellerID); err != nil {
		if errors.Is(err, storage.ErrPermissionDenied) {
			httpx.WriteError(ctx, w, httpx.NewError("forbidden", "statement belongs to another seller", http.StatusForbidden))
			return
		}
		writeOrderError(ctx, w, err)
		return
	}

	var req exportStatementRequest
	if !decodeJSONBody(w, r, &req, true) {
		return
	}
	cmd := services.ExportStatementCommand{SellerID: sellerID, ActorID: identity.UID}
	for _, field := range []struct {
		name string
		raw  string
		dst  **time.Time
	}{
		{name: "from", raw: req.From, dst: &cmd.From},
		{name: "to", raw: req.To, dst: &cmd.To},
	} {
		raw := strings.TrimSpace(field.raw)
		if raw == "" {
			continue
		}
		ts, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", field.name+" "+err.Error(), http.StatusBadRequest))
			return
		}
		*field.dst = &ts
	}

	download, err := statements.ExportSellerStatement(ctx, cmd)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, statementResponse{
		URL:       download.URL,
		Object:    download.Object,
		ExpiresAt: formatTime(download.ExpiresAt),
	})
}
